package dto

import "time"

type Message struct {
	Channel string
	Origin  string
	Payload []byte
	SentAt  time.Time
}

type Stats struct {
	Origin    string
	Published int64
	Failures  int64
}
