package id

import "github.com/google/uuid"

// Generator creates opaque identifiers.
type Generator interface {
	New() string
}

type UUID struct{}

func (UUID) New() string {
	return uuid.NewString()
}

// Short returns the leading eight characters used in ledger descriptions.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
