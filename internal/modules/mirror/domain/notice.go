package domain

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-visible message raised by the mirror.
type Notice struct {
	Level   NoticeLevel
	Title   string
	Message string
}

func (n Notice) Empty() bool {
	return n.Title == "" && n.Message == ""
}

func ErrorNotice(title string, err error) Notice {
	return Notice{Level: NoticeError, Title: title, Message: err.Error()}
}
