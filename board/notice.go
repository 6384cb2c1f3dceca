package board

import "time"

type NoticeLevel string

const (
	NoticeInfo   NoticeLevel = "info"
	NoticeError  NoticeLevel = "error"
	NoticeLocked NoticeLevel = "locked"
)

// Notice is a transient message for the user owning a board.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	TaskID  string      `json:"taskId,omitempty"`
	Time    time.Time   `json:"time"`
}

// Notifier receives notices and board change signals for a user.
type Notifier interface {
	Notify(owner string, n Notice)
	BoardChanged(owner string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Notice) {}
func (nopNotifier) BoardChanged(string)   {}
