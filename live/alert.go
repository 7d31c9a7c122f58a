package live

import "time"

type (
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}

	AlertPriority int
)

const (
	None AlertPriority = iota
	Info
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "none"
	}
}
