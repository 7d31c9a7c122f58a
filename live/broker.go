package live

import (
	"time"
)

type (
	// Broker carries messages from the synthesis goroutine to the UI. Sends
	// from the synthesis side never block: if the UI is not keeping up, the
	// message is dropped.
	//
	// The values sent to ToUI are Alert, *liveseq.ArgumentError and
	// StoppedMsg.
	Broker struct {
		ToUI chan any
	}

	// StoppedMsg is sent when the Player's render loop ends. Err is nil for a
	// normal stop.
	StoppedMsg struct {
		Err error
	}
)

func NewBroker() *Broker {
	return &Broker{ToUI: make(chan any, 256)}
}

// TrySend sends v unless c is full, and reports whether it did.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}

// TimeoutReceive waits at most t for a value from c. ok is false on timeout
// and when c is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	timer := time.NewTimer(t)
	defer timer.Stop()
	select {
	case v, ok = <-c:
		return v, ok
	case <-timer.C:
		return v, false
	}
}
