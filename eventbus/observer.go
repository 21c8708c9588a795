package eventbus

import "time"

// DropReason tells why an inbound message reached no handler.
type DropReason string

const (
	DropUnknownEvent DropReason = "unknown_event"
	DropUndecodable  DropReason = "undecodable"
)

// Observer receives bus traffic notifications. Implementations must be safe for concurrent use.
type Observer interface {
	Published(event string)
	Received(event string)
	Dropped(event string, reason DropReason)
	Handled(event, handler string, err error, elapsed time.Duration)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) Published(string)                             {}
func (NopObserver) Received(string)                              {}
func (NopObserver) Dropped(string, DropReason)                   {}
func (NopObserver) Handled(string, string, error, time.Duration) {}
