package eventbus

import (
	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

// Option configures a Bus instance.
type Option func(*Bus)

// WithCommandDispatcher sets the in-process collaborator used by SendCommand.
func WithCommandDispatcher(d cbus.CommandDispatcher) Option {
	return func(b *Bus) { b.commands = d }
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(s cbus.Serializer) Option {
	return func(b *Bus) {
		if s != nil {
			b.serializer = s
		}
	}
}

// WithLogger sets the base logger; the bus derives its component logger from it.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithObserver registers a traffic observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithFailFast stops a delivery's handler fan-out at the first failing handler.
// By default every handler runs and failures are aggregated.
func WithFailFast() Option {
	return func(b *Bus) { b.failFast = true }
}
