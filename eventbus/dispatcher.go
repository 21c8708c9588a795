package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// ProcessEvent decodes payload into the event type registered for eventName and invokes every
// registered handler with it, sequentially and in subscription order.
//
// A name without handlers is dropped and yields nil. An undecodable payload returns
// ErrDeserialization before any handler runs. Handler failures, panics included, are returned
// joined under ErrHandlerFailed; unless the bus was built WithFailFast, the remaining handlers
// still run.
func (b *Bus) ProcessEvent(ctx context.Context, eventName string, payload []byte) error {
	regs, et, ok := b.registry.lookup(eventName)
	if !ok {
		b.observer.Dropped(eventName, DropUnknownEvent)
		b.logger.Warn().Err(berr.ErrUnknownEvent).Str("event", eventName).Msg("No handlers registered, message dropped")

		return nil
	}

	event, err := et.decode(b.serializer, payload)
	if err != nil {
		b.observer.Dropped(eventName, DropUndecodable)
		return fmt.Errorf("process %s: %w", eventName, errors.Join(berr.ErrDeserialization, err))
	}

	var errs []error

	for _, reg := range regs {
		if err := b.invoke(ctx, eventName, reg, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", reg.handlerName, err))

			if b.failFast {
				break
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("process %s: %w", eventName, errors.Join(append([]error{berr.ErrHandlerFailed}, errs...)...))
}

func (b *Bus) invoke(ctx context.Context, eventName string, reg registration, event any) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		b.observer.Handled(eventName, reg.handlerName, err, time.Since(start))
	}()

	return reg.invoke(ctx, event)
}

// deliver is the ConsumerLoop callback for one inbound message.
func (b *Bus) deliver(ctx context.Context, d cbus.Delivery) {
	b.observer.Received(d.RoutingKey)

	if !utf8.Valid(d.Body) {
		b.observer.Dropped(d.RoutingKey, DropUndecodable)
		b.logger.Error().Err(berr.ErrDeserialization).Str("event", d.RoutingKey).Msg("Payload is not UTF-8 text, message dropped")

		return
	}

	if err := b.ProcessEvent(ctx, d.RoutingKey, d.Body); err != nil {
		b.logger.Error().Err(err).Str("event", d.RoutingKey).Msg("Event processing failed")
	}
}
