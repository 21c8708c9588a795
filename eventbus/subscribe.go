package eventbus

import (
	"context"
	"fmt"
	"reflect"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Subscribe registers handler type H for event type E. A zero-value H is built for every delivery.
//
//	eventbus.Subscribe[TransferCreatedEvent, TransferEventHandler](bus)
//
// Subscribing the same (E, H) pair twice fails with ErrDuplicateHandlerRegistration.
func Subscribe[E cbus.Event, H any, PH interface {
	*H
	cbus.EventHandler[E]
}](b *Bus) error {
	return SubscribeWith[E, PH](b, func() PH { return PH(new(H)) })
}

// SubscribeWith registers handler type H for event type E, building a handler with newHandler
// for every delivery. Handler identity is the type H with pointer indirection removed, so
// SubscribeWith[E, *T] and Subscribe[E, T] count as the same registration.
func SubscribeWith[E cbus.Event, H cbus.EventHandler[E]](b *Bus, newHandler func() H) error {
	evType := reflect.TypeFor[E]()
	name := typeName(evType)
	handlerType := indirect(reflect.TypeFor[H]())

	if indirect(evType).Kind() == reflect.Interface {
		return fmt.Errorf("subscribe %s: event type must be concrete: %w", name, berr.ErrHandlerTypeMismatch)
	}

	if newHandler == nil {
		return fmt.Errorf("subscribe %s to %s: nil handler factory: %w", handlerType, name, berr.ErrHandlerTypeMismatch)
	}

	et := eventType{
		typ: evType,
		decode: func(s cbus.Serializer, data []byte) (any, error) {
			var e E
			if err := s.Deserialize(data, &e); err != nil {
				return nil, err
			}

			return e, nil
		},
	}

	reg := registration{
		handlerType: handlerType,
		handlerName: handlerType.String(),
		invoke: func(ctx context.Context, v any) error {
			e, ok := v.(E)
			if !ok {
				return fmt.Errorf("handle %s: %w", name, berr.ErrHandlerTypeMismatch)
			}

			return newHandler().Handle(ctx, e)
		},
	}

	return b.subscribe(name, et, reg)
}
