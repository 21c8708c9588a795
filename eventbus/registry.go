package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// eventType describes the concrete type behind an event name.
// decode already knows that type, so inbound payloads need no runtime type lookup.
type eventType struct {
	typ    reflect.Type
	decode func(s cbus.Serializer, data []byte) (any, error)
}

// registration binds one handler type to an event name.
type registration struct {
	handlerType reflect.Type
	handlerName string
	invoke      func(ctx context.Context, event any) error
}

// Registry owns the subscriptions of a single Bus: the ordered handlers of every event name
// and the event type used to decode that name's payloads.
//
// Registries are meant to be filled while subscribing at startup and read afterwards.
// A Registry must not be shared between buses.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string][]registration
	eventTypes map[string]eventType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:   make(map[string][]registration),
		eventTypes: make(map[string]eventType),
	}
}

// add appends reg to the handlers of name, recording et on first sight of the name.
// The returned undo removes exactly this registration again.
func (r *Registry) add(name string, et eventType, reg registration) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known, seen := r.eventTypes[name]
	if seen && known.typ != et.typ {
		return nil, fmt.Errorf("subscribe %s: name already used by %s: %w", et.typ, known.typ, berr.ErrEventNameConflict)
	}

	for _, existing := range r.handlers[name] {
		if existing.handlerType == reg.handlerType {
			return nil, fmt.Errorf(
				"subscribe %s to %s: %w", reg.handlerName, name, berr.ErrDuplicateHandlerRegistration,
			)
		}
	}

	if !seen {
		r.eventTypes[name] = et
	}

	if _, ok := r.handlers[name]; !ok {
		r.handlers[name] = make([]registration, 0, 1)
	}

	r.handlers[name] = append(r.handlers[name], reg)

	undo := func() { r.remove(name, reg.handlerType) }

	return undo, nil
}

func (r *Registry) remove(name string, handlerType reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = slices.DeleteFunc(r.handlers[name], func(reg registration) bool {
		return reg.handlerType == handlerType
	})

	if len(r.handlers[name]) == 0 {
		delete(r.handlers, name)
		delete(r.eventTypes, name)
	}
}

// lookup returns a snapshot of the registrations of name and its event type.
func (r *Registry) lookup(name string) ([]registration, eventType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.handlers[name]
	et, ok := r.eventTypes[name]

	if !ok || len(regs) == 0 {
		return nil, eventType{}, false
	}

	return slices.Clone(regs), et, true
}

// HandlerCount returns how many handlers are registered for an event name.
func (r *Registry) HandlerCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers[name])
}

// HandlerNames returns the handler type names of an event in registration order.
func (r *Registry) HandlerNames(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers[name]))
	for _, reg := range r.handlers[name] {
		names = append(names, reg.handlerName)
	}

	return names
}

// EventType returns the concrete type registered under an event name.
func (r *Registry) EventType(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	et, ok := r.eventTypes[name]

	return et.typ, ok
}

// EventNames returns every subscribed event name, sorted.
func (r *Registry) EventNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.eventTypes))
	for name := range r.eventTypes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
