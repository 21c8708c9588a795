package eventbus

import (
	"reflect"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

// EventName returns the routing key of an event value: its short type name.
// Pointer indirection and the package path are ignored.
func EventName(e cbus.Event) string { return typeName(reflect.TypeOf(e)) }

// EventNameOf returns the routing key of event type E.
func EventNameOf[E cbus.Event]() string { return typeName(reflect.TypeFor[E]()) }

func typeName(t reflect.Type) string {
	t = indirect(t)

	name := t.Name()
	if name == "" { // unnamed (e.g., struct literal)
		name = t.String()
	}

	return name
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t
}
