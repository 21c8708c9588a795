package bus

import "context"

// CommandHandler handles commands of type C.
// Implementations must be safe for concurrent use by multiple goroutines.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, c C) error
}

// QueryHandler handles queries of type Q and returns a result of type R.
// Implementations must be safe for concurrent use by multiple goroutines.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// EventHandler handles integration events of type E.
// A fresh handler is built for every delivery, so implementations may keep per-delivery state.
type EventHandler[E Event] interface {
	Handle(ctx context.Context, e E) error
}
