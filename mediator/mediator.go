package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Mediator is a thin in-process dispatcher with an internal binder.
// It supports synchronous command and query handling with command middleware.
//
// Mediator is concurrency-safe and contains no global state.
type Mediator struct {
	mu sync.RWMutex

	cmd map[reflect.Type]func(ctx context.Context, cmd any) error
	qry map[reflect.Type]func(ctx context.Context, q any) (any, error)

	// global command middleware executed in registration order
	cmdMW []CommandMiddleware

	logger zerolog.Logger
}

var _ cbus.CommandDispatcher = (*Mediator)(nil)

// Option configures a Mediator instance.
type Option func(*Mediator)

// CommandMiddleware wraps command handler execution. Middlewares are executed in registration order.
type CommandMiddleware func(next func(ctx context.Context, cmd any) error) func(ctx context.Context, cmd any) error

// New constructs an empty Mediator.
func New(opts ...Option) *Mediator {
	m := &Mediator{
		cmd:    make(map[reflect.Type]func(context.Context, any) error),
		qry:    make(map[reflect.Type]func(context.Context, any) (any, error)),
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithCommandMiddleware registers global command middleware via an option.
func WithCommandMiddleware(mw ...CommandMiddleware) Option {
	return func(m *Mediator) { m.cmdMW = append(m.cmdMW, mw...) }
}

// WithLogger sets the logger used for binding diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Mediator) { m.logger = l.With().Str("component", "mediator").Logger() }
}

// BindCommandOf registers a handler for a specific command type.
// Provide a zero value of the command type via sample.
func (m *Mediator) BindCommandOf(sample any, handler func(ctx context.Context, cmd any) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := reflect.TypeOf(sample)
	if _, exists := m.cmd[t]; exists {
		return fmt.Errorf("bind command %s: %w", t.String(), berr.ErrHandlerExists)
	}

	m.cmd[t] = func(ctx context.Context, v any) error { return handler(ctx, v) }
	m.logger.Debug().Str("command", t.String()).Msg("Command handler bound")

	return nil
}

// BindQueryOf registers a handler for a specific query type returning any result.
func (m *Mediator) BindQueryOf(sample any, handler func(ctx context.Context, q any) (any, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := reflect.TypeOf(sample)
	if _, exists := m.qry[t]; exists {
		return fmt.Errorf("bind query %s: %w", t.String(), berr.ErrHandlerExists)
	}

	m.qry[t] = func(ctx context.Context, v any) (any, error) { return handler(ctx, v) }
	m.logger.Debug().Str("query", t.String()).Msg("Query handler bound")

	return nil
}

// BindCommand registers a handler for command type C. Duplicate bindings are rejected.
func BindCommand[C cbus.Command](m *Mediator, h cbus.CommandHandler[C]) error {
	var zero C

	return m.BindCommandOf(zero, func(ctx context.Context, v any) error {
		c, ok := v.(C)
		if !ok {
			return fmt.Errorf("send %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, c)
	})
}

// BindQuery registers a handler for query type Q producing R. Duplicate bindings are rejected.
func BindQuery[Q cbus.Query, R any](m *Mediator, h cbus.QueryHandler[Q, R]) error {
	var zero Q

	return m.BindQueryOf(zero, func(ctx context.Context, v any) (any, error) {
		q, ok := v.(Q)
		if !ok {
			return nil, fmt.Errorf("ask %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, q)
	})
}

// Ask executes a query handler synchronously and returns an untyped result.
func (m *Mediator) Ask(ctx context.Context, q any) (any, error) {
	m.mu.RLock()
	f, ok := m.qry[reflect.TypeOf(q)]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ask %s: %w", typeString(q), berr.ErrNoQueryHandler)
	}

	return f(ctx, q)
}

// Ask executes a query handler synchronously and returns the typed result.
func Ask[Q cbus.Query, R any](ctx context.Context, m *Mediator, q Q) (R, error) {
	var zero R

	res, err := m.Ask(ctx, q)
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("ask %s: %w", typeString(q), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}

// Send executes the command handler synchronously (with middleware).
func (m *Mediator) Send(ctx context.Context, cmd cbus.Command) error {
	return m.sendWithMiddleware(ctx, cmd)
}

// SendWithMiddleware executes a command with additional per-call middleware.
func (m *Mediator) SendWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	return m.sendWithMiddleware(ctx, cmd, mws...)
}

func (m *Mediator) sendWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	m.mu.RLock()
	f, ok := m.cmd[reflect.TypeOf(cmd)]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("send %s: %w", typeString(cmd), berr.ErrNoCommandHandler)
	}

	// Combine global and per-call middleware
	chain := make([]CommandMiddleware, 0, len(m.cmdMW)+len(mws))
	chain = append(chain, m.cmdMW...)
	chain = append(chain, mws...)

	// Build chain so the first registered middleware runs first
	final := f
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	return final(ctx, cmd)
}

// Chain executes commands in order and stops on the first error.
func (m *Mediator) Chain(ctx context.Context, cmds ...cbus.Command) error {
	for _, c := range cmds {
		if err := m.sendWithMiddleware(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

// BatchOptions controls Batch execution behavior.
// OnProgress is called after each command completes (success or failure) with done and total.
// OnError is called when a command returns an error with its index, the command value, and the error.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(index int, cmd cbus.Command, err error)
}

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the error callback.
func WithBatchOnError(fn func(index int, cmd cbus.Command, err error)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// Batch executes the provided commands sequentially.
// It respects context cancellation, reports progress, and aggregates errors.
func (m *Mediator) Batch(ctx context.Context, cmds []cbus.Command, opts ...BatchOpt) error {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	total := len(cmds)

	var errs []error

	for i, c := range cmds {
		if err := ctx.Err(); err != nil { // canceled or deadline exceeded
			return errors.Join(append(errs, err)...)
		}

		err := m.sendWithMiddleware(ctx, c)
		if err != nil {
			if o.OnError != nil {
				o.OnError(i, c, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, total)
		}
	}

	return errors.Join(errs...)
}

// LoggingMiddleware logs every command with its outcome and duration at debug level,
// and failures at error level.
func LoggingMiddleware(l zerolog.Logger) CommandMiddleware {
	return func(next func(ctx context.Context, cmd any) error) func(ctx context.Context, cmd any) error {
		return func(ctx context.Context, cmd any) error {
			start := time.Now()
			err := next(ctx, cmd)

			ev := l.Debug()
			if err != nil {
				ev = l.Error().Err(err)
			}

			ev.Str("command", typeString(cmd)).Dur("elapsed", time.Since(start)).Msg("Command handled")

			return err
		}
	}
}

func typeString(v any) string {
	if v == nil {
		return "<nil>"
	}

	return reflect.TypeOf(v).String()
}
