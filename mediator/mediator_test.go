package mediator_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/mediator"
)

type gCmd struct{ ID string }

type gQry struct{ K string }

type gRes struct{ V string }

type gCmdHandler struct{ seen *[]string }

func (h gCmdHandler) Handle(ctx context.Context, c gCmd) error {
	*h.seen = append(*h.seen, c.ID)
	return nil
}

type gQryHandler struct{}

func (gQryHandler) Handle(ctx context.Context, q gQry) (gRes, error) { return gRes{V: q.K}, nil }

type badCmd struct{ X int }

func Test_BindAndErrors(t *testing.T) {
	m := mediator.New()
	if err := m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error { return nil }); err != nil {
		t.Fatalf("bind cmd: %v", err)
	}

	err := m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error { return nil })
	if !errors.Is(err, berr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}

	if err := m.Send(t.Context(), struct{ X int }{1}); !errors.Is(err, berr.ErrNoCommandHandler) {
		t.Fatalf("want ErrNoCommandHandler, got %v", err)
	}

	m2 := mediator.New()
	_ = m2.BindQueryOf(gQry{}, func(ctx context.Context, q any) (any, error) { return 1, nil })

	_, err = mediator.Ask[gQry, gRes](t.Context(), m2, gQry{K: "g1"})
	if !errors.Is(err, berr.ErrHandlerTypeMismatch) {
		t.Fatalf("want ErrHandlerTypeMismatch, got %v", err)
	}

	if _, err := m2.Ask(t.Context(), badCmd{}); !errors.Is(err, berr.ErrNoQueryHandler) || errors.Is(err, berr.ErrNoCommandHandler) {
		t.Fatalf("want ErrNoQueryHandler, got %v", err)
	}

	if err := m2.BindQueryOf(gQry{}, func(ctx context.Context, q any) (any, error) { return nil, nil }); !errors.Is(err, berr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}
}

func Test_GenericBindAndSend(t *testing.T) {
	m := mediator.New()

	var seen []string
	if err := mediator.BindCommand[gCmd](m, gCmdHandler{seen: &seen}); err != nil {
		t.Fatalf("bind cmd: %v", err)
	}

	// Duplicate should error
	if err := mediator.BindCommand[gCmd](m, gCmdHandler{seen: &seen}); !errors.Is(err, berr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}

	if err := m.Send(t.Context(), gCmd{ID: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(seen) != 1 || seen[0] != "x" {
		t.Fatalf("seen=%v", seen)
	}

	if err := mediator.BindQuery[gQry, gRes](m, gQryHandler{}); err != nil {
		t.Fatalf("bind query: %v", err)
	}

	r, err := mediator.Ask[gQry, gRes](t.Context(), m, gQry{K: "k"})
	if err != nil || r.V != "k" {
		t.Fatalf("ask: %v r=%+v", err, r)
	}

	raw, err := m.Ask(t.Context(), gQry{K: "raw"})
	if err != nil || raw.(gRes).V != "raw" {
		t.Fatalf("ask untyped: %v r=%+v", err, raw)
	}

	// pointer and value commands are distinct types
	if err := m.Send(t.Context(), &gCmd{ID: "p"}); !errors.Is(err, berr.ErrNoCommandHandler) {
		t.Fatalf("want ErrNoCommandHandler, got %v", err)
	}
}

func Test_SendPropagatesHandlerError(t *testing.T) {
	m := mediator.New()
	boom := errors.New("boom")

	_ = m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error { return boom })

	if err := m.Send(t.Context(), gCmd{}); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func Test_SendWithMiddleware_OrderAndWrapping(t *testing.T) {
	calls := []string{}
	mw := func(name string) mediator.CommandMiddleware {
		return func(next func(ctx context.Context, cmd any) error) func(ctx context.Context, cmd any) error {
			return func(ctx context.Context, cmd any) error {
				calls = append(calls, name+"-before")
				err := next(ctx, cmd)

				calls = append(calls, name+"-after")

				return err
			}
		}
	}

	// Global registration order matters
	m := mediator.New(mediator.WithCommandMiddleware(mw("mw1"), mw("mw2")))
	_ = m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error {
		calls = append(calls, "handler")
		return nil
	})

	if err := m.SendWithMiddleware(t.Context(), gCmd{ID: "1"}, mw("call")); err != nil {
		t.Fatalf("send with mw: %v", err)
	}

	want := []string{"mw1-before", "mw2-before", "call-before", "handler", "call-after", "mw2-after", "mw1-after"}
	if len(calls) != len(want) {
		t.Fatalf("calls=%v want=%v", calls, want)
	}

	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("order mismatch at %d: %s != %s", i, calls[i], want[i])
		}
	}
}

func Test_Chain_StopsOnFirstError(t *testing.T) {
	m := mediator.New()

	var i int

	_ = m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error {
		i++
		if i == 2 {
			return errors.New("boom")
		}

		return nil
	})

	err := m.Chain(t.Context(), gCmd{ID: "1"}, gCmd{ID: "2"}, gCmd{ID: "3"})
	if err == nil {
		t.Fatalf("expected error")
	}

	if i != 2 { // third should not run
		t.Fatalf("ran %d handlers, want 2", i)
	}
}

func Test_Batch_AggregatesAndReports(t *testing.T) {
	m := mediator.New()

	_ = m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error {
		if v.(gCmd).ID == "bad" {
			return errors.New("bad command")
		}

		return nil
	})

	var (
		progress []int
		failed   []int
	)

	cmds := []cbus.Command{gCmd{ID: "1"}, gCmd{ID: "bad"}, badCmd{}, gCmd{ID: "4"}}

	err := m.Batch(t.Context(), cmds,
		mediator.WithBatchProgress(func(done, total int) { progress = append(progress, done) }),
		mediator.WithBatchOnError(func(index int, cmd cbus.Command, err error) { failed = append(failed, index) }),
	)
	if err == nil || !errors.Is(err, berr.ErrNoCommandHandler) {
		t.Fatalf("want aggregated error with ErrNoCommandHandler, got %v", err)
	}

	if len(progress) != 4 || progress[3] != 4 {
		t.Fatalf("progress=%v", progress)
	}

	if len(failed) != 2 || failed[0] != 1 || failed[1] != 2 {
		t.Fatalf("failed=%v", failed)
	}
}

func Test_Batch_StopsOnCancel(t *testing.T) {
	m := mediator.New()
	_ = m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error { return nil })

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := m.Batch(ctx, []cbus.Command{gCmd{}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func Test_LoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer

	l := zerolog.New(&buf)
	m := mediator.New(mediator.WithLogger(l), mediator.WithCommandMiddleware(mediator.LoggingMiddleware(l)))
	_ = m.BindCommandOf(gCmd{}, func(ctx context.Context, v any) error { return errors.New("declined") })

	_ = m.Send(t.Context(), gCmd{ID: "1"})

	out := buf.String()
	if !strings.Contains(out, `"command":"mediator_test.gCmd"`) || !strings.Contains(out, `"error":"declined"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
