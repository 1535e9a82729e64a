package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/boo-chat/boo/bot/plugin"
)

// Kind classifies the outcome of routing a single command invocation.
type Kind uint8

const (
	// KindHandled means the owning unit produced a reply, possibly empty.
	KindHandled Kind = iota
	// KindNoHandler means no active unit owns the command token. This is a
	// normal outcome, not an error.
	KindNoHandler
	// KindDeclined means the owning unit reported that it did not actually
	// handle the command.
	KindDeclined
	// KindFailed means the owning unit's handler returned an error or
	// panicked. No internal detail is carried to the end user.
	KindFailed
	// KindTimedOut means the handler exceeded its per-unit time bound and
	// the invocation was cancelled.
	KindTimedOut
)

// String returns a lower-case name for the outcome kind.
func (k Kind) String() string {
	switch k {
	case KindHandled:
		return "handled"
	case KindNoHandler:
		return "no_handler"
	case KindDeclined:
		return "declined"
	case KindFailed:
		return "failed"
	case KindTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Outcome is the result of a single routed command invocation.
type Outcome struct {
	Kind     Kind
	Reply    string
	UnitName string
	Command  string
	Duration time.Duration
}

// Source resolves command tokens to routes and records handler failures for
// status snapshots. *plugin.Manager satisfies it.
type Source interface {
	Route(command string) (plugin.Route, bool)
	NoteFailure(name, reason string)
}

// Router arbitrates between handler units: it resolves a parsed command
// against the current command table and invokes the owning unit under a
// bounded-time guard and a failure boundary. A handler fault never reaches
// the caller and never disturbs the command table.
type Router struct {
	source Source
	log    *slog.Logger
}

// NewRouter constructs a Router reading routes from source.
func NewRouter(source Source, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{source: source, log: log.With("subsystem", "router")}
}

type handleResult struct {
	reply   string
	handled bool
	err     error
}

// Route looks the call's command up and invokes the owning unit. The
// invocation runs on its own goroutine so that a timeout abandons it without
// blocking the dispatcher; a cancelled handler keeps running until it
// observes its context, which is a known, bounded risk.
func (r *Router) Route(ctx context.Context, call plugin.Call) Outcome {
	route, ok := r.source.Route(call.Command)
	if !ok {
		return Outcome{Kind: KindNoHandler, Command: call.Command}
	}

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, route.Timeout)
	defer cancel()

	results := make(chan handleResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("Handler panic.", "unit", route.UnitName, "command", call.Command, "panic", rec, "stack", string(debug.Stack()))
				results <- handleResult{err: &panicError{value: rec}}
			}
		}()
		reply, handled, err := route.Unit.Handle(hctx, call)
		results <- handleResult{reply: reply, handled: handled, err: err}
	}()

	select {
	case <-hctx.Done():
		if ctx.Err() == nil {
			r.log.Warn("Handler timed out.", "unit", route.UnitName, "command", call.Command, "timeout", route.Timeout)
			r.source.NoteFailure(route.UnitName, "timeout handling "+call.Command)
			return Outcome{Kind: KindTimedOut, UnitName: route.UnitName, Command: call.Command, Duration: time.Since(start)}
		}
		return Outcome{Kind: KindFailed, UnitName: route.UnitName, Command: call.Command, Duration: time.Since(start)}
	case res := <-results:
		duration := time.Since(start)
		if res.err != nil {
			r.log.Error("Handler failed.", "unit", route.UnitName, "command", call.Command, "error", res.err)
			r.source.NoteFailure(route.UnitName, res.err.Error())
			return Outcome{Kind: KindFailed, UnitName: route.UnitName, Command: call.Command, Duration: duration}
		}
		if !res.handled {
			return Outcome{Kind: KindDeclined, UnitName: route.UnitName, Command: call.Command, Duration: duration}
		}
		return Outcome{Kind: KindHandled, Reply: res.reply, UnitName: route.UnitName, Command: call.Command, Duration: duration}
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}
