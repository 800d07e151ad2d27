package pipeline

import (
	"context"

	llmkit "github.com/streamloop/llmkit"
)

// Middleware is a named component composed into the pipeline. A middleware
// implements any subset of the optional hook interfaces below.
//
// One middleware instance may serve many concurrent invocations, so it must
// keep invocation-specific data in the per-invocation Context store, never
// in its own fields.
type Middleware interface {
	Name() string
}

// RequestHook runs during the request phase, strictly in registration order.
// A hook may mutate mc.Request in place or stash values in the state store
// for later hooks of the same invocation.
type RequestHook interface {
	Middleware
	OnRequest(ctx context.Context, mc *Context) error
}

// StreamEventHook runs for every canonical event during streaming calls.
//
// The returned slice becomes the input fed to the next middleware: return
// the event unchanged for pass-through, a replacement, several events to
// fan out, or nil to suppress. A later middleware never sees a suppressed
// event.
type StreamEventHook interface {
	Middleware
	OnStreamEvent(ctx context.Context, ev llmkit.StreamEvent, mc *Context) ([]llmkit.StreamEvent, error)
}

// TurnHook runs once per completed request/response cycle, after the adapter
// finalizes (streaming) or immediately after the aggregate response is
// available (non-streaming). Side effects such as persistence belong here.
type TurnHook interface {
	Middleware
	OnTurn(ctx context.Context, turn *llmkit.Turn, mc *Context) error
}

// StreamEndHook runs once after the turn phase of streaming calls, for
// cleanup of per-invocation state. Middleware must leave the state store
// empty afterward.
type StreamEndHook interface {
	Middleware
	OnStreamEnd(ctx context.Context, mc *Context) error
}

// Pass is a convenience for pass-through StreamEventHook implementations.
func Pass(ev llmkit.StreamEvent) []llmkit.StreamEvent { return []llmkit.StreamEvent{ev} }
