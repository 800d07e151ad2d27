package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	llmkit "github.com/streamloop/llmkit"
)

// Runner owns an ordered middleware chain and drives it through the phases
// of one invocation: request, streaming (per event), turn, stream end.
//
// A Runner is immutable after construction and safe for concurrent use; all
// per-invocation state lives in the Context it creates.
type Runner struct {
	middlewares []Middleware
	logger      *slog.Logger
}

type Option func(*Runner)

func WithMiddleware(mw ...Middleware) Option {
	return func(r *Runner) {
		for _, m := range mw {
			if m != nil {
				r.middlewares = append(r.middlewares, m)
			}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// NewContext creates the per-invocation context. The request is owned by the
// invocation for its duration; middleware may mutate it in place.
func (r *Runner) NewContext(modality Modality, provider string, req *llmkit.Request, streaming bool) *Context {
	model := ""
	if req != nil {
		model = req.Model
	}
	return &Context{
		Modality:  modality,
		Provider:  provider,
		Model:     model,
		Request:   req,
		Streaming: streaming,
	}
}

// Invoke drives a non-streaming call: request phase, the provider call, then
// the turn phase. A hook failure aborts the remaining hooks of its phase and
// becomes the invocation's outcome; no partial turn is emitted.
func (r *Runner) Invoke(ctx context.Context, mc *Context, call func(ctx context.Context, req *llmkit.Request) (llmkit.Response, error)) (llmkit.Response, *llmkit.Turn, error) {
	if err := r.runRequestPhase(ctx, mc); err != nil {
		return llmkit.Response{}, nil, err
	}

	resp, err := call(ctx, mc.Request)
	if err != nil {
		return llmkit.Response{}, nil, err
	}

	turn := buildTurn(mc, resp)
	if err := r.runTurnPhase(ctx, turn, mc); err != nil {
		return llmkit.Response{}, nil, err
	}
	return resp, turn, nil
}

// Stream begins a streaming invocation. The request phase runs before any
// chunk is pulled so its errors surface before the caller sees events. The
// returned Run yields canonical events in processing order, which equals
// upstream arrival order.
func (r *Runner) Stream(ctx context.Context, mc *Context, source ChunkSource, adapter llmkit.Adapter) (*Run, error) {
	if adapter == nil {
		return nil, fmt.Errorf("pipeline: nil adapter")
	}
	if source == nil {
		return nil, fmt.Errorf("pipeline: nil chunk source")
	}
	mc.Streaming = true

	if err := r.runRequestPhase(ctx, mc); err != nil {
		source.Close()
		return nil, err
	}

	return &Run{
		runner:  r,
		ctx:     ctx,
		mc:      mc,
		source:  source,
		adapter: adapter,
		state:   llmkit.NewStreamState(),
	}, nil
}

func (r *Runner) runRequestPhase(ctx context.Context, mc *Context) error {
	r.logger.DebugContext(ctx, "pipeline request phase",
		slog.String("provider", mc.Provider),
		slog.String("model", mc.Model),
		slog.Bool("streaming", mc.Streaming))
	for _, mw := range r.middlewares {
		hook, ok := mw.(RequestHook)
		if !ok {
			continue
		}
		if err := hook.OnRequest(ctx, mc); err != nil {
			r.logger.ErrorContext(ctx, "pipeline request hook failed",
				slog.String("middleware", mw.Name()), slog.Any("error", err))
			return fmt.Errorf("pipeline: middleware %q request hook: %w", mw.Name(), err)
		}
	}
	return nil
}

// runEventPhase feeds one canonical event through every StreamEventHook in
// registration order. Each hook's output list becomes the next hook's input,
// so a replacement, fan-out or suppression is what downstream hooks observe.
func (r *Runner) runEventPhase(ctx context.Context, ev llmkit.StreamEvent, mc *Context) ([]llmkit.StreamEvent, error) {
	events := []llmkit.StreamEvent{ev}
	for _, mw := range r.middlewares {
		hook, ok := mw.(StreamEventHook)
		if !ok {
			continue
		}
		var next []llmkit.StreamEvent
		for _, e := range events {
			out, err := hook.OnStreamEvent(ctx, e, mc)
			if err != nil {
				r.logger.ErrorContext(ctx, "pipeline stream event hook failed",
					slog.String("middleware", mw.Name()),
					slog.String("kind", string(e.Kind)),
					slog.Any("error", err))
				return nil, fmt.Errorf("pipeline: middleware %q stream event hook: %w", mw.Name(), err)
			}
			next = append(next, out...)
		}
		events = next
		if len(events) == 0 {
			break
		}
	}
	return events, nil
}

func (r *Runner) runTurnPhase(ctx context.Context, turn *llmkit.Turn, mc *Context) error {
	for _, mw := range r.middlewares {
		hook, ok := mw.(TurnHook)
		if !ok {
			continue
		}
		if err := hook.OnTurn(ctx, turn, mc); err != nil {
			r.logger.ErrorContext(ctx, "pipeline turn hook failed",
				slog.String("middleware", mw.Name()), slog.Any("error", err))
			return fmt.Errorf("pipeline: middleware %q turn hook: %w", mw.Name(), err)
		}
	}
	return nil
}

func (r *Runner) runStreamEndPhase(ctx context.Context, mc *Context) error {
	for _, mw := range r.middlewares {
		hook, ok := mw.(StreamEndHook)
		if !ok {
			continue
		}
		if err := hook.OnStreamEnd(ctx, mc); err != nil {
			r.logger.ErrorContext(ctx, "pipeline stream end hook failed",
				slog.String("middleware", mw.Name()), slog.Any("error", err))
			return fmt.Errorf("pipeline: middleware %q stream end hook: %w", mw.Name(), err)
		}
	}
	if n := mc.StateLen(); n != 0 {
		keys := mc.StateKeys()
		r.logger.ErrorContext(ctx, "pipeline state store leaked",
			slog.Int("keys", n), slog.Any("names", keys))
		return fmt.Errorf("pipeline: state store not empty after stream end: %d key(s) leaked: %v", n, keys)
	}
	return nil
}

func buildTurn(mc *Context, resp llmkit.Response) *llmkit.Turn {
	var sent []llmkit.Message
	if mc.Request != nil && mc.TurnStart < len(mc.Request.Messages) {
		sent = append(sent, mc.Request.Messages[mc.TurnStart:]...)
	}
	return &llmkit.Turn{
		Index:      mc.Sequence,
		Sent:       sent,
		Messages:   []llmkit.Message{resp.Message},
		ToolCalls:  append([]llmkit.ToolCall(nil), resp.Message.ToolCalls...),
		Usage:      resp.Usage,
		StopReason: resp.StopReason,
	}
}
