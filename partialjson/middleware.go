package partialjson

import (
	"context"
	"fmt"
	"strings"

	llmkit "github.com/streamloop/llmkit"
	"github.com/streamloop/llmkit/pipeline"
)

// stateKey holds the per-invocation buffer map in the pipeline state store.
// Buffers never live on the Accumulator itself: one instance serves many
// concurrent invocations.
const stateKey = "partialjson.buffers"

// Options controls which event kinds the accumulator parses. A disabled kind
// passes through untouched.
type Options struct {
	ParseObjects   bool
	ParseToolCalls bool
}

// Accumulator is a pipeline middleware that maintains one growing text
// buffer per (event kind, index) slot and attaches a best-effort parsed
// value to object/tool-call delta events whenever the buffer becomes
// parseable under the package repair rule. Indices are tracked
// independently; one slot's parse failure never affects another's.
type Accumulator struct {
	opts Options
}

var (
	_ pipeline.StreamEventHook = (*Accumulator)(nil)
	_ pipeline.StreamEndHook   = (*Accumulator)(nil)
)

// New returns an accumulator with both kinds enabled.
func New() *Accumulator {
	return &Accumulator{opts: Options{ParseObjects: true, ParseToolCalls: true}}
}

func NewWithOptions(opts Options) *Accumulator {
	return &Accumulator{opts: opts}
}

func (a *Accumulator) Name() string { return "partialjson" }

type slotKey struct {
	kind  llmkit.StreamEventKind
	index int
}

func (a *Accumulator) buffers(mc *pipeline.Context) map[slotKey]*strings.Builder {
	if v, ok := mc.Get(stateKey); ok {
		return v.(map[slotKey]*strings.Builder)
	}
	m := make(map[slotKey]*strings.Builder)
	mc.Set(stateKey, m)
	return m
}

func (a *Accumulator) OnStreamEvent(ctx context.Context, ev llmkit.StreamEvent, mc *pipeline.Context) ([]llmkit.StreamEvent, error) {
	switch ev.Kind {
	case llmkit.StreamEventObjectDelta:
		if !a.opts.ParseObjects {
			return pipeline.Pass(ev)
		}
		return a.accumulate(mc, ev, ev.Text)

	case llmkit.StreamEventToolCallDelta:
		if !a.opts.ParseToolCalls || ev.ToolCall == nil {
			return pipeline.Pass(ev)
		}
		return a.accumulate(mc, ev, ev.ToolCall.ArgumentsDelta)

	default:
		return pipeline.Pass(ev)
	}
}

func (a *Accumulator) accumulate(mc *pipeline.Context, ev llmkit.StreamEvent, fragment string) ([]llmkit.StreamEvent, error) {
	buffers := a.buffers(mc)
	key := slotKey{kind: ev.Kind, index: ev.Index}
	buf, ok := buffers[key]
	if !ok {
		buf = &strings.Builder{}
		buffers[key] = buf
	}
	buf.WriteString(fragment)

	parsed, ok := Parse([]byte(buf.String()))
	if !ok {
		// Not yet parseable; the raw event passes through unchanged.
		return pipeline.Pass(ev)
	}

	out := ev
	out.Parsed = parsed
	return pipeline.Pass(out)
}

// OnStreamEnd discards all per-stream buffers for the invocation.
func (a *Accumulator) OnStreamEnd(ctx context.Context, mc *pipeline.Context) error {
	mc.Delete(stateKey)
	return nil
}

// Buffer reports the accumulated raw text for a slot, mainly for tests and
// diagnostics.
func (a *Accumulator) Buffer(mc *pipeline.Context, kind llmkit.StreamEventKind, index int) (string, error) {
	v, ok := mc.Get(stateKey)
	if !ok {
		return "", fmt.Errorf("partialjson: no buffers in state store")
	}
	buf, ok := v.(map[slotKey]*strings.Builder)[slotKey{kind: kind, index: index}]
	if !ok {
		return "", fmt.Errorf("partialjson: no buffer for %s[%d]", kind, index)
	}
	return buf.String(), nil
}
