package llmkit

import (
	"io"
	"testing"
)

type sliceStream struct {
	events []StreamEvent
	closed bool
}

func (s *sliceStream) Recv() (StreamEvent, error) {
	if s.closed {
		return StreamEvent{}, ErrStreamClosed
	}
	if len(s.events) == 0 {
		return StreamEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestStreamState_OrderingInvariant(t *testing.T) {
	s := NewStreamState()

	if err := s.Apply(StreamEvent{Kind: StreamEventTextDelta, Text: "x"}); err == nil {
		t.Fatalf("expected error for delta before message_start")
	}

	if err := s.Apply(StreamEvent{Kind: StreamEventMessageStart, MessageID: "m1", Model: "test"}); err != nil {
		t.Fatalf("message_start err=%v", err)
	}
	if err := s.Apply(StreamEvent{Kind: StreamEventMessageStart}); err == nil {
		t.Fatalf("expected error for duplicate message_start")
	}

	if err := s.Apply(StreamEvent{Kind: StreamEventMessageStop, StopReason: StopReasonStop}); err != nil {
		t.Fatalf("message_stop err=%v", err)
	}
	if err := s.Apply(StreamEvent{Kind: StreamEventTextDelta, Text: "x"}); err == nil {
		t.Fatalf("expected error for delta after message_stop")
	}
}

func TestStreamState_PerIndexAppend(t *testing.T) {
	s := NewStreamState()
	must := func(ev StreamEvent) {
		t.Helper()
		if err := s.Apply(ev); err != nil {
			t.Fatalf("Apply(%s) err=%v", ev.Kind, err)
		}
	}

	must(StreamEvent{Kind: StreamEventMessageStart, MessageID: "m1", Model: "test"})
	// Interleave two tool-call slots; each slot's fragments must concatenate
	// in emission order.
	must(StreamEvent{Kind: StreamEventToolCallDelta, Index: 0, ToolCall: &ToolCallDelta{ID: "call_0", Name: "lookup", ArgumentsDelta: `{"query":"go`}})
	must(StreamEvent{Kind: StreamEventToolCallDelta, Index: 1, ToolCall: &ToolCallDelta{ID: "call_1", Name: "fetch", ArgumentsDelta: `{"url":`}})
	must(StreamEvent{Kind: StreamEventToolCallDelta, Index: 0, ToolCall: &ToolCallDelta{ArgumentsDelta: `pher"}`}})
	must(StreamEvent{Kind: StreamEventToolCallDelta, Index: 1, ToolCall: &ToolCallDelta{ArgumentsDelta: `"https://x"}`}})
	must(StreamEvent{Kind: StreamEventMessageStop, StopReason: StopReasonToolCalls})

	if got := s.ToolCallArguments(0); got != `{"query":"gopher"}` {
		t.Fatalf("slot0 args=%q", got)
	}
	if got := s.ToolCallArguments(1); got != `{"url":"https://x"}` {
		t.Fatalf("slot1 args=%q", got)
	}

	resp, err := s.Finalize()
	if err != nil {
		t.Fatalf("Finalize err=%v", err)
	}
	if len(resp.Message.ToolCalls) != 2 {
		t.Fatalf("tool calls=%d", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].ArgumentsText != `{"query":"gopher"}` {
		t.Fatalf("finalized args=%q", resp.Message.ToolCalls[0].ArgumentsText)
	}
	if len(resp.Message.ToolCalls[0].Arguments) == 0 {
		t.Fatalf("expected valid JSON arguments to be filled")
	}
	if resp.StopReason != StopReasonToolCalls {
		t.Fatalf("stop=%q", resp.StopReason)
	}
}

func TestStreamState_FinalizeOnce(t *testing.T) {
	s := NewStreamState()
	_ = s.Apply(StreamEvent{Kind: StreamEventMessageStart, MessageID: "m1"})
	_ = s.Apply(StreamEvent{Kind: StreamEventTextDelta, Text: "hi"})
	_ = s.Apply(StreamEvent{Kind: StreamEventMessageStop, StopReason: StopReasonStop})

	if _, err := s.Finalize(); err != nil {
		t.Fatalf("first Finalize err=%v", err)
	}
	if _, err := s.Finalize(); err == nil {
		t.Fatalf("expected error on second Finalize")
	}
	if err := s.Apply(StreamEvent{Kind: StreamEventTextDelta, Text: "x"}); err == nil {
		t.Fatalf("expected error on Apply after Finalize")
	}
}

func TestDrain_BuildsResponse(t *testing.T) {
	s := &sliceStream{events: []StreamEvent{
		{Kind: StreamEventMessageStart, MessageID: "m1", Model: "test", Usage: &Usage{InputTokens: 7}},
		{Kind: StreamEventContentBlockStart, Index: 0, BlockType: ContentPartText},
		{Kind: StreamEventTextDelta, Index: 0, Text: "Hello"},
		{Kind: StreamEventTextDelta, Index: 0, Text: " world"},
		{Kind: StreamEventContentBlockStop, Index: 0},
		{Kind: StreamEventMessageStop, StopReason: StopReasonStop, Usage: &Usage{OutputTokens: 2, TotalTokens: 9}},
	}}

	resp, err := Drain(s)
	if err != nil {
		t.Fatalf("Drain err=%v", err)
	}
	if got := resp.Message.Text(); got != "Hello world" {
		t.Fatalf("text=%q", got)
	}
	if resp.ID != "m1" || resp.Model != "test" {
		t.Fatalf("id=%q model=%q", resp.ID, resp.Model)
	}
	if resp.Usage.InputTokens != 7 || resp.Usage.OutputTokens != 2 || resp.Usage.TotalTokens != 9 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
	if !s.closed {
		t.Fatalf("stream not closed")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubAdapter{name: "alpha"}); err != nil {
		t.Fatalf("Register err=%v", err)
	}
	if err := r.Register(stubAdapter{name: "alpha"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, ok := r.Lookup("alpha"); !ok {
		t.Fatalf("Lookup(alpha) missing")
	}
	if _, ok := r.Lookup("beta"); ok {
		t.Fatalf("Lookup(beta) should miss")
	}
	if got := r.Providers(); len(got) != 1 || got[0] != "alpha" {
		t.Fatalf("Providers=%v", got)
	}
}

type stubAdapter struct{ name string }

func (a stubAdapter) Provider() string { return a.name }
func (a stubAdapter) Ingest(state *StreamState, chunk []byte) ([]StreamEvent, error) {
	return nil, nil
}
func (a stubAdapter) Finalize(state *StreamState) (Response, error) { return state.Finalize() }
