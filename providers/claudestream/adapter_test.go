package claudestream

import (
	"testing"

	llmkit "github.com/streamloop/llmkit"
)

func ingestAll(t *testing.T, a *Adapter, state *llmkit.StreamState, payloads ...string) []llmkit.StreamEvent {
	t.Helper()
	var all []llmkit.StreamEvent
	for _, p := range payloads {
		events, err := a.Ingest(state, []byte(p))
		if err != nil {
			t.Fatalf("Ingest(%q) err=%v", p, err)
		}
		all = append(all, events...)
	}
	return all
}

func TestIngest_TextBlocks(t *testing.T) {
	a := New()
	state := llmkit.NewStreamState()

	events := ingestAll(t, a, state,
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet","usage":{"input_tokens":25,"output_tokens":1}}}`,
		`{"type":"ping"}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":12}}`,
		`{"type":"message_stop"}`,
	)

	if events[0].Kind != llmkit.StreamEventMessageStart {
		t.Fatalf("first kind=%q", events[0].Kind)
	}
	if events[0].MessageID != "msg_1" || events[0].Model != "claude-sonnet" {
		t.Fatalf("message_start id=%q model=%q", events[0].MessageID, events[0].Model)
	}
	last := events[len(events)-1]
	if last.Kind != llmkit.StreamEventMessageStop {
		t.Fatalf("last kind=%q", last.Kind)
	}
	if last.StopReason != llmkit.StopReasonStop {
		t.Fatalf("StopReason=%q", last.StopReason)
	}
	if last.Usage == nil || last.Usage.OutputTokens != 13 {
		t.Fatalf("Usage=%+v", last.Usage)
	}

	resp, err := a.Finalize(state)
	if err != nil {
		t.Fatalf("Finalize() err=%v", err)
	}
	if got := resp.Message.Text(); got != "Hello there" {
		t.Fatalf("Text()=%q", got)
	}
	if resp.Usage.InputTokens != 25 {
		t.Fatalf("InputTokens=%d", resp.Usage.InputTokens)
	}
}

func TestIngest_ToolUseBlock(t *testing.T) {
	a := New()
	state := llmkit.NewStreamState()

	events := ingestAll(t, a, state,
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet","usage":{"input_tokens":10}}}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":":\"Paris\"}"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}`,
		`{"type":"message_stop"}`,
	)

	// The tool_use block announces id/name before any argument fragment.
	var announced *llmkit.StreamEvent
	for i, ev := range events {
		if ev.Kind == llmkit.StreamEventToolCallDelta {
			announced = &events[i]
			break
		}
	}
	if announced == nil {
		t.Fatal("no tool_call_delta emitted")
	}
	if announced.ToolCall.ID != "toolu_1" || announced.ToolCall.Name != "get_weather" {
		t.Fatalf("announce id=%q name=%q", announced.ToolCall.ID, announced.ToolCall.Name)
	}

	resp, err := a.Finalize(state)
	if err != nil {
		t.Fatalf("Finalize() err=%v", err)
	}
	if resp.StopReason != llmkit.StopReasonToolCalls {
		t.Fatalf("StopReason=%q", resp.StopReason)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls=%d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ArgumentsText != `{"city":"Paris"}` {
		t.Fatalf("ArgumentsText=%q", tc.ArgumentsText)
	}
	if tc.Arguments == nil {
		t.Fatal("Arguments not parsed despite complete JSON")
	}
}

func TestIngest_ThinkingBlock(t *testing.T) {
	a := New()
	state := llmkit.NewStreamState()

	ingestAll(t, a, state,
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet","usage":{}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"step one"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"done"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`,
		`{"type":"message_stop"}`,
	)

	resp, err := a.Finalize(state)
	if err != nil {
		t.Fatalf("Finalize() err=%v", err)
	}
	if got := resp.Message.Reasoning(); got != "step one" {
		t.Fatalf("Reasoning()=%q", got)
	}
	if got := resp.Message.Text(); got != "done" {
		t.Fatalf("Text()=%q", got)
	}
}

func TestIngest_InterleavedBlocksKeepSlotOrder(t *testing.T) {
	a := New()
	state := llmkit.NewStreamState()

	ingestAll(t, a, state,
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet","usage":{}}}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t1","name":"alpha"}}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"t2","name":"beta"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"b\""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"a\""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":":1}"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":":2}"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":4}}`,
		`{"type":"message_stop"}`,
	)

	resp, err := a.Finalize(state)
	if err != nil {
		t.Fatalf("Finalize() err=%v", err)
	}
	if len(resp.Message.ToolCalls) != 2 {
		t.Fatalf("ToolCalls=%d", len(resp.Message.ToolCalls))
	}
	if got := resp.Message.ToolCalls[0].ArgumentsText; got != `{"a":1}` {
		t.Fatalf("slot 1 args=%q", got)
	}
	if got := resp.Message.ToolCalls[1].ArgumentsText; got != `{"b":2}` {
		t.Fatalf("slot 2 args=%q", got)
	}
}

func TestIngest_ErrorEvent(t *testing.T) {
	a := New()
	state := llmkit.NewStreamState()

	ingestAll(t, a, state, `{"type":"message_start","message":{"id":"msg_1","model":"m","usage":{}}}`)

	_, err := a.Ingest(state, []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	llmErr, ok := llmkit.AsLLMError(err)
	if !ok {
		t.Fatalf("err=%v, want *LLMError", err)
	}
	if llmErr.Kind != llmkit.ErrKindServer {
		t.Fatalf("Kind=%q", llmErr.Kind)
	}
	if !llmErr.Retryable {
		t.Fatal("overloaded_error should be retryable")
	}
	if llmErr.ProviderCode != "overloaded_error" {
		t.Fatalf("ProviderCode=%q", llmErr.ProviderCode)
	}
}

func TestIngest_UnknownEventIgnored(t *testing.T) {
	a := New()
	state := llmkit.NewStreamState()

	events, err := a.Ingest(state, []byte(`{"type":"some_future_event"}`))
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events=%v", events)
	}
}
