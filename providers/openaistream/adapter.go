// Package openaistream adapts the OpenAI-compatible chat completion chunk
// stream ("chat.completion.chunk" over SSE) to the canonical event protocol.
//
// It works against any backend that speaks this wire format, so the provider
// name is configurable.
package openaistream

import (
	"bytes"
	"encoding/json"
	"strconv"

	llmkit "github.com/streamloop/llmkit"
)

// Adapter ingests chat.completion.chunk payloads. One instance is stateless
// and may serve many concurrent streams; everything per-stream lives in the
// StreamState.
type Adapter struct {
	provider string
}

type Option func(*Adapter)

// WithProvider sets the provider name reported on events and errors.
// OpenAI-compatible gateways (DeepSeek, Together, vLLM) reuse this adapter
// under their own name.
func WithProvider(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.provider = name
		}
	}
}

func New(opts ...Option) *Adapter {
	a := &Adapter{provider: "openai"}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

var _ llmkit.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() string { return a.provider }

// Ingest folds one SSE data payload into the state.
//
// Tool-call slots follow the wire tool_calls index so interleaved parallel
// calls accumulate independently. Usage payloads and finish reasons arrive
// on earlier chunks than the [DONE] sentinel; they are folded into the state
// as seen and surface on the message_stop event.
func (a *Adapter) Ingest(state *llmkit.StreamState, chunk []byte) ([]llmkit.StreamEvent, error) {
	data := bytes.TrimSpace(chunk)
	if len(data) == 0 {
		return nil, nil
	}

	if bytes.Equal(data, doneSentinel) {
		if !state.Started() || state.Stopped() {
			return nil, nil
		}
		stop := llmkit.StreamEvent{Kind: llmkit.StreamEventMessageStop, Index: -1, StopReason: state.StopReason}
		if err := state.Apply(stop); err != nil {
			return nil, err
		}
		usage := state.Usage
		stop.StopReason = state.StopReason
		stop.Usage = &usage
		return []llmkit.StreamEvent{stop}, nil
	}

	var cc chatCompletionChunk
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, &llmkit.LLMError{
			Provider: a.provider,
			Kind:     llmkit.ErrKindParse,
			Message:  "failed to decode stream chunk",
			Raw:      append([]byte(nil), data...),
			Cause:    err,
		}
	}
	if cc.Error != nil {
		return nil, &llmkit.LLMError{
			Provider:     a.provider,
			Kind:         llmkit.ErrKindServer,
			ProviderCode: stringCode(cc.Error.Code),
			Message:      cc.Error.Message,
			Raw:          append([]byte(nil), data...),
		}
	}

	var events []llmkit.StreamEvent

	if !state.Started() {
		events = append(events, llmkit.StreamEvent{
			Kind:      llmkit.StreamEventMessageStart,
			Index:     -1,
			MessageID: cc.ID,
			Model:     cc.Model,
		})
	}

	if cc.Usage != nil {
		u := llmkit.Usage{
			InputTokens:  cc.Usage.PromptTokens,
			OutputTokens: cc.Usage.CompletionTokens,
			TotalTokens:  cc.Usage.TotalTokens,
		}
		if hit := cc.Usage.intField("prompt_cache_hit_tokens"); hit != 0 {
			u.CacheReadTokens = hit
		} else if cached := cc.Usage.intField("cached_tokens"); cached != 0 {
			u.CacheReadTokens = cached
		}
		state.Usage.Add(u)
	}

	for _, choice := range cc.Choices {
		if choice.FinishReason != "" {
			state.StopReason = mapFinishReason(choice.FinishReason)
		}
		if choice.Delta.ReasoningContent != "" {
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventReasoningDelta,
				Index: 0,
				Text:  choice.Delta.ReasoningContent,
			})
		}
		if choice.Delta.Content != "" {
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventTextDelta,
				Index: 0,
				Text:  choice.Delta.Content,
			})
		}
		for _, tc := range choice.Delta.ToolCalls {
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventToolCallDelta,
				Index: tc.Index,
				ToolCall: &llmkit.ToolCallDelta{
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				},
			})
		}
	}

	for _, ev := range events {
		if err := state.Apply(ev); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (a *Adapter) Finalize(state *llmkit.StreamState) (llmkit.Response, error) {
	resp, err := state.Finalize()
	if err != nil {
		return llmkit.Response{}, err
	}
	return resp, nil
}

func mapFinishReason(reason string) llmkit.StopReason {
	switch reason {
	case "stop":
		return llmkit.StopReasonStop
	case "length":
		return llmkit.StopReasonLength
	case "tool_calls", "function_call":
		return llmkit.StopReasonToolCalls
	case "content_filter":
		return llmkit.StopReasonError
	default:
		return llmkit.StopReasonUnknown
	}
}

func stringCode(code any) string {
	switch v := code.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
