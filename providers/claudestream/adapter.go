// Package claudestream adapts the Anthropic Messages streaming protocol to
// the canonical event protocol.
//
// Anthropic streams typed events (message_start, content_block_start,
// content_block_delta, content_block_stop, message_delta, message_stop) where
// every content block already carries an explicit index; that index is used
// as the canonical content slot unchanged.
package claudestream

import (
	"bytes"
	"encoding/json"

	llmkit "github.com/streamloop/llmkit"
)

// Adapter ingests Anthropic stream event payloads, one event per chunk. One
// instance is stateless and may serve many concurrent streams.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

var _ llmkit.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() string { return "anthropic" }

// wireEvent is the union of the Anthropic stream event payloads; Type
// selects which fields are populated.
type wireEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message struct {
		ID    string    `json:"id"`
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`

	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Thinking    string `json:"thinking"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage wireUsage `json:"usage"`

	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

func (u wireUsage) canonical() llmkit.Usage {
	return llmkit.Usage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
}

func (a *Adapter) Ingest(state *llmkit.StreamState, chunk []byte) ([]llmkit.StreamEvent, error) {
	data := bytes.TrimSpace(chunk)
	if len(data) == 0 {
		return nil, nil
	}

	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		return nil, &llmkit.LLMError{
			Provider: "anthropic",
			Kind:     llmkit.ErrKindParse,
			Message:  "failed to decode stream event",
			Raw:      append([]byte(nil), data...),
			Cause:    err,
		}
	}

	var events []llmkit.StreamEvent

	switch we.Type {
	case "ping":
		return nil, nil

	case "error":
		return nil, &llmkit.LLMError{
			Provider:     "anthropic",
			Kind:         mapErrorType(we.Error.Type),
			ProviderCode: we.Error.Type,
			Message:      we.Error.Message,
			Retryable:    we.Error.Type == "overloaded_error",
			Raw:          append([]byte(nil), data...),
		}

	case "message_start":
		u := we.Message.Usage.canonical()
		events = append(events, llmkit.StreamEvent{
			Kind:      llmkit.StreamEventMessageStart,
			Index:     -1,
			MessageID: we.Message.ID,
			Model:     we.Message.Model,
			Usage:     &u,
		})

	case "content_block_start":
		ev := llmkit.StreamEvent{
			Kind:      llmkit.StreamEventContentBlockStart,
			Index:     we.Index,
			BlockType: mapBlockType(we.ContentBlock.Type),
		}
		events = append(events, ev)
		// A tool_use block announces its id and name up front, before any
		// argument fragments arrive.
		if we.ContentBlock.Type == "tool_use" {
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventToolCallDelta,
				Index: we.Index,
				ToolCall: &llmkit.ToolCallDelta{
					ID:   we.ContentBlock.ID,
					Name: we.ContentBlock.Name,
				},
			})
		}

	case "content_block_delta":
		switch we.Delta.Type {
		case "text_delta":
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventTextDelta,
				Index: we.Index,
				Text:  we.Delta.Text,
			})
		case "thinking_delta":
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventReasoningDelta,
				Index: we.Index,
				Text:  we.Delta.Thinking,
			})
		case "input_json_delta":
			events = append(events, llmkit.StreamEvent{
				Kind:  llmkit.StreamEventToolCallDelta,
				Index: we.Index,
				ToolCall: &llmkit.ToolCallDelta{
					ArgumentsDelta: we.Delta.PartialJSON,
				},
			})
		default:
			// signature_delta and future delta types carry nothing we
			// accumulate.
			return nil, nil
		}

	case "content_block_stop":
		events = append(events, llmkit.StreamEvent{
			Kind:  llmkit.StreamEventContentBlockStop,
			Index: we.Index,
		})

	case "message_delta":
		// Carries the final stop reason and output token count; the canonical
		// protocol surfaces both on message_stop.
		if we.Delta.StopReason != "" {
			state.StopReason = mapStopReason(we.Delta.StopReason)
		}
		state.Usage.Add(llmkit.Usage{
			OutputTokens: we.Usage.OutputTokens,
			TotalTokens:  we.Usage.OutputTokens,
		})
		return nil, nil

	case "message_stop":
		if state.Stopped() {
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

	default:
		// Unknown event types are forward-compatible noise.
		return nil, nil
	}

	for _, ev := range events {
		if err := state.Apply(ev); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (a *Adapter) Finalize(state *llmkit.StreamState) (llmkit.Response, error) {
	return state.Finalize()
}

func mapBlockType(blockType string) llmkit.ContentPartType {
	switch blockType {
	case "thinking":
		return llmkit.ContentPartReasoning
	case "tool_use":
		return llmkit.ContentPartJSON
	default:
		return llmkit.ContentPartText
	}
}

func mapStopReason(reason string) llmkit.StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llmkit.StopReasonStop
	case "max_tokens":
		return llmkit.StopReasonLength
	case "tool_use":
		return llmkit.StopReasonToolCalls
	case "refusal":
		return llmkit.StopReasonError
	default:
		return llmkit.StopReasonUnknown
	}
}

func mapErrorType(errType string) llmkit.ErrorKind {
	switch errType {
	case "authentication_error", "permission_error":
		return llmkit.ErrKindAuth
	case "rate_limit_error":
		return llmkit.ErrKindRateLimit
	case "invalid_request_error":
		return llmkit.ErrKindBadRequest
	case "overloaded_error", "api_error":
		return llmkit.ErrKindServer
	default:
		return llmkit.ErrKindUnknown
	}
}
