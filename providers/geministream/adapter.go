// Package geministream adapts the Gemini streaming protocol to the canonical
// event protocol.
//
// Gemini streams whole GenerateContentResponse chunks rather than typed
// delta events; each chunk carries the parts produced since the previous
// one, cumulative usage counters, and eventually a finish reason. Function
// calls arrive complete in a single chunk, never fragmented.
package geministream

import (
	"bytes"
	"encoding/json"

	"google.golang.org/genai"

	llmkit "github.com/streamloop/llmkit"
)

// Adapter ingests GenerateContentResponse JSON chunks. One instance is
// stateless and may serve many concurrent streams.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

var _ llmkit.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() string { return "gemini" }

func (a *Adapter) Ingest(state *llmkit.StreamState, chunk []byte) ([]llmkit.StreamEvent, error) {
	data := bytes.TrimSpace(chunk)
	if len(data) == 0 {
		return nil, nil
	}

	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &llmkit.LLMError{
			Provider: "gemini",
			Kind:     llmkit.ErrKindParse,
			Message:  "failed to decode stream chunk",
			Raw:      append([]byte(nil), data...),
			Cause:    err,
		}
	}

	var events []llmkit.StreamEvent

	if !state.Started() {
		events = append(events, llmkit.StreamEvent{
			Kind:      llmkit.StreamEventMessageStart,
			Index:     -1,
			MessageID: resp.ResponseID,
			Model:     resp.ModelVersion,
		})
		if err := state.Apply(events[0]); err != nil {
			return nil, err
		}
	}

	// Usage counters are cumulative per chunk, so the latest chunk wins.
	if resp.UsageMetadata != nil {
		state.Usage = llmkit.Usage{
			InputTokens:     int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    int(resp.UsageMetadata.CandidatesTokenCount + resp.UsageMetadata.ThoughtsTokenCount),
			TotalTokens:     int(resp.UsageMetadata.TotalTokenCount),
			CacheReadTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}

	var finish genai.FinishReason
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if cand.FinishReason != "" {
			finish = cand.FinishReason
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			ev, err := a.partEvent(state, part)
			if err != nil {
				return nil, err
			}
			if ev == nil {
				continue
			}
			if err := state.Apply(*ev); err != nil {
				return nil, err
			}
			events = append(events, *ev)
		}
	}

	if finish != "" {
		stopReason := mapFinishReason(finish)
		// Gemini reports STOP even when the turn ended on function calls.
		if stopReason == llmkit.StopReasonStop && state.ToolCallCount() > 0 {
			stopReason = llmkit.StopReasonToolCalls
		}
		state.StopReason = stopReason
		stop := llmkit.StreamEvent{Kind: llmkit.StreamEventMessageStop, Index: -1, StopReason: state.StopReason}
		if err := state.Apply(stop); err != nil {
			return nil, err
		}
		usage := state.Usage
		stop.Usage = &usage
		events = append(events, stop)
	}

	return events, nil
}

func (a *Adapter) partEvent(state *llmkit.StreamState, part *genai.Part) (*llmkit.StreamEvent, error) {
	switch {
	case part.FunctionCall != nil:
		args, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			return nil, &llmkit.LLMError{
				Provider: "gemini",
				Kind:     llmkit.ErrKindParse,
				Message:  "failed to encode function call arguments",
				Cause:    err,
			}
		}
		// Each function call claims the next free slot; Gemini has no wire
		// index for them.
		return &llmkit.StreamEvent{
			Kind:  llmkit.StreamEventToolCallDelta,
			Index: state.ToolCallCount(),
			ToolCall: &llmkit.ToolCallDelta{
				ID:             part.FunctionCall.ID,
				Name:           part.FunctionCall.Name,
				ArgumentsDelta: string(args),
			},
		}, nil
	case part.Thought && part.Text != "":
		return &llmkit.StreamEvent{
			Kind:  llmkit.StreamEventReasoningDelta,
			Index: 0,
			Text:  part.Text,
		}, nil
	case part.Text != "":
		return &llmkit.StreamEvent{
			Kind:  llmkit.StreamEventTextDelta,
			Index: 0,
			Text:  part.Text,
		}, nil
	default:
		return nil, nil
	}
}

func (a *Adapter) Finalize(state *llmkit.StreamState) (llmkit.Response, error) {
	return state.Finalize()
}

func mapFinishReason(reason genai.FinishReason) llmkit.StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return llmkit.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return llmkit.StopReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return llmkit.StopReasonError
	case genai.FinishReasonMalformedFunctionCall:
		return llmkit.StopReasonError
	default:
		return llmkit.StopReasonUnknown
	}
}
