package llmkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// StreamEventKind tags a canonical stream event.
type StreamEventKind string

const (
	StreamEventMessageStart      StreamEventKind = "message_start"
	StreamEventTextDelta         StreamEventKind = "text_delta"
	StreamEventReasoningDelta    StreamEventKind = "reasoning_delta"
	StreamEventContentBlockStart StreamEventKind = "content_block_start"
	StreamEventContentBlockStop  StreamEventKind = "content_block_stop"
	StreamEventToolCallDelta     StreamEventKind = "tool_call_delta"
	StreamEventObjectDelta       StreamEventKind = "object_delta"
	StreamEventMessageStop       StreamEventKind = "message_stop"
)

// ToolCallDelta carries one incremental fragment of a streamed tool call.
//
// ArgumentsDelta is a raw text fragment; it may split a JSON token in the
// middle. Fragment concatenation order is append order, per index.
type ToolCallDelta struct {
	ID   string `json:"toolCallId,omitempty"`
	Name string `json:"toolName,omitempty"`

	ArgumentsDelta string `json:"argumentsJson,omitempty"`
}

// StreamEvent is the canonical incremental unit emitted during a streaming
// call, independent of the upstream backend.
//
// Index identifies a logical content slot; all events for one index belong
// to one growing content block and are order-preserved relative to each
// other, while events for different indices may interleave.
//
// The payload fields form a closed set per Kind: Text for text_delta,
// reasoning_delta and object_delta; ToolCall for tool_call_delta; BlockType
// for content_block_start; MessageID/Model for message_start; StopReason and
// Usage for message_stop. Parsed is populated on object_delta events only
// once the partialjson accumulator runs.
type StreamEvent struct {
	Kind  StreamEventKind `json:"kind"`
	Index int             `json:"index"`

	Text      string          `json:"text,omitempty"`
	BlockType ContentPartType `json:"blockType,omitempty"`
	ToolCall  *ToolCallDelta  `json:"toolCall,omitempty"`
	Parsed    any             `json:"parsed,omitempty"`

	MessageID string `json:"messageId,omitempty"`
	Model     string `json:"model,omitempty"`

	StopReason StopReason `json:"stopReason,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (e StreamEvent) Done() bool { return e.Kind == StreamEventMessageStop }

// Stream yields StreamEvent values until io.EOF.
//
// Implementations should return io.EOF once the stream finishes normally.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

var ErrStreamClosed = errors.New("llmkit: stream closed")

// StreamState is the adapter-private accumulator for one stream.
//
// It is created empty at stream start, mutated exactly once per incoming raw
// chunk (via the adapter's Ingest, which typically delegates to Apply), and
// consumed exactly once by Finalize. Never share one state across streams.
type StreamState struct {
	MessageID string
	Model     string

	text      strings.Builder
	reasoning strings.Builder

	toolCalls map[int]*toolCallState
	objects   map[int]*strings.Builder

	Usage      Usage
	StopReason StopReason

	started   bool
	stopped   bool
	finalized bool
}

type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

func NewStreamState() *StreamState { return &StreamState{} }

// Apply folds one canonical event into the state, enforcing the stream
// ordering invariant: exactly one message_start precedes any other event and
// exactly one message_stop is terminal.
func (s *StreamState) Apply(ev StreamEvent) error {
	if s.finalized {
		return errors.New("llmkit: apply on finalized stream state")
	}
	if s.stopped {
		return fmt.Errorf("llmkit: %s event after message_stop", ev.Kind)
	}
	if !s.started && ev.Kind != StreamEventMessageStart {
		return fmt.Errorf("llmkit: %s event before message_start", ev.Kind)
	}

	switch ev.Kind {
	case StreamEventMessageStart:
		if s.started {
			return errors.New("llmkit: duplicate message_start")
		}
		s.started = true
		s.MessageID = ev.MessageID
		s.Model = ev.Model
		if ev.Usage != nil {
			s.Usage.Add(*ev.Usage)
		}
	case StreamEventTextDelta:
		s.text.WriteString(ev.Text)
	case StreamEventReasoningDelta:
		s.reasoning.WriteString(ev.Text)
	case StreamEventContentBlockStart, StreamEventContentBlockStop:
		// Block boundaries carry no accumulated payload.
	case StreamEventToolCallDelta:
		if ev.ToolCall == nil {
			return nil
		}
		tc := s.toolCall(ev.Index)
		if ev.ToolCall.ID != "" {
			tc.id = ev.ToolCall.ID
		}
		if ev.ToolCall.Name != "" {
			tc.name = ev.ToolCall.Name
		}
		tc.args.WriteString(ev.ToolCall.ArgumentsDelta)
	case StreamEventObjectDelta:
		if s.objects == nil {
			s.objects = make(map[int]*strings.Builder)
		}
		b, ok := s.objects[ev.Index]
		if !ok {
			b = &strings.Builder{}
			s.objects[ev.Index] = b
		}
		b.WriteString(ev.Text)
	case StreamEventMessageStop:
		s.stopped = true
		if ev.StopReason != "" {
			s.StopReason = ev.StopReason
		}
		if ev.Usage != nil {
			s.Usage.Add(*ev.Usage)
		}
	default:
		return fmt.Errorf("llmkit: unknown stream event kind %q", ev.Kind)
	}
	return nil
}

func (s *StreamState) toolCall(index int) *toolCallState {
	if s.toolCalls == nil {
		s.toolCalls = make(map[int]*toolCallState)
	}
	tc, ok := s.toolCalls[index]
	if !ok {
		tc = &toolCallState{}
		s.toolCalls[index] = tc
	}
	return tc
}

// ToolCallArguments returns the raw argument text accumulated for index.
func (s *StreamState) ToolCallArguments(index int) string {
	if tc, ok := s.toolCalls[index]; ok {
		return tc.args.String()
	}
	return ""
}

// ObjectText returns the raw object-output text accumulated for index.
func (s *StreamState) ObjectText(index int) string {
	if b, ok := s.objects[index]; ok {
		return b.String()
	}
	return ""
}

// Text returns the concatenated text deltas observed so far.
func (s *StreamState) Text() string { return s.text.String() }

// Started reports whether message_start has been applied.
func (s *StreamState) Started() bool { return s.started }

// Stopped reports whether message_stop has been applied.
func (s *StreamState) Stopped() bool { return s.stopped }

// ToolCallCount returns the number of distinct tool-call slots seen so far.
func (s *StreamState) ToolCallCount() int { return len(s.toolCalls) }

// Finalize consumes the state and builds the aggregate response.
//
// It errors if the stream never observed message_start/message_stop or if
// the state was finalized before; a state is single-use.
func (s *StreamState) Finalize() (Response, error) {
	if s.finalized {
		return Response{}, errors.New("llmkit: stream state already finalized")
	}
	if !s.started {
		return Response{}, errors.New("llmkit: finalize before message_start")
	}
	if !s.stopped {
		return Response{}, errors.New("llmkit: finalize before message_stop")
	}
	s.finalized = true

	msg := Message{ID: NewID(), Role: RoleAssistant}
	if r := s.reasoning.String(); r != "" {
		msg.Parts = append(msg.Parts, ReasoningPart(r))
	}
	if t := s.text.String(); t != "" {
		msg.Parts = append(msg.Parts, TextPart(t))
	}

	for _, idx := range sortedKeys(s.objects) {
		raw := s.objects[idx].String()
		if json.Valid([]byte(raw)) {
			msg.Parts = append(msg.Parts, JSONPart(json.RawMessage(raw)))
		} else {
			msg.Parts = append(msg.Parts, ContentPart{Type: ContentPartJSON, Text: raw})
		}
	}

	for _, idx := range sortedKeys(s.toolCalls) {
		tc := s.toolCalls[idx]
		call := ToolCall{ID: tc.id, Name: tc.name, ArgumentsText: tc.args.String()}
		if json.Valid([]byte(call.ArgumentsText)) {
			call.Arguments = json.RawMessage(call.ArgumentsText)
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}

	stop := s.StopReason
	if stop == "" {
		stop = StopReasonUnknown
	}

	return Response{
		ID:         s.MessageID,
		Model:      s.Model,
		Message:    msg,
		Usage:      s.Usage,
		StopReason: stop,
	}, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Drain consumes a stream to completion and finalizes it into a Response.
func Drain(stream Stream) (Response, error) {
	defer stream.Close()

	state := NewStreamState()
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Response{}, err
		}
		if err := state.Apply(ev); err != nil {
			return Response{}, err
		}
	}
	return state.Finalize()
}
