// Package thread maintains the durable, de-duplicated message history of one
// conversation and provides the pipeline middleware that loads, merges and
// persists it around each turn.
package thread

import (
	"encoding/json"
	"fmt"

	llmkit "github.com/streamloop/llmkit"
)

// Thread is an ordered, append-only sequence of messages. No two entries
// share an ID; appends preserve arrival order.
//
// A Thread, once loaded, is owned exclusively by the invocation that loaded
// it for the duration of that invocation.
type Thread struct {
	ID       string
	Messages []llmkit.Message

	index map[string]struct{}
}

func New(id string) *Thread {
	return &Thread{ID: id, index: make(map[string]struct{})}
}

// FromMessages builds a Thread from a raw persisted message list, assigning
// identities to messages that lack one and dropping duplicates.
func FromMessages(id string, msgs []llmkit.Message) *Thread {
	t := New(id)
	for _, m := range msgs {
		t.Append(m.EnsureID())
	}
	return t
}

// Contains reports whether a message with the given identity is present.
func (t *Thread) Contains(id string) bool {
	if t.index == nil {
		t.reindex()
	}
	_, ok := t.index[id]
	return ok
}

// Append adds each message whose ID is not yet present, in order. Messages
// without an ID are assigned one. It returns the number of messages added.
func (t *Thread) Append(msgs ...llmkit.Message) int {
	if t.index == nil {
		t.reindex()
	}
	added := 0
	for _, m := range msgs {
		m = m.EnsureID()
		if _, ok := t.index[m.ID]; ok {
			continue
		}
		t.Messages = append(t.Messages, m)
		t.index[m.ID] = struct{}{}
		added++
	}
	return added
}

func (t *Thread) Len() int { return len(t.Messages) }

func (t *Thread) Clone() *Thread {
	out := New(t.ID)
	for _, m := range t.Messages {
		out.Messages = append(out.Messages, m.Clone())
		out.index[m.ID] = struct{}{}
	}
	return out
}

func (t *Thread) reindex() {
	t.index = make(map[string]struct{}, len(t.Messages))
	for _, m := range t.Messages {
		t.index[m.ID] = struct{}{}
	}
}

type threadWire struct {
	ID       string        `json:"id"`
	Messages []messageWire `json:"messages"`
}

type messageWire struct {
	ID         string               `json:"id"`
	Role       llmkit.Role          `json:"role"`
	Name       string               `json:"name,omitempty"`
	Parts      []llmkit.ContentPart `json:"parts,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCallWire       `json:"tool_calls,omitempty"`
}

type toolCallWire struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Arguments     json.RawMessage `json:"arguments,omitempty"`
	ArgumentsText string          `json:"arguments_text,omitempty"`
}

// MarshalJSON renders the persisted wire form consumed by external stores.
func (t *Thread) MarshalJSON() ([]byte, error) {
	w := threadWire{ID: t.ID}
	for _, m := range t.Messages {
		mw := messageWire{
			ID:         m.ID,
			Role:       m.Role,
			Name:       m.Name,
			Parts:      m.Parts,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			mw.ToolCalls = append(mw.ToolCalls, toolCallWire(tc))
		}
		w.Messages = append(w.Messages, mw)
	}
	return json.Marshal(w)
}

// Decode converts the raw persisted form back into a Thread.
func Decode(data []byte) (*Thread, error) {
	var w threadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("thread: decode persisted form: %w", err)
	}
	msgs := make([]llmkit.Message, 0, len(w.Messages))
	for _, mw := range w.Messages {
		m := llmkit.Message{
			ID:         mw.ID,
			Role:       mw.Role,
			Name:       mw.Name,
			Parts:      mw.Parts,
			ToolCallID: mw.ToolCallID,
		}
		for _, tc := range mw.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, llmkit.ToolCall(tc))
		}
		msgs = append(msgs, m)
	}
	return FromMessages(w.ID, msgs), nil
}
