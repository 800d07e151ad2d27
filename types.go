package llmkit

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonLength    StopReason = "length"
	StopReasonToolCalls StopReason = "tool_calls"
	StopReasonError     StopReason = "error"
	StopReasonUnknown   StopReason = "unknown"
)

type ContentPartType string

const (
	ContentPartText      ContentPartType = "text"
	ContentPartReasoning ContentPartType = "reasoning"
	ContentPartJSON      ContentPartType = "json"
)

// ContentPart is a provider-agnostic "message content segment".
//
// Many providers represent message content as an array of parts (text, reasoning, etc.).
// Keeping this as a first-class concept makes it easier to map to/from different APIs.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text is used by ContentPartText and ContentPartReasoning.
	Text string `json:"text,omitempty"`

	// JSON is a structured payload, e.g. an accumulated object output.
	JSON json.RawMessage `json:"json,omitempty"`
}

func TextPart(text string) ContentPart { return ContentPart{Type: ContentPartText, Text: text} }
func ReasoningPart(text string) ContentPart {
	return ContentPart{Type: ContentPartReasoning, Text: text}
}
func JSONPart(raw json.RawMessage) ContentPart {
	return ContentPart{Type: ContentPartJSON, JSON: append([]byte(nil), raw...)}
}

// Message is a canonical chat message.
//
// ID is a stable, globally unique identity used by thread.Thread for
// de-duplication. Request builders may leave it empty; EnsureID assigns one.
//
// For tool results, use RoleTool with ToolCallID set.
// For assistant tool calls, use ToolCalls.
type Message struct {
	ID   string
	Role Role

	// Name is an optional sender name supported by some providers.
	Name string

	Parts []ContentPart

	ToolCallID string
	ToolCalls  []ToolCall
}

func System(text string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Parts: []ContentPart{TextPart(text)}}
}
func User(text string) Message {
	return Message{ID: NewID(), Role: RoleUser, Parts: []ContentPart{TextPart(text)}}
}
func Assistant(text string) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Parts: []ContentPart{TextPart(text)}}
}
func ToolResult(toolCallID string, text string) Message {
	return Message{ID: NewID(), Role: RoleTool, ToolCallID: toolCallID, Parts: []ContentPart{TextPart(text)}}
}

// NewID returns a fresh message/turn identity.
func NewID() string { return uuid.NewString() }

// EnsureID assigns a fresh ID when the message has none and returns the message.
func (m Message) EnsureID() Message {
	if m.ID == "" {
		m.ID = NewID()
	}
	return m
}

func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]ContentPart, len(m.Parts))
		copy(out.Parts, m.Parts)
		for i := range out.Parts {
			out.Parts[i].JSON = append([]byte(nil), out.Parts[i].JSON...)
		}
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
		for i := range out.ToolCalls {
			out.ToolCalls[i].Arguments = append([]byte(nil), out.ToolCalls[i].Arguments...)
		}
	}
	return out
}

func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (m Message) Reasoning() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartReasoning {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is typically a JSON Schema object.
	InputSchema json.RawMessage
}

type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice models the caller's preference for tool usage.
//
// For ToolChoiceFunction, set FunctionName.
type ToolChoice struct {
	Mode         ToolChoiceMode
	FunctionName string
}

// ToolCall is a canonical representation of a tool/function call.
//
// Providers stream ArgumentsText in fragments that individually may not be
// valid JSON. Adapters fill Arguments from the full text once it parses.
type ToolCall struct {
	ID            string
	Name          string
	Arguments     json.RawMessage
	ArgumentsText string
}

// Usage counts tokens for one response or one turn.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Add accumulates counts from another Usage value.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheWriteTokens += o.CacheWriteTokens
}

type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`

	// JSONSchema is provider-specific and only meaningful when Type == json_schema.
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// Request is a canonical chat request.
//
// Middleware may mutate Messages in place (e.g. to prepend history);
// adapters treat the request as read-only.
type Request struct {
	Model    string
	Messages []Message

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stop        []string

	ResponseFormat *ResponseFormat

	Tools      []ToolDefinition
	ToolChoice *ToolChoice

	// Extra carries provider-specific JSON fields. Keys should be top-level fields.
	Extra map[string]any
}

func (r Request) Clone() Request {
	out := r
	out.Messages = append([]Message(nil), r.Messages...)
	for i := range out.Messages {
		out.Messages[i] = out.Messages[i].Clone()
	}
	if r.Tools != nil {
		out.Tools = append([]ToolDefinition(nil), r.Tools...)
	}
	if r.ToolChoice != nil {
		v := *r.ToolChoice
		out.ToolChoice = &v
	}
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.ResponseFormat != nil {
		v := *r.ResponseFormat
		out.ResponseFormat = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Response is the aggregate result of one request, streaming or not.
//
// For streaming calls it is reconstructed by StreamState.Finalize and must
// match what a non-streaming call to the same backend would have produced.
type Response struct {
	ID    string
	Model string

	Message    Message
	Usage      Usage
	StopReason StopReason

	// Data carries optional provider-specific extras (e.g. logprobs).
	Data map[string]any
}

// Turn is the immutable result of one complete request/response cycle.
type Turn struct {
	// Index is the sequence number of this turn within the invocation's
	// conversation, offset by any history prepended during the request phase.
	Index int

	// Sent holds the messages that were sent for this turn (the request
	// message list minus prepended history).
	Sent []Message

	// Messages holds the newly produced message(s).
	Messages []Message

	ToolCalls  []ToolCall
	Usage      Usage
	StopReason StopReason
}
