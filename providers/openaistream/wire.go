package openaistream

import (
	"encoding/json"
	"strconv"
)

// chat* types model the OpenAI-compatible "chat.completion.chunk" wire
// payloads. They are intentionally distinct from the canonical types.
type chatCompletionChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`

	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type chunkDelta struct {
	Role             string        `json:"role,omitempty"`
	Content          string        `json:"content,omitempty"`
	ReasoningContent string        `json:"reasoning_content,omitempty"`
	ToolCalls        []apiToolCall `json:"tool_calls,omitempty"`
}

type apiToolCall struct {
	Index    int             `json:"index,omitempty"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function apiFunctionCall `json:"function,omitempty"`
}

type apiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	raw map[string]json.RawMessage
}

func (u *chunkUsage) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	u.raw = m

	_ = json.Unmarshal(m["prompt_tokens"], &u.PromptTokens)
	_ = json.Unmarshal(m["completion_tokens"], &u.CompletionTokens)
	_ = json.Unmarshal(m["total_tokens"], &u.TotalTokens)
	return nil
}

func (u *chunkUsage) intField(key string) int {
	if u == nil || u.raw == nil {
		return 0
	}
	b, ok := u.raw[key]
	if !ok || len(b) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		return n
	}
	// Some providers encode numbers as strings.
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return 0
}
