package pipeline

import (
	"sort"

	llmkit "github.com/streamloop/llmkit"
)

// Modality tags the request/response envelope family of an invocation.
type Modality string

const (
	ModalityChat      Modality = "chat"
	ModalityEmbedding Modality = "embedding"
)

// Context is the per-invocation middleware context.
//
// The Runner creates a fresh Context for each top-level call and destroys it
// when the call completes. Hooks of the same invocation communicate through
// the keyed state store; the store never outlives the invocation and is
// never shared across invocations.
//
// One invocation is driven cooperatively: the runner never runs two hooks of
// the same invocation concurrently, so the store needs no locking.
type Context struct {
	Modality Modality
	Provider string
	Model    string

	// Request is mutable; request-phase hooks may rewrite its message list
	// in place (e.g. to prepend history). Later middleware observes earlier
	// middleware's mutations.
	Request *llmkit.Request

	Streaming bool

	// Sequence is the caller-assigned ordinal of this turn within a longer
	// conversation loop. It becomes Turn.Index.
	Sequence int

	// TurnStart is the offset into Request.Messages where this turn's own
	// messages begin. History-merging middleware advances it by the number
	// of messages it prepends, so turn slicing excludes persisted history.
	TurnStart int

	state map[string]any
}

func (c *Context) Set(key string, value any) {
	if c.state == nil {
		c.state = make(map[string]any)
	}
	c.state[key] = value
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.state[key]
	return v, ok
}

func (c *Context) Delete(key string) {
	delete(c.state, key)
}

// StateLen reports how many keys the store currently holds. After the
// stream-end phase it must be zero; the Runner enforces this.
func (c *Context) StateLen() int { return len(c.state) }

// StateKeys returns the store's keys, sorted. Used for leak diagnostics.
func (c *Context) StateKeys() []string {
	keys := make([]string, 0, len(c.state))
	for k := range c.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
