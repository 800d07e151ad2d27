package observe

import (
	"context"
	"sync"

	llmkit "github.com/streamloop/llmkit"
	"github.com/streamloop/llmkit/pipeline"
)

// UsageTotals accumulates token usage across every turn it observes,
// per provider/model pair. Unlike per-invocation state, the totals are
// deliberately long-lived instance data guarded by a mutex.
type UsageTotals struct {
	mu     sync.Mutex
	totals map[UsageKey]llmkit.Usage
}

type UsageKey struct {
	Provider string
	Model    string
}

func NewUsageTotals() *UsageTotals {
	return &UsageTotals{totals: make(map[UsageKey]llmkit.Usage)}
}

func (u *UsageTotals) Name() string { return "observe.usage" }

func (u *UsageTotals) OnTurn(ctx context.Context, turn *llmkit.Turn, mc *pipeline.Context) error {
	key := UsageKey{Provider: mc.Provider, Model: mc.Model}
	u.mu.Lock()
	total := u.totals[key]
	total.Add(turn.Usage)
	u.totals[key] = total
	u.mu.Unlock()
	return nil
}

// Total returns the accumulated usage for one provider/model pair.
func (u *UsageTotals) Total(provider, model string) llmkit.Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totals[UsageKey{Provider: provider, Model: model}]
}

// Totals returns a snapshot of all accumulated usage.
func (u *UsageTotals) Totals() map[UsageKey]llmkit.Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[UsageKey]llmkit.Usage, len(u.totals))
	for k, v := range u.totals {
		out[k] = v
	}
	return out
}
