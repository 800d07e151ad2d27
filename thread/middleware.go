package thread

import (
	"context"
	"fmt"

	llmkit "github.com/streamloop/llmkit"
	"github.com/streamloop/llmkit/pipeline"
)

const (
	stateKeyThread = "thread.thread"
	stateKeyID     = "thread.id"
)

// Persist is a pipeline middleware that loads the conversation's Thread
// before the request, merges persisted history into the request message
// list, and appends/saves the turn's messages afterwards.
//
// One Persist instance may serve many concurrent invocations; the loaded
// Thread lives in the invocation's state store, never on the instance.
type Persist struct {
	store          Store
	conversationID string
}

var (
	_ pipeline.RequestHook   = (*Persist)(nil)
	_ pipeline.TurnHook      = (*Persist)(nil)
	_ pipeline.StreamEndHook = (*Persist)(nil)
)

func NewPersist(store Store, conversationID string) *Persist {
	return &Persist{store: store, conversationID: conversationID}
}

func (p *Persist) Name() string { return "thread" }

// OnRequest loads the Thread and merges it into the request using the
// prepend-missing rule: any persisted message whose ID is absent from the
// request message list is prepended, in persisted order, and the turn-start
// offset advances by the number prepended. Compared by identity, never by
// content.
func (p *Persist) OnRequest(ctx context.Context, mc *pipeline.Context) error {
	th, err := p.store.Load(ctx, p.conversationID)
	if err != nil {
		return fmt.Errorf("thread: load conversation %q: %w", p.conversationID, err)
	}
	if th == nil {
		th = New(p.conversationID)
	}

	mc.Set(stateKeyThread, th)
	mc.Set(stateKeyID, p.conversationID)

	if mc.Request == nil {
		return nil
	}

	present := make(map[string]struct{}, len(mc.Request.Messages))
	for i := range mc.Request.Messages {
		mc.Request.Messages[i] = mc.Request.Messages[i].EnsureID()
		present[mc.Request.Messages[i].ID] = struct{}{}
	}

	var prepend []llmkit.Message
	for _, m := range th.Messages {
		if _, ok := present[m.ID]; !ok {
			prepend = append(prepend, m)
		}
	}
	if len(prepend) > 0 {
		mc.Request.Messages = append(prepend, mc.Request.Messages...)
		mc.TurnStart += len(prepend)
	}
	return nil
}

// OnTurn first appends any request message that is neither in the Thread nor
// among the turn's own produced messages (caller-added history not yet
// persisted), then appends the turn's messages, then saves.
//
// A save failure is fatal for the invocation but the in-memory Thread keeps
// its appends: the caller holds an up-to-date, unpersisted Thread.
func (p *Persist) OnTurn(ctx context.Context, turn *llmkit.Turn, mc *pipeline.Context) error {
	v, ok := mc.Get(stateKeyThread)
	if !ok {
		return fmt.Errorf("thread: no thread loaded for conversation %q", p.conversationID)
	}
	th := v.(*Thread)

	produced := make(map[string]struct{}, len(turn.Messages))
	for _, m := range turn.Messages {
		produced[m.ID] = struct{}{}
	}

	if mc.Request != nil {
		for _, m := range mc.Request.Messages {
			if th.Contains(m.ID) {
				continue
			}
			if _, ok := produced[m.ID]; ok {
				continue
			}
			th.Append(m)
		}
	}
	th.Append(turn.Messages...)

	if err := p.store.Save(ctx, p.conversationID, th, turn); err != nil {
		return fmt.Errorf("thread: save conversation %q: %w", p.conversationID, err)
	}
	return nil
}

func (p *Persist) OnStreamEnd(ctx context.Context, mc *pipeline.Context) error {
	mc.Delete(stateKeyThread)
	mc.Delete(stateKeyID)
	return nil
}
