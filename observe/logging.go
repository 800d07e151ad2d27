// Package observe provides middleware for logging and usage accounting.
package observe

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	llmkit "github.com/streamloop/llmkit"
	"github.com/streamloop/llmkit/pipeline"
)

const (
	stateKeyStart  = "observe.start"
	stateKeyEvents = "observe.events"
)

// Logging logs the lifecycle of each invocation: the outgoing request at
// debug level, each turn with usage and latency at info level, and the event
// count when a stream ends.
//
// One instance serves any number of concurrent invocations; timings and
// counters live in the invocation's state store.
type Logging struct {
	log *logrus.Logger
}

func NewLogging(log *logrus.Logger) *Logging {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logging{log: log}
}

func (l *Logging) Name() string { return "observe.logging" }

func (l *Logging) OnRequest(ctx context.Context, mc *pipeline.Context) error {
	mc.Set(stateKeyStart, time.Now())
	messages := 0
	if mc.Request != nil {
		messages = len(mc.Request.Messages)
	}
	l.log.WithFields(logrus.Fields{
		"provider":  mc.Provider,
		"model":     mc.Model,
		"modality":  mc.Modality,
		"streaming": mc.Streaming,
		"messages":  messages,
	}).Debug("Dispatching request")
	return nil
}

func (l *Logging) OnStreamEvent(ctx context.Context, ev llmkit.StreamEvent, mc *pipeline.Context) ([]llmkit.StreamEvent, error) {
	n := 0
	if v, ok := mc.Get(stateKeyEvents); ok {
		n = v.(int)
	}
	mc.Set(stateKeyEvents, n+1)
	return pipeline.Pass(ev)
}

func (l *Logging) OnTurn(ctx context.Context, turn *llmkit.Turn, mc *pipeline.Context) error {
	fields := logrus.Fields{
		"provider":    mc.Provider,
		"model":       mc.Model,
		"turn":        turn.Index,
		"stop_reason": turn.StopReason,
		"tool_calls":  len(turn.ToolCalls),
		"tokens":      turn.Usage.TotalTokens,
	}
	if v, ok := mc.Get(stateKeyStart); ok {
		fields["elapsed"] = time.Since(v.(time.Time)).Round(time.Millisecond).String()
	}
	l.log.WithFields(fields).Info("Turn completed")
	return nil
}

func (l *Logging) OnStreamEnd(ctx context.Context, mc *pipeline.Context) error {
	if v, ok := mc.Get(stateKeyEvents); ok {
		l.log.WithFields(logrus.Fields{
			"provider": mc.Provider,
			"events":   v.(int),
		}).Debug("Stream ended")
	}
	mc.Delete(stateKeyStart)
	mc.Delete(stateKeyEvents)
	return nil
}
