package pipeline

import (
	"context"
	"errors"
	"io"

	llmkit "github.com/streamloop/llmkit"
)

// ChunkSource yields raw provider chunks, one at a time, until io.EOF.
//
// The chunk shape is provider-specific and opaque to the pipeline; it is
// handed unmodified to the adapter's Ingest.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Run is one in-flight streaming invocation. It implements llmkit.Stream:
// Recv returns canonical events after the middleware chain has processed
// them, in upstream arrival order, and io.EOF once the stream completed and
// the turn/stream-end phases ran.
//
// Exactly one chunk is being processed at a time; Recv is not safe for
// concurrent use by multiple goroutines.
type Run struct {
	runner  *Runner
	ctx     context.Context
	mc      *Context
	source  ChunkSource
	adapter llmkit.Adapter
	state   *llmkit.StreamState

	queue    []llmkit.StreamEvent
	finished bool
	closed   bool

	resp llmkit.Response
	turn *llmkit.Turn
	err  error
}

var _ llmkit.Stream = (*Run)(nil)

func (r *Run) Recv() (llmkit.StreamEvent, error) {
	if r.closed {
		return llmkit.StreamEvent{}, llmkit.ErrStreamClosed
	}
	for {
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			return ev, nil
		}
		if r.finished {
			if r.err != nil {
				return llmkit.StreamEvent{}, r.err
			}
			return llmkit.StreamEvent{}, io.EOF
		}

		// Cancellation: stop pulling chunks, run no further hooks, reject the
		// pending aggregate outcome. Events already delivered stay valid.
		if err := r.ctx.Err(); err != nil {
			return llmkit.StreamEvent{}, r.fail(&llmkit.LLMError{
				Provider: r.mc.Provider,
				Kind:     llmkit.ErrKindCanceled,
				Message:  "stream canceled",
				Cause:    err,
			})
		}

		chunk, err := r.source.Next(r.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if err := r.finish(); err != nil {
					return llmkit.StreamEvent{}, err
				}
				continue
			}
			return llmkit.StreamEvent{}, r.fail(err)
		}

		events, err := r.adapter.Ingest(r.state, chunk)
		if err != nil {
			return llmkit.StreamEvent{}, r.fail(err)
		}
		for _, ev := range events {
			out, err := r.runner.runEventPhase(r.ctx, ev, r.mc)
			if err != nil {
				return llmkit.StreamEvent{}, r.fail(err)
			}
			r.queue = append(r.queue, out...)
		}
	}
}

// finish runs the finalize/turn/stream-end sequence after upstream EOF.
func (r *Run) finish() error {
	r.finished = true

	resp, err := r.adapter.Finalize(r.state)
	if err != nil {
		r.err = err
		return err
	}

	turn := buildTurn(r.mc, resp)
	if err := r.runner.runTurnPhase(r.ctx, turn, r.mc); err != nil {
		r.err = err
		return err
	}
	if err := r.runner.runStreamEndPhase(r.ctx, r.mc); err != nil {
		r.err = err
		return err
	}

	r.resp = resp
	r.turn = turn
	return nil
}

func (r *Run) fail(err error) error {
	r.finished = true
	r.err = err
	r.source.Close()
	return err
}

// Result returns the finalized aggregate response and turn. It is valid only
// after Recv returned io.EOF; before that it reports an error.
func (r *Run) Result() (llmkit.Response, *llmkit.Turn, error) {
	if !r.finished {
		return llmkit.Response{}, nil, errors.New("pipeline: stream not finished")
	}
	if r.err != nil {
		return llmkit.Response{}, nil, r.err
	}
	return r.resp, r.turn, nil
}

func (r *Run) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.source.Close()
}
