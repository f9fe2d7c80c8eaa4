package runner

import (
	"context"

	"github.com/lavallee/cub-sub002/internal/artifacts"
	"github.com/lavallee/cub-sub002/internal/policy"
)

// TriageRequest carries one failed attempt to whoever answers triage.
type TriageRequest struct {
	TaskID     string
	Record     artifacts.Record
	responseCh chan TriageAnswer
}

// TriageAnswer is the answerer's decision for a failed attempt.
type TriageAnswer struct {
	Signal policy.Signal
	Err    error
}

// AnswerFunc decides what the loop should do about a failed attempt. It
// runs on the triage handler goroutine and may block on user input.
type AnswerFunc func(ctx context.Context, taskID string, rec artifacts.Record) (policy.Signal, error)

// TriageChannel bridges the failure policy to an external answerer, such
// as an interactive prompt or the TUI modal. Requests are processed
// serially by a single handler goroutine.
type TriageChannel struct {
	requestCh chan TriageRequest
	answerFn  AnswerFunc
	done      chan struct{}
}

// NewTriageChannel creates a triage channel with the given buffer size
// and answer function.
func NewTriageChannel(bufferSize int, answerFn AnswerFunc) *TriageChannel {
	return &TriageChannel{
		requestCh: make(chan TriageRequest, bufferSize),
		answerFn:  answerFn,
		done:      make(chan struct{}),
	}
}

// Start launches the request handler goroutine.
// It processes requests until the context is cancelled.
func (tc *TriageChannel) Start(ctx context.Context) {
	go tc.handleRequests(ctx)
}

// handleRequests processes incoming requests until context is cancelled.
func (tc *TriageChannel) handleRequests(ctx context.Context) {
	defer close(tc.done)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-tc.requestCh:
			signal, err := tc.answerFn(ctx, req.TaskID, req.Record)

			// Check if context was cancelled during the answer
			select {
			case <-ctx.Done():
				req.responseCh <- TriageAnswer{Err: ctx.Err()}
				return
			default:
				req.responseCh <- TriageAnswer{Signal: signal, Err: err}
			}
		}
	}
}

// Ask submits a failed attempt for triage and waits for the decision.
// It respects context cancellation at both the send and receive stages.
func (tc *TriageChannel) Ask(ctx context.Context, taskID string, rec artifacts.Record) (policy.Signal, error) {
	// Buffered so the handler never blocks on delivery
	responseCh := make(chan TriageAnswer, 1)

	req := TriageRequest{
		TaskID:     taskID,
		Record:     rec,
		responseCh: responseCh,
	}

	select {
	case tc.requestCh <- req:
	case <-ctx.Done():
		return policy.SignalContinue, ctx.Err()
	}

	select {
	case answer := <-responseCh:
		if answer.Err != nil {
			return policy.SignalContinue, answer.Err
		}
		return answer.Signal, nil
	case <-ctx.Done():
		return policy.SignalContinue, ctx.Err()
	}
}

// Stop blocks until the handler goroutine has exited.
func (tc *TriageChannel) Stop() {
	<-tc.done
}

// Func adapts the channel to the failure policy's triage callback. An
// unanswerable request falls back to SignalContinue, same as a run with
// no triage configured.
func (tc *TriageChannel) Func(ctx context.Context) policy.TriageFunc {
	return func(taskID string, rec artifacts.Record) policy.Signal {
		signal, err := tc.Ask(ctx, taskID, rec)
		if err != nil {
			return policy.SignalContinue
		}
		return signal
	}
}
