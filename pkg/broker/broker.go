// Package broker defines the job broker abstraction the worker
// runtime dispatches through: submitting jobs to named queues,
// subscribing a handler to a queue, and reporting progress and
// completion back for a job in flight.
//
// The wire protocol of the real broker (a Gearman-compatible job
// server in the original system) is out of scope for this module —
// see spec.md's Non-goals. This package is the seam: production code
// talks to it through the Broker interface, and Fake stands in for
// tests.
package broker

import (
	"context"
	"fmt"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// Job is a unit of work delivered to a registered Handler.
type Job struct {
	Handle  string
	Task    string
	Payload types.JobPayload
}

// Handler processes one job. It reports progress through the
// Reporter passed to it and returns the final result (or an error,
// which the runtime converts into a crash report per spec §4.6 step 8).
type Handler func(ctx context.Context, job Job, progress Reporter) (types.JobResult, error)

// Reporter lets a running handler push incremental progress before it
// completes.
type Reporter interface {
	// Progress reports (numerator, denominator) — e.g. (42, 100) for
	// 42%, or (3, 10) for step 3 of 10.
	Progress(ctx context.Context, numerator, denominator int) error
}

// Broker is the minimal surface the worker runtime needs: register a
// handler for a named task queue, submit a job to a named queue, run
// the registered handlers, and close. There is no separate
// fire-and-forget submit; callers that do not need the handle ignore
// the one Submit returns.
type Broker interface {
	// RegisterTaskHandler subscribes fn to every job submitted to
	// taskName. Calling it twice for the same taskName replaces the
	// previous handler.
	RegisterTaskHandler(taskName string, fn Handler) error

	// Submit enqueues a job and returns a handle the caller can later
	// use to correlate progress/completion, or track via
	// controlplane.TrackGearmanJob.
	Submit(ctx context.Context, taskName string, payload types.JobPayload) (handle string, err error)

	// Run starts processing registered handlers; it blocks until ctx
	// is cancelled or Close is called from another goroutine.
	Run(ctx context.Context) error

	// Close releases broker resources. Run returns after Close.
	Close() error
}

// ErrTaskNotRegistered is returned by Submit-adjacent paths when a job
// names a task that has no registered handler on this broker.
type ErrTaskNotRegistered struct {
	Task string
}

func (e *ErrTaskNotRegistered) Error() string {
	return fmt.Sprintf("broker: no handler registered for task %q", e.Task)
}
