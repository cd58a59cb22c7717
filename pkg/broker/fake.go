package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// Fake is an in-process Broker for tests: Submit runs the registered
// handler synchronously (called directly on the caller's goroutine)
// rather than round-tripping through any wire protocol.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler

	// Completed records every job this Fake has run, in submission
	// order, for assertions in tests.
	Completed []FakeCompletion
}

// FakeCompletion is one entry in Fake.Completed.
type FakeCompletion struct {
	Handle  string
	Task    string
	Payload types.JobPayload
	Result  types.JobResult
	Err     error
	Reports []FakeProgress
}

// FakeProgress is one Progress() call observed during a fake job run.
type FakeProgress struct {
	Numerator, Denominator int
}

// NewFake returns a ready-to-use Fake.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]Handler)}
}

func (f *Fake) RegisterTaskHandler(taskName string, fn Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[taskName] = fn
	return nil
}

// Submit runs the handler registered for taskName synchronously and
// records the outcome in Completed. It returns ErrTaskNotRegistered if
// no handler has been registered.
func (f *Fake) Submit(ctx context.Context, taskName string, payload types.JobPayload) (string, error) {
	f.mu.Lock()
	fn, ok := f.handlers[taskName]
	f.mu.Unlock()
	if !ok {
		return "", &ErrTaskNotRegistered{Task: taskName}
	}

	handle := uuid.NewString()
	reporter := &fakeReporter{}
	job := Job{Handle: handle, Task: taskName, Payload: payload}

	result, err := fn(ctx, job, reporter)

	f.mu.Lock()
	f.Completed = append(f.Completed, FakeCompletion{
		Handle:  handle,
		Task:    taskName,
		Payload: payload,
		Result:  result,
		Err:     err,
		Reports: reporter.reports,
	})
	f.mu.Unlock()

	return handle, nil
}

// Run does no work for Fake, since Submit already runs handlers inline;
// it blocks until ctx is cancelled (Close does not end it).
func (f *Fake) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *Fake) Close() error { return nil }

// LastCompletion returns the most recent FakeCompletion, or an error
// if no job has completed yet.
func (f *Fake) LastCompletion() (FakeCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Completed) == 0 {
		return FakeCompletion{}, fmt.Errorf("broker fake: no jobs completed")
	}
	return f.Completed[len(f.Completed)-1], nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []FakeProgress
}

func (r *fakeReporter) Progress(ctx context.Context, numerator, denominator int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, FakeProgress{Numerator: numerator, Denominator: denominator})
	return nil
}
