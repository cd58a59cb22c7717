package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

type stubHandler struct {
	beginVerdict Verdict
	beginResult  types.JobResult
	beginErr     error
	runResult    types.JobResult
	runErr       error
	panicOnRun   bool
}

func (h *stubHandler) Begin(ctx context.Context, job broker.Job) (*TaskContext, types.JobResult, Verdict, error) {
	if h.beginErr != nil {
		return nil, types.JobResult{}, VerdictFailed, h.beginErr
	}
	if h.beginVerdict == VerdictFailed {
		return nil, h.beginResult, VerdictFailed, nil
	}
	return &TaskContext{Job: job}, types.JobResult{}, VerdictContinue, nil
}

func (h *stubHandler) Run(ctx context.Context, tc *TaskContext) (types.JobResult, error) {
	if h.panicOnRun {
		panic("simulated handler panic")
	}
	return h.runResult, h.runErr
}

func newTestRuntime(t *testing.T) (*Runtime, *broker.Fake) {
	t.Helper()
	fake := broker.NewFake()
	rt := NewRuntime(fake, nil, zerolog.Nop())
	return rt, fake
}

func TestDispatchPassResult(t *testing.T) {
	rt, fake := newTestRuntime(t)
	handler := &stubHandler{runResult: types.JobResult{Parts: []types.JobPart{{PartName: "createCruiseDirectory", Result: types.ResultPass}}}}

	if err := rt.RegisterHandler("setupNewCruise", handler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	_, err := fake.Submit(context.Background(), "setupNewCruise", types.JobPayload{"cruiseID": "AT42-01"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	completion, err := fake.LastCompletion()
	if err != nil {
		t.Fatalf("LastCompletion: %v", err)
	}
	if completion.Result.FinalVerdict() != types.ResultPass {
		t.Errorf("FinalVerdict() = %v, want Pass", completion.Result.FinalVerdict())
	}
}

func TestDispatchBeginFailureShortCircuitsRun(t *testing.T) {
	rt, fake := newTestRuntime(t)
	handler := &stubHandler{beginErr: errors.New("bad payload")}

	if err := rt.RegisterHandler("setupNewCruise", handler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	fake.Submit(context.Background(), "setupNewCruise", nil)
	completion, _ := fake.LastCompletion()
	if completion.Result.FinalVerdict() != types.ResultFail {
		t.Errorf("FinalVerdict() = %v, want Fail", completion.Result.FinalVerdict())
	}
	if completion.Result.Parts[0].PartName != "Retrieve job data" {
		t.Errorf("PartName = %q, want %q", completion.Result.Parts[0].PartName, "Retrieve job data")
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	rt, fake := newTestRuntime(t)
	handler := &stubHandler{panicOnRun: true}

	if err := rt.RegisterHandler("runCollectionSystemTransfer", handler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	_, submitErr := fake.Submit(context.Background(), "runCollectionSystemTransfer", nil)
	if submitErr != nil {
		t.Fatalf("Submit should not itself error on a handler panic: %v", submitErr)
	}

	completion, _ := fake.LastCompletion()
	if completion.Result.FinalVerdict() != types.ResultFail {
		t.Fatalf("FinalVerdict() = %v, want Fail", completion.Result.FinalVerdict())
	}
	if completion.Result.Parts[0].PartName != "Worker crashed" {
		t.Errorf("PartName = %q, want %q", completion.Result.Parts[0].PartName, "Worker crashed")
	}
}

// blockingHandler reports readiness on started, then blocks in Run
// until its job context is cancelled, to let a test observe
// ActiveJobs/CancelJob mid-flight.
type blockingHandler struct {
	started chan struct{}
}

func (h *blockingHandler) Begin(ctx context.Context, job broker.Job) (*TaskContext, types.JobResult, Verdict, error) {
	return &TaskContext{Job: job}, types.JobResult{}, VerdictContinue, nil
}

func (h *blockingHandler) Run(ctx context.Context, tc *TaskContext) (types.JobResult, error) {
	close(h.started)
	<-ctx.Done()
	return types.JobResult{Parts: []types.JobPart{{PartName: "cancelled", Result: types.ResultIgnore}}}, nil
}

func TestActiveJobsAndCancelJob(t *testing.T) {
	rt, fake := newTestRuntime(t)
	handler := &blockingHandler{started: make(chan struct{})}
	if err := rt.RegisterHandler("runCollectionSystemTransfer", handler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	submitDone := make(chan struct{})
	go func() {
		defer close(submitDone)
		_, _ = fake.Submit(context.Background(), "runCollectionSystemTransfer", types.JobPayload{"collectionSystemTransferID": "cst-1"})
	}()

	<-handler.started

	active := rt.ActiveJobs()
	if len(active) != 1 || active[0].TaskName != "runCollectionSystemTransfer" {
		t.Fatalf("expected 1 active job, got %+v", active)
	}

	if !rt.CancelJob(active[0].Handle) {
		t.Fatal("expected CancelJob to find the in-flight job")
	}
	<-submitDone

	if got := rt.ActiveJobs(); len(got) != 0 {
		t.Fatalf("expected no active jobs after completion, got %+v", got)
	}
	if rt.CancelJob("nonexistent") {
		t.Fatal("expected CancelJob for an unknown handle to report false")
	}
}
