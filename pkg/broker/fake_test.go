package broker

import (
	"context"
	"testing"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

func TestFakeSubmitRunsHandlerSynchronously(t *testing.T) {
	f := NewFake()

	var seenPayload types.JobPayload
	f.RegisterTaskHandler("setupNewCruise", func(ctx context.Context, job Job, progress Reporter) (types.JobResult, error) {
		seenPayload = job.Payload
		progress.Progress(ctx, 1, 2)
		progress.Progress(ctx, 2, 2)
		return types.JobResult{Parts: []types.JobPart{{PartName: "createCruiseDirectory", Result: types.ResultPass}}}, nil
	})

	handle, err := f.Submit(context.Background(), "setupNewCruise", types.JobPayload{"cruiseID": "AT42-01"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle == "" {
		t.Error("expected a non-empty job handle")
	}
	if seenPayload.String("cruiseID") != "AT42-01" {
		t.Errorf("handler saw payload %v, want cruiseID=AT42-01", seenPayload)
	}

	completion, err := f.LastCompletion()
	if err != nil {
		t.Fatalf("LastCompletion: %v", err)
	}
	if completion.Result.FinalVerdict() != types.ResultPass {
		t.Errorf("FinalVerdict() = %v, want Pass", completion.Result.FinalVerdict())
	}
	if len(completion.Reports) != 2 {
		t.Errorf("got %d progress reports, want 2", len(completion.Reports))
	}
}

func TestFakeSubmitUnregisteredTask(t *testing.T) {
	f := NewFake()
	_, err := f.Submit(context.Background(), "noSuchTask", nil)
	if err == nil {
		t.Fatal("expected ErrTaskNotRegistered")
	}
	if _, ok := err.(*ErrTaskNotRegistered); !ok {
		t.Errorf("got error of type %T, want *ErrTaskNotRegistered", err)
	}
}
