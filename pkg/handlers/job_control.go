package handlers

import (
	"context"
	"fmt"
	"strconv"
	"syscall"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// StopJobHandler implements stopJob (spec §4.7): given a pid, find the
// CST/CDT/task record that owns it, send SIGQUIT, and mark that record
// idle. A missing pid or unknown owner is non-fatal.
type StopJobHandler struct {
	Deps
}

func (h *StopJobHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	return &worker.TaskContext{Job: job}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *StopJobHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	pidStr := tc.Job.Payload.String("pid")
	if pidStr == "" {
		return types.JobResult{Parts: []types.JobPart{{PartName: "Stop job", Result: types.ResultIgnore}}}, nil
	}

	jobName, recordID, err := h.ControlPlane.GearmanJobByPID(ctx, pidStr)
	if err != nil || recordID == "" {
		return types.JobResult{Parts: []types.JobPart{{PartName: "Stop job", Result: types.ResultIgnore, Reason: "no owning record found for pid " + pidStr}}}, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return failResult("Stop job", fmt.Sprintf("invalid pid %q", pidStr)), nil
	}
	if err := syscall.Kill(pid, syscall.SIGQUIT); err != nil {
		return failResult("Stop job", fmt.Sprintf("signal pid %d: %v", pid, err)), nil
	}

	if err := h.setRecordIdle(ctx, jobName, recordID); err != nil {
		return failResult("Stop job", err.Error()), nil
	}

	if err := h.ControlPlane.SendMessage(ctx, "Manual Stop", fmt.Sprintf("job %s (pid %s) stopped manually", jobName, pidStr)); err != nil {
		return types.JobResult{Parts: []types.JobPart{failf("Post manual-stop message", "%v", err)}}, nil
	}
	return types.JobResult{Parts: []types.JobPart{pass("Stop job")}}, nil
}

// setRecordIdle dispatches to the setIdle endpoint matching jobName's
// record kind. jobName is whatever TrackGearmanJob/SetXRunning recorded
// it as: a collection-system or cruise-data transfer name, or a task
// name.
func (h *StopJobHandler) setRecordIdle(ctx context.Context, jobName, recordID string) error {
	if csts, err := h.ControlPlane.CollectionSystemTransfers(ctx, true); err == nil {
		for _, c := range csts {
			if c.ID == recordID {
				return h.ControlPlane.SetCSTIdle(ctx, recordID)
			}
		}
	}
	if cdts, err := h.ControlPlane.CruiseDataTransfers(ctx, true, false); err == nil {
		for _, c := range cdts {
			if c.ID == recordID {
				return h.ControlPlane.SetCDTIdle(ctx, recordID)
			}
		}
	}
	return h.ControlPlane.SetTaskIdle(ctx, recordID)
}

// RebootResetHandler implements rebootReset: clear the stale job table
// so a worker restart doesn't believe work is still in flight.
type RebootResetHandler struct {
	Deps
}

func (h *RebootResetHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	return &worker.TaskContext{Job: job}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *RebootResetHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	if err := h.ControlPlane.ClearAllJobsFromDB(ctx); err != nil {
		return failResult("Clear job table", err.Error()), nil
	}
	return types.JobResult{Parts: []types.JobPart{pass("Clear job table")}}, nil
}
