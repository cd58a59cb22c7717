package handlers

import (
	"context"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// CruiseDirectoryHandler implements both createCruiseDirectory and
// rebuildCruiseDirectory: the two differ only in whether missing
// directories are an expected first-time condition or a repair, and
// both converge on the same union-of-dirs + ensure + lock-siblings +
// chown/chmod sequence (spec §4.7).
type CruiseDirectoryHandler struct {
	Deps
}

func (h *CruiseDirectoryHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	if cruiseID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{Job: job, CruiseID: cruiseID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *CruiseDirectoryHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	dirs, err := destDirsForCruise(ctx, h.ControlPlane, warehouse, tc.CruiseID)
	if err != nil {
		return failResult("Resolve destination directories", err.Error()), nil
	}

	for _, dir := range dirs {
		if err := ensureDir(dir); err != nil {
			return types.JobResult{Parts: append(parts, fail("Create directory", err.Error()))}, nil
		}
	}
	parts = append(parts, pass("Create directories"))

	if warehouse.ShowOnlyCurrentCruiseDir {
		if err := lockDownSiblingCruiseDirs(warehouse.BaseDir, tc.CruiseID); err != nil {
			return types.JobResult{Parts: append(parts, fail("Lock down sibling cruise directories", err.Error()))}, nil
		}
		parts = append(parts, pass("Lock down sibling cruise directories"))
	}

	cruiseRoot := warehouse.CruiseDir(tc.CruiseID)
	if err := setOwnership(cruiseRoot, warehouse.OwnerUser); err != nil {
		return types.JobResult{Parts: append(parts, fail("Set directory ownership", err.Error()))}, nil
	}
	parts = append(parts, pass("Set directory ownership"))

	return types.JobResult{Parts: parts}, nil
}

// LoweringDirectoryHandler implements createLoweringDirectory and
// rebuildLoweringDirectory, analogous to CruiseDirectoryHandler but
// rooted under the lowering directory (spec §4.7).
type LoweringDirectoryHandler struct {
	Deps
}

func (h *LoweringDirectoryHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	loweringID := job.Payload.String("loweringID")
	if cruiseID == "" || loweringID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID or loweringID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, LoweringID: loweringID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *LoweringDirectoryHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	dirs, err := destDirsForLowering(ctx, h.ControlPlane, warehouse, tc.CruiseID, tc.LoweringID)
	if err != nil {
		return failResult("Resolve destination directories", err.Error()), nil
	}

	for _, dir := range dirs {
		if err := ensureDir(dir); err != nil {
			return types.JobResult{Parts: append(parts, fail("Create directory", err.Error()))}, nil
		}
	}
	parts = append(parts, pass("Create directories"))

	loweringRoot := warehouse.LoweringDir(tc.CruiseID, tc.LoweringID)
	if err := setOwnership(loweringRoot, warehouse.OwnerUser); err != nil {
		return types.JobResult{Parts: append(parts, fail("Set directory ownership", err.Error()))}, nil
	}
	parts = append(parts, pass("Set directory ownership"))

	return types.JobResult{Parts: parts}, nil
}
