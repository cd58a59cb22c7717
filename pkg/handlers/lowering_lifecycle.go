package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// SetupNewLoweringHandler implements setupNewLowering: submit
// createLoweringDirectory, export the lowering config, and rebuild the
// dashboard (spec §4.7). Lowerings nest inside an already-set-up
// cruise, so there is no PublicData step here; the lowering size is
// reset to zero.
type SetupNewLoweringHandler struct {
	Deps
	Submit func(ctx context.Context, taskName string, payload types.JobPayload) (string, error)
}

func (h *SetupNewLoweringHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	loweringID := job.Payload.String("loweringID")
	if cruiseID == "" || loweringID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID or loweringID"), worker.VerdictFailed, nil
	}
	task, kind, recordID := attachTaskRecord(ctx, h.ControlPlane, job)
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, LoweringID: loweringID, Task: task, RecordKind: kind, RecordID: recordID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *SetupNewLoweringHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	if _, err := h.Submit(ctx, "createLoweringDirectory", types.JobPayload{
		"cruiseID": tc.CruiseID, "loweringID": tc.LoweringID,
	}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Create lowering directory", err.Error()))}, nil
	}
	parts = append(parts, pass("Create lowering directory"))

	if err := exportLoweringConfig(warehouse, tc.CruiseID, tc.LoweringID, time.Time{}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Export lowering configuration", err.Error()))}, nil
	}
	parts = append(parts, pass("Export lowering configuration"))

	if _, err := h.Submit(ctx, "rebuildDataDashboard", types.JobPayload{"cruiseID": tc.CruiseID}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Rebuild data dashboard", err.Error()))}, nil
	}
	parts = append(parts, pass("Rebuild data dashboard"))

	if err := h.ControlPlane.SetLoweringSize(ctx, tc.LoweringID, 0); err != nil {
		parts = append(parts, failf("Reset lowering size", "%v", err))
	} else {
		parts = append(parts, pass("Reset lowering size"))
	}

	return types.JobResult{Parts: parts}, nil
}

// FinalizeCurrentLoweringHandler implements finalizeCurrentLowering:
// re-run every active lowering-scoped CST one last time, then stamp the
// lowering config as finalized.
type FinalizeCurrentLoweringHandler struct {
	Deps
	Submit func(ctx context.Context, taskName string, payload types.JobPayload) (string, error)
}

func (h *FinalizeCurrentLoweringHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	loweringID := job.Payload.String("loweringID")
	if cruiseID == "" || loweringID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID or loweringID"), worker.VerdictFailed, nil
	}
	task, kind, recordID := attachTaskRecord(ctx, h.ControlPlane, job)
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, LoweringID: loweringID, Task: task, RecordKind: kind, RecordID: recordID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *FinalizeCurrentLoweringHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	if _, err := runHookCommands(ctx, h.ControlPlane, "preFinalizeCurrentLowering", hookTokens(tc)); err != nil {
		return failResult("Run pre-finalize hooks", err.Error()), nil
	}
	parts = append(parts, pass("Run pre-finalize hooks"))

	if _, err := os.Stat(warehouse.LoweringDir(tc.CruiseID, tc.LoweringID)); err != nil {
		return types.JobResult{Parts: append(parts, fail("Verify lowering directory exists", err.Error()))}, nil
	}
	parts = append(parts, pass("Verify lowering directory exists"))

	csts, err := h.ControlPlane.CollectionSystemTransfers(ctx, true)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("List active collection system transfers", err.Error()))}, nil
	}
	for _, cst := range csts {
		if cst.Scope != types.ScopeLowering {
			continue
		}
		if _, err := h.Submit(ctx, "runCollectionSystemTransfer", types.JobPayload{
			"cruiseID": tc.CruiseID, "loweringID": tc.LoweringID, "collectionSystemTransferID": cst.ID,
		}); err != nil {
			parts = append(parts, failf("Transfer "+cst.Name, "%v", err))
		}
	}
	parts = append(parts, pass("Run lowering-scoped collection system transfers"))

	if err := exportLoweringConfig(warehouse, tc.CruiseID, tc.LoweringID, time.Now()); err != nil {
		return types.JobResult{Parts: append(parts, fail("Export lowering configuration", err.Error()))}, nil
	}
	parts = append(parts, pass("Export lowering configuration"))

	return types.JobResult{Parts: parts}, nil
}

type loweringConfigDoc struct {
	LoweringID      string `json:"loweringID"`
	CruiseID        string `json:"cruiseID"`
	ConfigCreatedOn string `json:"configCreatedOn"`
	FinalizedOn     string `json:"loweringFinalizedOn,omitempty"`
}

func exportLoweringConfig(warehouse *types.ShipboardDataWarehouseConfig, cruiseID, loweringID string, finalizedOn time.Time) error {
	doc := loweringConfigDoc{
		LoweringID:      loweringID,
		CruiseID:        cruiseID,
		ConfigCreatedOn: time.Now().UTC().Format(time.RFC3339),
	}
	if !finalizedOn.IsZero() {
		doc.FinalizedOn = doc.ConfigCreatedOn
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lowering config: %w", err)
	}
	path := warehouse.LoweringDir(cruiseID, loweringID) + "/" + warehouse.LoweringConfigFn
	return os.WriteFile(path, data, 0o644)
}
