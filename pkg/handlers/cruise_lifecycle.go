package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// SetupNewCruiseHandler implements spec §4.7's setupNewCruise: set
// permissions on the cruise-data root, submit createCruiseDirectory,
// reset the MD5 summary, export the cruise config, rebuild the
// dashboard, optionally clear PublicData, and measure/publish size.
type SetupNewCruiseHandler struct {
	Deps
	Submit func(ctx context.Context, taskName string, payload types.JobPayload) (string, error)
}

func (h *SetupNewCruiseHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	if cruiseID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID"), worker.VerdictFailed, nil
	}
	task, kind, recordID := attachTaskRecord(ctx, h.ControlPlane, job)
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, Task: task, RecordKind: kind, RecordID: recordID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *SetupNewCruiseHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	if err := setOwnership(warehouse.BaseDir, warehouse.OwnerUser); err != nil {
		return types.JobResult{Parts: append(parts, fail("Set cruise data directory permissions", err.Error()))}, nil
	}
	parts = append(parts, pass("Set cruise data directory permissions"))

	if _, err := h.Submit(ctx, "createCruiseDirectory", types.JobPayload{"cruiseID": tc.CruiseID}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Create cruise directory", err.Error()))}, nil
	}
	parts = append(parts, pass("Create cruise directory"))

	if _, err := h.Submit(ctx, "rebuildMD5Summary", types.JobPayload{"cruiseID": tc.CruiseID}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Reset MD5 summary", err.Error()))}, nil
	}
	parts = append(parts, pass("Reset MD5 summary"))

	if err := exportCruiseConfig(warehouse, tc.CruiseID, time.Time{}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Export cruise configuration", err.Error()))}, nil
	}
	parts = append(parts, pass("Export cruise configuration"))

	if _, err := h.Submit(ctx, "rebuildDataDashboard", types.JobPayload{"cruiseID": tc.CruiseID}); err != nil {
		return types.JobResult{Parts: append(parts, fail("Build data dashboard", err.Error()))}, nil
	}
	parts = append(parts, pass("Build data dashboard"))

	if warehouse.TransferPublicData {
		publicDir := warehouse.PublicDataDir
		if err := os.RemoveAll(publicDir); err != nil {
			return types.JobResult{Parts: append(parts, fail("Clear PublicData", err.Error()))}, nil
		}
		if err := ensureDir(publicDir); err != nil {
			return types.JobResult{Parts: append(parts, fail("Clear PublicData", err.Error()))}, nil
		}
		parts = append(parts, pass("Clear PublicData"))
	}

	cruiseBytes, err := duSB(warehouse.CruiseDir(tc.CruiseID))
	if err != nil {
		parts = append(parts, failf("Measure cruise size", "du -sb: %v", err))
	} else {
		if err := h.ControlPlane.SetCruiseSize(ctx, tc.CruiseID, cruiseBytes); err != nil {
			parts = append(parts, failf("Publish cruise size", "%v", err))
		} else {
			parts = append(parts, pass("Measure and publish cruise size"))
		}
	}
	if err := h.ControlPlane.SetLoweringSize(ctx, "", 0); err == nil {
		parts = append(parts, pass("Reset lowering size"))
	}

	return types.JobResult{Parts: parts}, nil
}

// FinalizeCurrentCruiseHandler implements finalizeCurrentCruise: wait
// for every active cruise-scoped CST to run once more, optionally
// copy PublicData into the cruise's From_PublicData directory, then
// stamp the cruise config as finalized.
type FinalizeCurrentCruiseHandler struct {
	Deps
	Submit func(ctx context.Context, taskName string, payload types.JobPayload) (string, error)
}

func (h *FinalizeCurrentCruiseHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	if cruiseID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID"), worker.VerdictFailed, nil
	}
	task, kind, recordID := attachTaskRecord(ctx, h.ControlPlane, job)
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, Task: task, RecordKind: kind, RecordID: recordID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *FinalizeCurrentCruiseHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	if _, err := runHookCommands(ctx, h.ControlPlane, "preFinalizeCurrentCruise", hookTokens(tc)); err != nil {
		return failResult("Run pre-finalize hooks", err.Error()), nil
	}
	parts = append(parts, pass("Run pre-finalize hooks"))

	if _, err := os.Stat(warehouse.CruiseDir(tc.CruiseID)); err != nil {
		return types.JobResult{Parts: append(parts, fail("Verify cruise directory exists", err.Error()))}, nil
	}
	parts = append(parts, pass("Verify cruise directory exists"))

	csts, err := h.ControlPlane.CollectionSystemTransfers(ctx, true)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("List active collection system transfers", err.Error()))}, nil
	}
	for _, cst := range csts {
		if cst.Scope != types.ScopeCruise {
			continue
		}
		if _, err := h.Submit(ctx, "runCollectionSystemTransfer", types.JobPayload{
			"cruiseID": tc.CruiseID, "collectionSystemTransferID": cst.ID,
		}); err != nil {
			parts = append(parts, failf("Transfer "+cst.Name, "%v", err))
		}
	}
	parts = append(parts, pass("Run cruise-scoped collection system transfers"))

	if warehouse.TransferPublicData {
		dest := warehouse.CruiseDir(tc.CruiseID) + "/From_PublicData"
		if err := ensureDir(dest); err != nil {
			return types.JobResult{Parts: append(parts, fail("Transfer PublicData", err.Error()))}, nil
		}
		if out, err := exec.CommandContext(ctx, "rsync", "-tr", warehouse.PublicDataDir+"/", dest+"/").CombinedOutput(); err != nil {
			return types.JobResult{Parts: append(parts, failf("Transfer PublicData", "%v: %s", err, out))}, nil
		}
		parts = append(parts, pass("Transfer PublicData"))
	}

	if err := exportCruiseConfig(warehouse, tc.CruiseID, time.Now()); err != nil {
		return types.JobResult{Parts: append(parts, fail("Export cruise configuration", err.Error()))}, nil
	}
	parts = append(parts, pass("Export cruise configuration"))

	return types.JobResult{Parts: parts}, nil
}

// cruiseConfigDoc is the on-disk shape of {cruiseConfigFn}.
type cruiseConfigDoc struct {
	CruiseID        string `json:"cruiseID"`
	ConfigCreatedOn string `json:"configCreatedOn"`
	FinalizedOn     string `json:"cruiseFinalizedOn,omitempty"`
}

func exportCruiseConfig(warehouse *types.ShipboardDataWarehouseConfig, cruiseID string, finalizedOn time.Time) error {
	doc := cruiseConfigDoc{
		CruiseID:        cruiseID,
		ConfigCreatedOn: time.Now().UTC().Format(time.RFC3339),
	}
	if !finalizedOn.IsZero() {
		doc.FinalizedOn = doc.ConfigCreatedOn
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cruise config: %w", err)
	}
	path := warehouse.CruiseDir(cruiseID) + "/" + warehouse.CruiseConfigFn
	return os.WriteFile(path, data, 0o644)
}

// duSB runs `du -sb <dir>` and parses the byte count it reports.
func duSB(dir string) (int64, error) {
	out, err := exec.Command("du", "-sb", dir).Output()
	if err != nil {
		return 0, fmt.Errorf("du -sb %s: %w", dir, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("du -sb %s: unparseable output %q", dir, out)
	}
	return strconv.ParseInt(fields[0], 10, 64)
}
