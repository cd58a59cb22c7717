package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/transfer"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// CruiseDataTransferHandler implements runCruiseDataTransfer (spec
// §4.7): a two-phase rsync of the assembled cruise tree out to a
// local/smb/rsync/ssh destination, dry-run first to learn the file
// count, skipping the real pass entirely when it's zero.
type CruiseDataTransferHandler struct {
	Deps
}

func (h *CruiseDataTransferHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	cdtID := job.Payload.String("cruiseDataTransferID")
	if cruiseID == "" || cdtID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID or cruiseDataTransferID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{
		Job: job, CruiseID: cruiseID,
		RecordKind: worker.RecordCDT, RecordID: cdtID,
	}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *CruiseDataTransferHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	cdtID := tc.Job.Payload.String("cruiseDataTransferID")
	cdts, err := h.ControlPlane.CruiseDataTransfers(ctx, false, false)
	if err != nil {
		return failResult("Lookup cruise data transfer", err.Error()), nil
	}
	cdt, ok := findCDT(cdts, cdtID)
	if !ok {
		return failResult("Lookup cruise data transfer", fmt.Sprintf("no cruise data transfer with id %s", cdtID)), nil
	}

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	cruiseRoot := warehouse.CruiseDir(tc.CruiseID)
	opts := transfer.RsyncOptionsFromCDT(*cdt)
	opts.ExtraArgs = cruiseDataExcludeArgs(warehouse, cdt)

	dryRun := opts
	dryRun.DryRun = true
	dryResult, err := transfer.Run(ctx, nil, 1, "rsync", transfer.RsyncArgs(dryRun, cruiseRoot+"/", cdt.DestDir+"/"),
		transfer.ProgressRange{Start: 0, End: 10}, nil)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Count files (dry run)", err.Error()))}, nil
	}
	parts = append(parts, pass("Count files (dry run)"))

	estimated := len(dryResult.New) + len(dryResult.Updated)
	if estimated == 0 {
		return types.JobResult{Parts: append(parts, pass("Transfer cruise data (nothing to transfer)"))}, nil
	}

	result, err := transfer.Run(ctx, nil, estimated, "rsync", transfer.RsyncArgs(opts, cruiseRoot+"/", cdt.DestDir+"/"),
		transfer.ProgressRange{Start: 10, End: 95}, nil)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Transfer cruise data", err.Error()))}, nil
	}
	parts = append(parts, pass("Transfer cruise data"))

	return types.JobResult{Parts: parts, Files: &types.FileSet{New: result.New, Updated: result.Updated}}, nil
}

// CruiseDataTransferTestHandler implements testCruiseDataTransfer: the
// destination-reachability probe (spec §7.5's test_cdt_destination
// sibling), mutating only TestStatus.
type CruiseDataTransferTestHandler struct {
	Deps
}

func (h *CruiseDataTransferTestHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cdtID := job.Payload.String("cruiseDataTransferID")
	if cdtID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseDataTransferID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{Job: job}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *CruiseDataTransferTestHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	cdtID := tc.Job.Payload.String("cruiseDataTransferID")
	cdts, err := h.ControlPlane.CruiseDataTransfers(ctx, false, false)
	if err != nil {
		return failResult("Lookup cruise data transfer", err.Error()), nil
	}
	cdt, ok := findCDT(cdts, cdtID)
	if !ok {
		return failResult("Lookup cruise data transfer", fmt.Sprintf("no cruise data transfer with id %s", cdtID)), nil
	}

	var parts []types.JobPart
	if err := testDestConnection(ctx, *cdt); err != nil {
		_ = h.ControlPlane.SetCDTTestError(ctx, cdtID)
		return types.JobResult{Parts: append(parts, fail("Test destination connection", err.Error()))}, nil
	}
	_ = h.ControlPlane.SetCDTTestIdle(ctx, cdtID)
	return types.JobResult{Parts: append(parts, pass("Test destination connection"))}, nil
}

func findCDT(cdts []types.CruiseDataTransfer, id string) (*types.CruiseDataTransfer, bool) {
	for i := range cdts {
		if cdts[i].ID == id {
			return &cdts[i], true
		}
	}
	return nil, false
}

func testDestConnection(ctx context.Context, cdt types.CruiseDataTransfer) error {
	switch cdt.TransferType {
	case types.TransferTypeSMB:
		_, err := transfer.ProbeSMB(ctx, cdt.Credentials)
		return err
	case types.TransferTypeSSH, types.TransferTypeRsync:
		_, err := transfer.ProbeDarwinPeer(ctx, cdt.Credentials)
		return err
	default:
		return nil
	}
}

// cruiseDataExcludeArgs builds the --exclude flags matching
// ExcludeOVDMFiles/ExcludedCollectionSystems/ExcludedExtraDirectories/
// ExcludeLoweringData per spec §4.7's runCruiseDataTransfer.
func cruiseDataExcludeArgs(warehouse *types.ShipboardDataWarehouseConfig, cdt *types.CruiseDataTransfer) []string {
	var args []string
	if cdt.ExcludeOVDMFiles {
		for _, fn := range []string{warehouse.MD5SummaryFn, warehouse.MD5SummaryMD5Fn, warehouse.CruiseConfigFn, warehouse.DataDashboardManifestFn} {
			if fn != "" {
				args = append(args, "--exclude="+fn)
			}
		}
	}
	for _, name := range cdt.ExcludedCollectionSystems {
		args = append(args, "--exclude="+name+"/**")
	}
	for _, name := range cdt.ExcludedExtraDirectories {
		args = append(args, "--exclude="+name+"/**")
	}
	if cdt.ExcludeLoweringData {
		args = append(args, "--exclude="+filepath.Join(warehouse.LoweringDataBaseDir, "**"))
	}
	return args
}
