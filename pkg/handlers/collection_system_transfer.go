package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/filelist"
	"github.com/oceandatatools/openvdm-go/pkg/pathutil"
	"github.com/oceandatatools/openvdm-go/pkg/transfer"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// CollectionSystemTransferHandler implements runCollectionSystemTransfer
// (spec §4.7): probe the source, probe the destination, build the file
// list, materialize an include file, run rsync, optionally mirror
// deletions, fix ownership, and write the transfer/exclude logs.
type CollectionSystemTransferHandler struct {
	Deps
}

func (h *CollectionSystemTransferHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	cstID := job.Payload.String("collectionSystemTransferID")
	if cruiseID == "" || cstID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID or collectionSystemTransferID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{
		Job: job, CruiseID: cruiseID, LoweringID: job.Payload.String("loweringID"),
		RecordKind: worker.RecordCST, RecordID: cstID,
	}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *CollectionSystemTransferHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	cstID := tc.Job.Payload.String("collectionSystemTransferID")
	cst, err := h.ControlPlane.CollectionSystemTransfer(ctx, cstID)
	if err != nil {
		return failResult("Lookup collection system transfer", err.Error()), nil
	}
	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	if err := testSourceConnection(ctx, *cst); err != nil {
		return types.JobResult{Parts: append(parts, fail("Test source connection", err.Error()))}, nil
	}
	parts = append(parts, pass("Test source connection"))

	tplCtx := pathutil.Context{CruiseID: tc.CruiseID, LoweringID: tc.LoweringID, LoweringDataBaseDir: warehouse.LoweringDataBaseDir, Now: time.Now()}
	destDir, ok := pathutil.KeywordReplace(cst.DestDir, tplCtx)
	if !ok {
		return types.JobResult{Parts: append(parts, fail("Resolve destination directory", "destDir requires a lowering that isn't current"))}, nil
	}
	if err := ensureDir(destDir); err != nil {
		return types.JobResult{Parts: append(parts, fail("Test destination directory", err.Error()))}, nil
	}
	parts = append(parts, pass("Test destination directory"))

	fl, err := filelist.Build(ctx, filelist.Options{
		SourceRoot:       cst.SourceDir,
		Kind:             cst.TransferType,
		Credentials:      cst.Credentials,
		Include:          cst.IncludeFilter,
		Exclude:          cst.ExcludeFilter,
		Ignore:           cst.IgnoreFilter,
		StalenessSeconds: cst.StalenessSeconds,
	})
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Build file list", err.Error()))}, nil
	}
	parts = append(parts, pass("Build file list"))

	includeFile, err := transfer.WriteIncludeFile("", fl.Paths())
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Materialize include file", err.Error()))}, nil
	}
	defer os.Remove(includeFile)
	parts = append(parts, pass("Materialize include file"))

	opts := transfer.RsyncOptionsFromCST(*cst)
	opts.IncludeFromFile = includeFile
	if cst.TransferType == types.TransferTypeSSH || cst.TransferType == types.TransferTypeRsync {
		if darwin, err := transfer.ProbeDarwinPeer(ctx, cst.Credentials); err == nil {
			opts.IsDarwinPeer = darwin
		}
	}

	result, err := transfer.Run(ctx, nil, len(fl.Include), "rsync", transfer.RsyncArgs(opts, cst.SourceDir+"/", destDir+"/"),
		transfer.ProgressRange{Start: 20, End: 90}, nil)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Run transfer", err.Error()))}, nil
	}
	parts = append(parts, pass("Run transfer"))

	var deleted []string
	if cst.SyncFromSource {
		deleted, err = deleteFromDest(destDir, fl.Paths())
		if err != nil {
			parts = append(parts, failf("Delete from destination", "%v", err))
		} else {
			parts = append(parts, pass("Delete from destination"))
		}
	}

	if !isMountPoint(destDir) {
		if err := setOwnership(destDir, warehouse.OwnerUser); err != nil {
			parts = append(parts, failf("Set destination ownership", "%v", err))
		} else {
			parts = append(parts, pass("Set destination ownership"))
		}
	}

	if err := writeTransferLogs(warehouse, tc.CruiseID, cst.Name, result, fl.Exclude); err != nil {
		parts = append(parts, failf("Write transfer log", "%v", err))
	} else {
		parts = append(parts, pass("Write transfer log"))
	}

	return types.JobResult{
		Parts: parts,
		Files: &types.FileSet{New: result.New, Updated: result.Updated, Deleted: deleted, Exclude: fl.Exclude},
	}, nil
}

// CollectionSystemTransferTestHandler implements testCollectionSystemTransfer:
// the same source probe as the real transfer (the destination is not
// probed), and only TestStatus is mutated.
type CollectionSystemTransferTestHandler struct {
	Deps
}

func (h *CollectionSystemTransferTestHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cstID := job.Payload.String("collectionSystemTransferID")
	if cstID == "" {
		return nil, failResult("Retrieve job data", "payload missing collectionSystemTransferID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{Job: job}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *CollectionSystemTransferTestHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	cstID := tc.Job.Payload.String("collectionSystemTransferID")
	cst, err := h.ControlPlane.CollectionSystemTransfer(ctx, cstID)
	if err != nil {
		return failResult("Lookup collection system transfer", err.Error()), nil
	}

	var parts []types.JobPart
	if err := testSourceConnection(ctx, *cst); err != nil {
		_ = h.ControlPlane.SetCSTTestError(ctx, cstID)
		return types.JobResult{Parts: append(parts, fail("Test source connection", err.Error()))}, nil
	}
	_ = h.ControlPlane.SetCSTTestIdle(ctx, cstID)
	return types.JobResult{Parts: append(parts, pass("Test source connection"))}, nil
}

// testSourceConnection performs the kind-appropriate connectivity
// probe of spec §4.3/§4.7 step (i).
func testSourceConnection(ctx context.Context, cst types.CollectionSystemTransfer) error {
	switch cst.TransferType {
	case types.TransferTypeLocal:
		info, err := os.Stat(cst.SourceDir)
		if err != nil {
			return fmt.Errorf("stat source %s: %w", cst.SourceDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("source %s is not a directory", cst.SourceDir)
		}
		return nil
	case types.TransferTypeSMB:
		_, err := transfer.ProbeSMB(ctx, cst.Credentials)
		return err
	case types.TransferTypeSSH, types.TransferTypeRsync:
		_, err := transfer.ProbeDarwinPeer(ctx, cst.Credentials)
		return err
	default:
		return fmt.Errorf("unsupported transfer type %v", cst.TransferType)
	}
}

// deleteFromDest enumerates destDir and removes any file not present
// in keep (relative paths), implementing §4.7's deleteFromDest for
// syncFromSource=1.
func deleteFromDest(destDir string, keep []string) ([]string, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}

	var deleted []string
	err := filepath.Walk(destDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(destDir, path)
		if err != nil {
			return err
		}
		if keepSet[rel] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		deleted = append(deleted, rel)
		return nil
	})
	return deleted, err
}

// isMountPoint reports whether dir's device id differs from its
// parent's, the cheap heuristic for "this is a separately-mounted
// filesystem, so skip the recursive chown" per spec §4.7 step (vii).
func isMountPoint(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil {
		return false
	}
	parentInfo, err := os.Stat(filepath.Dir(dir))
	if err != nil {
		return false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	parentStat, parentOK := parentInfo.Sys().(*syscall.Stat_t)
	if !ok || !parentOK {
		return false
	}
	return stat.Dev != parentStat.Dev
}

// writeTransferLogs writes {name}_{timestamp}.log and {name}_Exclude.log
// under the cruise's Transfer_Logs directory per spec §4.7 step (viii).
func writeTransferLogs(warehouse *types.ShipboardDataWarehouseConfig, cruiseID, name string, result transfer.Result, exclude []string) error {
	logsDir := filepath.Join(warehouse.CruiseDir(cruiseID), warehouse.TransferLogsDir)
	if err := ensureDir(logsDir); err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	var body strings.Builder
	for _, p := range result.New {
		fmt.Fprintf(&body, "New: %s\n", p)
	}
	for _, p := range result.Updated {
		fmt.Fprintf(&body, "Updated: %s\n", p)
	}
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", name, stamp))
	if err := os.WriteFile(logPath, []byte(body.String()), 0o644); err != nil {
		return fmt.Errorf("write transfer log: %w", err)
	}

	excludePath := filepath.Join(logsDir, name+"_Exclude.log")
	if err := os.WriteFile(excludePath, []byte(strings.Join(exclude, "\n")), 0o644); err != nil {
		return fmt.Errorf("write exclude log: %w", err)
	}
	return nil
}
