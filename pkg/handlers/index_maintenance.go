package handlers

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/index"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// MD5SummaryHandler implements both updateMD5Summary and
// rebuildMD5Summary; Rebuild selects between them.
type MD5SummaryHandler struct {
	Deps
	Rebuild bool
}

func (h *MD5SummaryHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	if cruiseID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID"), worker.VerdictFailed, nil
	}
	task, kind, recordID := attachTaskRecord(ctx, h.ControlPlane, job)
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, Task: task, RecordKind: kind, RecordID: recordID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *MD5SummaryHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	limitBytes, enabled, err := h.ControlPlane.MD5FilesizeLimit(ctx)
	if err != nil {
		return failResult("Lookup MD5 filesize limit", err.Error()), nil
	}
	if !enabled {
		limitBytes = 0
	}

	cruiseRoot := warehouse.CruiseDir(tc.CruiseID)
	summaryPath := filepath.Join(cruiseRoot, warehouse.MD5SummaryFn)
	summaryMD5Path := filepath.Join(cruiseRoot, warehouse.MD5SummaryMD5Fn)

	if h.Rebuild {
		if err := index.RebuildMD5Summary(tc.CruiseID, warehouse.MD5SummaryFn, warehouse.MD5SummaryMD5Fn, cruiseRoot, limitBytes); err != nil {
			return failResult("Rebuild MD5 summary", err.Error()), nil
		}
		return types.JobResult{Parts: []types.JobPart{pass("Rebuild MD5 summary")}}, nil
	}

	files := tc.Job.Payload.StringSlice("new")
	files = append(files, tc.Job.Payload.StringSlice("updated")...)
	deleted := tc.Job.Payload.StringSlice("deleted")

	if err := index.UpdateMD5Summary(tc.CruiseID, summaryPath, summaryMD5Path, cruiseRoot, files, deleted, limitBytes); err != nil {
		return failResult("Update MD5 summary", err.Error()), nil
	}
	return types.JobResult{Parts: []types.JobPart{pass("Update MD5 summary")}}, nil
}

// DataDashboardHandler implements both updateDataDashboard and
// rebuildDataDashboard; Rebuild selects between them.
type DataDashboardHandler struct {
	Deps
	Rebuild      bool
	PluginDir    string
	PluginSuffix string
}

func (h *DataDashboardHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	if cruiseID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID"), worker.VerdictFailed, nil
	}
	task, kind, recordID := attachTaskRecord(ctx, h.ControlPlane, job)
	return &worker.TaskContext{Job: job, CruiseID: cruiseID, Task: task, RecordKind: kind, RecordID: recordID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *DataDashboardHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	cruiseRoot := warehouse.CruiseDir(tc.CruiseID)
	manifestPath := filepath.Join(cruiseRoot, warehouse.DataDashboardDir, warehouse.DataDashboardManifestFn)
	dashboardDir := filepath.Join(cruiseRoot, warehouse.DataDashboardDir)

	var parts []types.JobPart

	if h.Rebuild {
		csts, err := h.ControlPlane.CollectionSystemTransfers(ctx, true)
		if err != nil {
			return failResult("List active collection system transfers", err.Error()), nil
		}
		for _, cst := range csts {
			files, err := listCruiseFiles(cruiseRoot, warehouse.MD5SummaryFn)
			if err != nil {
				parts = append(parts, failf("Enumerate files for "+cst.Name, "%v", err))
				continue
			}
			for _, f := range files {
				if err := h.applyPlugin(cst.Name, manifestPath, dashboardDir, cruiseRoot, f); err != nil {
					parts = append(parts, failf("Process "+f, "%v", err))
				}
			}
		}
		parts = append(parts, pass("Rebuild data dashboard"))
		return types.JobResult{Parts: parts}, nil
	}

	cstID := tc.Job.Payload.String("collectionSystemTransferID")
	cst, err := h.ControlPlane.CollectionSystemTransfer(ctx, cstID)
	if err != nil {
		return failResult("Lookup collection system transfer", err.Error()), nil
	}

	files := tc.Job.Payload.StringSlice("new")
	files = append(files, tc.Job.Payload.StringSlice("updated")...)
	for _, f := range files {
		if err := h.applyPlugin(cst.Name, manifestPath, dashboardDir, cruiseRoot, f); err != nil {
			parts = append(parts, failf("Process "+f, "%v", err))
		}
	}
	parts = append(parts, pass("Update data dashboard"))
	return types.JobResult{Parts: parts}, nil
}

// applyPlugin invokes the parser plugin for collectionSystemName twice
// per spec §4.7: once to learn the semantic type, once for the JSON
// body, then folds the result into the dashboard via pkg/index.
func (h *DataDashboardHandler) applyPlugin(collectionSystemName, manifestPath, dashboardDir, cruiseRoot, relPath string) error {
	plugin := filepath.Join(h.PluginDir, strings.ToLower(collectionSystemName)+h.PluginSuffix)
	fullPath := filepath.Join(cruiseRoot, relPath)

	dataType, err := exec.Command(plugin, "--dataType", fullPath).Output()
	if err != nil {
		return fmt.Errorf("plugin %s --dataType: %w", plugin, err)
	}
	jsonOut, err := exec.Command(plugin, fullPath).Output()
	if err != nil {
		return fmt.Errorf("plugin %s: %w", plugin, err)
	}

	return index.UpdateDashboard(collectionSystemName, manifestPath, dashboardDir, relPath, strings.TrimSpace(string(dataType)), jsonOut)
}

func listCruiseFiles(cruiseRoot, md5SummaryFn string) ([]string, error) {
	entries, err := index.ReadMD5Summary(filepath.Join(cruiseRoot, md5SummaryFn))
	if err != nil {
		return nil, nil // not fatal: a fresh cruise has no summary yet
	}
	files := make([]string, 0, len(entries))
	for path := range entries {
		files = append(files, path)
	}
	return files, nil
}
