// Package handlers implements the task handlers the worker runtime
// dispatches broker jobs to: the cruise/lowering lifecycle, the three
// transfer kinds, the MD5 summary and data-dashboard index
// maintenance, post-hooks, and job control.
package handlers

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/pathutil"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// Deps are the shared collaborators every handler is constructed
// with; today that is only the control-plane client.
type Deps struct {
	ControlPlane *controlplane.Client
}

// pass builds a Pass types.JobPart inline.
func pass(name string) types.JobPart {
	return types.JobPart{PartName: name, Result: types.ResultPass}
}

func fail(name, reason string) types.JobPart {
	return types.JobPart{PartName: name, Result: types.ResultFail, Reason: reason}
}

// failf is fail with a formatted reason.
func failf(name, format string, args ...any) types.JobPart {
	return fail(name, fmt.Sprintf(format, args...))
}

// failResult wraps a single fail part as a complete JobResult, used
// by handlers that bail out before producing any other parts.
func failResult(name, reason string) types.JobResult {
	return types.JobResult{Parts: []types.JobPart{fail(name, reason)}}
}

// attachTaskRecord resolves job's broker task name against the
// control plane's Task table, so the worker runtime's
// markRunning/reportOutcome can drive that record through
// running/idle/error instead of only the generic Gearman job table.
// A lookup failure returns no task and RecordNone, which is the appropriate
// behavior for synthetic and directory/test jobs that have no Task row.
func attachTaskRecord(ctx context.Context, cp *controlplane.Client, job broker.Job) (*types.Task, worker.RecordKind, string) {
	task, err := cp.TaskByName(ctx, job.Task)
	if err != nil || task == nil {
		return nil, worker.RecordNone, ""
	}
	return task, worker.RecordTask, task.ID
}

// setOwnership recursively chowns dir to warehouse's configured
// uid/gid and sets directories 0755, files 0644, matching spec §4.7's
// createCruiseDirectory/createLoweringDirectory permission contract.
func setOwnership(root string, ownerUser string) error {
	var uid, gid int = -1, -1
	if ownerUser != "" {
		u, err := user.Lookup(ownerUser)
		if err != nil {
			return fmt.Errorf("lookup warehouse owner %s: %w", ownerUser, err)
		}
		uid, _ = strconv.Atoi(u.Uid)
		gid, _ = strconv.Atoi(u.Gid)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if info.IsDir() {
			mode = 0o755
		}
		if err := os.Chmod(path, mode); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
		if uid >= 0 {
			if err := os.Chown(path, uid, gid); err != nil {
				return fmt.Errorf("chown %s: %w", path, err)
			}
		}
		return nil
	})
}

// ensureDir creates dir (and parents) if missing, treating "already
// exists" as success per spec §4.7.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// lockDownSiblingCruiseDirs sets mode 0700 on every cruise directory
// under baseDir other than currentCruiseID, and 0600 on the files
// inside them, when showOnlyCurrentCruiseDir is enabled.
func lockDownSiblingCruiseDirs(baseDir, currentCruiseID string) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return fmt.Errorf("list cruise base dir %s: %w", baseDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == currentCruiseID {
			continue
		}
		siblingDir := filepath.Join(baseDir, e.Name())
		if err := os.Chmod(siblingDir, 0o700); err != nil {
			return fmt.Errorf("lock down %s: %w", siblingDir, err)
		}
		err := filepath.Walk(siblingDir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			return os.Chmod(path, 0o600)
		})
		if err != nil {
			return fmt.Errorf("lock down files under %s: %w", siblingDir, err)
		}
	}
	return nil
}

// destDirsForCruise computes the union of directories
// createCruiseDirectory/rebuildCruiseDirectory must ensure exist, per
// spec §4.7: the cruise root, required extra dirs, the lowering base
// dir (if lowerings are shown), and every active CST/extra-dir destDir
// that resolves with no unresolved tokens.
func destDirsForCruise(ctx context.Context, cp *controlplane.Client, warehouse *types.ShipboardDataWarehouseConfig, cruiseID string) ([]string, error) {
	dirs := []string{warehouse.CruiseDir(cruiseID)}

	if warehouse.ShowLoweringComponents {
		dirs = append(dirs, filepath.Join(warehouse.CruiseDir(cruiseID), warehouse.LoweringDataBaseDir))
	}

	tplCtx := pathutil.Context{CruiseID: cruiseID, Now: time.Now()}

	required, err := cp.ExtraDirectories(ctx, false, true)
	if err != nil {
		return nil, fmt.Errorf("list required extra directories: %w", err)
	}
	for _, d := range required {
		if resolved, ok := pathutil.KeywordReplace(d.DestDir, tplCtx); ok {
			dirs = append(dirs, resolved)
		}
	}

	csts, err := cp.CollectionSystemTransfers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active collection system transfers: %w", err)
	}
	for _, c := range csts {
		if c.Scope != types.ScopeCruise {
			continue
		}
		if resolved, ok := pathutil.KeywordReplace(c.DestDir, tplCtx); ok {
			dirs = append(dirs, resolved)
		}
	}

	extras, err := cp.ExtraDirectories(ctx, true, false)
	if err != nil {
		return nil, fmt.Errorf("list active extra directories: %w", err)
	}
	for _, d := range extras {
		if d.Scope != types.ScopeCruise {
			continue
		}
		if resolved, ok := pathutil.KeywordReplace(d.DestDir, tplCtx); ok {
			dirs = append(dirs, resolved)
		}
	}

	return dirs, nil
}

// destDirsForLowering mirrors destDirsForCruise, rooted under the
// lowering directory.
func destDirsForLowering(ctx context.Context, cp *controlplane.Client, warehouse *types.ShipboardDataWarehouseConfig, cruiseID, loweringID string) ([]string, error) {
	dirs := []string{warehouse.LoweringDir(cruiseID, loweringID)}

	tplCtx := pathutil.Context{CruiseID: cruiseID, LoweringID: loweringID, Now: time.Now()}

	csts, err := cp.CollectionSystemTransfers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active collection system transfers: %w", err)
	}
	for _, c := range csts {
		if c.Scope != types.ScopeLowering {
			continue
		}
		if resolved, ok := pathutil.KeywordReplace(c.DestDir, tplCtx); ok {
			dirs = append(dirs, resolved)
		}
	}

	extras, err := cp.ExtraDirectories(ctx, true, false)
	if err != nil {
		return nil, fmt.Errorf("list active extra directories: %w", err)
	}
	for _, d := range extras {
		if d.Scope != types.ScopeLowering {
			continue
		}
		if resolved, ok := pathutil.KeywordReplace(d.DestDir, tplCtx); ok {
			dirs = append(dirs, resolved)
		}
	}

	return dirs, nil
}
