package handlers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/pathutil"
	"github.com/oceandatatools/openvdm-go/pkg/transfer"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// ShipToShoreTransferHandler implements runShipToShoreTransfer (spec
// §4.7): assemble a priority-ordered include set from the configured
// S2S rules, expanding {loweringID} against every lowering, then run
// an ssh-based rsync with the shore bandwidth cap applied only when
// the warehouse's bandwidth-limit flag is on.
type ShipToShoreTransferHandler struct {
	Deps
	Lowerings func(ctx context.Context, cruiseID string) ([]types.Lowering, error)
}

func (h *ShipToShoreTransferHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	cruiseID := job.Payload.String("cruiseID")
	cdtID := job.Payload.String("cruiseDataTransferID")
	if cruiseID == "" || cdtID == "" {
		return nil, failResult("Retrieve job data", "payload missing cruiseID or cruiseDataTransferID"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{Job: job, CruiseID: cruiseID}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *ShipToShoreTransferHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	var parts []types.JobPart

	cdtID := tc.Job.Payload.String("cruiseDataTransferID")
	cdts, err := h.ControlPlane.CruiseDataTransfers(ctx, false, false)
	if err != nil {
		return failResult("Lookup cruise data transfer", err.Error()), nil
	}
	cdt, ok := findCDT(cdts, cdtID)
	if !ok || !cdt.IsShipToShore {
		return failResult("Lookup cruise data transfer", "cruise data transfer is not a ship-to-shore transfer"), nil
	}

	warehouse, err := h.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return failResult("Lookup warehouse configuration", err.Error()), nil
	}

	rules, err := h.ControlPlane.ShipToShoreTransfers(ctx, false)
	if err != nil {
		return failResult("List ship-to-shore rules", err.Error()), nil
	}

	var lowerings []types.Lowering
	if h.Lowerings != nil {
		lowerings, err = h.Lowerings(ctx, tc.CruiseID)
		if err != nil {
			return failResult("List lowerings", err.Error()), nil
		}
	}

	includeFilter := assembleShipToShoreFilter(rules, lowerings)
	parts = append(parts, pass("Assemble ship-to-shore include filter"))

	includeFile, err := transfer.WriteIncludeFile("", includeFilter)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Materialize include file", err.Error()))}, nil
	}
	parts = append(parts, pass("Materialize include file"))

	opts := transfer.RsyncOptionsFromCDT(*cdt)
	opts.IncludeFromFile = includeFile
	opts.IsSSHPeer = true
	if !warehouse.ShipToShoreBWLimitStatus {
		opts.BandwidthLimitKB = 0
	}

	cruiseRoot := warehouse.CruiseDir(tc.CruiseID)
	result, err := transfer.Run(ctx, nil, len(includeFilter), "rsync",
		transfer.RsyncArgs(opts, cruiseRoot+"/", cdt.DestDir+"/"),
		transfer.ProgressRange{Start: 10, End: 95}, nil)
	if err != nil {
		return types.JobResult{Parts: append(parts, fail("Transfer to shore", err.Error()))}, nil
	}
	parts = append(parts, pass("Transfer to shore"))

	return types.JobResult{Parts: parts, Files: &types.FileSet{New: result.New, Updated: result.Updated}}, nil
}

// assembleShipToShoreFilter expands each S2S rule's include globs,
// substituting {loweringID} against every known lowering when present,
// and returns the union ordered by rule priority (1 highest .. 5
// lowest) per spec §4.7.
func assembleShipToShoreFilter(rules []types.ShipToShoreTransfer, lowerings []types.Lowering) []string {
	sorted := append([]types.ShipToShoreTransfer(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, rule := range sorted {
		for _, glob := range rule.IncludeFilter {
			if containsLoweringToken(glob) && len(lowerings) > 0 {
				for _, lw := range lowerings {
					resolved, ok := pathutil.KeywordReplace(glob, pathutil.Context{LoweringID: lw.ID, Now: time.Now()})
					if ok {
						add(resolved)
					}
				}
				continue
			}
			add(glob)
		}
	}
	return out
}

func containsLoweringToken(s string) bool {
	return strings.Contains(s, "{loweringID}")
}
