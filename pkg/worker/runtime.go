// Package worker implements the job dispatch loop every orvdm worker
// process runs: subscribe to a fixed set of broker task names, look up
// the task record, run the registered TaskHandler, and report the
// final verdict back to the control plane.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/metrics"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// Verdict is returned from a TaskHandler's Begin step, letting it
// short-circuit before Run if preconditions already failed.
type Verdict int

const (
	// VerdictContinue means Begin succeeded; the runtime should call Run.
	VerdictContinue Verdict = iota
	// VerdictFailed means Begin already produced a terminal JobResult;
	// the runtime should report it without calling Run.
	VerdictFailed
)

// RecordKind identifies which status-bearing control-plane table (if
// any) a TaskContext's job updates, so markRunning/reportOutcome can
// dispatch to the matching Set*Running/Set*Idle/Set*Error calls
// (spec §4.7's CST/CDT/Task state machine).
type RecordKind int

const (
	// RecordNone means the job updates no status-bearing record (a
	// synthetic task, a test-status probe, or a directory/hook job).
	RecordNone RecordKind = iota
	RecordCST
	RecordCDT
	RecordTask
)

// TaskContext carries the state a handler's Run step needs, built by
// Begin from the raw job payload and the resolved task/transfer record.
type TaskContext struct {
	Job        broker.Job
	Task       *types.Task
	CruiseID   string
	LoweringID string

	// RecordKind/RecordID identify the CST/CDT/Task row Begin resolved
	// for this job, if any.
	RecordKind RecordKind
	RecordID   string
}

// TaskHandler is the extension point every job-processing task
// implements: setupNewCruise, runCollectionSystemTransfer, and so on.
// Begin validates the payload and resolves whatever record the job
// concerns (returning a terminal result directly if that fails); Run
// performs the actual work and returns the final parts/files report.
type TaskHandler interface {
	Begin(ctx context.Context, job broker.Job) (*TaskContext, types.JobResult, Verdict, error)
	Run(ctx context.Context, tc *TaskContext) (types.JobResult, error)
}

// syntheticTasks are task names the control plane never stores a Task
// row for; they're compiled into the binary instead (spec §4.6 step 2).
var syntheticTasks = map[string]types.Task{}

// RegisterSyntheticTask adds a built-in task-name → metadata mapping,
// consulted before the control plane is asked for a real Task record.
func RegisterSyntheticTask(name string, task types.Task) {
	task.ID = types.SyntheticTaskID
	syntheticTasks[name] = task
}

// Runtime composes the registered TaskHandlers for one worker process:
// it owns the broker subscription, the control-plane client, and the
// cooperative Stop/Quit signal state.
type Runtime struct {
	Broker       broker.Broker
	ControlPlane *controlplane.Client
	Logger       zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]TaskHandler
	active   map[string]*activeJob // jobHandle -> in-flight job, for the coordinator

	stopCh chan struct{} // closed by Stop: abort in-flight job, keep serving
	quitCh chan struct{} // closed by Quit: unsubscribe and exit
}

// NewRuntime returns a Runtime ready to have handlers registered on it.
func NewRuntime(b broker.Broker, cp *controlplane.Client, logger zerolog.Logger) *Runtime {
	return &Runtime{
		Broker:       b,
		ControlPlane: cp,
		Logger:       logger,
		handlers:     make(map[string]TaskHandler),
		stopCh:       make(chan struct{}),
		quitCh:       make(chan struct{}),
	}
}

// RegisterHandler wires a TaskHandler to a broker task name.
func (r *Runtime) RegisterHandler(taskName string, handler TaskHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskName] = handler
	return r.Broker.RegisterTaskHandler(taskName, r.dispatch(taskName, handler))
}

// Stop aborts the currently running job (if any) by letting it return
// on its own cancellation check, but keeps the process subscribed.
func (r *Runtime) Stop() {
	r.mu.RLock()
	for _, j := range r.active {
		j.cancel()
	}
	r.mu.RUnlock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

// Quit does everything Stop does and additionally unsubscribes.
func (r *Runtime) Quit() {
	r.Stop()
	select {
	case <-r.quitCh:
	default:
		close(r.quitCh)
	}
}

// Run blocks serving jobs until ctx is cancelled or Quit is called.
func (r *Runtime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-r.quitCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	return r.Broker.Run(runCtx)
}

func (r *Runtime) dispatch(taskName string, handler TaskHandler) broker.Handler {
	return func(ctx context.Context, job broker.Job, progress broker.Reporter) (result types.JobResult, err error) {
		start := time.Now()
		logger := r.Logger.With().Str("task", taskName).Str("jobHandle", job.Handle).Logger()

		jobCtx, cancel := context.WithCancel(ctx)
		r.trackActive(job.Handle, taskName, start, cancel)
		defer r.untrackActive(job.Handle)

		var task *TaskContext
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Msg("worker crashed")
				result = crashResult(rec)
				err = nil
				r.reportOutcome(ctx, logger, taskName, job, task, result)
			}
			metrics.JobsCompletedTotal.WithLabelValues(taskName, string(result.FinalVerdict())).Inc()
			metrics.JobDuration.WithLabelValues(taskName).Observe(time.Since(start).Seconds())
		}()

		var jobResult types.JobResult
		var verdict Verdict
		var beginErr error
		task, jobResult, verdict, beginErr = handler.Begin(jobCtx, job)
		if beginErr != nil {
			return failResult("Retrieve job data", beginErr), nil
		}
		if verdict == VerdictFailed {
			r.reportOutcome(ctx, logger, taskName, job, task, jobResult)
			return jobResult, nil
		}
		if task != nil && task.Task == nil {
			if synthetic, ok := syntheticTasks[taskName]; ok {
				task.Task = &synthetic
			}
		}

		if err := r.markRunning(ctx, taskName, task, job); err != nil {
			logger.Warn().Err(err).Msg("failed to record job as running")
		}

		result, runErr := handler.Run(jobCtx, task)
		if runErr != nil {
			result = failResult(taskName, runErr)
		}

		r.reportOutcome(ctx, logger, taskName, job, task, result)
		return result, nil
	}
}

// ActiveJob describes one job currently in flight, for the
// coordinator's ListActiveJobs RPC.
type ActiveJob struct {
	Handle    string
	TaskName  string
	StartedAt time.Time
}

type activeJob struct {
	ActiveJob
	cancel context.CancelFunc
}

func (r *Runtime) trackActive(handle, taskName string, startedAt time.Time, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = make(map[string]*activeJob)
	}
	r.active[handle] = &activeJob{
		ActiveJob: ActiveJob{Handle: handle, TaskName: taskName, StartedAt: startedAt},
		cancel:    cancel,
	}
}

func (r *Runtime) untrackActive(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, handle)
}

// ActiveJobs returns a snapshot of every job this runtime is currently
// dispatching, for the loopback coordinator admin service
// (SPEC_FULL.md §12.5).
func (r *Runtime) ActiveJobs() []ActiveJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]ActiveJob, 0, len(r.active))
	for _, j := range r.active {
		jobs = append(jobs, j.ActiveJob)
	}
	return jobs
}

// CancelJob cancels the per-job context for handle, letting the
// running handler observe ctx.Done() at its next cancellation check
// and return a Fail or Ignore verdict. It reports whether a job with
// that handle was found.
func (r *Runtime) CancelJob(handle string) bool {
	r.mu.RLock()
	j, ok := r.active[handle]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	j.cancel()
	return true
}

// markRunning records the job as started against whichever record
// Begin resolved onto tc: a CST, a CDT, a real Task row, or (absent
// any of those) the generic Gearman job table synthetic tasks and
// test/directory jobs use.
func (r *Runtime) markRunning(ctx context.Context, taskName string, tc *TaskContext, job broker.Job) error {
	if r.ControlPlane == nil {
		return nil
	}
	pid := fmt.Sprintf("%d", os.Getpid())
	if tc != nil {
		switch tc.RecordKind {
		case RecordCST:
			return r.ControlPlane.SetCSTRunning(ctx, tc.RecordID, pid, job.Handle)
		case RecordCDT:
			return r.ControlPlane.SetCDTRunning(ctx, tc.RecordID, pid, job.Handle)
		case RecordTask:
			return r.ControlPlane.SetTaskRunning(ctx, tc.RecordID, pid, job.Handle)
		}
	}
	return r.ControlPlane.TrackGearmanJob(ctx, job.Handle, taskName, pid)
}

func (r *Runtime) reportOutcome(ctx context.Context, logger zerolog.Logger, taskName string, job broker.Job, tc *TaskContext, result types.JobResult) {
	switch result.FinalVerdict() {
	case types.ResultFail:
		logger.Error().Str("reason", result.FinalReason()).Msg("job failed")
		if r.ControlPlane != nil {
			if err := r.ControlPlane.SendMessage(ctx, taskName+" failed", result.FinalReason()); err != nil {
				logger.Warn().Err(err).Msg("failed to post failure message")
			}
			if err := r.setRecordStatus(ctx, tc, false); err != nil {
				logger.Warn().Err(err).Msg("failed to record job as errored")
			}
		}
	case types.ResultPass:
		logger.Info().Msg("job completed")
		if r.ControlPlane != nil {
			if err := r.setRecordStatus(ctx, tc, true); err != nil {
				logger.Warn().Err(err).Msg("failed to record job as idle")
			}
		}
		r.runHookChain(ctx, logger, taskName, tc, result)
	case types.ResultIgnore:
		logger.Debug().Msg("job was a no-op")
	}
}

// setRecordStatus transitions the CST/CDT/Task record tc.RecordKind
// names to idle (Pass) or error (Fail), completing the state machine
// spec §4.7 describes. A TaskContext with no resolved record (test
// probes, directory jobs, synthetic tasks) is a no-op.
func (r *Runtime) setRecordStatus(ctx context.Context, tc *TaskContext, idle bool) error {
	if tc == nil {
		return nil
	}
	switch tc.RecordKind {
	case RecordCST:
		if idle {
			return r.ControlPlane.SetCSTIdle(ctx, tc.RecordID)
		}
		return r.ControlPlane.SetCSTError(ctx, tc.RecordID)
	case RecordCDT:
		if idle {
			return r.ControlPlane.SetCDTIdle(ctx, tc.RecordID)
		}
		return r.ControlPlane.SetCDTError(ctx, tc.RecordID)
	case RecordTask:
		if idle {
			return r.ControlPlane.SetTaskIdle(ctx, tc.RecordID)
		}
		return r.ControlPlane.SetTaskError(ctx, tc.RecordID)
	}
	return nil
}

// hookChain names a hook-bearing task's background follow-on jobs:
// hookName is submitted as a postHook job (looked up against the
// control plane's registered command list), extra is submitted
// directly by task name. Both run only after a Pass verdict (spec
// §4.6 step 7).
type hookChain struct {
	hookName string
	extra    []string
}

var hookChains = map[string]hookChain{
	"setupNewCruise":          {hookName: "postSetupNewCruise"},
	"finalizeCurrentCruise":   {hookName: "postFinalizeCurrentCruise"},
	"setupNewLowering":        {hookName: "postSetupNewLowering"},
	"finalizeCurrentLowering": {hookName: "postFinalizeCurrentLowering"},
	"runCollectionSystemTransfer": {
		hookName: "postCollectionSystemTransfer",
		extra:    []string{"updateDataDashboard", "updateMD5Summary"},
	},
	"updateDataDashboard":  {hookName: "postDataDashboard"},
	"rebuildDataDashboard": {hookName: "postDataDashboard"},
}

// runHookChain submits taskName's configured follow-on jobs in
// background mode, carrying the current cruise/lowering ids and the
// file sets the predecessor produced (spec §4.6 step 7). Submission
// failures are logged, not propagated: the originating job already
// completed with its own verdict.
func (r *Runtime) runHookChain(ctx context.Context, logger zerolog.Logger, taskName string, tc *TaskContext, result types.JobResult) {
	chain, ok := hookChains[taskName]
	if !ok || r.Broker == nil {
		return
	}

	base := types.JobPayload{}
	if tc != nil {
		for k, v := range tc.Job.Payload {
			base[k] = v
		}
		base["cruiseID"] = tc.CruiseID
		if tc.LoweringID != "" {
			base["loweringID"] = tc.LoweringID
		}
	}
	if result.Files != nil {
		base["new"] = result.Files.New
		base["updated"] = result.Files.Updated
		base["deleted"] = result.Files.Deleted
	}

	if chain.hookName != "" {
		payload := make(types.JobPayload, len(base)+1)
		for k, v := range base {
			payload[k] = v
		}
		payload["hookName"] = chain.hookName
		if _, err := r.Broker.Submit(ctx, "postHook", payload); err != nil {
			logger.Warn().Err(err).Str("hook", chain.hookName).Msg("failed to submit post-hook job")
		}
	}
	for _, follow := range chain.extra {
		payload := make(types.JobPayload, len(base))
		for k, v := range base {
			payload[k] = v
		}
		if _, err := r.Broker.Submit(ctx, follow, payload); err != nil {
			logger.Warn().Err(err).Str("task", follow).Msg("failed to submit follow-on job")
		}
	}
}

func failResult(partName string, err error) types.JobResult {
	return types.JobResult{Parts: []types.JobPart{{PartName: partName, Result: types.ResultFail, Reason: err.Error()}}}
}

func crashResult(rec any) types.JobResult {
	return types.JobResult{Parts: []types.JobPart{{PartName: "Worker crashed", Result: types.ResultFail, Reason: fmt.Sprintf("%v", rec)}}}
}

// PayloadFromJSON decodes a raw JSON job payload into a typed map,
// returning a PayloadParse-class error (spec §7.1) on failure.
func PayloadFromJSON(data []byte) (types.JobPayload, error) {
	var payload types.JobPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse job payload: %w", err)
	}
	return payload, nil
}
