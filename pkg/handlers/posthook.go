package handlers

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

// PostHookHandler implements postHook (spec §4.7): look up the
// registered command list for a named lifecycle hook, substitute
// tokens, and run each command, collecting any failures into one Fail
// reason.
type PostHookHandler struct {
	Deps
}

func (h *PostHookHandler) Begin(ctx context.Context, job broker.Job) (*worker.TaskContext, types.JobResult, worker.Verdict, error) {
	hookName := job.Payload.String("hookName")
	if hookName == "" {
		return nil, failResult("Retrieve job data", "payload missing hookName"), worker.VerdictFailed, nil
	}
	return &worker.TaskContext{Job: job, CruiseID: job.Payload.String("cruiseID"), LoweringID: job.Payload.String("loweringID")}, types.JobResult{}, worker.VerdictContinue, nil
}

func (h *PostHookHandler) Run(ctx context.Context, tc *worker.TaskContext) (types.JobResult, error) {
	hookName := tc.Job.Payload.String("hookName")
	ran, err := runHookCommands(ctx, h.ControlPlane, hookName, hookTokens(tc))
	if err != nil {
		return failResult("Run hook commands", err.Error()), nil
	}
	if !ran {
		return types.JobResult{Parts: []types.JobPart{{PartName: "Run hook commands", Result: types.ResultIgnore}}}, nil
	}
	return types.JobResult{Parts: []types.JobPart{pass("Run hook commands")}}, nil
}

// runHookCommands looks up hookName's registered command list,
// substitutes tokens into each, and runs them in order, returning a
// combined error if any fail. The bool return reports whether the
// hook had any commands registered at all, letting callers distinguish
// "no-op, nothing registered" from "ran cleanly" (spec §4.7 postHook,
// reused for finalizeCurrentCruise/finalizeCurrentLowering's
// synchronous pre-finalize hooks per spec §4.6 step 7).
func runHookCommands(ctx context.Context, cp *controlplane.Client, hookName string, tokens map[string]string) (bool, error) {
	commands, err := cp.PostHookCommands(ctx, hookName)
	if err != nil {
		return false, err
	}
	if len(commands) == 0 {
		return false, nil
	}

	var failures []string
	for _, raw := range commands {
		cmdLine := substituteTokens(raw, tokens)
		fields := strings.Fields(cmdLine)
		if len(fields) == 0 {
			continue
		}
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v: %s", cmdLine, err, strings.TrimSpace(string(out))))
		}
	}
	if len(failures) > 0 {
		return true, fmt.Errorf("%s", strings.Join(failures, "; "))
	}
	return true, nil
}

func hookTokens(tc *worker.TaskContext) map[string]string {
	tokens := map[string]string{
		"{cruiseID}":   tc.CruiseID,
		"{loweringID}": tc.LoweringID,
	}
	for _, key := range []string{"collectionSystemTransferID", "collectionSystemTransferName"} {
		tokens["{"+key+"}"] = tc.Job.Payload.String(key)
	}
	tokens["{newFiles}"] = strings.Join(tc.Job.Payload.StringSlice("new"), ",")
	tokens["{updatedFiles}"] = strings.Join(tc.Job.Payload.StringSlice("updated"), ",")
	return tokens
}

func substituteTokens(s string, tokens map[string]string) string {
	for token, value := range tokens {
		s = strings.ReplaceAll(s, token, value)
	}
	return s
}
