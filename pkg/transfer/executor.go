package transfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// Result is what Run returns: the relative paths rsync reported as
// newly created or updated, in the order they were observed.
type Result struct {
	New     []string
	Updated []string
}

// ProgressFunc is called at most once per integer percentage point,
// with percent already mapped into the caller's outer progress range.
type ProgressFunc func(percent int)

// CancelFlag is a cooperative cancellation signal a worker sets on
// receipt of a QUIT-class signal; the executor checks it between
// output lines and, if set, kills the child and stops reading.
type CancelFlag struct {
	flag atomic.Bool
}

// Set marks the flag as raised.
func (c *CancelFlag) Set() { c.flag.Store(true) }

// IsSet reports whether the flag has been raised.
func (c *CancelFlag) IsSet() bool { return c.flag.Load() }

var toChkRE = regexp.MustCompile(`to-chk=(\d+)/(\d+)`)

// newFilePrefixes/updatedFilePrefixes match the itemize-changes prefixes rsync
// emits with -i: ">f+++++++++" (or "<f+++++++++" when pulling to
// local) for brand-new files, ">f." / "<f." for updates to existing
// ones.
var (
	newFilePrefixes     = []string{">f+++++++++", "<f+++++++++"}
	updatedFilePrefixes = []string{">f.", "<f."}
)

// ProgressRange maps a 0..100 rsync percentage into an outer handler
// range, e.g. {Start: 20, End: 70} for a transfer that is the middle
// step of a larger job.
type ProgressRange struct {
	Start, End int
}

func (r ProgressRange) mapPercent(p int) int {
	return r.Start + (p*(r.End-r.Start))/100
}

// Run spawns name(args...), merges its stdout and stderr, and
// classifies each line. If estimatedFiles is zero it returns an empty
// Result without spawning anything (spec §4.5: a zero-file dry run
// means there's nothing to do).
//
// onProgress, if non-nil, is called at most once per integer percent
// as rsync's "to-chk=remaining/total" lines advance, with the percent
// already mapped through progressRange.
func Run(ctx context.Context, cancel *CancelFlag, estimatedFiles int, name string, args []string, progressRange ProgressRange, onProgress ProgressFunc) (Result, error) {
	if estimatedFiles == 0 {
		return Result{}, nil
	}

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("attach stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // merge, per spec §4.5

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", name, err)
	}

	result, scanErr := scanOutput(stdout, cancel, progressRange, onProgress)

	if cancel != nil && cancel.IsSet() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return result, fmt.Errorf("transfer cancelled")
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok && exitErr.ExitCode() == 24 {
			// rsync 24: source files vanished during transfer — treated
			// as success per spec §7.5.
			return result, scanErr
		}
		return result, fmt.Errorf("%s exited with error: %w", name, waitErr)
	}

	return result, scanErr
}

func scanOutput(r io.Reader, cancel *CancelFlag, progressRange ProgressRange, onProgress ProgressFunc) (Result, error) {
	var result Result
	lastPercent := -1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if cancel != nil && cancel.IsSet() {
			return result, nil
		}

		line := scanner.Text()

		if path, ok := matchPrefix(line, newFilePrefixes); ok {
			result.New = append(result.New, path)
			continue
		}
		if path, ok := matchPrefix(line, updatedFilePrefixes); ok {
			result.Updated = append(result.Updated, path)
			continue
		}

		if m := toChkRE.FindStringSubmatch(line); m != nil {
			remaining, _ := strconv.Atoi(m[1])
			total, _ := strconv.Atoi(m[2])
			if total > 0 {
				percent := 100 * (total - remaining) / total
				if percent != lastPercent {
					lastPercent = percent
					if onProgress != nil {
						onProgress(progressRange.mapPercent(percent))
					}
				}
			}
		}
	}

	return result, scanner.Err()
}

func matchPrefix(line string, prefixes []string) (string, bool) {
	for _, prefix := range prefixes {
		if strings.HasPrefix(line, prefix) {
			if idx := strings.IndexByte(line, ' '); idx >= 0 {
				return line[idx+1:], true
			}
			return "", true
		}
	}
	return "", false
}
