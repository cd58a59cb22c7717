package filelist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/pathutil"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

const (
	workerCount = 16
	batchSize   = 500
)

// Entry is one file slated for transfer, relative to the source root.
type Entry struct {
	Path string
	Size int64
}

// Result is the file-list builder's output: paths relative to the
// source root, split into the set to transfer and the set explicitly
// excluded (written to the companion exclude log and reported in the
// job's file set).
type Result struct {
	Include []Entry
	Exclude []string
}

// Options configures one enumeration + filter pass.
type Options struct {
	SourceRoot  string
	Kind        types.TransferType
	Credentials types.TransferCredentials

	Include []string
	Exclude []string
	Ignore  []string

	DataStartTime time.Time
	DataEndTime   time.Time

	StalenessSeconds int
}

// rawEntry is what enumeration produces before filtering.
type rawEntry struct {
	path    string // relative to SourceRoot
	size    int64
	modTime time.Time
}

// Build enumerates opts.SourceRoot per opts.Kind, then applies the
// per-entry pipeline of spec §4.4 through a bounded worker pool.
func Build(ctx context.Context, opts Options) (Result, error) {
	raw, err := enumerate(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	result := processBatched(ctx, raw, opts)

	if opts.StalenessSeconds > 0 {
		if err := recheckStaleness(ctx, opts, &result); err != nil {
			return Result{}, fmt.Errorf("staleness re-check: %w", err)
		}
	}

	return result, nil
}

func enumerate(ctx context.Context, opts Options) ([]rawEntry, error) {
	switch opts.Kind {
	case types.TransferTypeLocal, types.TransferTypeSMB:
		return enumerateLocal(opts.SourceRoot)
	case types.TransferTypeRsync, types.TransferTypeSSH:
		return enumerateRemote(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported transfer kind %v", opts.Kind)
	}
}

// enumerateLocal recursively walks a local or SMB-mounted source root.
// Symlinks are skipped outright per spec §4.4 rule 1.
func enumerateLocal(root string) ([]rawEntry, error) {
	var out []rawEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, rawEntry{path: rel, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}

// rsyncListLineRE matches a line of `rsync -r --out-format` style listing:
// permissions, size, YYYY/MM/DD HH:MM:SS, path. The leading character is
// captured separately so callers can drop non-regular-file entries.
var rsyncListLineRE = regexp.MustCompile(`^([-dlpscbD])[rwxXstST-]{9}\s+(\d+)\s+(\d{4}/\d{2}/\d{2}\s\d{2}:\d{2}:\d{2})\s+(.+)$`)

// enumerateRemote shells out to `rsync -r` (or `rsync -r -e ssh`) in
// listing mode against the source and parses its stdout for size and
// mtime per spec §4.4's table.
func enumerateRemote(ctx context.Context, opts Options) ([]rawEntry, error) {
	args := []string{"-r", "--out-format=%B %l %M %n"}

	switch opts.Kind {
	case types.TransferTypeSSH:
		args = append(args, "-e", "ssh")
		if opts.Credentials.PrivateKeyPath == "" && opts.Credentials.Password != "" {
			args = append([]string{"-p", opts.Credentials.Password, "rsync"}, args...)
		}
	case types.TransferTypeRsync:
		if opts.Credentials.Password != "" {
			args = append(args, "--password-file=/dev/stdin")
		}
	}
	args = append(args, opts.SourceRoot+"/")

	name := "rsync"
	if opts.Kind == types.TransferTypeSSH && opts.Credentials.PrivateKeyPath == "" && opts.Credentials.Password != "" {
		name = "sshpass"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe rsync listing: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start rsync listing: %w", err)
	}

	var out []rawEntry
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := rsyncListLineRE.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if m[1] != "-" {
			// Directory or symlink entry; spec §4.4 rule 1 skips
			// symlinks entirely and directories are never transfer
			// candidates.
			continue
		}
		size, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		modTime, err := time.Parse("2006/01/02 15:04:05", m[3])
		if err != nil {
			continue
		}
		out = append(out, rawEntry{path: m[4], size: size, modTime: modTime})
	}
	_ = cmd.Wait()

	return out, nil
}

// processBatched filters raw entries in batches through a bounded
// worker pool (spec §4.4's "~16 workers, batches of ~500").
func processBatched(ctx context.Context, raw []rawEntry, opts Options) Result {
	var result Result
	var mu sync.Mutex

	startTime, endTime := effectiveWindow(opts)

	for start := 0; start < len(raw); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + batchSize
		if end > len(raw) {
			end = len(raw)
		}
		batch := raw[start:end]

		sem := make(chan struct{}, workerCount)
		var wg sync.WaitGroup
		for _, e := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(e rawEntry) {
				defer wg.Done()
				defer func() { <-sem }()

				verdict, include, exclude := classify(e, opts, startTime, endTime)
				if !verdict {
					return
				}
				mu.Lock()
				if include != nil {
					result.Include = append(result.Include, *include)
				}
				if exclude != "" {
					result.Exclude = append(result.Exclude, exclude)
				}
				mu.Unlock()
			}(e)
		}
		wg.Wait()
	}

	return result
}

// classify applies spec §4.4 steps 2-6 to a single enumerated entry.
// The bool return is false only for a silent drop (rsync-partial,
// mtime outside the window, or ignore-glob match); otherwise exactly
// one of include/exclude is set.
func classify(e rawEntry, opts Options, startTime, endTime time.Time) (keep bool, include *Entry, exclude string) {
	base := filepath.Base(e.path)
	if pathutil.IsRsyncPartial(base) {
		return false, nil, ""
	}

	if e.modTime.Before(startTime) || e.modTime.After(endTime) {
		return false, nil, ""
	}

	if !pathutil.IsASCII(e.path) {
		return true, nil, e.path
	}

	switch pathutil.ApplyFilters(e.path, opts.Include, opts.Exclude, opts.Ignore) {
	case pathutil.VerdictDrop:
		return false, nil, ""
	case pathutil.VerdictInclude:
		return true, &Entry{Path: e.path, Size: e.size}, ""
	default:
		return true, nil, e.path
	}
}

// effectiveWindow resolves the inclusive [start, end] mtime bounds, narrowing
// dataEndTime by the staleness window the way the caller's
// re-check pass also does.
func effectiveWindow(opts Options) (time.Time, time.Time) {
	start := opts.DataStartTime
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	end := opts.DataEndTime
	if end.IsZero() {
		end = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.StalenessSeconds > 0 {
		cutoff := time.Now().Add(-time.Duration(opts.StalenessSeconds) * time.Second)
		if cutoff.Before(end) {
			end = cutoff
		}
	}
	return start, end
}

// recheckStaleness implements spec §4.4's "sleep then re-stat" rule:
// after Build's initial pass, sleep staleness seconds, re-measure every
// included local/SMB entry, and drop any whose size changed (the file
// is still being written). Remote kinds re-enumerate instead of
// re-stat since there is no stat handle to hold open.
func recheckStaleness(ctx context.Context, opts Options, result *Result) error {
	select {
	case <-time.After(time.Duration(opts.StalenessSeconds) * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	sizes := make(map[string]int64, len(result.Include))
	for _, e := range result.Include {
		sizes[e.Path] = e.Size
	}

	switch opts.Kind {
	case types.TransferTypeLocal, types.TransferTypeSMB:
		stable := result.Include[:0]
		for _, e := range result.Include {
			info, err := os.Stat(filepath.Join(opts.SourceRoot, e.Path))
			if err != nil || info.Size() != e.Size {
				continue
			}
			stable = append(stable, e)
		}
		result.Include = stable
	default:
		raw, err := enumerateRemote(ctx, opts)
		if err != nil {
			return err
		}
		current := make(map[string]int64, len(raw))
		for _, e := range raw {
			current[e.path] = e.size
		}
		var stable []Entry
		for _, e := range result.Include {
			if sz, ok := current[e.Path]; ok && sz == e.Size {
				stable = append(stable, e)
			}
		}
		result.Include = stable
	}

	sort.Slice(result.Include, func(i, j int) bool { return result.Include[i].Path < result.Include[j].Path })
	return nil
}

// Paths returns just the relative path strings of r.Include, the shape
// the include-file materializer and transfer executor consume.
func (r Result) Paths() []string {
	paths := make([]string, len(r.Include))
	for i, e := range r.Include {
		paths[i] = e.Path
	}
	return paths
}
