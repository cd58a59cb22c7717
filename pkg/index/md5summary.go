// Package index maintains the two per-cruise index files every
// successful collection-system transfer updates: the MD5 summary (a
// sorted "<hash> <path>" stream plus its own MD5-of-file companion)
// and the data-dashboard manifest. Both are content fingerprints, not
// security primitives — MD5 is used here purely because it is what
// the existing dashboard tooling and manifest format already expect.
package index

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const skippedHash = "********************************" // 32 asterisks

// cruiseLocks serializes MD5-summary and dashboard-manifest mutations
// per cruise id, since two CSTs for the same cruise may finish at
// nearly the same moment (spec §5).
var cruiseLocks sync.Map // map[string]*sync.Mutex

func lockFor(cruiseID string) *sync.Mutex {
	v, _ := cruiseLocks.LoadOrStore(cruiseID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Entry is one line of the MD5 summary: a content hash and the path
// it was computed for, relative to the cruise root.
type Entry struct {
	Hash string
	Path string
}

// ReadMD5Summary parses the existing summary file into a path-indexed
// map. A missing file is treated as an empty summary, not an error.
func ReadMD5Summary(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open md5 summary %s: %w", path, err)
	}
	defer f.Close()

	entries := map[string]string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		entries[fields[1]] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read md5 summary %s: %w", path, err)
	}
	return entries, nil
}

// HashFile computes the MD5 hash of a file, or returns skippedHash
// unhashed if the file is larger than limitBytes (0 = no limit).
func HashFile(path string, limitBytes int64) (string, error) {
	if limitBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() > limitBytes {
			return skippedHash, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UpdateMD5Summary applies an incremental update: hashes every path in
// newAndUpdated (relative to cruiseRoot), removes every path in
// deleted, and rewrites the summary and its MD5-of-file companion,
// sorted by path. cruiseID scopes the per-cruise lock.
func UpdateMD5Summary(cruiseID, summaryPath, summaryMD5Path, cruiseRoot string, newAndUpdated, deleted []string, filesizeLimit int64) error {
	lock := lockFor(cruiseID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := ReadMD5Summary(summaryPath)
	if err != nil {
		return err
	}

	for _, rel := range newAndUpdated {
		hash, err := HashFile(filepath.Join(cruiseRoot, rel), filesizeLimit)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		entries[rel] = hash
	}
	for _, rel := range deleted {
		delete(entries, rel)
	}

	return writeMD5Summary(summaryPath, summaryMD5Path, entries)
}

// RebuildMD5Summary recomputes the entire summary from a fresh walk of
// cruiseRoot, excluding the summary files themselves and anything
// under a Transfer_Logs directory.
func RebuildMD5Summary(cruiseID, summaryFn, summaryMD5Fn, cruiseRoot string, filesizeLimit int64) error {
	lock := lockFor(cruiseID)
	lock.Lock()
	defer lock.Unlock()

	entries := map[string]string{}

	err := filepath.Walk(cruiseRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "Transfer_Logs" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(cruiseRoot, path)
		if err != nil {
			return err
		}
		if rel == summaryFn || rel == summaryMD5Fn {
			return nil
		}
		hash, err := HashFile(path, filesizeLimit)
		if err != nil {
			return err
		}
		entries[rel] = hash
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild md5 summary under %s: %w", cruiseRoot, err)
	}

	return writeMD5Summary(filepath.Join(cruiseRoot, summaryFn), filepath.Join(cruiseRoot, summaryMD5Fn), entries)
}

func writeMD5Summary(summaryPath, summaryMD5Path string, entries map[string]string) error {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&buf, "%s %s\n", entries[p], p)
	}

	if err := atomicWriteFile(summaryPath, []byte(buf.String()), 0o644); err != nil {
		return err
	}

	sum := md5.Sum([]byte(buf.String()))
	return atomicWriteFile(summaryMD5Path, []byte(hex.EncodeToString(sum[:])+"\n"), 0o644)
}
