package filelist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestBuildLocalAppliesIncludeAndExcludeGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "CTD", "cast001.raw"), "aaa")
	writeFile(t, filepath.Join(dir, "CTD", "cast001.bak"), "bbb")
	writeFile(t, filepath.Join(dir, "NAV", "gps.txt"), "ccc")

	result, err := Build(context.Background(), Options{
		SourceRoot: dir,
		Kind:       types.TransferTypeLocal,
		Include:    []string{"**/*"},
		Exclude:    []string{"**/*.bak"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var paths []string
	for _, e := range result.Include {
		paths = append(paths, e.Path)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d included paths, want 2: %v", len(paths), paths)
	}

	found := false
	for _, p := range result.Exclude {
		if filepath.Base(p) == "cast001.bak" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected cast001.bak in exclude list, got %v", result.Exclude)
	}
}

func TestBuildLocalAppliesTimeWindow(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.raw")
	writeFile(t, old, "aaa")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	result, err := Build(context.Background(), Options{
		SourceRoot:    dir,
		Kind:          types.TransferTypeLocal,
		Include:       []string{"**/*"},
		DataStartTime: time.Now().Add(-1 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(result.Include) != 0 {
		t.Errorf("expected old.raw to fall outside the time window, got %v", result.Include)
	}
}

func TestBuildLocalExcludesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.raw")
	writeFile(t, target, "aaa")
	if err := os.Symlink(target, filepath.Join(dir, "link.raw")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	result, err := Build(context.Background(), Options{
		SourceRoot: dir,
		Kind:       types.TransferTypeLocal,
		Include:    []string{"**/*"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, e := range result.Include {
		if e.Path == "link.raw" {
			t.Errorf("symlink should have been skipped, got %v", result.Include)
		}
	}
}
