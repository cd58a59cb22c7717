package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestUpdateMD5SummaryAddsAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "CTD/cast002.raw", "bbb")
	writeTempFile(t, dir, "CTD/cast001.raw", "aaa")

	summaryPath := filepath.Join(dir, "md5_summary.txt")
	summaryMD5Path := filepath.Join(dir, "md5_summary.md5")

	err := UpdateMD5Summary("AT42-01", summaryPath, summaryMD5Path, dir,
		[]string{"CTD/cast002.raw", "CTD/cast001.raw"}, nil, 0)
	if err != nil {
		t.Fatalf("UpdateMD5Summary: %v", err)
	}

	entries, err := ReadMD5Summary(summaryPath)
	if err != nil {
		t.Fatalf("ReadMD5Summary: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if !strings.HasSuffix(lines[0], "CTD/cast001.raw") || !strings.HasSuffix(lines[1], "CTD/cast002.raw") {
		t.Errorf("summary not sorted by path: %v", lines)
	}

	md5Data, err := os.ReadFile(summaryMD5Path)
	if err != nil {
		t.Fatalf("ReadFile md5: %v", err)
	}
	if len(strings.TrimSpace(string(md5Data))) != 32 {
		t.Errorf("md5-of-summary should be a single 32-hex line, got %q", md5Data)
	}
}

func TestUpdateMD5SummaryRemovesDeleted(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "CTD/cast001.raw", "aaa")

	summaryPath := filepath.Join(dir, "md5_summary.txt")
	summaryMD5Path := filepath.Join(dir, "md5_summary.md5")

	if err := UpdateMD5Summary("AT42-01", summaryPath, summaryMD5Path, dir, []string{"CTD/cast001.raw"}, nil, 0); err != nil {
		t.Fatalf("UpdateMD5Summary (add): %v", err)
	}
	if err := UpdateMD5Summary("AT42-01", summaryPath, summaryMD5Path, dir, nil, []string{"CTD/cast001.raw"}, 0); err != nil {
		t.Fatalf("UpdateMD5Summary (delete): %v", err)
	}

	entries, err := ReadMD5Summary(summaryPath)
	if err != nil {
		t.Fatalf("ReadMD5Summary: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected deleted entry to be gone, got %v", entries)
	}
}

func TestHashFileRespectsFilesizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "big.raw", strings.Repeat("x", 100))

	hash, err := HashFile(path, 10)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if hash != skippedHash {
		t.Errorf("HashFile over limit = %q, want the skipped-hash sentinel", hash)
	}

	hash, err = HashFile(path, 0)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if hash == skippedHash || len(hash) != 32 {
		t.Errorf("HashFile under no limit = %q, want a real 32-hex digest", hash)
	}
}

func TestRebuildMD5SummaryExcludesTransferLogs(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "CTD/cast001.raw", "aaa")
	writeTempFile(t, dir, "Transfer_Logs/CTD_20260101T000000Z.log", "log contents")

	summaryFn := "md5_summary.txt"
	summaryMD5Fn := "md5_summary.md5"

	if err := RebuildMD5Summary("AT42-01", summaryFn, summaryMD5Fn, dir, 0); err != nil {
		t.Fatalf("RebuildMD5Summary: %v", err)
	}

	entries, err := ReadMD5Summary(filepath.Join(dir, summaryFn))
	if err != nil {
		t.Fatalf("ReadMD5Summary: %v", err)
	}
	if _, ok := entries["CTD/cast001.raw"]; !ok {
		t.Errorf("expected CTD/cast001.raw in rebuilt summary, got %v", entries)
	}
	for path := range entries {
		if strings.HasPrefix(path, "Transfer_Logs") {
			t.Errorf("rebuilt summary should exclude Transfer_Logs, found %s", path)
		}
	}
}
