package index

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUpdateDashboardWritesEntryAndJSON(t *testing.T) {
	dir := t.TempDir()
	dashboardDir := filepath.Join(dir, "Dashboard_Data")
	if err := os.MkdirAll(dashboardDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	manifestPath := filepath.Join(dashboardDir, "manifest.json")

	err := UpdateDashboard("AT42-01", manifestPath, dashboardDir, "CTD/cast001.raw", "ctd", []byte(`{"temperature":[1,2,3]}`))
	if err != nil {
		t.Fatalf("UpdateDashboard: %v", err)
	}

	entries, err := ReadManifest(manifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d manifest entries, want 1", len(entries))
	}
	if entries[0].RawData != "CTD/cast001.raw" || entries[0].Type != "ctd" {
		t.Errorf("unexpected manifest entry %+v", entries[0])
	}

	if _, err := os.Stat(filepath.Join(dashboardDir, "cast001.json")); err != nil {
		t.Errorf("expected dd_json file to exist: %v", err)
	}
}

func TestUpdateDashboardRemovesEntryOnPluginError(t *testing.T) {
	dir := t.TempDir()
	dashboardDir := filepath.Join(dir, "Dashboard_Data")
	if err := os.MkdirAll(dashboardDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	manifestPath := filepath.Join(dashboardDir, "manifest.json")

	if err := UpdateDashboard("AT42-01", manifestPath, dashboardDir, "CTD/cast001.raw", "ctd", []byte(`{"temperature":[1,2,3]}`)); err != nil {
		t.Fatalf("UpdateDashboard (initial): %v", err)
	}

	err := UpdateDashboard("AT42-01", manifestPath, dashboardDir, "CTD/cast001.raw", "ctd", []byte(`{"error":"bad header"}`))
	if err != nil {
		t.Fatalf("UpdateDashboard (error): %v", err)
	}

	entries, err := ReadManifest(manifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected entry to be removed, got %v", entries)
	}
	if _, err := os.Stat(filepath.Join(dashboardDir, "cast001.json")); !os.IsNotExist(err) {
		t.Errorf("expected orphaned dd_json to be deleted, stat err = %v", err)
	}
}

func TestRemoveEntryIsIdempotent(t *testing.T) {
	entries := []ManifestEntry{{Type: "ctd", DDJSON: "cast001.json", RawData: "CTD/cast001.raw"}}
	entries = RemoveEntry(entries, "CTD/does-not-exist.raw", "")
	if len(entries) != 1 {
		t.Errorf("removing an absent entry should be a no-op, got %v", entries)
	}
}
