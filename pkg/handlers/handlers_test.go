package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/index"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// newTestControlPlane spins up an httptest server backing a minimal
// warehouse config and an empty set of transfers/directories, enough
// for the directory and index-maintenance handlers to run end to end.
func newTestControlPlane(t *testing.T, baseDir string) *controlplane.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/warehouse/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ShipboardDataWarehouseConfig{
			BaseDir:                 baseDir,
			LoweringDataBaseDir:     "Lowerings",
			OwnerUser:               "",
			MD5SummaryFn:            "md5_summary.txt",
			MD5SummaryMD5Fn:         "md5_summary.md5",
			CruiseConfigFn:          "cruiseConfig.json",
			LoweringConfigFn:        "loweringConfig.json",
			DataDashboardManifestFn: "manifest.json",
			DataDashboardDir:        "Dashboard_Data",
			TransferLogsDir:         "Transfer_Logs",
			PublicDataDir:           "PublicData",
		})
	})
	mux.HandleFunc("/api/extraDirectories/required", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]types.ExtraDirectory{})
	})
	mux.HandleFunc("/api/extraDirectories/active", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]types.ExtraDirectory{})
	})
	mux.HandleFunc("/api/collectionSystemTransfers/active", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]types.CollectionSystemTransfer{})
	})
	mux.HandleFunc("/api/warehouse/md5FilesizeLimit", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"limitBytes": 0, "enabled": "0"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return controlplane.New(srv.URL, 0)
}

func TestCruiseDirectoryHandlerCreatesAndOwnsDirectories(t *testing.T) {
	baseDir := t.TempDir()
	cp := newTestControlPlane(t, baseDir)

	h := &CruiseDirectoryHandler{Deps: Deps{ControlPlane: cp}}
	job := broker.Job{Handle: "h1", Task: "createCruiseDirectory", Payload: types.JobPayload{"cruiseID": "AT42-01"}}

	tc, _, verdict, err := h.Begin(context.Background(), job)
	if err != nil || verdict != 0 {
		t.Fatalf("Begin: verdict=%v err=%v", verdict, err)
	}

	result, err := h.Run(context.Background(), tc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalVerdict() != types.ResultPass {
		t.Fatalf("expected Pass, got %v (%v)", result.FinalVerdict(), result.Parts)
	}

	if _, statErr := os.Stat(filepath.Join(baseDir, "AT42-01")); statErr != nil {
		t.Errorf("expected cruise directory to exist: %v", statErr)
	}
}

func TestCruiseDirectoryHandlerMissingCruiseIDFails(t *testing.T) {
	h := &CruiseDirectoryHandler{Deps: Deps{}}
	job := broker.Job{Handle: "h1", Task: "createCruiseDirectory", Payload: types.JobPayload{}}

	_, result, _, err := h.Begin(context.Background(), job)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if result.FinalVerdict() != types.ResultFail {
		t.Fatalf("expected Fail verdict, got %v", result.FinalVerdict())
	}
}

func TestMD5SummaryHandlerRebuildExcludesTransferLogs(t *testing.T) {
	baseDir := t.TempDir()
	cruiseDir := filepath.Join(baseDir, "AT42-01")
	if err := os.MkdirAll(filepath.Join(cruiseDir, "CTD"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cruiseDir, "CTD", "cast001.raw"), []byte("aaa"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cruiseDir, "Transfer_Logs"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cruiseDir, "Transfer_Logs", "CTD_20260101T000000Z.log"), []byte("log contents"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cp := newTestControlPlane(t, baseDir)
	h := &MD5SummaryHandler{Deps: Deps{ControlPlane: cp}, Rebuild: true}
	job := broker.Job{Handle: "h1", Task: "rebuildMD5Summary", Payload: types.JobPayload{"cruiseID": "AT42-01"}}

	tc, _, _, err := h.Begin(context.Background(), job)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	result, err := h.Run(context.Background(), tc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalVerdict() != types.ResultPass {
		t.Fatalf("expected Pass, got %v (%v)", result.FinalVerdict(), result.Parts)
	}

	if _, statErr := os.Stat(filepath.Join(cruiseDir, "md5_summary.txt")); statErr != nil {
		t.Errorf("expected md5 summary to exist: %v", statErr)
	}

	entries, err := index.ReadMD5Summary(filepath.Join(cruiseDir, "md5_summary.txt"))
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
