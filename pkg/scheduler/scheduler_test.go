package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// fakeSubmitter records every Submit call, standing in for broker.Fake
// (which requires a registered handler per task) since the scheduler
// only ever fires jobs and never waits on their outcome.
type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, taskName string, payload types.JobPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, taskName)
	return "handle", nil
}

func (f *fakeSubmitter) count(taskName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if t == taskName {
			n++
		}
	}
	return n
}

func newTestScheduler(t *testing.T, cruiseDir string, csts []types.CollectionSystemTransfer, cdts []types.CruiseDataTransfer, purgeInterval string) (*Scheduler, *fakeSubmitter) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collectionSystemTransfers/active", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(csts)
	})
	mux.HandleFunc("/api/cruiseDataTransfers/required", func(w http.ResponseWriter, r *http.Request) {
		var required []types.CruiseDataTransfer
		for _, c := range cdts {
			if c.Name == shipToShoreTransferName {
				required = append(required, c)
			}
		}
		json.NewEncoder(w).Encode(required)
	})
	mux.HandleFunc("/api/cruiseDataTransfers/active", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cdts)
	})
	mux.HandleFunc("/api/warehouse/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ShipboardDataWarehouseConfig{
			BaseDir:         filepath.Dir(cruiseDir),
			TransferLogsDir: "Transfer_Logs",
		})
	})
	mux.HandleFunc("/api/warehouse/currentCruise", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Cruise{ID: filepath.Base(cruiseDir)})
	})
	mux.HandleFunc("/api/warehouse/logfilePurgeInterval", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"interval": purgeInterval})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cp := controlplane.New(srv.URL, 0)
	sub := &fakeSubmitter{}
	sched, err := NewScheduler(Config{IntervalMinutes: 1}, cp, sub)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return sched, sub
}

func TestTickSubmitsActiveCollectionSystemTransfers(t *testing.T) {
	sched, sub := newTestScheduler(t, t.TempDir(), []types.CollectionSystemTransfer{
		{ID: "cst-1", Name: "CTD"},
		{ID: "cst-2", Name: "Nav"},
	}, nil, "")

	sched.tick(context.Background())

	if got := sub.count("runCollectionSystemTransfer"); got != 2 {
		t.Fatalf("expected 2 runCollectionSystemTransfer submissions, got %d", got)
	}
}

func TestTickSubmitsConfiguredCruiseDataTransfersExcludingShipToShore(t *testing.T) {
	sched, sub := newTestScheduler(t, t.TempDir(), nil, []types.CruiseDataTransfer{
		{ID: "cdt-1", Name: "Backup"},
		{ID: "cdt-2", Name: shipToShoreTransferName, IsShipToShore: true},
	}, "")

	sched.tick(context.Background())

	if got := sub.count("runCruiseDataTransfer"); got != 2 {
		t.Fatalf("expected 2 runCruiseDataTransfer submissions (1 configured + 1 required S2S), got %d", got)
	}
}

func TestTickSkipsWhenNotLeader(t *testing.T) {
	sched, sub := newTestScheduler(t, t.TempDir(), []types.CollectionSystemTransfer{
		{ID: "cst-1", Name: "CTD"},
	}, nil, "")
	sched.gate = fakeGate{leader: false}

	sched.tick(context.Background())

	if len(sub.tasks) != 0 {
		t.Fatalf("expected no submissions while not leader, got %v", sub.tasks)
	}
}

type fakeGate struct{ leader bool }

func (f fakeGate) Leader() bool { return f.leader }
func (f fakeGate) Shutdown()    {}

func TestPurgeStaleTransferLogsRemovesOldFilesOnly(t *testing.T) {
	baseDir := t.TempDir()
	cruiseDir := filepath.Join(baseDir, "AT42-01")
	logsDir := filepath.Join(cruiseDir, "Transfer_Logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	oldPath := filepath.Join(logsDir, "old.log")
	newPath := filepath.Join(logsDir, "new.log")
	if err := os.WriteFile(oldPath, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(newPath, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	sched, _ := newTestScheduler(t, cruiseDir, nil, nil, "12 hours")
	sched.purgeStaleTransferLogs(context.Background())

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expected old.log to be purged, stat err = %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("expected new.log to survive: %v", err)
	}
}

func TestNextMinuteBoundaryIsStrictlyAfterNow(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 30, 0, time.UTC)
	next := nextMinuteBoundary(now)
	if !next.After(now) {
		t.Fatalf("expected %v to be after %v", next, now)
	}
	if next.Second() != 0 || next.Nanosecond() != 0 {
		t.Fatalf("expected next boundary to land exactly on a minute, got %v", next)
	}

	onBoundary := time.Date(2026, 7, 30, 12, 1, 0, 0, time.UTC)
	next2 := nextMinuteBoundary(onBoundary)
	if !next2.Equal(onBoundary.Add(time.Minute)) {
		t.Fatalf("expected a boundary input to roll forward a full minute, got %v", next2)
	}
}
