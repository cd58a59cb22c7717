package sizecacher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/storage"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

func newTestCacher(t *testing.T, cruiseDir string, showLowering bool) (*Cacher, *int32) {
	t.Helper()
	var postedCruiseSize int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/warehouse/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ShipboardDataWarehouseConfig{
			BaseDir:                filepath.Dir(cruiseDir),
			ShowLoweringComponents: showLowering,
		})
	})
	mux.HandleFunc("/api/warehouse/currentCruise", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Cruise{ID: filepath.Base(cruiseDir)})
	})
	mux.HandleFunc("/api/warehouse/currentLowering", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Lowering{})
	})
	mux.HandleFunc("/api/warehouse/cruiseSize", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&postedCruiseSize, 1)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := storage.NewBoltStore(t.TempDir(), "sizecacher")
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cp := controlplane.New(srv.URL, 0)
	return NewCacher(cp, store, time.Second), &postedCruiseSize
}

func TestMeasureAndPostPostsOnFirstCycle(t *testing.T) {
	cruiseDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cruiseDir, "data.raw"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, posted := newTestCacher(t, cruiseDir, false)
	if err := c.measureAndPost(context.Background()); err != nil {
		t.Fatalf("measureAndPost: %v", err)
	}
	if n := atomic.LoadInt32(posted); n != 1 {
		t.Fatalf("expected 1 cruiseSize post, got %d", n)
	}
}

func TestMeasureAndPostSkipsWhenSizeUnchanged(t *testing.T) {
	cruiseDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cruiseDir, "data.raw"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, posted := newTestCacher(t, cruiseDir, false)
	if err := c.measureAndPost(context.Background()); err != nil {
		t.Fatalf("measureAndPost (1st): %v", err)
	}
	if err := c.measureAndPost(context.Background()); err != nil {
		t.Fatalf("measureAndPost (2nd): %v", err)
	}
	if n := atomic.LoadInt32(posted); n != 1 {
		t.Fatalf("expected exactly 1 cruiseSize post across 2 unchanged cycles, got %d", n)
	}
}
