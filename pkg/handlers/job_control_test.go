package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

func TestRebootResetHandlerClearsJobTable(t *testing.T) {
	var cleared bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gearman/clearAllJobsFromDB", func(w http.ResponseWriter, r *http.Request) {
		cleared = true
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h := &RebootResetHandler{Deps: Deps{ControlPlane: controlplane.New(srv.URL, 0)}}
	job := broker.Job{Handle: "h1", Task: "rebootReset"}

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
	if !cleared {
		t.Error("expected clearAllJobsFromDB to be called")
	}
}

func TestStopJobHandlerIgnoresMissingPID(t *testing.T) {
	h := &StopJobHandler{Deps: Deps{}}
	job := broker.Job{Handle: "h1", Task: "stopJob", Payload: types.JobPayload{}}

	tc, _, verdict, err := h.Begin(context.Background(), job)
	if err != nil || verdict != 0 {
		t.Fatalf("Begin: verdict=%v err=%v", verdict, err)
	}
	result, err := h.Run(context.Background(), tc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalVerdict() != types.ResultIgnore {
		t.Fatalf("expected Ignore, got %v (%v)", result.FinalVerdict(), result.Parts)
	}
}

func TestStopJobHandlerIgnoresUnknownPID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gearman/jobByPID", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"jobName": "", "recordID": ""})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h := &StopJobHandler{Deps: Deps{ControlPlane: controlplane.New(srv.URL, 0)}}
	job := broker.Job{Handle: "h1", Task: "stopJob", Payload: types.JobPayload{"pid": "99999"}}

	tc, _, verdict, err := h.Begin(context.Background(), job)
	if err != nil || verdict != 0 {
		t.Fatalf("Begin: verdict=%v err=%v", verdict, err)
	}
	result, err := h.Run(context.Background(), tc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalVerdict() != types.ResultIgnore {
		t.Fatalf("expected Ignore, got %v (%v)", result.FinalVerdict(), result.Parts)
	}
}
