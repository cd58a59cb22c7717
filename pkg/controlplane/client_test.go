package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBoolStringUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want bool
	}{
		{"one", `"1"`, true},
		{"zero", `"0"`, false},
		{"on", `"On"`, true},
		{"off", `"Off"`, false},
		{"real bool true", `true`, true},
		{"real bool false", `false`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b BoolString
			if err := json.Unmarshal([]byte(tt.json), &b); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.json, err)
			}
			if bool(b) != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.json, b, tt.want)
			}
		})
	}
}

func TestBoolStringUnmarshalRejectsGarbage(t *testing.T) {
	var b BoolString
	if err := json.Unmarshal([]byte(`"maybe"`), &b); err == nil {
		t.Error("expected an error for an unrecognized bool-string")
	}
}

func TestBoolStringMarshal(t *testing.T) {
	data, err := json.Marshal(BoolString(true))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"1"` {
		t.Errorf("Marshal(true) = %s, want \"1\"", data)
	}

	data, err = json.Marshal(BoolString(false))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"0"` {
		t.Errorf("Marshal(false) = %s, want \"0\"", data)
	}
}

func TestClientWarehouseConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/warehouse/config" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"baseDir":"/data","ownerUser":"rvdas"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	cfg, err := client.WarehouseConfig(context.Background())
	if err != nil {
		t.Fatalf("WarehouseConfig: %v", err)
	}
	if cfg.BaseDir != "/data" || cfg.OwnerUser != "rvdas" {
		t.Errorf("WarehouseConfig = %+v, unexpected", cfg)
	}
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	if err := client.SetCSTIdle(context.Background(), "42"); err == nil {
		t.Error("expected an error from a 500 response")
	}
}
