package buildinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	info := Get("crm-intake")

	if info.ServiceName != "crm-intake" {
		t.Errorf("expected ServiceName='crm-intake', got %q", info.ServiceName)
	}
	if info.Version != "dev" {
		t.Errorf("expected Version='dev', got %q", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected GoVersion=%q, got %q", runtime.Version(), info.GoVersion)
	}
}

func TestStringFormat(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "v0.3.0"
	Commit = "1a2b3c4"
	BuildTime = "2026-08-20T09:00:00Z"

	got := String()
	want := "v0.3.0 (1a2b3c4, 2026-08-20T09:00:00Z)"
	if got != want {
		t.Errorf("expected String()=%q, got %q", want, got)
	}
}

func TestHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	Handler("crm-intake")(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var info Info
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if info.ServiceName != "crm-intake" {
		t.Errorf("expected service_name 'crm-intake', got %q", info.ServiceName)
	}
	if info.GoVersion == "" {
		t.Error("expected go_version to be non-empty")
	}
}
