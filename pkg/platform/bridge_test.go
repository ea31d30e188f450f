package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/notify"
	"github.com/ebi-gdp/vattid/pkg/resources"
	"github.com/ebi-gdp/vattid/pkg/statemachine"
	"github.com/ebi-gdp/vattid/pkg/store"
)

func dummyFactory(string, resources.HandlerState) resources.Handler {
	return resources.NewDummyHandler()
}

func newTestStore(t *testing.T) (*store.Store, *[]notify.Message) {
	t.Helper()
	var notifications []notify.Message
	s, err := store.Open(filepath.Join(t.TempDir(), "vattid.db"), dummyFactory, func(m notify.Message) {
		notifications = append(notifications, m)
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	if err := s.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &notifications
}

func TestTickDeploysOnRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"workflows": []map[string]any{
				{"workflow": map[string]any{"runName": "intervene-dev-INTPTEST01", "status": "Running"}},
			},
		})
	}))
	defer server.Close()

	s, notifications := newTestStore(t)
	ctx := context.Background()

	job := statemachine.New("INTPTEST01", resources.NewDummyHandler(), nil)
	job.State = jobstate.Created
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	client := NewClient(server.URL, "tok", "ws1")
	bridge := NewBridge(client, "intervene-dev", s)
	bridge.Tick(ctx)

	loaded, err := s.Load(ctx, "INTPTEST01")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.State != jobstate.Deployed {
		t.Fatalf("state = %s, want Deployed", loaded.State)
	}
	_ = notifications
}

func TestTickPopulatesTraceOnFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"workflows": []map[string]any{
				{"workflow": map[string]any{
					"runName":     "intervene-dev-INTPTEST02",
					"status":      "Failed",
					"exitStatus":  12,
					"errorReport": "Error executing process > 'X'\nstack...",
				}},
			},
		})
	}))
	defer server.Close()

	s, _ := newTestStore(t)
	ctx := context.Background()

	job := statemachine.New("INTPTEST02", resources.NewDummyHandler(), nil)
	job.State = jobstate.Deployed
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	client := NewClient(server.URL, "tok", "ws1")
	bridge := NewBridge(client, "intervene-dev", s)
	bridge.Tick(ctx)

	loaded, err := s.Load(ctx, "INTPTEST02")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.State != jobstate.Failed {
		t.Fatalf("state = %s, want Failed", loaded.State)
	}
	if loaded.TraceName != "Error executing process > 'X'" {
		t.Errorf("TraceName = %q, want first line only", loaded.TraceName)
	}
	if loaded.TraceExit == nil || *loaded.TraceExit != 12 {
		t.Errorf("TraceExit = %v, want 12", loaded.TraceExit)
	}
}
