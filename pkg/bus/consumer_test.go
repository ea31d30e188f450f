package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ebi-gdp/vattid/pkg/resources"
	"github.com/ebi-gdp/vattid/pkg/statemachine"
)

type fakeStore struct {
	active   int
	inserted []*statemachine.Job
}

func (f *fakeStore) ActiveJobCount(ctx context.Context) (int, error) { return f.active, nil }
func (f *fakeStore) Insert(ctx context.Context, job *statemachine.Job) error {
	f.inserted = append(f.inserted, job)
	return nil
}

func validRequestJSON() []byte {
	pgsID := "PGS000001"
	req := map[string]any{
		"globus_details": map[string]any{
			"dir_path_on_guest_collection": "/staging/INTPTEST99",
			"files": []any{
				map[string]any{"filename": "cohort.bed.c4gh", "size": 100},
			},
		},
		"pipeline_param": map[string]any{
			"id": "INTPTEST99",
			"target_genomes": []any{
				map[string]any{
					"sampleset": "cohort",
					"geno":      "cohort.bed",
					"pheno":     "cohort.fam",
					"variants":  "cohort.bim",
					"format":    "bfile",
				},
			},
			"nxf_params_file": map[string]any{
				"pgs_id":       pgsID,
				"target_build": "GRCh38",
			},
		},
		"secret_key_details": map[string]any{
			"secret_id":         "11111111-1111-4111-8111-111111111111",
			"secret_id_version": "1",
		},
	}
	b, _ := json.Marshal(req)
	return b
}

func TestWaitForCapacityReturnsImmediatelyUnderCap(t *testing.T) {
	c := &Consumer{Store: &fakeStore{active: 0}, MaxConcurrentJobs: 2}
	done := make(chan struct{})
	go func() {
		_ = c.waitForCapacity(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForCapacity blocked despite capacity available")
	}
}

func TestWaitForCapacityBlocksAtCap(t *testing.T) {
	c := &Consumer{Store: &fakeStore{active: 2}, MaxConcurrentJobs: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.waitForCapacity(ctx); err == nil {
		t.Fatal("waitForCapacity() returned nil, want context deadline error while at cap")
	}
}

func TestProcessDiscardsInvalidJSON(t *testing.T) {
	fs := &fakeStore{}
	c := &Consumer{
		Store:      fs,
		NewHandler: func(string) resources.Handler { return resources.NewDummyHandler() },
	}
	c.process(context.Background(), kafkago.Message{Value: []byte("not json")})
	if len(fs.inserted) != 0 {
		t.Fatalf("inserted %d jobs, want 0", len(fs.inserted))
	}
}

func TestProcessAdmitsValidRequest(t *testing.T) {
	fs := &fakeStore{}
	c := &Consumer{
		Store:      fs,
		NewHandler: func(string) resources.Handler { return resources.NewDummyHandler() },
	}
	c.process(context.Background(), kafkago.Message{Value: validRequestJSON()})
	if len(fs.inserted) != 1 {
		t.Fatalf("inserted %d jobs, want 1", len(fs.inserted))
	}
	if fs.inserted[0].ID != "INTPTEST99" {
		t.Errorf("inserted job id = %q, want INTPTEST99", fs.inserted[0].ID)
	}
}
