package resources

import (
	"context"
	"errors"
	"testing"

	"github.com/ebi-gdp/vattid/pkg/config"
	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/messages"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Namespace:     config.NamespaceDev,
		GCPProject:    "proj",
		GCPLocation:   "europe-west2",
		HelmChartPath: "/charts/helmvatti",
	}
}

func testRequest() messages.JobRequest {
	return messages.JobRequest{
		PipelineParam: messages.PGSJobParams{
			ID: "INTPTEST01",
			TargetGenomes: []messages.TargetGenome{
				{Sampleset: "test", Geno: "hi.pgen", Pheno: "hi.psam", Variants: "hi.pvar", Format: messages.FormatPfile},
			},
			NxfParamsFile: messages.PGSParams{TargetBuild: messages.BuildGRCh37, Format: messages.SamplesheetJSON},
		},
		SecretKeyDetails: messages.SecretKeyDetails{SecretID: "81d5c400-21b4-4e88-8208-8d64c9920283", SecretIDVersion: "1"},
	}
}

func TestCreateResourcesProvisionsAndInstalls(t *testing.T) {
	buckets := NewDummyBucketManager()
	h := NewCloudHandler("INTPTEST01", testSettings(), buckets, DummyChartInstaller{}, Render)

	if err := h.CreateResources(context.Background(), testRequest()); err != nil {
		t.Fatalf("CreateResources() error = %v", err)
	}
	if !buckets.Existing[h.WorkBucket()] {
		t.Error("work bucket was not created")
	}
	if !buckets.Existing[h.ResultsBucket()] {
		t.Error("results bucket was not created")
	}
	if !h.State().ChartInstalled {
		t.Error("State().ChartInstalled = false, want true")
	}
}

func TestCreateResourcesExistingBucketIsNotDestroyed(t *testing.T) {
	buckets := NewDummyBucketManager()
	h := NewCloudHandler("INTPTEST01", testSettings(), buckets, DummyChartInstaller{}, Render)
	buckets.Existing[h.WorkBucket()] = true

	err := h.CreateResources(context.Background(), testRequest())
	if !errors.Is(err, ErrBucketExists) {
		t.Fatalf("CreateResources() error = %v, want ErrBucketExists", err)
	}
	if !h.State().WorkBucketExistedOnCreate {
		t.Error("State().WorkBucketExistedOnCreate = false, want true")
	}

	if err := h.DestroyResources(context.Background(), jobstate.Failed); err != nil {
		t.Fatalf("DestroyResources() error = %v", err)
	}
	if !buckets.Existing[h.WorkBucket()] {
		t.Error("pre-existing work bucket was deleted, want it preserved")
	}
}

func TestDestroyResourcesKeepsResultsUnlessFailed(t *testing.T) {
	buckets := NewDummyBucketManager()
	h := NewCloudHandler("INTPTEST01", testSettings(), buckets, DummyChartInstaller{}, Render)
	if err := h.CreateResources(context.Background(), testRequest()); err != nil {
		t.Fatalf("CreateResources() error = %v", err)
	}

	if err := h.DestroyResources(context.Background(), jobstate.Succeeded); err != nil {
		t.Fatalf("DestroyResources() error = %v", err)
	}
	if buckets.Existing[h.WorkBucket()] {
		t.Error("work bucket not deleted on Succeeded")
	}
	if !buckets.Existing[h.ResultsBucket()] {
		t.Error("results bucket deleted on Succeeded, want retained")
	}
}

func TestDestroyResourcesDeletesResultsOnFailed(t *testing.T) {
	buckets := NewDummyBucketManager()
	h := NewCloudHandler("INTPTEST01", testSettings(), buckets, DummyChartInstaller{}, Render)
	if err := h.CreateResources(context.Background(), testRequest()); err != nil {
		t.Fatalf("CreateResources() error = %v", err)
	}

	if err := h.DestroyResources(context.Background(), jobstate.Failed); err != nil {
		t.Fatalf("DestroyResources() error = %v", err)
	}
	if buckets.Existing[h.ResultsBucket()] {
		t.Error("results bucket not deleted on Failed")
	}
}

func TestRenderRewritesTargetGenomePaths(t *testing.T) {
	req := testRequest()
	values, err := Render(req, "dev-intptest01-work", "dev-intptest01-results", testSettings())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	cv := values.(ChartValues)
	want := "gs://dev-intptest01-work/data/hi.pgen"
	if cv.Job.TargetGenomes[0].Geno != want {
		t.Errorf("Geno = %q, want %q", cv.Job.TargetGenomes[0].Geno, want)
	}
	wantOutdir := "gs://dev-intptest01-results/results"
	if cv.Job.Outdir != wantOutdir {
		t.Errorf("Outdir = %q, want %q", cv.Job.Outdir, wantOutdir)
	}
}
