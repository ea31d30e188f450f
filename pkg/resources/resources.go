// Package resources implements the Resource Handler (C3): idempotent
// creation and teardown of a job's two storage buckets plus its chart
// release.
package resources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ebi-gdp/vattid/pkg/config"
	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/messages"
)

// ErrBucketExists is raised when a target bucket already exists at create
// time. The handler records which bucket in its existed-on-create flags so
// destroy never touches it.
var ErrBucketExists = fmt.Errorf("bucket already exists")

// BucketPolicy captures the lifecycle rules applied when a bucket is
// created. The GCS-shaped fields match spec.md's literal bucket policy
// description; a dummy BucketManager ignores them entirely.
type BucketPolicy struct {
	AbortIncompleteUploadAgeDays int
	DeleteAgeDays                int
	DeleteMatchesSuffix          []string
	SoftDeleteRetentionSeconds   int64
	PublicAccessPreventionEnforced bool
	UniformBucketLevelAccess     bool
}

// WorkBucketPolicy is the lifecycle policy for the per-job work bucket.
func WorkBucketPolicy() BucketPolicy {
	return BucketPolicy{
		AbortIncompleteUploadAgeDays: 1,
		DeleteAgeDays:                1,
		DeleteMatchesSuffix: []string{
			".vcf", ".pgen", ".pvar", ".psam", ".bim", ".bed", ".fam", ".zst", ".gz",
		},
		SoftDeleteRetentionSeconds:     0,
		PublicAccessPreventionEnforced: true,
		UniformBucketLevelAccess:       true,
	}
}

// ResultsBucketPolicy is the lifecycle policy for the per-job results
// bucket.
func ResultsBucketPolicy() BucketPolicy {
	return BucketPolicy{
		AbortIncompleteUploadAgeDays:   1,
		DeleteAgeDays:                  7,
		SoftDeleteRetentionSeconds:     0,
		PublicAccessPreventionEnforced: true,
		UniformBucketLevelAccess:       true,
	}
}

// BucketManager is the abstract cloud-storage collaborator. The core only
// invokes this interface; the concrete GCS client lives behind
// GCSBucketManager and is out of scope for this module per spec.md §1.
type BucketManager interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, policy BucketPolicy, location string) error
	CountObjects(ctx context.Context, name string) (int, error)
	DeleteObjects(ctx context.Context, name string) error
	ForceDelete(ctx context.Context, name string) error
}

// BucketInfo is one project bucket as seen by a prefix-listing sweep.
type BucketInfo struct {
	Name    string
	Created time.Time
}

// BucketLister is the abstract project-wide bucket enumeration
// collaborator used by the GC sweep; it is deliberately separate from
// BucketManager, which only ever operates on one already-named bucket.
type BucketLister interface {
	ListBuckets(ctx context.Context, project, prefix string) ([]BucketInfo, error)
}

// ChartInstaller is the abstract cluster-CLI collaborator (helm install /
// uninstall). The concrete implementation shells out via os/exec.
type ChartInstaller interface {
	Install(ctx context.Context, releaseName, chartPath, namespace string, values any) error
	Uninstall(ctx context.Context, releaseName, namespace string) error
}

// Renderer produces the chart values document for a job, given the
// validated request and the two bucket names it was provisioned with.
// Out of scope per spec.md §1: the chart template itself and its values
// schema. This is the fixed signature the core needs.
type Renderer func(req messages.JobRequest, workBucket, resultsBucket string, settings *config.Settings) (any, error)

// Handler is the Resource Handler contract consumed by the state machine's
// prepare/after hooks (C2 ⇄ C3).
type Handler interface {
	CreateResources(ctx context.Context, req messages.JobRequest) error
	DestroyResources(ctx context.Context, state jobstate.State) error
	State() HandlerState
}

// HandlerState is the portion of a Handler's internal flags that must
// survive serialisation round-trips, per spec.md §3's invariant that
// handler-installed and bucket-existed-on-create flags round-trip
// bit-for-bit.
type HandlerState struct {
	WorkBucketExistedOnCreate    bool `json:"work_bucket_existed_on_create"`
	ResultsBucketExistedOnCreate bool `json:"results_bucket_existed_on_create"`
	ChartInstalled               bool `json:"chart_installed"`
}

// DummyHandler performs no resource operations. Tests hand it to the state
// machine in place of a CloudHandler.
type DummyHandler struct {
	state HandlerState
}

func NewDummyHandler() *DummyHandler { return &DummyHandler{} }

func (h *DummyHandler) CreateResources(context.Context, messages.JobRequest) error { return nil }
func (h *DummyHandler) DestroyResources(context.Context, jobstate.State) error     { return nil }
func (h *DummyHandler) State() HandlerState                                        { return h.state }

// CloudHandler provisions real buckets and a real chart release.
type CloudHandler struct {
	jobID         string // already lowercased
	bucketRoot    string
	workBucket    string
	resultsBucket string

	project      string
	location     string
	namespace    string
	chartPath    string

	buckets BucketManager
	charts  ChartInstaller
	render  Renderer
	settings *config.Settings

	state HandlerState
}

// NewCloudHandler builds a handler for the given job id. Bucket names are
// derived deterministically as {namespace}-{id}-work / …-results.
func NewCloudHandler(jobID string, settings *config.Settings, buckets BucketManager, charts ChartInstaller, render Renderer) *CloudHandler {
	id := strings.ToLower(jobID)
	root := fmt.Sprintf("%s-%s", settings.Namespace, id)
	return &CloudHandler{
		jobID:         id,
		bucketRoot:    root,
		workBucket:    root + "-work",
		resultsBucket: root + "-results",
		project:       settings.GCPProject,
		location:      settings.GCPLocation,
		namespace:     string(settings.Namespace),
		chartPath:     settings.HelmChartPath,
		buckets:       buckets,
		charts:        charts,
		render:        render,
		settings:      settings,
	}
}

// RestoreCloudHandler reconstructs a CloudHandler from a persisted
// HandlerState, for jobs reloaded from the store after a restart.
func RestoreCloudHandler(jobID string, settings *config.Settings, buckets BucketManager, charts ChartInstaller, render Renderer, state HandlerState) *CloudHandler {
	h := NewCloudHandler(jobID, settings, buckets, charts, render)
	h.state = state
	return h
}

func (h *CloudHandler) WorkBucket() string    { return h.workBucket }
func (h *CloudHandler) ResultsBucket() string { return h.resultsBucket }
func (h *CloudHandler) State() HandlerState   { return h.state }

// CreateResources provisions the two buckets and installs the chart
// release. If a target bucket already exists, the existed-on-create flag
// for that bucket is set and ErrBucketExists is returned without touching
// the bucket further.
func (h *CloudHandler) CreateResources(ctx context.Context, req messages.JobRequest) error {
	if err := h.makeBucket(ctx, h.workBucket, WorkBucketPolicy(), &h.state.WorkBucketExistedOnCreate); err != nil {
		return err
	}
	if err := h.makeBucket(ctx, h.resultsBucket, ResultsBucketPolicy(), &h.state.ResultsBucketExistedOnCreate); err != nil {
		return err
	}

	values, err := h.render(req, h.workBucket, h.resultsBucket, h.settings)
	if err != nil {
		return fmt.Errorf("resources: render chart values: %w", err)
	}
	if err := h.charts.Install(ctx, h.jobID, h.chartPath, h.namespace, values); err != nil {
		h.state.ChartInstalled = false
		return fmt.Errorf("resources: chart install: %w", err)
	}
	h.state.ChartInstalled = true
	return nil
}

func (h *CloudHandler) makeBucket(ctx context.Context, name string, policy BucketPolicy, existedFlag *bool) error {
	exists, err := h.buckets.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("resources: check bucket %s: %w", name, err)
	}
	if exists {
		*existedFlag = true
		return fmt.Errorf("resources: bucket %s: %w", name, ErrBucketExists)
	}
	if err := h.buckets.Create(ctx, name, policy, h.location); err != nil {
		return fmt.Errorf("resources: create bucket %s: %w", name, err)
	}
	return nil
}

// DestroyResources uninstalls the chart release (if it was installed) and
// deletes the work bucket unconditionally, plus the results bucket when
// the job ended in Failed. Buckets flagged existed-on-create are never
// deleted.
func (h *CloudHandler) DestroyResources(ctx context.Context, state jobstate.State) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if h.state.ChartInstalled {
		note(h.charts.Uninstall(ctx, h.jobID, h.namespace))
	}

	note(h.deleteBucket(ctx, h.workBucket, h.state.WorkBucketExistedOnCreate))
	if state == jobstate.Failed {
		note(h.deleteBucket(ctx, h.resultsBucket, h.state.ResultsBucketExistedOnCreate))
	}
	return firstErr
}

func (h *CloudHandler) deleteBucket(ctx context.Context, name string, existedOnCreate bool) error {
	if existedOnCreate {
		return nil
	}
	exists, err := h.buckets.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("resources: check bucket %s before delete: %w", name, err)
	}
	if !exists {
		return nil
	}
	count, err := h.buckets.CountObjects(ctx, name)
	if err != nil {
		return fmt.Errorf("resources: count objects in %s: %w", name, err)
	}
	if count > 256 {
		if err := h.buckets.DeleteObjects(ctx, name); err != nil {
			return fmt.Errorf("resources: delete objects in %s: %w", name, err)
		}
	}
	if err := h.buckets.ForceDelete(ctx, name); err != nil {
		return fmt.Errorf("resources: force delete %s: %w", name, err)
	}
	return nil
}
