package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSBucketManager implements BucketManager against real Google Cloud
// Storage. Out of scope per spec.md §1: this is the one concrete cloud
// client the core otherwise only talks to via the BucketManager interface.
type GCSBucketManager struct {
	client  *storage.Client
	project string
}

// NewGCSBucketManager builds a manager bound to a single GCS client and
// project; it is safe to share across jobs.
func NewGCSBucketManager(ctx context.Context, project string) (*GCSBucketManager, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return &GCSBucketManager{client: client, project: project}, nil
}

func (m *GCSBucketManager) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.client.Bucket(name).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs: attrs %s: %w", name, err)
	}
	return true, nil
}

func (m *GCSBucketManager) Create(ctx context.Context, name string, policy BucketPolicy, location string) error {
	bucket := m.client.Bucket(name)

	attrs := &storage.BucketAttrs{
		Location: location,
		Lifecycle: storage.Lifecycle{
			Rules: []storage.LifecycleRule{
				{
					Action:    storage.LifecycleAction{Type: storage.AbortIncompleteMPUAction},
					Condition: storage.LifecycleCondition{AgeInDays: int64(policy.AbortIncompleteUploadAgeDays)},
				},
			},
		},
		SoftDeletePolicy: &storage.SoftDeletePolicy{
			RetentionDuration: time.Duration(policy.SoftDeleteRetentionSeconds) * time.Second,
		},
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{
			Enabled: policy.UniformBucketLevelAccess,
		},
		PublicAccessPrevention: storage.PublicAccessPreventionUnknown,
	}
	if policy.PublicAccessPreventionEnforced {
		attrs.PublicAccessPrevention = storage.PublicAccessPreventionEnforced
	}
	if policy.DeleteAgeDays > 0 {
		rule := storage.LifecycleRule{
			Action: storage.LifecycleAction{Type: storage.DeleteAction},
			Condition: storage.LifecycleCondition{
				AgeInDays: int64(policy.DeleteAgeDays),
			},
		}
		if len(policy.DeleteMatchesSuffix) > 0 {
			rule.Condition.MatchesSuffixes = policy.DeleteMatchesSuffix
		}
		attrs.Lifecycle.Rules = append(attrs.Lifecycle.Rules, rule)
	}

	if err := bucket.Create(ctx, m.project, attrs); err != nil {
		return fmt.Errorf("gcs: create %s: %w", name, err)
	}
	return nil
}

func (m *GCSBucketManager) CountObjects(ctx context.Context, name string) (int, error) {
	it := m.client.Bucket(name).Objects(ctx, nil)
	count := 0
	for {
		_, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("gcs: list objects in %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

func (m *GCSBucketManager) DeleteObjects(ctx context.Context, name string) error {
	bucket := m.client.Bucket(name)
	it := bucket.Objects(ctx, nil)
	for {
		obj, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("gcs: list objects in %s: %w", name, err)
		}
		if err := bucket.Object(obj.Name).Delete(ctx); err != nil {
			return fmt.Errorf("gcs: delete object %s/%s: %w", name, obj.Name, err)
		}
	}
	return nil
}

// ForceDelete deletes every object left in the bucket, then the bucket
// itself.
func (m *GCSBucketManager) ForceDelete(ctx context.Context, name string) error {
	if err := m.DeleteObjects(ctx, name); err != nil {
		return err
	}
	if err := m.client.Bucket(name).Delete(ctx); err != nil {
		return fmt.Errorf("gcs: delete bucket %s: %w", name, err)
	}
	return nil
}

// ListBuckets lists every bucket in the project whose name starts with
// prefix, for the GC sweep.
func (m *GCSBucketManager) ListBuckets(ctx context.Context, project, prefix string) ([]BucketInfo, error) {
	it := m.client.Buckets(ctx, project)
	it.Prefix = prefix

	var buckets []BucketInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list buckets with prefix %s: %w", prefix, err)
		}
		buckets = append(buckets, BucketInfo{Name: attrs.Name, Created: attrs.Created})
	}
	return buckets, nil
}

// Close releases the underlying GCS client.
func (m *GCSBucketManager) Close() error {
	return m.client.Close()
}
