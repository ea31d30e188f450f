// Package gc implements the Bucket GC (C9): a periodic sweep that force
// deletes stale work/results buckets a crashed or abandoned job left
// behind.
package gc

import (
	"context"
	"time"

	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/metrics"
	"github.com/ebi-gdp/vattid/pkg/resources"
)

// MaxAge is how old an orphaned bucket must be before the sweep deletes
// it, per spec.md §4.8's 14-day retention.
const MaxAge = 14 * 24 * time.Hour

// BucketCleaner lists and force-deletes stale buckets via a
// resources.BucketLister and resources.BucketManager pair.
type BucketCleaner struct {
	Lister  resources.BucketLister
	Manager resources.BucketManager
}

// NewBucketCleaner builds a cleaner bound to the given lister/manager.
func NewBucketCleaner(lister resources.BucketLister, manager resources.BucketManager) *BucketCleaner {
	return &BucketCleaner{Lister: lister, Manager: manager}
}

// Clean lists every bucket under project matching prefix and force
// deletes any whose creation time predates MaxAge. A failure deleting one
// bucket is logged and does not stop the sweep.
func (c *BucketCleaner) Clean(ctx context.Context, project, prefix string) error {
	return c.CleanOlderThan(ctx, project, prefix, MaxAge)
}

// CleanOlderThan is Clean with an explicit age threshold, exposed for
// testing.
func (c *BucketCleaner) CleanOlderThan(ctx context.Context, project, prefix string, maxAge time.Duration) error {
	buckets, err := c.Lister.ListBuckets(ctx, project, prefix)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	logger := log.WithComponent("gc")

	for _, b := range buckets {
		if b.Created.After(cutoff) {
			continue
		}
		if err := c.Manager.ForceDelete(ctx, b.Name); err != nil {
			logger.Error().Err(err).Str("bucket", b.Name).Msg("bucket GC: force delete failed")
			continue
		}
		metrics.BucketsDeletedTotal.Inc()
		logger.Info().Str("bucket", b.Name).Time("created", b.Created).Msg("bucket GC: deleted stale bucket")
	}
	return nil
}
