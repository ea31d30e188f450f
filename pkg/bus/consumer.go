// Package bus implements the Bus Consumer (C6) and Bus Producer (C7): the
// two long-running workers bridging the daemon to the Kafka-style launch
// and status topics.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/messages"
	"github.com/ebi-gdp/vattid/pkg/metrics"
	"github.com/ebi-gdp/vattid/pkg/notify"
	"github.com/ebi-gdp/vattid/pkg/resources"
	"github.com/ebi-gdp/vattid/pkg/statemachine"
)

// JobStore is the subset of *store.Store the consumer needs, kept small so
// tests can substitute a fake.
type JobStore interface {
	ActiveJobCount(ctx context.Context) (int, error)
	Insert(ctx context.Context, job *statemachine.Job) error
}

// HandlerFactory builds a fresh resources.Handler for a newly admitted job.
type HandlerFactory func(jobID string) resources.Handler

// Consumer reads launch-topic messages with manual offset commit and a
// consumer-group id, admitting new jobs under a concurrency cap.
type Consumer struct {
	Reader            *kafkago.Reader
	Store             JobStore
	NewHandler        HandlerFactory
	NotifyFunc        func(notify.Message)
	MaxConcurrentJobs int

	// NotOK is set when the consumer hits an unrecoverable bus error, so
	// the scheduler can restart it.
	NotOK atomic.Bool
}

// Run blocks, iterating the launch topic until ctx is cancelled or an
// unrecoverable bus error occurs. Each message results in exactly one
// offset commit, whether accepted or rejected.
func (c *Consumer) Run(ctx context.Context) error {
	logger := log.WithComponent("bus.consumer")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := c.waitForCapacity(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("active job count failed, consumer exiting")
			return fmt.Errorf("bus: check capacity: %w", err)
		}

		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.NotOK.Store(true)
			logger.Error().Err(err).Msg("bus read failed, consumer exiting")
			return fmt.Errorf("bus: fetch message: %w", err)
		}

		c.process(ctx, msg)

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			c.NotOK.Store(true)
			logger.Error().Err(err).Msg("bus commit failed, consumer exiting")
			return fmt.Errorf("bus: commit message: %w", err)
		}
	}
}

// waitForCapacity sleeps while the store reports at-or-over the
// concurrency cap; the back-pressure testable property requires no
// message is processed while active_jobs() >= MAX_CONCURRENT_JOBS.
func (c *Consumer) waitForCapacity(ctx context.Context) error {
	for {
		active, err := c.Store.ActiveJobCount(ctx)
		if err != nil {
			return err
		}
		if active < c.MaxConcurrentJobs {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// process decodes, validates, and admits a single message. Any failure is
// logged and swallowed here; the caller always commits the offset.
func (c *Consumer) process(ctx context.Context, msg kafkago.Message) {
	logger := log.WithComponent("bus.consumer")

	var req messages.JobRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		logger.Warn().Err(err).Msg("discarding launch message: invalid JSON")
		return
	}

	if err := req.Validate(); err != nil {
		logger.Error().Err(err).Msg("discarding launch message: schema validation failed")
		return
	}

	id := req.PipelineParam.ID
	handler := c.NewHandler(id)
	job := statemachine.New(id, handler, c.NotifyFunc)

	if err := job.Fire(ctx, jobstate.TriggerCreate, &req); err != nil {
		log.WithJobID(id).Error().Err(err).Msg("discarding launch message: create trigger failed")
		return
	}

	if err := c.Store.Insert(ctx, job); err != nil {
		log.WithJobID(id).Error().Err(err).Msg("discarding launch message: store insert failed")
		return
	}
	metrics.JobsCreatedTotal.Inc()
}
