package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ebi-gdp/vattid/pkg/bus"
	"github.com/ebi-gdp/vattid/pkg/gc"
	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/metrics"
	"github.com/ebi-gdp/vattid/pkg/platform"
	"github.com/ebi-gdp/vattid/pkg/store"
)

const (
	timeoutSweepInterval         = time.Minute
	deployedTimeoutSweepInterval = time.Minute
	bucketGCInterval             = time.Hour
)

// busRestartBackoff is a var, not a const, so tests can shrink it.
var busRestartBackoff = 5 * time.Second

// Config bounds the scheduler's timing and bus-failure tolerance.
type Config struct {
	PollInterval            time.Duration
	TimeoutSeconds          int
	DeployedTimeoutSeconds  int
	MaxBusFails             int
	BucketGCProject         string
	BucketGCNamespacePrefix string
}

// Scheduler runs the daemon's ticking sweeps (job timeouts, platform
// poll-and-update, bucket GC) and supervises the bus consumer and
// producer, restarting either if it exits and giving up the process once
// too many bus failures accumulate.
type Scheduler struct {
	Store    *store.Store
	Bridge   *platform.Bridge
	Consumer *bus.Consumer
	Producer *bus.Producer
	GC       *gc.BucketCleaner
	Config   Config

	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	busFails int

	lastTimeoutSweep    time.Time
	lastDeployedTimeout time.Time
	lastPoll            time.Time
	lastBucketGC        time.Time
}

// New builds a Scheduler. Callers fill in Store/Bridge/Consumer/Producer/
// GC and Config before calling Start.
func New() *Scheduler {
	return &Scheduler{
		logger: log.WithComponent("scheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the 1-second tick loop and the bus worker supervisors.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	go s.superviseConsumer(ctx)
	go s.superviseProducer(ctx)
}

// Stop signals every loop started by Start to return.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	now := time.Now()
	s.lastTimeoutSweep = now
	s.lastDeployedTimeout = now
	s.lastPoll = now
	s.lastBucketGC = now

	s.logger.Info().Msg("scheduler started")

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	if now.Sub(s.lastTimeoutSweep) >= timeoutSweepInterval {
		s.lastTimeoutSweep = now
		s.runSweep("timeout_jobs", func() error {
			return s.Store.TimeoutJobs(ctx, s.Config.TimeoutSeconds)
		})
	}

	if now.Sub(s.lastDeployedTimeout) >= deployedTimeoutSweepInterval {
		s.lastDeployedTimeout = now
		s.runSweep("timeout_deployed_jobs", func() error {
			return s.Store.TimeoutDeployedJobs(ctx, s.Config.DeployedTimeoutSeconds)
		})
	}

	if now.Sub(s.lastPoll) >= s.Config.PollInterval {
		s.lastPoll = now
		s.runSweep("poll_and_update", func() error {
			s.Bridge.Tick(ctx)
			return nil
		})
	}

	if now.Sub(s.lastBucketGC) >= bucketGCInterval {
		s.lastBucketGC = now
		s.runSweep("bucket_gc", func() error {
			if s.GC == nil {
				return nil
			}
			return s.GC.Clean(ctx, s.Config.BucketGCProject, s.Config.BucketGCNamespacePrefix)
		})
	}
}

func (s *Scheduler) runSweep(name string, fn func() error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SweepDuration, name)

	if err := fn(); err != nil {
		s.logger.Error().Err(err).Str("sweep", name).Msg("sweep failed")
		return
	}

	snap := metrics.TakeSnapshot()
	s.logger.Debug().
		Str("sweep", name).
		Float64("jobs_created", snap.JobsCreated).
		Float64("jobs_failed", snap.JobsFailed).
		Float64("jobs_succeeded", snap.JobsSucceeded).
		Float64("bus_failures", snap.BusFailures).
		Msg("sweep complete")
}

// superviseConsumer runs the bus consumer, restarting it after a backoff
// whenever it exits, and tallying a bus failure each time.
func (s *Scheduler) superviseConsumer(ctx context.Context) {
	s.superviseWorker(ctx, "consumer", func(ctx context.Context) error {
		return s.Consumer.Run(ctx)
	})
}

// superviseProducer mirrors superviseConsumer for the bus producer.
func (s *Scheduler) superviseProducer(ctx context.Context) {
	s.superviseWorker(ctx, "producer", func(ctx context.Context) error {
		return s.Producer.Run(ctx)
	})
}

func (s *Scheduler) superviseWorker(ctx context.Context, name string, run func(context.Context) error) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}

		metrics.BusFailuresTotal.Inc()
		count := s.recordBusFail()
		s.logger.Error().Err(err).Str("worker", name).Int("failures", count).Msg("bus worker exited, restarting")

		if s.Config.MaxBusFails > 0 && count > s.Config.MaxBusFails {
			s.logger.Error().Str("worker", name).Int("failures", count).Msg("bus failure budget exhausted, stopping daemon")
			s.Stop()
			return
		}

		select {
		case <-time.After(busRestartBackoff):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) recordBusFail() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busFails++
	return s.busFails
}
