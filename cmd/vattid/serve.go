package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/ebi-gdp/vattid/pkg/bus"
	"github.com/ebi-gdp/vattid/pkg/config"
	"github.com/ebi-gdp/vattid/pkg/gc"
	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/notify"
	"github.com/ebi-gdp/vattid/pkg/platform"
	"github.com/ebi-gdp/vattid/pkg/resources"
	"github.com/ebi-gdp/vattid/pkg/scheduler"
	"github.com/ebi-gdp/vattid/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vattid daemon: consume launch requests and drive jobs to completion",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buckets, err := resources.NewGCSBucketManager(ctx, settings.GCPProject)
	if err != nil {
		return fmt.Errorf("new GCS client: %w", err)
	}
	charts := resources.NewHelmInstaller()

	notifications := make(chan notify.Message, 256)
	notifyFunc := func(msg notify.Message) { notifications <- msg }

	storeHandlerFactory := func(jobID string, state resources.HandlerState) resources.Handler {
		return resources.RestoreCloudHandler(jobID, settings, buckets, charts, resources.Render, state)
	}

	db, err := store.Open(settings.DBPath, storeHandlerFactory, notifyFunc)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer db.Close()
	if err := db.Create(ctx); err != nil {
		return fmt.Errorf("create job store schema: %w", err)
	}

	busHandlerFactory := bus.HandlerFactory(func(jobID string) resources.Handler {
		return resources.NewCloudHandler(jobID, settings, buckets, charts, resources.Render)
	})

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{settings.BusBootstrapURL},
		Topic:   settings.LaunchTopic,
		GroupID: settings.ConsumerGroup,
	})
	defer reader.Close()

	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(settings.BusBootstrapURL),
		Topic:    settings.StatusTopic,
		Balancer: &kafkago.LeastBytes{},
	}
	defer writer.Close()

	consumer := &bus.Consumer{
		Reader:            reader,
		Store:             db,
		NewHandler:        busHandlerFactory,
		NotifyFunc:        notifyFunc,
		MaxConcurrentJobs: settings.MaxConcurrentJobs,
	}
	producer := &bus.Producer{
		Writer:        writer,
		Notifications: notifications,
	}

	platformClient := platform.NewClient(settings.PlatformRoot, settings.PlatformToken, settings.PlatformWorkspace)
	bridge := platform.NewBridge(platformClient, string(settings.Namespace), db)

	bucketCleaner := gc.NewBucketCleaner(buckets, buckets)

	sched := scheduler.New()
	sched.Store = db
	sched.Bridge = bridge
	sched.Consumer = consumer
	sched.Producer = producer
	sched.GC = bucketCleaner
	sched.Config = scheduler.Config{
		PollInterval:            time.Duration(settings.PollIntervalSeconds) * time.Second,
		TimeoutSeconds:          settings.TimeoutSeconds,
		DeployedTimeoutSeconds:  settings.DeployedTimeoutSeconds,
		MaxBusFails:             settings.MaxBusFails,
		BucketGCProject:         settings.GCPProject,
		BucketGCNamespacePrefix: string(settings.Namespace) + "-",
	}

	logger := log.WithComponent("main")
	logger.Info().Str("namespace", string(settings.Namespace)).Msg("vattid starting")

	sched.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	sched.Stop()
	cancel()

	return nil
}

