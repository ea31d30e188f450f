// Package config loads the daemon's immutable configuration snapshot from
// the process environment. It is a pure leaf: nothing else in this module
// reads os.Getenv directly.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

// Namespace is the cluster logical partition a job's resources are created
// in.
type Namespace string

const (
	NamespaceDev  Namespace = "intervene-dev"
	NamespaceTest Namespace = "intervene-test"
	NamespaceProd Namespace = "intervene-prod"
)

// Settings is the read-only configuration snapshot (C1). It is built once
// at startup via Load and never mutated afterwards; every component that
// needs configuration receives a *Settings value rather than reading the
// environment itself, per the "pass a context object" design note.
type Settings struct {
	// HelmChartPath is the directory containing the workflow chart.
	HelmChartPath string `env:"HELM_CHART_PATH,required"`

	// BusBootstrapURL is the bus cluster's bootstrap address.
	BusBootstrapURL string `env:"BUS_BOOTSTRAP_URL,required"`
	// LaunchTopic is the inbound topic the consumer reads from.
	LaunchTopic string `env:"LAUNCH_TOPIC" envDefault:"pipeline-launch"`
	// StatusTopic is the outbound topic the producer publishes to.
	StatusTopic string `env:"STATUS_TOPIC" envDefault:"pipeline-status"`
	// ConsumerGroup is the bus consumer-group id.
	ConsumerGroup string `env:"CONSUMER_GROUP" envDefault:"vattid"`

	// PlatformToken authenticates calls to the workflow-platform API.
	PlatformToken string `env:"PLATFORM_TOKEN,required"`
	// PlatformWorkspace is the workflow-platform workspace id.
	PlatformWorkspace string `env:"PLATFORM_WORKSPACE,required"`
	// PlatformRoot is the workflow-platform API root URL.
	PlatformRoot string `env:"PLATFORM_ROOT" envDefault:"https://api.cloud.seqera.io"`

	// GCPProject is the cloud project new buckets are created in.
	GCPProject string `env:"GCP_PROJECT"`
	// GCPLocation is the region/multi-region new buckets are created in.
	GCPLocation string `env:"GCP_LOCATION"`

	// Namespace selects the cluster partition and the bucket-name prefix.
	Namespace Namespace `env:"NAMESPACE" envDefault:"intervene-dev"`

	// MinOverlap is the minimum target/reference variant overlap fraction
	// accepted by chart rendering, in [0,1].
	MinOverlap float64 `env:"MIN_OVERLAP" envDefault:"0.01"`

	// PollIntervalSeconds is how often the notification bridge polls the
	// workflow platform.
	PollIntervalSeconds int `env:"POLL_INTERVAL" envDefault:"60"`
	// TimeoutSeconds bounds how long a Requested or Created job may remain
	// active before the undeployed-timeout sweep fails it.
	TimeoutSeconds int `env:"TIMEOUT_SECONDS" envDefault:"86400"`
	// DeployedTimeoutSeconds is the (typically much larger) bound applied
	// only to jobs already in the Deployed state.
	DeployedTimeoutSeconds int `env:"DEPLOYED_TIMEOUT_SECONDS" envDefault:"604800"`

	// DBPath is the path to the embedded job store database file.
	DBPath string `env:"DB_PATH" envDefault:"vattid.db"`

	// MaxConcurrentJobs bounds how many active jobs the consumer will
	// admit before back-pressuring.
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS" envDefault:"50"`
	// MaxBusFails is the number of consumer/producer failures, counted
	// over the scheduler's lifetime, that it tolerates; once the count
	// exceeds it the scheduler stops.
	MaxBusFails int `env:"MAX_BUS_FAILS" envDefault:"5"`

	// GlobusDomain, GlobusClientID, GlobusClientSecret, GlobusScopes are
	// forwarded into rendered chart values; the daemon never calls
	// Globus itself.
	GlobusDomain       string `env:"GLOBUS_DOMAIN,required"`
	GlobusClientID     string `env:"GLOBUS_CLIENT_ID,required"`
	GlobusClientSecret string `env:"GLOBUS_CLIENT_SECRET,required"`
	GlobusScopes       string `env:"GLOBUS_SCOPES,required"`

	// NotifyURL and NotifyToken authenticate the backend notification
	// sink forwarded into chart values.
	NotifyURL   string `env:"NOTIFY_URL,required"`
	NotifyToken string `env:"NOTIFY_TOKEN,required"`
}

// Load parses Settings from the process environment.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if s.MinOverlap < 0 || s.MinOverlap > 1 {
		return nil, fmt.Errorf("config: MIN_OVERLAP must be in [0,1], got %v", s.MinOverlap)
	}
	if s.PollIntervalSeconds <= 0 {
		return nil, fmt.Errorf("config: POLL_INTERVAL must be > 0, got %d", s.PollIntervalSeconds)
	}
	if s.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: TIMEOUT_SECONDS must be > 0, got %d", s.TimeoutSeconds)
	}
	if s.DeployedTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: DEPLOYED_TIMEOUT_SECONDS must be > 0, got %d", s.DeployedTimeoutSeconds)
	}
	if s.MaxConcurrentJobs <= 0 {
		return nil, fmt.Errorf("config: MAX_CONCURRENT_JOBS must be > 0, got %d", s.MaxConcurrentJobs)
	}
	switch s.Namespace {
	case NamespaceDev, NamespaceTest, NamespaceProd:
	default:
		return nil, fmt.Errorf("config: NAMESPACE must be one of dev/test/prod, got %q", s.Namespace)
	}
	return &s, nil
}
