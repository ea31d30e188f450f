package metrics

import (
	dto "github.com/prometheus/client_model/go"
)

// counterValue reads the current value of a counter without requiring the
// HTTP exporter or a testing import.
func counterValue(c interface {
	Write(*dto.Metric) error
}) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	if m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// Snapshot is a point-in-time read of the counters the scheduler logs
// periodically.
type Snapshot struct {
	JobsCreated   float64
	JobsFailed    float64
	JobsSucceeded float64
	BusFailures   float64
	BucketsGCed   float64
}

// TakeSnapshot reads every counter's current value.
func TakeSnapshot() Snapshot {
	return Snapshot{
		JobsCreated:   counterValue(JobsCreatedTotal),
		JobsFailed:    counterValue(JobsFailedTotal),
		JobsSucceeded: counterValue(JobsSucceededTotal),
		BusFailures:   counterValue(BusFailuresTotal),
		BucketsGCed:   counterValue(BucketsDeletedTotal),
	}
}
