package netcoord

import (
	"fmt"
	"sync/atomic"

	"hyquery/pkg/config"
	"hyquery/pkg/logger"
	"hyquery/pkg/telemetry"
)

type logLevel int

const (
	levelError logLevel = iota
	levelWarn
	levelInfo
	levelDebug
)

func levelFromConfig(raw string) logLevel {
	switch raw {
	case config.LevelError:
		return levelError
	case config.LevelWarn:
		return levelWarn
	case config.LevelDebug:
		return levelDebug
	default:
		return levelInfo
	}
}

// Observability filters coordinator logging to the configured level and
// keeps cheap counters for the periodic metrics summary. Counters are
// mirrored into the Prometheus registry.
type Observability struct {
	level          logLevel
	metricsEnabled bool
	detailed       bool

	publishAttempts atomic.Int64
	publishSuccess  atomic.Int64
	publishFailures atomic.Int64

	readAttempts atomic.Int64
	readSuccess  atomic.Int64
	readFailures atomic.Int64

	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	staleEvictions atomic.Int64
	snapshotsRead  atomic.Int64

	totalReadLatencyMillis    atomic.Int64
	totalPublishLatencyMillis atomic.Int64

	statusAccepted atomic.Int64
	statusRejected atomic.Int64
}

func NewObservability(cfg *config.ObservabilityConfig) *Observability {
	o := &Observability{level: levelInfo, metricsEnabled: true}
	if cfg != nil {
		o.level = levelFromConfig(cfg.LogLevel)
		o.metricsEnabled = cfg.MetricsOn()
		o.detailed = cfg.MetricsDetail == config.DetailDetailed
	}
	return o
}

func (o *Observability) MetricsEnabled() bool { return o.metricsEnabled }

func (o *Observability) Error(msg string, args ...any) {
	if o.level >= levelError {
		logger.Error(msg, args...)
	}
}

func (o *Observability) Warn(msg string, args ...any) {
	if o.level >= levelWarn {
		logger.Warn(msg, args...)
	}
}

func (o *Observability) Info(msg string, args ...any) {
	if o.level >= levelInfo {
		logger.Info(msg, args...)
	}
}

func (o *Observability) Debug(msg string, args ...any) {
	if o.level >= levelDebug {
		logger.Debug(msg, args...)
	}
}

func (o *Observability) RecordPublishAttempt() {
	o.inc(&o.publishAttempts)
	telemetry.PublishTotal.WithLabelValues("attempt").Inc()
}

func (o *Observability) RecordPublishSuccess(latencyMillis int64) {
	o.inc(&o.publishSuccess)
	o.add(&o.totalPublishLatencyMillis, latencyMillis)
	telemetry.PublishTotal.WithLabelValues("success").Inc()
}

func (o *Observability) RecordPublishFailure() {
	o.inc(&o.publishFailures)
	telemetry.PublishTotal.WithLabelValues("failure").Inc()
}

func (o *Observability) RecordReadAttempt() {
	o.inc(&o.readAttempts)
	telemetry.ReadTotal.WithLabelValues("attempt").Inc()
}

func (o *Observability) RecordReadSuccess(snapshotCount int, latencyMillis int64) {
	o.inc(&o.readSuccess)
	o.add(&o.snapshotsRead, int64(snapshotCount))
	o.add(&o.totalReadLatencyMillis, latencyMillis)
	telemetry.ReadTotal.WithLabelValues("success").Inc()
}

func (o *Observability) RecordReadFailure() {
	o.inc(&o.readFailures)
	telemetry.ReadTotal.WithLabelValues("failure").Inc()
}

func (o *Observability) RecordCacheHit() {
	o.inc(&o.cacheHits)
	telemetry.AggregateCacheEvents.WithLabelValues("hit").Inc()
}

func (o *Observability) RecordCacheMiss() {
	o.inc(&o.cacheMisses)
	telemetry.AggregateCacheEvents.WithLabelValues("miss").Inc()
}

func (o *Observability) RecordStaleEvictions(count int64) {
	o.add(&o.staleEvictions, count)
	if count > 0 {
		telemetry.StaleEvictions.Add(float64(count))
	}
}

func (o *Observability) RecordStatusAccepted() {
	o.inc(&o.statusAccepted)
}

func (o *Observability) RecordStatusRejected() {
	o.inc(&o.statusRejected)
}

// MetricsSummary renders the counters as a single log-friendly line.
func (o *Observability) MetricsSummary() string {
	if !o.metricsEnabled {
		return "metrics=disabled"
	}

	base := fmt.Sprintf(
		"publishes=%d/%d publishFailures=%d reads=%d/%d readFailures=%d"+
			" cacheHits=%d cacheMisses=%d staleEvictions=%d snapshotsRead=%d"+
			" statusAccepted=%d statusRejected=%d",
		o.publishSuccess.Load(), o.publishAttempts.Load(), o.publishFailures.Load(),
		o.readSuccess.Load(), o.readAttempts.Load(), o.readFailures.Load(),
		o.cacheHits.Load(), o.cacheMisses.Load(),
		o.staleEvictions.Load(), o.snapshotsRead.Load(),
		o.statusAccepted.Load(), o.statusRejected.Load(),
	)
	if o.detailed {
		base += fmt.Sprintf(" avgReadLatencyMs=%d avgPublishLatencyMs=%d",
			o.totalReadLatencyMillis.Load()/max(1, o.readSuccess.Load()),
			o.totalPublishLatencyMillis.Load()/max(1, o.publishSuccess.Load()))
	}
	return base
}

func (o *Observability) inc(c *atomic.Int64) {
	if o.metricsEnabled {
		c.Add(1)
	}
}

func (o *Observability) add(c *atomic.Int64, v int64) {
	if o.metricsEnabled && v > 0 {
		c.Add(v)
	}
}
