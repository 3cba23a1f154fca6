package netcoord

import (
	"strings"
	"testing"

	"hyquery/pkg/config"
)

func TestMetricsSummaryBasic(t *testing.T) {
	o := NewObservability(&config.ObservabilityConfig{LogLevel: config.LevelError})
	o.RecordPublishAttempt()
	o.RecordPublishSuccess(12)
	o.RecordReadAttempt()
	o.RecordReadSuccess(3, 8)
	o.RecordCacheHit()
	o.RecordCacheMiss()
	o.RecordStaleEvictions(2)
	o.RecordStatusAccepted()

	got := o.MetricsSummary()
	want := "publishes=1/1 publishFailures=0 reads=1/1 readFailures=0" +
		" cacheHits=1 cacheMisses=1 staleEvictions=2 snapshotsRead=3" +
		" statusAccepted=1 statusRejected=0"
	if got != want {
		t.Fatalf("summary mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestMetricsSummaryDetailed(t *testing.T) {
	o := NewObservability(&config.ObservabilityConfig{
		LogLevel:      config.LevelError,
		MetricsDetail: config.DetailDetailed,
	})
	o.RecordReadSuccess(1, 10)
	o.RecordReadSuccess(1, 20)
	o.RecordPublishSuccess(6)

	got := o.MetricsSummary()
	if !strings.Contains(got, "avgReadLatencyMs=15") {
		t.Fatalf("average read latency missing or wrong: %q", got)
	}
	if !strings.Contains(got, "avgPublishLatencyMs=6") {
		t.Fatalf("average publish latency missing or wrong: %q", got)
	}
}

func TestMetricsSummaryDisabled(t *testing.T) {
	off := false
	o := NewObservability(&config.ObservabilityConfig{
		LogLevel:       config.LevelError,
		MetricsEnabled: &off,
	})
	o.RecordPublishAttempt()
	if got := o.MetricsSummary(); got != "metrics=disabled" {
		t.Fatalf("summary = %q, want metrics=disabled", got)
	}
}
