package core

import (
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := NewPrometheusMetricsRecorder(reg)

	s := NewSession("s1", scenarioBaseline(t), nil, WithSessionMetrics(recorder))
	if _, err := s.SetAreaCutoff(50); err != nil {
		t.Fatalf("set cutoff: %v", err)
	}
	if _, err := s.SetAreaCutoff(500); err == nil {
		t.Fatalf("expected invalid cutoff")
	}
	recorder.Observe("", true, time.Second)

	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(OpSetAreaCutoff, "success")); got != 1 {
		t.Fatalf("expected one success, got %g", got)
	}
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues(OpSetAreaCutoff, "error")); got != 1 {
		t.Fatalf("expected one error, got %g", got)
	}
	if n := testutil.CollectAndCount(recorder.durations); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
	if n, err := testutil.GatherAndCount(reg, "tapeview_live_set_rows"); err != nil || n != 1 {
		t.Fatalf("expected live row histogram, got %d err=%v", n, err)
	}
}

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatalf("expected recorder to have export name")
	}
	recorder.Observe(OpSetAreaCutoff, true, 10*time.Millisecond)
	recorder.Observe(OpSetAreaCutoff, false, 5*time.Millisecond)
	recorder.ObserveLiveRows(42)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS[OpSetAreaCutoff] <= 0 {
		t.Fatalf("expected positive duration, snapshot=%+v", snapshot)
	}
	if snapshot.Results[OpSetAreaCutoff]["success"] != 1 || snapshot.Results[OpSetAreaCutoff]["error"] != 1 {
		t.Fatalf("unexpected results snapshot=%+v", snapshot)
	}
	if snapshot.LastLiveRows != 42 {
		t.Fatalf("expected last live rows 42, got %d", snapshot.LastLiveRows)
	}

	if v := expvar.Get(recorder.Name()); v == nil {
		t.Fatalf("expected expvar export to be registered")
	} else if !strings.Contains(v.String(), OpSetAreaCutoff) {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}
