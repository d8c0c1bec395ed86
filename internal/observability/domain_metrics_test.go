package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSandboxExecutionCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(sandboxExecutionsTotal.WithLabelValues("timed_out"))
	ObserveSandboxExecution("timed_out", 3*time.Second)
	after := testutil.ToFloat64(sandboxExecutionsTotal.WithLabelValues("timed_out"))
	if after-before != 1 {
		t.Fatalf("timed_out counter delta = %v, want 1", after-before)
	}
}

func TestTrackSandboxInflightReleases(t *testing.T) {
	base := testutil.ToFloat64(sandboxInflight)
	release := TrackSandboxInflight()
	if got := testutil.ToFloat64(sandboxInflight); got != base+1 {
		t.Fatalf("inflight = %v, want %v", got, base+1)
	}
	release()
	if got := testutil.ToFloat64(sandboxInflight); got != base {
		t.Fatalf("inflight after release = %v, want %v", got, base)
	}
}

func TestSetDatasetRowsClampsNegative(t *testing.T) {
	SetDatasetRows(-5)
	if got := testutil.ToFloat64(datasetRows); got != 0 {
		t.Fatalf("dataset rows = %v, want 0", got)
	}
	SetDatasetRows(42)
	if got := testutil.ToFloat64(datasetRows); got != 42 {
		t.Fatalf("dataset rows = %v, want 42", got)
	}
}
