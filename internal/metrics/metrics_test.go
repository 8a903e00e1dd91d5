package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil
	jobsTotal = nil
	queueWaitSeconds = nil
	activeWorkers = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		jobsTotal == nil || queueWaitSeconds == nil || activeWorkers == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	// A simple check to see if a metric can be used.
	jobsTotal.WithLabelValues("succeeded").Inc()
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("succeeded")); val != 1 {
		t.Errorf("Expected succeeded jobsTotal to be 1, got %f", val)
	}
}

func TestObserveJob(t *testing.T) {
	Init()
	ObserveJob("failed")
	ObserveJob("failed")
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("failed")); val != 2 {
		t.Errorf("Expected failed jobsTotal to be 2, got %f", val)
	}
}

func TestObserveQueueWait(t *testing.T) {
	Init()
	ObserveQueueWait(250 * time.Millisecond)
	// Clock skew between submit and pickup must not panic.
	ObserveQueueWait(-time.Second)
	if val := testutil.CollectAndCount(queueWaitSeconds); val <= 0 {
		t.Errorf("Expected queueWaitSeconds to be observed, got %d", val)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 1 {
		t.Errorf("Expected activeWorkers to be 1, got %f", val)
	}
}
