package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConnectionGaugeAddsDelta(t *testing.T) {
	m := New()
	gauge := m.ConnectionGauge()
	gauge(1)
	gauge(1)
	gauge(-1)

	if got := testutil.ToFloat64(m.ActiveSMTPConnections); got != 1 {
		t.Errorf("ActiveSMTPConnections = %v, want 1", got)
	}
}

func TestCountersStartAtZero(t *testing.T) {
	m := New()
	if got := testutil.ToFloat64(m.MessagesIngested); got != 0 {
		t.Errorf("MessagesIngested = %v, want 0", got)
	}
	m.MessagesIngested.Inc()
	if got := testutil.ToFloat64(m.MessagesIngested); got != 1 {
		t.Errorf("MessagesIngested = %v, want 1", got)
	}
}
