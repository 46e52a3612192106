package ipc

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordCall("add", 10*time.Millisecond, true)
	m.RecordCall("add", 30*time.Millisecond, false)
	m.RecordCall("sub", 5*time.Millisecond, true)

	s, ok := m.Stats("add")
	if !ok {
		t.Fatalf("add should have stats")
	}
	if s.Calls != 2 || s.Errors != 1 || s.Min != 10*time.Millisecond || s.Max != 30*time.Millisecond {
		t.Errorf("add stats: %+v", s)
	}
	if s.Avg() != 20*time.Millisecond {
		t.Errorf("add avg: got %v, want 20ms", s.Avg())
	}
	if _, ok := m.Stats("missing"); ok {
		t.Errorf("missing should have no stats")
	}

	snap := m.Snapshot()
	if snap.TotalCalls != 3 || snap.TotalErrors != 1 || len(snap.Methods) != 2 {
		t.Errorf("snapshot: %+v", snap)
	}
	if got := m.Var().String(); got == "" {
		t.Errorf("expvar should not be empty")
	}

	m.Reset()
	if snap := m.Snapshot(); snap.TotalCalls != 0 || len(snap.Methods) != 0 {
		t.Errorf("snapshot after reset: %+v", snap)
	}
	if (MethodStats{}).Avg() != 0 {
		t.Errorf("avg without calls should be 0")
	}
}
