package ipc

import (
	"expvar"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Metrics counts calls and their latency per key.
type Metrics struct {
	lock  deadlock.Mutex
	start time.Time
	stats map[string]*MethodStats
}

// MethodStats summarizes the calls recorded under one key.
type MethodStats struct {
	Calls  int64
	Errors int64
	Total  time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Avg is the mean latency, zero without calls.
func (s MethodStats) Avg() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Snapshot is a copy of every counter at one point in time.
type Snapshot struct {
	Uptime      time.Duration
	TotalCalls  int64
	TotalErrors int64
	Methods     map[string]MethodStats
}

func NewMetrics() *Metrics {
	return &Metrics{start: time.Now(), stats: make(map[string]*MethodStats)}
}

// RecordCall adds one call of key that took d.
func (m *Metrics) RecordCall(key string, d time.Duration, ok bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, found := m.stats[key]
	if !found {
		s = &MethodStats{Min: d, Max: d}
		m.stats[key] = s
	}
	s.Calls++
	if !ok {
		s.Errors++
	}
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// Stats returns the counters of key.
func (m *Metrics) Stats(key string) (MethodStats, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.stats[key]
	if !ok {
		return MethodStats{}, false
	}
	return *s, true
}

func (m *Metrics) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	snap := Snapshot{
		Uptime:  time.Since(m.start),
		Methods: make(map[string]MethodStats, len(m.stats)),
	}
	for k, s := range m.stats {
		snap.Methods[k] = *s
		snap.TotalCalls += s.Calls
		snap.TotalErrors += s.Errors
	}
	return snap
}

// Reset drops every counter and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.lock.Lock()
	m.start = time.Now()
	m.stats = make(map[string]*MethodStats)
	m.lock.Unlock()
}

// Var exposes the metrics as an expvar value.
func (m *Metrics) Var() expvar.Var {
	return expvar.Func(func() interface{} { return m.Snapshot() })
}
