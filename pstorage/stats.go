package pstorage

import (
	"sync"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/sirupsen/logrus"
)

func init() {
	codec.Register(Stats{})
}

// Stats is what a StatsRecorder saves.
type Stats struct {
	NodeID  string
	SavedAt time.Time
	Served  ipc.Snapshot
	Called  ipc.Snapshot
}

// LoadStats reads the stats saved in p.
func LoadStats(p PersistentStorage) (Stats, bool, error) {
	var s Stats
	ok, err := p.Load(&s)
	return s, ok, err
}

// StatsRecorder saves the metrics of a node every interval.
type StatsRecorder struct {
	node     *ipc.Node
	storage  PersistentStorage
	interval time.Duration
	logger   *logrus.Entry

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewStatsRecorder(node *ipc.Node, storage PersistentStorage, interval time.Duration) *StatsRecorder {
	return &StatsRecorder{
		node:     node,
		storage:  storage,
		interval: interval,
		logger:   node.Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Record saves the current metrics once.
func (r *StatsRecorder) Record() error {
	return r.storage.Save(Stats{
		NodeID:  r.node.ID(),
		SavedAt: time.Now(),
		Served:  r.node.Metrics().Snapshot(),
		Called:  r.node.CallMetrics().Snapshot(),
	})
}

// Start runs the recording loop. Starting twice, or after Stop, does nothing.
func (r *StatsRecorder) Start() {
	r.startOnce.Do(func() { go r.loop() })
}

func (r *StatsRecorder) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Record(); err != nil {
				r.logger.Warnf("Unable to record stats: %v", err)
			}
		case <-r.stop:
			return
		}
	}
}

// Stop ends the recording loop, if it ever ran, and records a last time.
func (r *StatsRecorder) Stop() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.startOnce.Do(func() { close(r.done) })
	<-r.done
	return r.Record()
}
