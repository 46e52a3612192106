package pstorage

import (
	"bytes"
	"sync"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
)

// Hybrid keeps the latest value in memory and writes it to disk
// periodically. Call Stop or Flush before quitting so the file is up to
// date.
type Hybrid struct {
	lock     sync.Mutex
	filepath string
	codec    codec.Codec
	data     []byte
	changed  bool
	logger   *logrus.Entry
	stop     chan struct{}
	stopOnce sync.Once
}

func NewHybridPersistentStorage(filepath string, interval time.Duration, c codec.Codec,
	logger *logrus.Entry) *Hybrid {
	h := &Hybrid{
		filepath: filepath,
		codec:    codecOrDefault(c),
		logger:   logger,
		stop:     make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := h.Flush(); err != nil && logger != nil {
					logger.Errorf("[HybridPStorage] Unable to flush: %v", err)
				}
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

func (h *Hybrid) Save(data interface{}) error {
	buf, err := h.codec.Encode(data)
	if err != nil {
		return err
	}
	h.lock.Lock()
	h.data = buf
	h.changed = true
	h.lock.Unlock()
	return nil
}

func (h *Hybrid) Load(data interface{}) (bool, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.data) != 0 {
		return true, h.codec.Decode(h.data, data)
	}
	return loadFile(h.filepath, h.codec, data)
}

func (h *Hybrid) Flush() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if !h.changed {
		return nil
	}
	if err := atomic.WriteFile(h.filepath, bytes.NewReader(h.data)); err != nil {
		return err
	}
	h.changed = false
	return nil
}

// Stop ends the periodic flush and flushes one last time.
func (h *Hybrid) Stop() error {
	h.stopOnce.Do(func() { close(h.stop) })
	return h.Flush()
}
