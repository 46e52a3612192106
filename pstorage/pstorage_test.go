/*
 * Project: ipc-lite
 * ---------------------
 * Authors:
 *   Minjian Chen 813534
 *   Shijie Liu   813277
 *   Weizhi Xu    752454
 *   Wenqing Xue  813044
 *   Zijun Chen   813190
 */

package pstorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/pkg/errors"
)

type testStruct struct {
	Str string
	Int int
}

func init() {
	codec.Register(testStruct{})
}

// test memory based persistent storage initialization
func TestMemoryBased(t *testing.T) {
	for _, c := range []codec.Codec{nil, codec.Gob, codec.Msgpack} {
		testPersistentStorage(t, NewMemoryBasedPersistentStorage(c))
	}
}

// test file based persistent storage initialization
func TestFileBased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tests")
	m := NewFileBasedPersistentStorage(path, nil)
	testPersistentStorage(t, m)

	// a second storage on the same file sees the value
	var data testStruct
	hasData, err := NewFileBasedPersistentStorage(path, nil).Load(&data)
	checkNoError(t, err)
	if !hasData || data.Str != "ABC" {
		t.Errorf("Reloaded data: %v, %v", hasData, data)
	}
}

// test hybrid based persistent storage initialization
func TestHybridBased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tests")
	m := NewHybridPersistentStorage(path, time.Hour, nil, nil)
	testPersistentStorage(t, m)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Nothing should be written before a flush: %v", err)
	}
	checkNoError(t, m.Stop())
	checkNoError(t, m.Stop())
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Stop should flush: %v", err)
	}
}

func TestStatsRecorder(t *testing.T) {
	network := rpccore.NewChanNetwork()
	defer network.Shutdown()
	node, err := ipc.New(ipc.WithNodeID("stats"), ipc.WithConnector(network.Named("stats")))
	checkNoError(t, err)
	node.MustRegister("ping", func() string { return "pong" })
	checkNoError(t, node.Connect(context.Background()))
	defer node.Disconnect()

	path := filepath.Join(t.TempDir(), "stats")
	storage := NewHybridPersistentStorage(path, 10*time.Millisecond, nil, nil)
	r := NewStatsRecorder(node, storage, 10*time.Millisecond)
	r.Start()
	for i := 0; i < 3; i++ {
		_, err := node.Call(context.Background(), "stats", "ping")
		checkNoError(t, err)
	}
	checkNoError(t, r.Stop())
	checkNoError(t, storage.Stop())

	s, ok, err := LoadStats(NewFileBasedPersistentStorage(path, nil))
	checkNoError(t, err)
	if !ok {
		t.Fatal("Stats should be saved.")
	}
	if s.NodeID != "stats" || s.Served.TotalCalls != 3 || s.Called.Methods["stats.ping"].Calls != 3 {
		t.Errorf("Unexpected stats: %+v", s)
	}
}

func TestStatsRecorderStopUnstarted(t *testing.T) {
	network := rpccore.NewChanNetwork()
	defer network.Shutdown()
	node, err := ipc.New(ipc.WithNodeID("idle"), ipc.WithConnector(network.Named("idle")))
	checkNoError(t, err)

	storage := NewMemoryBasedPersistentStorage(nil)
	r := NewStatsRecorder(node, storage, time.Hour)
	stopped := make(chan error, 1)
	go func() { stopped <- r.Stop() }()
	select {
	case err := <-stopped:
		checkNoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop without Start should not block.")
	}
	// a late Start must not revive the loop
	r.Start()
	checkNoError(t, r.Stop())

	s, ok, err := LoadStats(storage)
	checkNoError(t, err)
	if !ok || s.NodeID != "idle" {
		t.Errorf("Stop should record once: ok=%v stats=%+v", ok, s)
	}
}

// check with errors
func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("Shouldn't be an error: %+v", errors.WithStack(err))
	}
}

// test save and load persistent storage
func testPersistentStorage(t *testing.T, p PersistentStorage) {
	var data testStruct
	hasData, err := p.Load(&data)
	checkNoError(t, err)
	if hasData {
		t.Error("Should be empty.")
	}
	data.Int = 123
	data.Str = "ABC"
	// test save
	err = p.Save(data)
	checkNoError(t, err)
	// test load, twice
	for i := 0; i < 2; i++ {
		var data2 testStruct
		hasData, err = p.Load(&data2)
		checkNoError(t, err)
		if !hasData {
			t.Error("Shouldn't be empty.")
		}
		if data != data2 {
			t.Errorf("Data should be the same, data1: %v, data2: %v", data, data2)
		}
	}
}
