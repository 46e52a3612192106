// Package bench measures call latency between two nodes: Serve exposes the
// benchmark methods, Run and Suite drive them from another node.
package bench

import (
	"context"
	"math/rand"
	"reflect"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/pkg/errors"
)

// ServerID is the node id the benchmark client calls by default.
const ServerID = "perf_server"

// Serve registers the benchmark methods on node:
//
//	echo(x)                       returns x
//	echo_with_delay(x, delay=0)   sleeps delay seconds, returns x
//	cpu_task(n)                   sum of i*i for i < n
//	memory_task(size)             sum of a random size x size matrix
//	io_task(duration)             waits duration seconds without a thread
func Serve(node *ipc.Node) error {
	methods := []struct {
		name string
		fn   interface{}
	}{
		{"echo", func(x interface{}) interface{} { return x }},
		{"echo_with_delay", ipc.Func(echoWithDelay)},
		{"cpu_task", cpuTask},
		{"memory_task", memoryTask},
		{"io_task", ioTask},
	}
	for _, m := range methods {
		if err := node.Register(m.name, m.fn); err != nil {
			return err
		}
	}
	return nil
}

func echoWithDelay(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errors.New("echo_with_delay takes x and an optional delay")
	}
	delay, ok := kwargs["delay"]
	if len(args) == 2 {
		delay, ok = args[1], true
	}
	if ok {
		d, err := seconds(delay)
		if err != nil {
			return nil, err
		}
		time.Sleep(d)
	}
	return args[0], nil
}

func cpuTask(n int) int64 {
	var result int64
	for i := int64(0); i < int64(n); i++ {
		result += i * i
	}
	return result
}

func memoryTask(size int) (float64, error) {
	if size < 0 {
		return 0, errors.New("size must not be negative")
	}
	data := make([]float64, size*size)
	for i := range data {
		data[i] = rand.Float64()
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum, nil
}

func ioTask(ctx context.Context, duration float64) (map[string]interface{}, error) {
	select {
	case <-time.After(time.Duration(duration * float64(time.Second))):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]interface{}{"completed": true, "duration": duration}, nil
}

func seconds(v interface{}) (time.Duration, error) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return time.Duration(rv.Int()) * time.Second, nil
	case rv.CanUint():
		return time.Duration(rv.Uint()) * time.Second, nil
	case rv.CanFloat():
		return time.Duration(rv.Float() * float64(time.Second)), nil
	}
	return 0, errors.New("delay must be a number of seconds")
}
