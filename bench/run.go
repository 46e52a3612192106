package bench

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PwzXxm/ipc-lite/cmdconfig"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/creachadair/taskgroup"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// Stats summarizes the latencies of one measurement.
type Stats struct {
	Samples int
	Errors  int
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	Median  time.Duration
	Stdev   time.Duration
	P95     time.Duration
	P99     time.Duration
	// Elapsed is the wall time of the measured phase.
	Elapsed time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("%v avg (min:%v max:%v median:%v p95:%v p99:%v, %d errors)",
		ms(s.Mean), ms(s.Min), ms(s.Max), ms(s.Median), ms(s.P95), ms(s.P99), s.Errors)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

// Summarize computes the statistics of latencies.
func Summarize(latencies []time.Duration) Stats {
	s := Stats{Samples: len(latencies)}
	if len(latencies) == 0 {
		return s
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	n := len(sorted)
	s.Min, s.Max = sorted[0], sorted[n-1]
	s.Mean = total / time.Duration(n)
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	if n > 1 {
		var sq float64
		for _, d := range sorted {
			diff := float64(d - s.Mean)
			sq += diff * diff
		}
		s.Stdev = time.Duration(math.Sqrt(sq / float64(n-1)))
	}
	s.P95 = sorted[percentileIndex(n, 0.95)]
	s.P99 = sorted[percentileIndex(n, 0.99)]
	return s
}

func percentileIndex(n int, p float64) int {
	i := int(float64(n) * p)
	if i >= n {
		i = n - 1
	}
	return i
}

// Measurement is one method call repeated under a BenchConfig.
type Measurement struct {
	Target string
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Run calls m config.Warmup times, then config.Iterations times split over
// config.Concurrency workers, and summarizes the latencies of the second
// phase. Failed calls are counted, the first failure is returned when every
// call failed.
func Run(ctx context.Context, node *ipc.Node, m Measurement, config cmdconfig.BenchConfig) (Stats, error) {
	call := func() error {
		_, err := node.CallWith(ctx, m.Target, m.Method, ipc.Args(m.Args...), ipc.KwargsOf(m.Kwargs))
		return err
	}
	for i := 0; i < config.Warmup; i++ {
		if err := call(); err != nil {
			return Stats{}, errors.Wrapf(err, "warmup of %v", m.Method)
		}
	}

	workers := config.Concurrency
	if workers < 1 {
		workers = 1
	}
	var lock sync.Mutex
	var latencies []time.Duration
	var firstErr error
	errs := 0
	jobs := make(chan struct{})
	g := taskgroup.New(nil)
	start := time.Now()
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for range jobs {
				t := time.Now()
				err := call()
				d := time.Since(t)
				lock.Lock()
				if err != nil {
					errs++
					if firstErr == nil {
						firstErr = err
					}
				} else {
					latencies = append(latencies, d)
				}
				lock.Unlock()
			}
			return nil
		})
	}
	for i := 0; i < config.Iterations; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	_ = g.Wait()

	s := Summarize(latencies)
	s.Errors = errs
	s.Elapsed = time.Since(start)
	if len(latencies) == 0 && firstErr != nil {
		return s, errors.Wrapf(firstErr, "every call of %v failed", m.Method)
	}
	return s, nil
}

// WaitForServer calls echo on target until it answers or attempts run out.
func WaitForServer(ctx context.Context, node *ipc.Node, target string, attempts int, interval time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = node.Call(ctx, target, "echo", "test"); err == nil {
			return nil
		}
		fmt.Printf("  Attempt %d/%d: %v\n", i+1, attempts, err)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Wrapf(err, "server %v is not responding", target)
}

type step struct {
	section string
	label   string
	m       Measurement
	// iterations at the default config, scaled with config.Iterations
	iterations int
}

func suite(target string, config cmdconfig.BenchConfig) []step {
	var steps []step
	add := func(section, label, method string, iterations int, args ...interface{}) {
		steps = append(steps, step{section: section, label: label, iterations: iterations,
			m: Measurement{Target: target, Method: method, Args: args}})
	}
	sizes := []int{10, 100, 1000, 10000, 100000}
	if config.PayloadSize > 0 {
		sizes = append(sizes, config.PayloadSize)
	}
	for _, size := range sizes {
		add("Echo Performance (different payload sizes)", fmt.Sprintf("Payload %10v", utils.FormatBytes(int64(size))),
			"echo", 0, strings.Repeat("x", size))
	}
	for _, size := range []int{1, 10, 50} {
		add("Complex Object Performance", fmt.Sprintf("Object with %2d arrays", size),
			"echo", 50, complexObject(size))
	}
	for _, n := range []int{1000, 10000, 100000} {
		add("CPU Intensive Task Performance", fmt.Sprintf("CPU task n=%6d", n), "cpu_task", 20, n)
	}
	for _, size := range []int{100, 500, 1000} {
		add("Memory Intensive Task Performance", fmt.Sprintf("Memory task %4dx%4d", size, size),
			"memory_task", 10, size)
	}
	add("IO Task Performance", "IO task 10ms", "io_task", 20, 0.01)
	add("Pure Network Overhead", "Minimal payload (int)", "echo", 1000, 1)
	return steps
}

func complexObject(size int) map[string]interface{} {
	data := make(map[string]interface{}, size)
	for i := 0; i < size; i++ {
		row := make([]interface{}, 10)
		for j := range row {
			row[j] = float64(i*10+j) / 7
		}
		data[fmt.Sprintf("key%d", i)] = row
	}
	return map[string]interface{}{
		"data":     data,
		"metadata": map[string]interface{}{"size": size, "timestamp": time.Now().Unix()},
	}
}

// Suite runs the whole benchmark against target and prints a report to
// out. It stops at the first measurement where every call failed.
func Suite(ctx context.Context, node *ipc.Node, target string, config cmdconfig.BenchConfig, out io.Writer) error {
	header := color.New(color.Bold)
	section := ""
	var overhead Stats
	for _, st := range suite(target, config) {
		if st.section != section {
			section = st.section
			header.Fprintf(out, "\n%v\n", section)
			fmt.Fprintln(out, strings.Repeat("-", 40))
		}
		c := config
		if st.iterations > 0 {
			c.Iterations = utils.Max(1, st.iterations*config.Iterations/cmdconfig.DefaultBenchConfig().Iterations)
		}
		s, err := Run(ctx, node, st.m, c)
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "%v: %v\n", st.label, err)
			return err
		}
		fmt.Fprintf(out, "%v: %v\n", st.label, s)
		overhead = s
	}

	header.Fprintf(out, "\nConcurrent Request Performance\n")
	fmt.Fprintln(out, strings.Repeat("-", 40))
	for _, concurrency := range []int{1, 10, 50, 100} {
		c := config
		c.Warmup, c.Iterations, c.Concurrency = 0, concurrency, concurrency
		s, err := Run(ctx, node, Measurement{Target: target, Method: "echo", Args: []interface{}{"concurrent"}}, c)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Concurrency %3d: %v total, %v per call\n", concurrency,
			ms(s.Elapsed), ms(s.Elapsed/time.Duration(concurrency)))
	}

	header.Fprintf(out, "\nSUMMARY\n")
	fmt.Fprintf(out, "Network overhead: ~%v\n", ms(overhead.Median))
	return nil
}
