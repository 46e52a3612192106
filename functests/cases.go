package functests

import (
	"sync"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/simulation"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func caseBasicTypes() error {
	sl := simulation.RunLocally(2)
	defer sl.StopAll()

	res, err := sl.Call("0", "1", "add", 2, 3)
	if err != nil {
		return err
	}
	if res != 5.0 {
		return errors.Errorf("add(2, 3) returned %v", res)
	}
	for _, v := range []interface{}{
		nil,
		true,
		int64(-42),
		3.25,
		"text",
		[]byte{0, 1, 2},
		[]interface{}{1, "a", []interface{}{2.5}},
		map[string]interface{}{"k": 1, "nested": map[string]interface{}{"list": []interface{}{"x"}}},
		[]float64{1, 2, 3},
		time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	} {
		res, err := sl.Call("0", "1", "echo", v)
		if err != nil {
			return errors.Wrapf(err, "echo(%#v)", v)
		}
		if diff := cmp.Diff(v, res); diff != "" {
			return errors.Errorf("echo(%#v) (-want +got):\n%s", v, diff)
		}
	}
	return nil
}

func caseAsyncMethods() error {
	sl := simulation.RunLocally(2)
	defer sl.StopAll()

	start := time.Now()
	results := make([]interface{}, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = sl.Call("0", "1", "slow_echo", i+1, 1000)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if results[0] != 1 || results[1] != 2 {
		return errors.Errorf("results swapped or lost: %v", results)
	}
	if elapsed := time.Since(start); elapsed > 1800*time.Millisecond {
		return errors.Errorf("calls did not overlap, took %v", elapsed)
	}
	return nil
}

func caseBroadcast() error {
	sl := simulation.RunLocally(3)
	defer sl.StopAll()

	payload := map[string]interface{}{"k": 1}
	if err := sl.Broadcast("0", simulation.EventChannel, payload); err != nil {
		return err
	}
	if err := sl.Broadcast("0", "elsewhere", "ignored"); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	for _, id := range []string{"0", "1", "2"} {
		got := sl.Received(id)
		if diff := cmp.Diff([]interface{}{payload}, got); diff != "" {
			return errors.Errorf("node %v (-want +got):\n%s", id, diff)
		}
	}
	return nil
}

func caseErrors() error {
	sl := simulation.RunLocally(2)
	defer sl.StopAll()

	_, err := sl.Call("0", "1", "boom", "bad")
	var re *ipc.RemoteError
	if !errors.As(err, &re) || re.Message != "bad" {
		return errors.Errorf("boom: got %v, want a RemoteError", err)
	}
	_, err = sl.Call("0", "1", "missing")
	var mnf *ipc.MethodNotFoundError
	if !errors.As(err, &mnf) || mnf.Method != "missing" {
		return errors.Errorf("missing: got %v, want a MethodNotFoundError", err)
	}
	_, err = sl.Call("0", "1", "slow_echo", 1, 5000)
	var te *ipc.TimeoutError
	if !errors.As(err, &te) {
		return errors.Errorf("slow_echo: got %v, want a TimeoutError", err)
	}
	_, err = sl.Call("0", "1", "add", "two", 3)
	var ire *ipc.InvalidRequestError
	if !errors.As(err, &ire) {
		return errors.Errorf("add with a string: got %v, want an InvalidRequestError", err)
	}
	// the node survives all of the above
	if _, err := sl.Call("0", "1", "echo", 1); err != nil {
		return errors.Wrap(err, "node did not survive")
	}
	return nil
}

func caseConcurrency() error {
	sl := simulation.RunLocally(3)
	defer sl.StopAll()
	sl.SetNetworkReliability(0, 50*time.Millisecond, 0)
	return checkNoCrossTalk(sl, 50, "0", "1")
}

// checkNoCrossTalk issues n concurrent calls from one node and checks that
// each result matches its own argument.
func checkNoCrossTalk(sl *simulation.Local, n int, from, to string) error {
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := sl.Call(from, to, "slow_echo", i, utilsRandomMs())
			if err != nil {
				errs <- err
				return
			}
			if res != i {
				errs <- errors.Errorf("call %d got %v", i, res)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func caseOffline() error {
	sl := simulation.RunLocally(2)
	defer sl.StopAll()

	sl.SetNodeNetworkStatus("1", false)
	_, err := sl.Call("0", "1", "echo", 1)
	if !ipc.IsTransient(err) {
		return errors.Errorf("call to an offline node: got %v, want a transient error", err)
	}
	sl.SetNodeNetworkStatus("1", true)
	if _, err := sl.Call("0", "1", "echo", 1); err != nil {
		return errors.Wrap(err, "call after coming back")
	}
	if err := sl.ShutDownNode("1"); err != nil {
		return err
	}
	if err := sl.AgreeOnDirectory(); err != nil {
		return err
	}
	if err := sl.ConnectNode("1"); err != nil {
		return err
	}
	return sl.AgreeOnDirectory()
}
