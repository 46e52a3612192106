package functests

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/simulation"
	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

const (
	networkReliability  = "nr"
	nodeStatusChange    = "nsc"
	nodeRestart         = "nrs"
	networkBackToNormal = "nb"
	clientRequest       = "cr"
	broadcastRequest    = "br"
)

const (
	nrWeight    = 1
	nscWeight   = 1
	nrsWeight   = 1
	nbWeight    = 1
	crWeight    = 5
	brWeight    = 2
	totalWeight = nrWeight + nscWeight + nrsWeight + nbWeight + crWeight + brWeight
)

func getRandomEvent() string {
	weightList := []int{nrWeight, nscWeight, nrsWeight, nbWeight, crWeight, brWeight}
	eventList := []string{networkReliability, nodeStatusChange, nodeRestart, networkBackToNormal,
		clientRequest, broadcastRequest}
	rd := utils.Random(1, totalWeight)
	sum := 0
	for i, weight := range weightList {
		sum += weight
		if sum >= rd {
			return eventList[i]
		}
	}
	return clientRequest
}

func utilsRandomMs() int {
	return utils.Random(0, 200)
}

// RunComplex throws random latency, loss, outages and restarts at a five
// node cluster for the given minutes while calls keep checking that no
// reply reaches the wrong caller. Failures caused by the chaos (timeouts,
// missing methods on a restarting node) are expected, wrong results are
// not.
func RunComplex(minutes int64) error {
	sl := simulation.RunLocally(5)
	defer sl.StopAll()
	nodeIDs := sl.NodeIDs()
	deadline := time.Now().Add(time.Duration(minutes) * time.Minute)

	var calls, failures int
	for time.Now().Before(deadline) {
		switch getRandomEvent() {
		case networkReliability:
			latencyMin := time.Duration(utils.Random(0, 100)) * time.Millisecond
			latencyMax := time.Duration(utils.Random(200, 500)) * time.Millisecond
			lossRate := utils.RandomFloat(0, 0.3)
			sl.SetNetworkReliability(latencyMin, latencyMax, lossRate)
			fmt.Printf("Network one way latency Min: %v, Max: %v, packet loss rate: %.2f\n",
				latencyMin, latencyMax, lossRate)
		case nodeStatusChange:
			// each node has 20% probability to be offline
			for _, id := range nodeIDs {
				online := rand.Float64() >= 0.2
				sl.SetNodeNetworkStatus(id, online)
				if !online {
					fmt.Print(id, " is not working...\n")
				}
			}
		case nodeRestart:
			id := nodeIDs[rand.Intn(len(nodeIDs))]
			fmt.Printf("Restarting node %v\n", id)
			if err := sl.ShutDownNode(id); err != nil {
				return err
			}
			if err := sl.ConnectNode(id); err != nil {
				return err
			}
		case networkBackToNormal:
			sl.SetNetworkReliability(0, 0, 0)
			for _, id := range nodeIDs {
				sl.SetNodeNetworkStatus(id, true)
			}
			fmt.Println("Network back to normal")
		case clientRequest:
			from := nodeIDs[rand.Intn(len(nodeIDs))]
			to := nodeIDs[rand.Intn(len(nodeIDs))]
			want := from + "->" + to + ":" + strconv.Itoa(rand.Int())
			res, err := sl.Call(from, to, "slow_echo", want, utilsRandomMs())
			calls++
			var mnf *ipc.MethodNotFoundError
			switch {
			case err == nil && res != want:
				color.Red("Call %v got %v\n", want, res)
				return errors.Errorf("cross talk: call %v got %v", want, res)
			case ipc.IsTransient(err) || errors.As(err, &mnf):
				failures++
			case err != nil:
				return errors.Wrapf(err, "call %v", want)
			}
		case broadcastRequest:
			from := nodeIDs[rand.Intn(len(nodeIDs))]
			if err := sl.Broadcast(from, simulation.EventChannel, rand.Int()); err != nil {
				return err
			}
		}
		time.Sleep(time.Duration(utils.Random(0, 500)) * time.Millisecond)
	}

	sl.SetNetworkReliability(0, 0, 0)
	for _, id := range nodeIDs {
		sl.SetNodeNetworkStatus(id, true)
	}
	if err := sl.AgreeOnDirectory(); err != nil {
		return err
	}
	if err := checkNoCrossTalk(sl, 20, nodeIDs[0], nodeIDs[1]); err != nil {
		return err
	}
	color.Green("%d calls, %d failed because of the network, no cross talk\n", calls, failures)
	return nil
}
