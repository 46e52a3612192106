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

package simulation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/pkg/errors"
)

const (
	cmdID          = "id"
	cmdNodeInfo    = "nodeinfo"
	cmdCall        = "call"
	cmdBroadcast   = "broadcast"
	cmdReceived    = "received"
	cmdStopAll     = "stopall"
	cmdShutdown    = "shutdown"
	cmdConnect     = "connect"
	cmdOffline     = "offline"
	cmdOnline      = "online"
	cmdReliability = "reliability"
	cmdWait        = "wait"
	cmdHelp        = "help"
)

var usageMp = map[string]string{
	cmdID:          "",
	cmdNodeInfo:    "<node_id_1> <node_id_2> ...",
	cmdCall:        "<from> <to> <method> <arg_1> <arg_2> ...",
	cmdBroadcast:   "<from> <payload>",
	cmdReceived:    "<node_id_1> <node_id_2> ...",
	cmdStopAll:     "",
	cmdShutdown:    "<node_id_1> <node_id_2> ...",
	cmdConnect:     "<node_id_1> <node_id_2> ...",
	cmdOffline:     "<node_id_1> <node_id_2> ...",
	cmdOnline:      "<node_id_1> <node_id_2> ...",
	cmdReliability: "<min_latency_ms> <max_latency_ms> <loss_rate>",
	cmdWait:        "<seconds>",
	cmdHelp:        "",
}

// StartReadingCMD reads cmd from STDIN until EOF
func (l *Local) StartReadingCMD() {
	l.readCMD(os.Stdin, os.Stdout)
}

func (l *Local) readCMD(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := l.execute(strings.Fields(scanner.Text()), out); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed reading stdin: ", err)
	}
}

func (l *Local) execute(cmd []string, out io.Writer) error {
	invalidCommandError := errors.New("Invalid command")
	n := len(cmd)
	if n == 0 {
		return errors.New("Command cannot be empty")
	}

	switch cmd[0] {
	case cmdID, cmdStopAll, cmdHelp:
		if n != 1 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		switch cmd[0] {
		case cmdID:
			fmt.Fprintf(out, "%v\n", l.NodeIDs())
		case cmdStopAll:
			l.StopAll()
		case cmdHelp:
			utils.PrintUsage(usageMp)
		}
	case cmdNodeInfo, cmdReceived, cmdShutdown, cmdConnect, cmdOffline, cmdOnline:
		if n < 2 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		nodes, err := l.validateNodeIds(cmd[1:])
		if err != nil {
			return err
		}
		for _, id := range nodes {
			var err error
			switch cmd[0] {
			case cmdNodeInfo:
				l.printNodeInfo(id, out)
			case cmdReceived:
				fmt.Fprintf(out, "%v: %v\n", id, l.Received(id))
			case cmdShutdown:
				err = l.ShutDownNode(id)
			case cmdConnect:
				err = l.ConnectNode(id)
			case cmdOffline, cmdOnline:
				l.SetNodeNetworkStatus(id, cmd[0] == cmdOnline)
			}
			if err != nil {
				return err
			}
		}
	case cmdCall:
		if n < 4 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		args := make([]interface{}, 0, n-4)
		for _, token := range cmd[4:] {
			args = append(args, utils.ParseValue(token))
		}
		res, err := l.Call(cmd[1], cmd[2], cmd[3], args...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v.%v -> %v\n", cmd[2], cmd[3], res)
	case cmdBroadcast:
		if n != 3 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		return l.Broadcast(cmd[1], EventChannel, utils.ParseValue(cmd[2]))
	case cmdReliability:
		if n != 4 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		minMs, err1 := strconv.Atoi(cmd[1])
		maxMs, err2 := strconv.Atoi(cmd[2])
		loss, err3 := strconv.ParseFloat(cmd[3], 64)
		if err1 != nil || err2 != nil || err3 != nil || minMs > maxMs || loss < 0 || loss > 1 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		l.SetNetworkReliability(time.Duration(minMs)*time.Millisecond,
			time.Duration(maxMs)*time.Millisecond, loss)
	case cmdWait:
		if n != 2 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		sec, err := strconv.Atoi(cmd[1])
		if err != nil {
			return err
		}
		l.Wait(sec)
	default:
		return invalidCommandError
	}
	return nil
}

func combineErrorUsage(e error, cmd string) error {
	return errors.New(e.Error() + "\nUsage: " + cmd + " " + usageMp[cmd])
}

// validateNodeIds checks whether the node ids are in the current network
func (l *Local) validateNodeIds(ids []string) ([]string, error) {
	for _, id := range ids {
		if _, err := l.node(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (l *Local) printNodeInfo(id string, out io.Writer) {
	info := l.nodes[id].Info()
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "Node info of [%v]\n", id)
	for _, k := range keys {
		fmt.Fprintf(out, "  %v: %v\n", k, info[k])
	}
}
