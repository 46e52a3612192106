package client

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/PwzXxm/ipc-lite/pstorage"
	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/pkg/errors"
)

const (
	cmdCall      = "call"
	cmdBroadcast = "broadcast"
	cmdSubscribe = "subscribe"
	cmdReceived  = "received"
	cmdNodes     = "nodes"
	cmdInfo      = "info"
	cmdStats     = "stats"
	cmdHelp      = "help"
)

var usageMp = map[string]string{
	cmdCall:      "<node_id> <method> <arg_1> ... <key=value> ...",
	cmdBroadcast: "<channel> <payload>",
	cmdSubscribe: "<channel_1> <channel_2> ...",
	cmdReceived:  "<channel>",
	cmdNodes:     "",
	cmdInfo:      "",
	cmdStats:     "<stats_file>",
	cmdHelp:      "",
}

func (c *Client) startReadingCmd() {
	c.readCMD(os.Stdin, os.Stdout)
}

func (c *Client) readCMD(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := c.execute(strings.Fields(scanner.Text()), out); err != nil {
			fmt.Fprintln(out, err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed reading stdin: ", err)
	}
}

func (c *Client) execute(cmd []string, out io.Writer) error {
	invalidCommandError := errors.New("Invalid command")
	n := len(cmd)
	if n == 0 {
		return nil
	}

	switch cmd[0] {
	case cmdCall:
		if n < 3 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		args, kwargs := parseArguments(cmd[3:])
		res, err := c.call(cmd[1], cmd[2], args, kwargs)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v\n", res)
	case cmdBroadcast:
		if n != 3 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		return c.node.Broadcast(cmd[1], utils.ParseValue(cmd[2]))
	case cmdSubscribe:
		if n < 2 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		for _, ch := range cmd[1:] {
			if err := c.subscribe(ch); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "Subscribed: %v\n", c.channels())
	case cmdReceived:
		if n != 2 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		for _, p := range c.drainReceived(cmd[1]) {
			fmt.Fprintf(out, "%v\n", p)
		}
	case cmdNodes:
		entries, err := c.nodes()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%v (%v): %v\n", e.NodeID, e.Codec, strings.Join(e.Methods, ", "))
		}
	case cmdInfo:
		info := c.node.Info()
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%v: %v\n", k, info[k])
		}
	case cmdStats:
		if n != 2 {
			return combineErrorUsage(invalidCommandError, cmd[0])
		}
		return printStats(cmd[1], out)
	case cmdHelp:
		utils.PrintUsage(usageMp)
	default:
		return invalidCommandError
	}
	return nil
}

// parseArguments splits tokens into positional arguments and key=value
// keyword arguments.
func parseArguments(tokens []string) ([]interface{}, map[string]interface{}) {
	var args []interface{}
	var kwargs map[string]interface{}
	for _, token := range tokens {
		if i := strings.Index(token, "="); i > 0 && !strings.HasPrefix(token, "\"") {
			if kwargs == nil {
				kwargs = make(map[string]interface{})
			}
			kwargs[token[:i]] = utils.ParseValue(token[i+1:])
			continue
		}
		args = append(args, utils.ParseValue(token))
	}
	return args, kwargs
}

func printStats(path string, out io.Writer) error {
	stats, ok, err := pstorage.LoadStats(pstorage.NewFileBasedPersistentStorage(path, nil))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("No stats saved in %v", path)
	}
	fmt.Fprintf(out, "Node %v, saved at %v\n", stats.NodeID, stats.SavedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  served %v calls, %v errors\n", stats.Served.TotalCalls, stats.Served.TotalErrors)
	for method, s := range stats.Served.Methods {
		fmt.Fprintf(out, "    %v: %v calls, avg %v, max %v\n", method, s.Calls, s.Avg(), s.Max)
	}
	fmt.Fprintf(out, "  made %v calls, %v errors\n", stats.Called.TotalCalls, stats.Called.TotalErrors)
	return nil
}

func combineErrorUsage(e error, cmd string) error {
	return errors.New(e.Error() + "\nUsage: " + cmd + " " + usageMp[cmd])
}
