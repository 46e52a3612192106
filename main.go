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

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PwzXxm/ipc-lite/bench"
	"github.com/PwzXxm/ipc-lite/client"
	"github.com/PwzXxm/ipc-lite/cmdconfig"
	"github.com/PwzXxm/ipc-lite/functests"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/simulation"
	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	// run simulation
	cmdSimulation := &cli.Command{
		Name:  "simulation",
		Usage: "commands for running simulation",
		Subcommands: []*cli.Command{
			{
				Name:  "local",
				Usage: "start a local simulation",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "n", Usage: "number of nodes", Required: true},
				},
				Action: func(c *cli.Context) error {
					if c.Int("n") == 0 {
						return errors.New("please provide -n")
					}
					return localSimulation(c.Int("n"))
				},
			},
		},
	}
	// run functional test
	cmdFunctional := &cli.Command{
		Name:  "functionaltest",
		Usage: "commands for running functional tests",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list all avaliable tests",
				Action: func(c *cli.Context) error {
					functests.List()
					return nil
				},
			},
			{
				Name:  "count",
				Usage: "count all avaliable tests",
				Action: func(c *cli.Context) error {
					functests.Count()
					return nil
				},
			},
			{
				Name:  "run",
				Usage: "run a specific test, or all of them with -n 0",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "n", Usage: "test id", Required: true},
				},
				Action: func(c *cli.Context) error {
					if c.Int("n") == 0 {
						return functests.RunAll()
					}
					return functests.Run(c.Int("n"))
				},
			},
		},
	}
	// run a node
	cmdNode := &cli.Command{
		Name:  "node",
		Usage: "start a node serving the benchmark methods",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "c", Usage: "node config file path", Required: true},
		},
		Action: func(c *cli.Context) error {
			return StartNodeFromFile(c.Path("c"), logLevel(c))
		},
	}
	// run a broker for the tcp transport
	cmdBroker := &cli.Command{
		Name:  "broker",
		Usage: "start a broker for nodes using the tcp transport",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address", Value: ":4333"},
		},
		Action: func(c *cli.Context) error {
			return StartBroker(c.String("addr"), logLevel(c))
		},
	}
	// run complex testcases where actions are generated randomly
	cmdIntegrationTest := &cli.Command{
		Name:  "integrationtest",
		Usage: "run complex testcases where actions are generated randomly",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "t", Usage: "time in minutes", Required: true},
		},
		Action: func(c *cli.Context) error {
			return functests.RunComplex(c.Int64("t"))
		},
	}
	// run starting client
	cmdClient := &cli.Command{
		Name:  "client",
		Usage: "commands for starting client",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "c", Usage: "client config file path", Required: true},
		},
		Action: func(c *cli.Context) error {
			return client.StartClientFromFile(c.Path("c"))
		},
	}
	// run the performance test
	cmdBench := &cli.Command{
		Name:  "bench",
		Usage: "commands for measuring call latency across processes",
		Subcommands: []*cli.Command{
			{
				Name:  "server",
				Usage: "start the benchmark server",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "c", Usage: "node config file path"},
				},
				Action: func(c *cli.Context) error {
					return benchServer(c.Path("c"), logLevel(c))
				},
			},
			{
				Name:  "client",
				Usage: "run the benchmark against a server",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "c", Usage: "node config file path"},
					&cli.StringFlag{Name: "target", Usage: "server node id", Value: bench.ServerID},
					&cli.IntFlag{Name: "concurrency", Usage: "workers per measurement", Value: 1},
				},
				Action: func(c *cli.Context) error {
					return benchClient(c.Path("c"), c.String("target"), c.Int("concurrency"), logLevel(c))
				},
			},
		},
	}
	app := &cli.App{
		Name:  "ipc-lite",
		Usage: "request/response and broadcast between processes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "panic, fatal, error, warn, info, debug or trace",
				Value: logrus.InfoLevel.String()},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			cmdSimulation,
			cmdFunctional,
			cmdNode,
			cmdBroker,
			cmdIntegrationTest,
			cmdClient,
			cmdBench,
		},
	}

	figure.NewFigure("ipc-lite", "", true).Print()
	err := app.Run(os.Args)
	if err != nil {
		color.Red("%v\n", err)
		log.Fatal(err)
	}
}

func logLevel(c *cli.Context) logrus.Level {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func localSimulation(n int) error {
	sl := simulation.RunLocally(n)
	defer sl.StopAll()

	sl.StartReadingCMD()
	return nil
}

// benchNode creates a connected node from configFilepath, which may be
// empty to configure it from the environment only.
func benchNode(configFilepath, defaultID string, level logrus.Level) (*ipc.Node, error) {
	config, err := cmdconfig.ReadNodeConfig(configFilepath)
	if err != nil {
		return nil, err
	}
	if config.NodeID == "" {
		config.NodeID = defaultID
	}
	logger := newLogger(config.LogPath, level)
	opts, err := config.Options(logrus.NewEntry(logger), nil)
	if err != nil {
		return nil, err
	}
	node, err := ipc.New(opts...)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func benchServer(configFilepath string, level logrus.Level) error {
	node, err := benchNode(configFilepath, bench.ServerID, level)
	if err != nil {
		return err
	}
	if err := bench.Serve(node); err != nil {
		return err
	}
	if err := node.Connect(context.Background()); err != nil {
		return err
	}
	color.Green("Server %v ready, registered %v\n", node.ID(), node.Methods())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	color.Yellow("Shutting down...\n")
	return node.Disconnect()
}

func benchClient(configFilepath, target string, concurrency int, level logrus.Level) error {
	benchConfig, err := cmdconfig.ReadBenchConfig()
	if err != nil {
		return err
	}
	benchConfig.Concurrency = concurrency
	node, err := benchNode(configFilepath, "perf_client", level)
	if err != nil {
		return err
	}
	if err := node.Connect(context.Background()); err != nil {
		return err
	}
	defer func() { _ = node.Disconnect() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := bench.WaitForServer(ctx, node, target, 10, 2*time.Second); err != nil {
		return err
	}
	color.Green("Server %v is ready\n", target)
	return bench.Suite(ctx, node, target, benchConfig, os.Stdout)
}
