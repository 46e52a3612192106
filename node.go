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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/PwzXxm/ipc-lite/bench"
	"github.com/PwzXxm/ipc-lite/cmdconfig"
	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/gateway"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/middleware"
	"github.com/PwzXxm/ipc-lite/pstorage"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// EventChannel is logged by every node started from a config file.
const EventChannel = "events"

func newLogger(logPath string, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.Out = os.Stdout
	if logPath == "" {
		return logger
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logger.Out = file
	} else {
		logger.Infof("Failed to log to %v, using default stdout", logPath)
	}
	return logger
}

func StartNodeFromFile(configFilepath string, level logrus.Level) error {
	config, err := cmdconfig.ReadNodeConfig(configFilepath)
	if err != nil {
		return err
	}

	fl := flock.New(configFilepath)
	if locked, _ := fl.TryLock(); !locked {
		return errors.New("Unable to lock the config file," +
			" make sure there isn't another instance running.")
	}
	defer func() {
		_ = fl.Unlock()
	}()

	logger := newLogger(config.LogPath, level)
	loggerEntry := logger.WithFields(logrus.Fields{"nodeID": config.NodeID})

	if config.BrokerAddr != "" {
		broker := rpccore.NewTCPBroker(config.BrokerAddr, nil, loggerEntry)
		if err := broker.Start(); err != nil {
			return err
		}
		defer broker.Stop()
	}

	var dir directory.Directory
	etcd, err := config.Directory()
	if err != nil {
		return err
	}
	if etcd != nil {
		defer func() { _ = etcd.Close() }()
		dir = etcd
	}

	opts, err := config.Options(logrus.NewEntry(logger), dir)
	if err != nil {
		return err
	}
	opts = append(opts, ipc.WithMiddleware(middleware.Logging(loggerEntry)))
	node, err := ipc.New(opts...)
	if err != nil {
		return err
	}
	if err := bench.Serve(node); err != nil {
		return err
	}
	node.MustRegister("info", func() map[string]string { return node.Info() })

	if err := node.Connect(context.Background()); err != nil {
		return err
	}
	err = node.Subscribe(EventChannel, func(payload interface{}) {
		loggerEntry.Infof("[%v] %v", EventChannel, payload)
	})
	if err != nil {
		_ = node.Disconnect()
		return err
	}

	var recorder *pstorage.StatsRecorder
	var ps *pstorage.Hybrid
	if config.StatsFilePath != "" {
		// create directory for the stats file if needed
		dirPath := filepath.Dir(config.StatsFilePath)
		if _, err := os.Stat(dirPath); os.IsNotExist(err) {
			if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
				_ = node.Disconnect()
				return err
			}
		}
		interval := time.Duration(config.StatsInterval) * time.Second
		ps = pstorage.NewHybridPersistentStorage(config.StatsFilePath, interval, nil, loggerEntry)
		recorder = pstorage.NewStatsRecorder(node, ps, interval)
		recorder.Start()
	}

	var gw *gateway.Gateway
	if config.GatewayAddr != "" {
		gw, err = gateway.Start(config.GatewayAddr, node, dir)
		if err != nil {
			_ = node.Disconnect()
			return err
		}
	}

	// wait for stop signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	// start shutdown process
	fmt.Println("Shutting down node...")
	if gw != nil {
		if err := gw.Stop(5 * time.Second); err != nil {
			loggerEntry.Warnf("Unable to stop the gateway: %v", err)
		}
	}
	err = node.Disconnect()
	if recorder != nil {
		if rerr := recorder.Stop(); rerr != nil {
			loggerEntry.Warnf("Unable to record stats: %v", rerr)
		}
		if serr := ps.Stop(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// StartBroker serves an in-memory network on addr for nodes using the tcp
// transport, until interrupted.
func StartBroker(addr string, level logrus.Level) error {
	logger := newLogger("", level)
	broker := rpccore.NewTCPBroker(addr, nil, logrus.NewEntry(logger))
	if err := broker.Start(); err != nil {
		return err
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	fmt.Println("Shutting down broker...")
	broker.Stop()
	return nil
}
