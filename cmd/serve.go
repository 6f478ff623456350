package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgercache/ledgercache/evt"
	"github.com/ledgercache/ledgercache/log"
	"github.com/ledgercache/ledgercache/server"
	"github.com/ledgercache/ledgercache/util"
	"github.com/spf13/cobra"
)

const stopTimeout = 10 * time.Second

//nolint:gochecknoglobals
var (
	done    = make(chan bool, 1)
	signals = make(chan os.Signal, 1)
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "start the cache server (default command)",
		RunE:  startServer,
	}
}

func startServer(_ *cobra.Command, _ []string) error {
	if cfg == nil {
		return fmt.Errorf("unable to load configuration: not initialized")
	}

	printBanner()

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("can't start server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 10)

	srv.Start(ctx, errChan)

	evt.Bus().Publish(evt.ApplicationStarted, util.Version, util.BuildTime)

	var terminateErr error

	select {
	case <-signals:
		log.Log().Infof("Terminating...")
	case <-done:
		log.Log().Infof("Terminating...")
	case terminateErr = <-errChan:
		log.Log().Error("server start failed: ", terminateErr)
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, stopTimeout)
	defer stopCancel()

	util.LogOnError("can't stop server: ", srv.Stop(stopCtx))

	return terminateErr
}

func printBanner() {
	log.Log().Info("_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/")
	log.Log().Info("_/                                                              _/")
	log.Log().Info("_/   _/                  _/                                     _/")
	log.Log().Info("_/  _/    _/_/      _/_/_/    _/_/_/    _/_/    _/  _/_/        _/")
	log.Log().Info("_/ _/  _/_/_/_/  _/    _/  _/    _/  _/_/_/_/  _/_/             _/")
	log.Log().Info("_/_/  _/        _/    _/  _/    _/  _/        _/                 _/")
	log.Log().Info("_/_/    _/_/_/    _/_/_/    _/_/_/    _/_/_/  _/      cache     _/")
	log.Log().Info("_/                             _/                               _/")
	log.Log().Info("_/                        _/_/                                  _/")
	log.Log().Info("_/                                                              _/")
	log.Log().Infof("_/  Version: %-18s Build time: %-18s  _/", util.Version, util.BuildTime)
	log.Log().Info("_/                                                              _/")
	log.Log().Info("_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/_/")
}
