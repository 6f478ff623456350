//go:build !windows

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// registerPrintConfigurationTrigger prints the configuration on SIGUSR1 until ctx is done
func registerPrintConfigurationTrigger(ctx context.Context, s *Server) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)

	go func() {
		defer signal.Stop(signals)

		for {
			select {
			case <-signals:
				s.printConfiguration()
			case <-ctx.Done():
				return
			}
		}
	}()
}
