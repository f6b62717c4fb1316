package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kndndrj/splitrandr/internal/core"
	"github.com/kndndrj/splitrandr/internal/proxy"
	"github.com/kndndrj/splitrandr/internal/store"
)

// mainServer runs the proxy until it is interrupted.
func mainServer() error {
	cfg, err := proxy.ParseConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("proxy.ParseConfig: %w", err)
	}

	logger := logrus.New()
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("display", cfg.Display)

	// xgb chatters on the stdlib logger otherwise
	core.RouteXGBLogs(log)

	// check pidfile
	pidPath, err := core.LockPidFile(cfg.PidFileName())
	if err != nil {
		if errors.Is(err, core.ErrProcessAlreadyRunning) {
			return fmt.Errorf("proxy for display %q already running", cfg.Display)
		}
		return fmt.Errorf("core.LockPidFile: %w", err)
	}
	defer core.UnlockPidFile(pidPath)

	if cfg.ConfigPath == "" {
		path, err := store.DefaultPath()
		if err != nil {
			log.WithError(err).Warn("no config dir, splits disabled")
		}
		cfg.ConfigPath = path
	}

	server, err := proxy.NewServer(log, cfg)
	if err != nil {
		return fmt.Errorf("proxy.NewServer: %w", err)
	}
	defer server.Close()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = server.Serve(ctx)
	if err != nil {
		return fmt.Errorf("server.Serve: %w", err)
	}

	return nil
}

func main() {
	err := mainServer()
	if err != nil {
		logrus.Fatal(err)
	}
}
