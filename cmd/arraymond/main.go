// arraymond is the storage array monitoring daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/arraymon/internal/admin"
	"github.com/xtxerr/arraymon/internal/loader"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/manager"
	"github.com/xtxerr/arraymon/internal/telemetry"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "arraymon.yaml", "config file path")
	listen := flag.String("listen", "", "admin listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	statsMode := flag.String("stats-mode", "", "statistics mode: analysed or cumulative (overrides config)")
	watch := flag.Bool("watch", false, "watch config file for changes")
	check := flag.Bool("check", false, "validate configuration and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arraymond %s\n", Version)
		return
	}

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Admin.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *statsMode != "" {
		cfg.Poll.StatisticsMode = *statsMode
	}

	if err := loader.Validate(cfg); err != nil {
		fatalf("invalid configuration: %v", err)
	}
	if *check {
		fmt.Printf("%s: configuration ok (%d systems)\n", *cfgPath, len(cfg.Systems))
		return
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	log := logging.Component("main")
	log.Info("arraymond starting",
		"version", Version,
		"config", *cfgPath,
		"systems", len(cfg.Systems))

	metrics := telemetry.New()

	mgr, err := manager.New(cfg, metrics)
	if err != nil {
		log.Error("manager init failed", "error", err)
		os.Exit(1)
	}

	// A signal during startup cancels backend probes instead of leaving
	// the process stuck in a retry loop.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Start(ctx); err != nil {
		log.Error("startup failed", "error", err)
		mgr.Stop()
		os.Exit(1)
	}

	adm := admin.New(admin.Config{
		Manager: mgr,
		Metrics: metrics,
		Listen:  cfg.Admin.Listen,
	})

	var watcher *loader.Watcher
	if *watch {
		watcher = loader.NewWatcher(*cfgPath, func(next *loader.Config, err error) {
			if err != nil {
				log.Error("config reload rejected", "error", err)
				return
			}
			// Collection pipelines are built at startup; a changed file
			// takes effect on the next restart.
			log.Info("config change detected, apply with a restart",
				"systems", len(next.Systems))
		})
		watcher.Start()
	}

	// The admin server blocks; the signal handler drains everything in
	// reverse startup order and then releases main.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info("shutting down")
		if watcher != nil {
			watcher.Stop()
		}
		if err := adm.Shutdown(); err != nil {
			log.Warn("admin shutdown", "error", err)
		}
		if err := mgr.Stop(); err != nil {
			log.Warn("manager shutdown", "error", err)
		}
	}()

	if err := adm.Run(); err != nil {
		log.Error("admin server failed", "error", err)
		mgr.Stop()
		os.Exit(1)
	}
	<-done
	log.Info("shutdown complete")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "arraymond: "+format+"\n", args...)
	os.Exit(1)
}
