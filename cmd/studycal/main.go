package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"studycal/internal/capture"
	"studycal/internal/clock"
	"studycal/internal/config"
	appLog "studycal/internal/log"
	"studycal/internal/notify"
	"studycal/internal/remind"
	"studycal/internal/store"
	"studycal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	debug      bool
	snapshot   bool
}

func main() {
	flags := parseFlags()
	appLog.SetDebug(flags.debug)
	appLog.Info("studycal starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"data_path", conf.DataPath,
		"refresh", conf.RefreshCron,
		"lead_minutes", conf.LeadMinutes,
		"upcoming_limit", conf.UpcomingLimit,
		"notifications_disabled", conf.Notifications.Disabled,
		"snapshot", conf.Snapshot != nil,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st, err := store.Open(conf.DataPath)
	if err != nil {
		appLog.Error("failed to open event store", err, "data_path", conf.DataPath)
		os.Exit(1)
	}
	defer st.Close()

	clk := clock.NewSystem()

	// Delivery backend: a polled feed unless notifications are disabled.
	var notifier remind.Notifier
	var feed *notify.Feed
	if conf.Notifications.Disabled {
		notifier = notify.Nop{}
	} else {
		feed = notify.NewFeed(20)
		notifier = feed
	}
	if err := notifier.RequestPermission(ctx); err != nil {
		// Denied permission disables delivery only; grid and list still work.
		appLog.Error("notification permission denied; delivery disabled", err)
		notifier = notify.Nop{}
		feed = nil
	}

	sched := remind.New(clk, notifier, remind.WithLead(conf.Lead()))
	sched.Resync(st.Events())
	defer sched.CancelAll()

	// Periodic resync keeps long-lived timers honest and picks up
	// external edits to the database.
	cr := cron.New()
	if _, err := cr.AddFunc(conf.RefreshCron, func() {
		sched.Resync(st.Events())
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	if conf.Snapshot != nil && conf.Snapshot.Cron != "" {
		snap := *conf.Snapshot
		if _, err := cr.AddFunc(snap.Cron, func() {
			runSnapshot(ctx, conf.Listen, snap)
		}); err != nil {
			appLog.Error("invalid snapshot cron expression", err, "cron", snap.Cron)
			os.Exit(1)
		}
	}
	cr.Start()
	defer cr.Stop()

	srv := web.NewServer(conf, st, sched, feed, clk)
	httpSrv := &http.Server{
		Addr:    conf.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	if flags.snapshot {
		if conf.Snapshot == nil {
			appLog.Error("snapshot requested but not configured", errors.New("snapshot section missing"))
			os.Exit(1)
		}
		// Give the server a moment to bind before pointing Chromium at it.
		time.Sleep(300 * time.Millisecond)
		runSnapshot(ctx, conf.Listen, *conf.Snapshot)
		cancel()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}

	appLog.Info("studycal exiting")
	appLog.Sync()
}

func runSnapshot(ctx context.Context, listen string, snap config.SnapshotConfig) {
	err := capture.SnapshotPNG(ctx, capture.Options{
		URL:        "http://" + listen + "/",
		OutputPath: snap.Output,
		Width:      snap.Width,
		Height:     snap.Height,
	})
	if err != nil {
		appLog.Error("snapshot capture failed", err, "output", snap.Output)
		return
	}
	appLog.Info("snapshot captured", "output", snap.Output)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/studycal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture one month-view PNG snapshot and exit")

	flag.Parse()

	return cfg
}
