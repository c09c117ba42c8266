package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"bubblbridge/internal/bridge"
	"bubblbridge/internal/config"
	"bubblbridge/internal/devicelog"
	"bubblbridge/internal/eventbus"
	"bubblbridge/internal/inbound"
	"bubblbridge/internal/normalize"
	"bubblbridge/internal/sdk/sim"
	"bubblbridge/internal/tenant"
	"bubblbridge/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./bridged.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	svc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
		Forward: logx.ForwardConfig{
			Enabled:    cfg.Logging.Forward,
			MinLevel:   cfg.Logging.ForwardLevel,
			RatePerSec: cfg.Logging.ForwardRate,
		},
	}, nil)
	defer func() { _ = svc.Close() }()

	busyTimeout, _ := cfg.StorageBusyTimeout()
	store, err := tenant.OpenStore(tenant.StoreConfig{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "store")))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	authDelay, _ := cfg.SimAuthDelay()
	client := sim.New(sim.Options{
		AuthDelay:   authDelay,
		PrivacyText: cfg.Sim.PrivacyText,
		Log:         log.With(logx.String("component", "sim")),
	})

	manager := tenant.NewManager(store, client,
		tenant.ExecRestarter{Log: log}, log.With(logx.String("component", "tenant")))

	identity := devicelog.ResolveIdentity(cfg.Device.Platform, cfg.Device.ID)

	b, err := bridge.New(bridge.Options{
		Client:              client,
		Bus:                 eventbus.New(),
		Manager:             manager,
		Identity:            identity,
		LogPath:             svc.FilePath,
		SpoolDir:            cfg.Inbound.SpoolDir,
		DeviceLogIntervalMs: cfg.DeviceLog.IntervalMs,
		DeviceLogMaxLines:   cfg.DeviceLog.MaxLines,
		Log:                 log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	// Warn+ daemon lines surface to attached applications on the bridge
	// log channel. Publishing after bridge close is a bus no-op.
	svc.SetForward(b.PublishLogLine)

	log.Info("bridged starting",
		logx.String("device_id", identity.ID),
		logx.String("device_suffix", identity.Suffix()),
		logx.String("spool", cfg.Inbound.SpoolDir))

	if err := b.Bootstrap(ctx); err != nil {
		// A broken stored tenant should not keep the daemon down; boot can
		// still arrive through the application layer.
		log.Error("bootstrap failed", logx.Err(err))
	}

	spool, err := inbound.NewSpool(cfg.Inbound.SpoolDir, func(payload []byte) {
		b.HandleInbound(payload, normalize.SourceReceived)
	}, log.With(logx.String("component", "spool")))
	if err != nil {
		return err
	}
	if n, err := spool.Drain(ctx); err != nil {
		log.Warn("cold-start spool drain failed", logx.Err(err))
	} else if n > 0 {
		log.Info("cold-start spool drained", logx.Int("consumed", n))
	}
	go func() {
		if err := spool.Watch(ctx); err != nil {
			log.Error("spool watcher exited", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("bridged ready")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("bridged stopping")
	return nil
}
