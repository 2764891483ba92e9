package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/winghaptics/wwbridge/internal/bridge"
	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/device"
	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/internal/effects"
	"github.com/winghaptics/wwbridge/internal/leds"
	"github.com/winghaptics/wwbridge/internal/logging"
	"github.com/winghaptics/wwbridge/internal/monitor"
	"github.com/winghaptics/wwbridge/internal/receiver"
	"github.com/winghaptics/wwbridge/internal/scheduler"
	"github.com/winghaptics/wwbridge/internal/tracker"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Receive telemetry and drive the devices (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context())
		},
	}
}

// live is what the log status provider reads once the loop is built.
type live struct {
	sched  *scheduler.Scheduler
	bridge *bridge.Bridge
}

func runBridge(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var state atomic.Pointer[live]
	a := newApp(func() []slog.Attr {
		l := state.Load()
		if l == nil {
			return []slog.Attr{slog.String("state", "starting")}
		}
		return []slog.Attr{
			slog.String("state", l.sched.State().String()),
			slog.String("aircraft", l.bridge.Health().Aircraft),
		}
	})
	defer a.Close()
	log := a.Logger

	devCfg, err := config.GetDeviceConfig()
	if err != nil {
		log.Error("Invalid device configuration", "error", err)
		return err
	}

	adapter, err := device.NewAdapter(devCfg, device.NewHidraw(devCfg.WriteTimeout),
		device.WithLogger(log),
		device.WithRefreshInterval(viper.GetDuration("device.refreshInterval")),
	)
	if err != nil {
		log.Error("Invalid device bindings", "error", err)
		return err
	}
	if err := adapter.Open(ctx); err != nil {
		if errors.Is(err, device.ErrNoDevices) {
			log.Error("No WinWing device could be opened, check permissions on /dev/hidraw*", "error", err)
		}
		return err
	}
	defer adapter.Close()
	log.Info("Devices ready", "connected", adapter.Connected())

	schedCfg := config.GetSchedulerConfig()
	sampled := logging.NewSampled(a.Zerolog)
	rcv, err := receiver.Listen(ctx, config.GetReceiverConfig(),
		receiver.WithLogger(log),
		receiver.WithSampledLogger(sampled),
		receiver.WithLivenessTimeout(schedCfg.LivenessTimeout),
	)
	if err != nil {
		log.Error("Failed to bind telemetry socket", "error", err)
		return err
	}
	defer rcv.Close()
	log.Info("Listening for telemetry", "addr", rcv.Addr().String())

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.Zerolog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	obs := registerObservers(ctx, d, a)
	defer func() {
		// drain observers before the backends behind them close
		d.Close()
		obs.Close()
	}()

	br := bridge.New(
		tracker.New(tracker.ConfigFrom(config.GetTrackerConfig(), config.GetWeaponWeights())),
		effects.New(config.GetEffectsConfig()),
		leds.New(devCfg.Bindings, config.GetAircraftConfig()),
		adapter,
		bridge.WithLogger(log),
		bridge.WithSampledLogger(sampled),
		bridge.WithStats(rcv.Stats),
		bridge.WithPublisher(d),
	)

	sched := scheduler.New(schedCfg, rcv, br, scheduler.Hooks{
		OnActive: br.OnActive,
		OnIdle:   br.OnIdle,
	}, log)
	state.Store(&live{sched: sched, bridge: br})

	mon := monitor.NewService(monitor.Dependencies{
		Stats:     rcv.Stats,
		Loop:      sched,
		Health:    br.Health,
		Publisher: d,
		Logger:    log,
		Config:    config.GetMonitorConfig(),
	})
	if err := mon.Start(); err != nil {
		return err
	}

	err = sched.Run(ctx)

	mon.Stop()
	if sched.State() == scheduler.Active {
		br.OnIdle()
	}
	log.Info("Shutting down")
	return err
}
