package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/device"
	"github.com/winghaptics/wwbridge/internal/leds"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Flash every LED and ramp the motors, without telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSweep(ctx)
		},
	}
}

func runSweep(ctx context.Context) error {
	a := newApp(nil)
	defer a.Close()
	log := a.Logger

	devCfg, err := config.GetDeviceConfig()
	if err != nil {
		return err
	}
	adapter, err := device.NewAdapter(devCfg, device.NewHidraw(devCfg.WriteTimeout),
		device.WithLogger(log),
		device.WithRefreshInterval(viper.GetDuration("device.refreshInterval")),
	)
	if err != nil {
		return err
	}
	if err := adapter.Open(ctx); err != nil {
		return err
	}
	defer adapter.Close()

	mapper := leds.New(devCfg.Bindings, config.GetAircraftConfig())
	log.Info("Running output sweep", "devices", adapter.Connected())

	err = device.Sweep(ctx, adapter, mapper.AllOn(), mapper.AllOff(), log)
	if errors.Is(err, context.Canceled) {
		log.Info("Sweep interrupted")
		return nil
	}
	if err != nil {
		log.Warn("Sweep finished with write errors", "writeErrors", adapter.WriteErrors())
		return nil
	}
	log.Info("Sweep complete", "writeErrors", adapter.WriteErrors())
	return nil
}
