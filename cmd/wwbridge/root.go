package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/version"
)

// flagKeys maps command line flags to their configuration keys.
var flagKeys = map[string]string{
	"port":      "receiver.port",
	"host":      "receiver.host",
	"debug":     "debug",
	"aircraft":  "aircraft.override",
	"log-level": "logLevel",
}

var cfgFile string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wwbridge",
		Short:         "Bridge DCS telemetry to WinWing LEDs and haptic motors",
		Version:       version.FullVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./"+config.FileName+")")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Int("port", 7780, "UDP port to receive telemetry on")
	pf.String("host", "127.0.0.1", "address to bind the telemetry socket to")
	pf.Bool("debug", false, "print every haptic event and motor change")
	pf.String("aircraft", "", "force the aircraft used for LED mapping")

	rootCmd.AddCommand(
		newRunCmd(),
		newTestCmd(),
		newDevicesCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "wwbridge", version.FullVersion)
		},
	}
}

// initConfig reads the config file and ENV variables and binds the flags.
// A missing default file falls back to the defaults; an explicit one must load.
func initConfig(cmd *cobra.Command) error {
	var err error
	if cfgFile != "" {
		err = config.LoadFile(cfgFile)
	} else {
		err = config.Load(".")
	}

	switch {
	case err == nil:
	case errors.Is(err, config.ErrUnsupportedVersion):
		return err
	case cfgFile != "":
		return err
	default:
		fmt.Fprintln(os.Stderr, "No config file found, using defaults")
	}

	bindFlags(cmd, viper.GetViper())
	return nil
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --log-level to WWBRIDGE_LOG_LEVEL
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if err := v.BindEnv(key, fmt.Sprintf("%s_%s", config.EnvPrefix, envVarSuffix)); err != nil {
			fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v\n", f.Name, err)
		}
		// An explicit flag wins over file and environment.
		if f.Changed {
			v.Set(key, f.Value.String())
		}
	})
}
