package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/gpiod/config"
	"github.com/cyberinferno/gpiod/logger"
)

// Version is set via -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	port       int
	driver     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "gpiod",
		Short:         "Remote GPIO control daemon",
		Long:          "gpiod lets TCP clients drive an LED, buzzer and digit display, read a light sensor and receive button events.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				fmt.Fprintln(os.Stderr, "gpiod:", err)
				return err
			}

			log, err := logger.New(logger.Options{
				Service: "gpiod",
				Level:   cfg.Logging.Level,
				Format:  cfg.Logging.Format,
				Dir:     cfg.Logging.Dir,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "gpiod:", err)
				return err
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, log); err != nil {
				log.Error("gpiod exited with error", logger.Err(err))
				return err
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	flags.IntVarP(&opts.port, "port", "p", 0, "TCP port to listen on (overrides config)")
	flags.StringVar(&opts.driver, "driver", "", "device driver: sim or gpio (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	cmd.SetContext(context.Background())
	return cmd
}

// loadConfig reads the config file and applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("driver") {
		cfg.Device.Driver = opts.driver
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
