package main

import (
	"fmt"
	"os"

	"hdlc-toolkit/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = &logrus.Logger{
	Out:   os.Stderr,
	Level: logrus.InfoLevel,
	Formatter: &logrus.TextFormatter{
		FullTimestamp: true,
	},
}

type globalOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func main() {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "hdlcctl",
		Short: "Reliable packet links over byte streams",
		Long: `hdlcctl runs HDLC framed go-back-N links over TCP or an
emulated in-memory line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(
		loopbackCmd(opts),
		listenCmd(opts),
		dialCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the
// command line overrides.
func (opts *globalOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Listen = opts.metricsAddr
	}
	cfg.Link.Logger = log
	return cfg, nil
}
