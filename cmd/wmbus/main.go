package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/wmbusd/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:          "wmbus",
		Short:        "Decode Wireless and wired M-Bus telegrams",
		Long:         "wmbus decodes M-Bus telegrams from hex input or from radio dongles.",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			logrus.SetLevel(cfg.Level())
			loaded = cfg
			return nil
		},
	}

	v          = config.New()
	configPath string
	loaded     config.Config
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to the YAML configuration file")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("keys-file", "", "YAML file mapping secondary addresses to AES keys")
	for key, flag := range map[string]string{"log_level": "log-level", "keys_file": "keys-file"} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	rootCmd.AddCommand(analyzeCmd, listenCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}
