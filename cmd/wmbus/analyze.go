package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/pkg/wmbus"
)

var (
	analyzeCmd = &cobra.Command{
		Use:   "analyze [hex]",
		Short: "Decode a hex telegram, or read telegrams from stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ks, closeKeys, err := openKeyStore(ctx, loaded, logrus.StandardLogger())
			if err != nil {
				return err
			}
			defer closeKeys()
			opts := wmbus.AnalyzeOptions{
				KeyHex:   keyHex,
				KeyStore: ks,
				Compact:  frame.NewCompactCache(loaded.CompactCacheSize),
			}
			if len(args) == 0 {
				return runInteractive(ctx, opts)
			}
			return runAnalyze(ctx, opts, args[0])
		},
	}

	keyHex string
)

func init() {
	analyzeCmd.Flags().StringVar(&keyHex, "key", "", "hex-encoded 16-byte AES key (32 hex chars)")
}

func runInteractive(ctx context.Context, opts wmbus.AnalyzeOptions) error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("wmbus analyze mode. Paste a hex telegram and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runAnalyze(ctx, opts, line); err != nil {
			logrus.WithError(err).Error("failed to decode telegram")
		}
	}
	return scanner.Err()
}

func runAnalyze(ctx context.Context, opts wmbus.AnalyzeOptions, hex string) error {
	result, err := wmbus.AnalyzeHexWithOptions(ctx, hex, opts)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}
