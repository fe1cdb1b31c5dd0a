// Package main provides the cjenik CLI: the HTTP/MCP server and the daily
// archive ingest.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "cjenik",
		Short: "Daily retail-price archive pipeline",
		Long: `Cjenik ingests the daily price archives published by the upstream
catalog service into a local SQLite catalog and serves product search and
price-history queries, falling back to ranged reads of the remote archives
for days that are not ingested yet.`,
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "cjenik.yaml", "path to the YAML config file")

	rootCmd.AddCommand(
		newServeCmd(&cfgPath),
		newIngestCmd(&cfgPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger installs the process-wide JSON logger.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
