package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/dates"
	"github.com/hazyhaar/cjenik/dbopen"
	"github.com/hazyhaar/cjenik/ingest"
	"github.com/hazyhaar/cjenik/upstream"
)

func newIngestCmd(cfgPath *string) *cobra.Command {
	var (
		date  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load one archive day into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if date != "" && !dates.Valid(date) {
				return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
			}

			db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer db.Close()

			cat := catalog.New(db, logger)
			client := upstream.New(upstream.Config{
				BaseURL:   cfg.BaseURL,
				Timeout:   cfg.HTTPTimeout(),
				ListTTL:   cfg.ListTTL(),
				UserAgent: cfg.UserAgent,
				Logger:    logger,
			})

			if date == "" {
				date = resolveDefaultDate(ctx, client, logger)
			}

			driver := ingest.New(cat, client, logger)
			res, err := driver.Ingest(ctx, date, force)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Printf("date %s already ingested, nothing to do\n", res.Date)
				return nil
			}
			fmt.Printf("ingested %s: %d chains (%d failed), %d stores, %d products, %d prices\n",
				res.Date, res.Chains, res.ChainErrors, res.Stores, res.Products, res.Prices)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "archive date YYYY-MM-DD (default: most recent available)")
	cmd.Flags().BoolVar(&force, "force", false, "re-ingest even when the date already succeeded")
	return cmd
}

// resolveDefaultDate picks the newest published archive date, falling back
// to today's locale date when the list call fails.
func resolveDefaultDate(ctx context.Context, client *upstream.Client, logger *slog.Logger) string {
	archives, err := client.List(ctx)
	if err == nil && len(archives) > 0 {
		return archives[0].Date
	}
	today := dates.Today()
	logger.Warn("archive list unavailable, using today", "date", today, "error", err)
	return today
}
