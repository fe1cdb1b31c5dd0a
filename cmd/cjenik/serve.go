package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cjenik/catalog"
	"github.com/hazyhaar/cjenik/dbopen"
	"github.com/hazyhaar/cjenik/query"
	"github.com/hazyhaar/cjenik/server"
	"github.com/hazyhaar/cjenik/upstream"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var mcpTransport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the price query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

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
			queries := query.New(cat, client, logger)

			if mcpTransport == "stdio" {
				srv := mcp.NewServer(&mcp.Implementation{Name: "cjenik", Version: version}, nil)
				queries.RegisterMCP(srv)
				logger.Info("mcp server on stdio")
				return srv.Run(ctx, &mcp.StdioTransport{})
			}

			return server.New(queries, cat, logger).Run(ctx, cfg.Listen)
		},
	}
	cmd.Flags().StringVar(&mcpTransport, "mcp", os.Getenv("MCP_TRANSPORT"), `expose tools over MCP instead of HTTP ("stdio")`)
	return cmd
}
