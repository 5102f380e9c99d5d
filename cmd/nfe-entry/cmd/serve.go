package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-entry/internal/logging"
	"github.com/rezonia/nfe-entry/internal/metrics"
	"github.com/rezonia/nfe-entry/internal/server"
	"github.com/rezonia/nfe-entry/internal/signature/xml"
	"github.com/rezonia/nfe-entry/internal/store"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for importing NF-e invoices into purchase entries.

The API provides endpoints for:
  - POST /api/v1/nfe/parse             - Parse NF-e XML and seed an entry draft
  - POST /api/v1/process/image         - Extract a DANFE image through the LLM
  - POST /api/v1/allocation            - Compute the rateio for a set of items
  - POST /api/v1/entries               - Validate and save a purchase entry
  - GET  /api/v1/entries[/:id]         - Read saved entries
  - GET  /api/v1/entries/:id/export.xlsx - Rateio spreadsheet
  - POST /api/v1/verify                - Verify the NF-e signature
  - POST /api/v1/info                  - Get file information
  - GET  /health, /metrics

Entries are kept in memory unless a database URL is configured.

Examples:
  # Start server on default port
  nfe-entry serve

  # Persist entries in PostgreSQL
  nfe-entry serve --database-url postgres://localhost/nfe

  # Start in debug mode with request logging
  nfe-entry serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", ":8080", "Server listen address")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 5*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Server.Address = serverAddr
	}
	if flags.Changed("debug") {
		cfg.Server.Debug = serverDebug
	}
	if flags.Changed("read-timeout") {
		cfg.Server.ReadTimeout = readTimeout
	}
	if flags.Changed("write-timeout") {
		cfg.Server.WriteTimeout = writeTimeout
	}

	logger, err := logging.New(cfg.Server.Debug || verbose)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ts, err := newTrustStore(false)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	srv := server.NewServer(cfg,
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithStore(st),
		server.WithVerifier(xml.NewNFeVerifier(ts)),
	)

	logger.Info("starting server",
		zap.String("address", cfg.Server.Address),
		zap.Bool("llm", cfg.LLM.Enabled()),
		zap.Int("trusted_roots", ts.Len()),
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, logger *zap.Logger) (store.Store, error) {
	if cfg.Database.URL == "" {
		logger.Info("using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	logger.Info("using postgres store")
	return pg, nil
}
