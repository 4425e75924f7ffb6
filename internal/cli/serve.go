package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/logging"
	"github.com/headline-goat/variant-goat/internal/metrics"
	"github.com/headline-goat/variant-goat/internal/server"
	"github.com/headline-goat/variant-goat/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the vgoat HTTP server.

The server provides:
  - GET  /api/decide      merged page configuration for a session
  - GET  /api/assignment  single experiment assignment
  - POST /b               conversion and metric beacon
  - GET  /api/results/ID  experiment statistics
  - GET  /metrics         Prometheus metrics
  - GET  /health          health check

Example:
  vgoat serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pub := newPublisher(cfg.Events, log)
	defer pub.Close()

	eng := engine.New(s,
		engine.WithLogger(log),
		engine.WithPublisher(pub),
		engine.WithMetrics(metrics.New(reg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting vgoat",
		zap.String("db", cfg.Database.Path),
		zap.String("events_backend", cfg.Events.Backend),
	)
	return server.New(eng, s, cfg.Server.Port, log, reg).Run(ctx)
}
