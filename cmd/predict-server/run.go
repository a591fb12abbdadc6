package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-image-predict/internal/config"
	"github.com/tendant/simple-image-predict/internal/handlers"
	"github.com/tendant/simple-image-predict/internal/monitoring"
	"github.com/tendant/simple-image-predict/internal/storage"
	"github.com/tendant/simple-image-predict/internal/vertex"
	"github.com/tendant/simple-image-predict/internal/workflows"
)

func runCmd() *cobra.Command {
	var path string
	var envFile string
	var logLevel int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(path, envFile, os.LookupEnv)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}

			if err := run(cmd.Context(), &c, logLevel); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "Path to the config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to the dotenv file, ignored if missing")
	cmd.Flags().IntVar(&logLevel, "v", 0, "Log level")
	return cmd
}

func run(ctx context.Context, c *config.Config, lv int) error {
	stdr.SetVerbosity(lv)
	logger := stdr.New(log.Default())
	log := logger.WithName("boot")

	if c.ProjectID == "" || c.EndpointID == "" {
		log.Info("PROJECTID or ENDPOINT is not set; /predict will fail until both are configured")
	}

	artifacts, err := storage.NewFilesystemStorage(c.StagingDir)
	if err != nil {
		return err
	}

	vclient := vertex.NewClient(vertex.Config{
		ProjectID:   c.ProjectID,
		EndpointID:  c.EndpointID,
		Location:    c.Location,
		APIEndpoint: c.APIEndpoint,
		Timeout:     c.PredictTimeout,
	}, logger)
	defer func() {
		if err := vclient.Close(); err != nil {
			log.Error(err, "Failed to close prediction client")
		}
	}()

	workflow := workflows.NewClassificationWorkflow(
		storage.NewHTTPImageReader(&http.Client{Timeout: c.DownloadTimeout}),
		artifacts,
		vclient,
		workflows.NewPreprocessor(c.MaxImageDimension),
		logger,
	)

	log.Info("Registered workflow", "name", workflow.Name(), "maxImageDimension", c.MaxImageDimension)

	m := monitoring.NewMetricsMonitor(prometheus.DefaultRegisterer)
	predictHandler := handlers.NewPredictHandler(workflow, m, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.HTTPPort),
		Handler: newMux(predictHandler, prometheus.DefaultGatherer),
	}

	log.Info("Configured prediction endpoint",
		"endpoint", vclient.Endpoint(),
		"apiEndpoint", c.APIEndpoint,
		"stagingDir", artifacts.BaseDir(),
	)

	return serve(ctx, server, c, logger)
}

func newMux(predictHandler *handlers.PredictHandler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/predict", predictHandler.HandlePredict)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// serve runs the server until it fails or the process is interrupted, then
// shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, c *config.Config, logger logr.Logger) error {
	log := logger.WithName("http")

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server...", "port", c.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Stopped HTTP server")
	return nil
}
