package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/konsulin-care/focus/internal/config"
	"github.com/konsulin-care/focus/internal/database"
	"github.com/konsulin-care/focus/internal/handlers"
	logger "github.com/konsulin-care/focus/internal/logging"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/repository"
	"github.com/konsulin-care/focus/internal/router"
	"github.com/konsulin-care/focus/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveDevelopment bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the test engine behind the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDevelopment, "dev", false, "relax security headers for local development")
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(projectRoot)
	if err != nil {
		return err
	}

	// Initialize Logger
	log, err := logger.Init(conf.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	holder, err := config.Init(projectRoot, log)
	if err != nil {
		return err
	}
	conf = holder.Get()

	norms := loadNorms(log, resolvePath(conf.Norms.Path))

	var store services.ResultStore = repository.NewInMemoryStore()
	if conf.Database.Enabled {
		db, err := database.Open(conf.Database, log)
		if err != nil {
			return err
		}
		store = repository.NewGormStore(db)
	} else {
		log.Warn("Database disabled, results are kept in memory")
	}

	hub := handlers.NewStreamHub(log)
	engine, err := services.NewEngine(services.EngineOptions{
		Log:   log,
		Norms: norms,
		Store: store,
		Settings: func() services.SessionSettings {
			return holder.Get().SessionSettings()
		},
		Observers: []services.Observer{hub},
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	r := router.Setup(log, router.Options{
		CPT: handlers.NewCPTHandler(log, engine, norms, func() services.SessionSettings {
			return holder.Get().SessionSettings()
		}),
		Stream:         hub,
		StartRateLimit: conf.Server.StartRateLimit,
		Development:    serveDevelopment,
	})

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost" + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	engine.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadNorms returns nil when the table cannot be read; sessions are then
// scored without z-scores.
func loadNorms(log *zap.Logger, path string) metrics.NormativeLookup {
	table, err := metrics.LoadNormativeTable(path)
	if err != nil {
		log.Warn("Normative data unavailable, scores will be unavailable", zap.String("path", path), zap.Error(err))
		return nil
	}
	log.Info("Normative data loaded", zap.String("source", table.Source), zap.Int("rows", len(table.Rows)))
	return table
}

func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}
