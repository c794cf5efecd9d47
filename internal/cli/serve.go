package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemon-ai/mnemon/internal/config"
	"github.com/mnemon-ai/mnemon/internal/engine"
	"github.com/mnemon-ai/mnemon/internal/logging"
	"github.com/mnemon-ai/mnemon/internal/server"
	"github.com/mnemon-ai/mnemon/internal/spool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, cfg, log)
	log.Info().
		Str("driver", cfg.Database.Driver).
		Str("embedder", eng.Embedder.Model()).
		Int("dimension", eng.Embedder.Dimensions()).
		Msg("engine ready")

	if cfg.Maintenance.Enabled {
		if err := eng.StartMaintenance(); err != nil {
			return err
		}
		defer eng.Stop()
	}

	if cfg.Spool.Enabled {
		dir, err := cfg.SpoolDir()
		if err != nil {
			return err
		}
		watcher, err := spool.New(eng, dir, log)
		if err != nil {
			return err
		}
		watcher.Start()
		defer watcher.Close()
	}

	srv := server.New(eng, VersionString(), log)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Msg("mnemon serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
