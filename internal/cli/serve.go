package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/molbhav/molbhav/internal/db"
	"github.com/molbhav/molbhav/internal/dialogue"
	"github.com/molbhav/molbhav/internal/httpapi"
	"github.com/molbhav/molbhav/internal/logging"
	"github.com/molbhav/molbhav/internal/quote"
	"github.com/molbhav/molbhav/internal/service"
	"github.com/molbhav/molbhav/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the negotiation API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		log, err := logging.New(cfg.Env)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("durable tier: %w", err)
		}
		defer pool.Close()

		rdb, err := store.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("hot tier: %w", err)
		}
		defer rdb.Close()

		st := store.New(store.NewHot(rdb), store.NewDurable(pool), log)

		var gen dialogue.Generator
		if cfg.GeminiAPIKey == "" {
			log.Warn("GEMINI_API_KEY not set, dialogue falls back to templates")
			gen = dialogue.TemplateOnly{}
		} else {
			gen, err = dialogue.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Env, log)
			if err != nil {
				return fmt.Errorf("dialogue generator: %w", err)
			}
		}

		svc := service.New(st, gen, quote.NewBuilder([]byte(cfg.QuoteSigningKey)), cfg, log)
		srv := httpapi.New(svc, st, cfg, log)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-stop
			log.Info("shutting down")
			if err := srv.Shutdown(); err != nil {
				log.Error("shutdown failed", zap.Error(err))
			}
		}()

		log.Info("mol-bhav listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		return srv.Listen(cfg.HTTPAddr)
	},
}
