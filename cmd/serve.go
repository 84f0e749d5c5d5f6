package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/re-ink/intake/internal/api"
	"github.com/re-ink/intake/internal/extract"
	"github.com/re-ink/intake/internal/review"
	"github.com/re-ink/intake/internal/upload"
	"github.com/re-ink/intake/pkg/ade"
	"github.com/re-ink/intake/pkg/advisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intake API server",
	Long:  "Starts the HTTP API: document upload and extraction, review and approval, contract and party management.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "serve: migrate")
		}

		uploads, err := upload.NewLocal(cfg.Uploads.Dir, cfg.Uploads.MaxSizeMB, cfg.Uploads.AllowedExtensions)
		if err != nil {
			return err
		}

		client := ade.NewHTTPClient(ade.Options{
			BaseURL:           cfg.ADE.BaseURL,
			APIKey:            cfg.ADE.Key,
			ParseModel:        cfg.ADE.ParseModel,
			ExtractModel:      cfg.ADE.ExtractModel,
			RequestsPerSecond: cfg.ADE.RequestsPerSecond,
		})

		orch := extract.New(ctx, st, client, uploads, extract.Options{
			MaxConcurrentJobs: cfg.Extract.MaxConcurrentJobs,
			PollInterval:      time.Duration(cfg.Extract.PollIntervalSecs) * time.Second,
			PollTimeout:       time.Duration(cfg.Extract.PollTimeoutSecs) * time.Second,
		})

		engine := review.NewEngine(st, st)

		var adv advisor.Advisor
		if cfg.Advisor.Offline || cfg.Advisor.Key == "" {
			adv = advisor.NewOffline()
		} else {
			adv = advisor.NewAnthropic(cfg.Advisor.Key, cfg.Advisor.Model, cfg.Advisor.MaxTokens)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(orch, engine, st, uploads, adv).Router(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("api server listening", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return eris.Wrap(err, "serve: listen")
		case <-ctx.Done():
		}

		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "serve: shutdown")
		}
		if err := orch.Wait(); err != nil {
			return eris.Wrap(err, "serve: drain workers")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
