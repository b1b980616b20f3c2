package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemini-composer/internal/config"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/httpclient"
	"gemini-composer/internal/logging"
	"gemini-composer/internal/session"
	"gemini-composer/internal/store"
	"gemini-composer/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	defer db.Close()

	gem := gemini.New(gemini.Options{
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		ImageModel: cfg.ImageModel,
		TextModel:  cfg.TextModel,
		HTTPClient: httpclient.New(httpclient.Options{
			PreferIPv4: cfg.PreferIPv4,
			Timeout:    cfg.HTTPTimeout(),
			Logger:     logger,
		}),
		Logger: logger,
	})

	sess, err := session.Open(ctx, session.Options{
		KV:             db,
		Generator:      gem,
		Logger:         logger,
		APIKey:         cfg.GeminiAPIKey,
		Policy:         session.SubmitPolicy(cfg.SubmitPolicy),
		RequestTimeout: cfg.RequestTimeout(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open session failed")
	}

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           web.New(sess, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.WebAddr).Msg("web started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server error")
	}
}
