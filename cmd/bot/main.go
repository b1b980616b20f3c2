package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemini-composer/internal/config"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/handlers"
	"gemini-composer/internal/httpclient"
	"gemini-composer/internal/logging"
	"gemini-composer/internal/mediagroup"
	"gemini-composer/internal/session"
	"gemini-composer/internal/store"
	"gemini-composer/internal/telegram"
)

const albumDrainTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := cfg.RequireTelegram(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	defer db.Close()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout(),
		Logger:     logger,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error().Err(err).Msg("telegram init failed")
		os.Exit(1)
	}

	gem := gemini.New(gemini.Options{
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		ImageModel: cfg.ImageModel,
		TextModel:  cfg.TextModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	handler := handlers.New(handlers.Options{
		Telegram:       tg,
		KV:             db,
		Generator:      gem,
		Logger:         logger,
		APIKey:         cfg.GeminiAPIKey,
		Policy:         session.SubmitPolicy(cfg.SubmitPolicy),
		RequestTimeout: cfg.RequestTimeout(),
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	albums := newAlbumWorkers(ctx, sem, cfg.RequestTimeout(), handler.HandleAlbum)

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce(),
		OnFlush:  albums.Submit,
	})
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info().Str("username", tg.Username()).Str("db", cfg.DBPath).Msg("bot started")

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("pending_albums", aggregator.Pending()).Msg("shutting down")
			aggregator.FlushAll()
			if !albums.Drain(albumDrainTimeout) {
				logger.Warn().Msg("albums still running at exit")
			}
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info().Msg("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// The next loop turn flushes pending albums.
				continue
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				// Generation carries its own timeout inside the session.
				if err := handler.HandleUpdate(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Int("update_id", update.UpdateID).Msg("handle update failed")
				}
			}(update)
		}
	}
}
