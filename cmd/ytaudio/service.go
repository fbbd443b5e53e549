package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"ytaudio/internal/config"
	"ytaudio/internal/download"
	"ytaudio/internal/extractor"
	"ytaudio/internal/logging"
	"ytaudio/internal/pacer"
	"ytaudio/internal/store"
)

type service struct {
	cfg   *config.Config
	log   *slog.Logger
	files *store.Store
	pacer pacer.Pacer
	orch  *download.Orchestrator
}

func newService(c *cli.Context) (*service, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	logger := logging.Setup(os.Stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	files, err := store.New(cfg.Download.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	inv := extractor.New(extractor.Options{
		Binary:          cfg.Download.Binary,
		Timeout:         cfg.Download.Timeout,
		CookiesFile:     cfg.Download.CookiesFile,
		Retries:         cfg.Download.Retries,
		FragmentRetries: cfg.Download.FragmentRetries,
		SleepRequests:   cfg.Download.SleepRequests,
	}, extractor.ExecRunner{}, files, logger)

	p := pacer.New(pacer.Options{
		MinInterval: cfg.Pacer.MinInterval,
		RedisURL:    cfg.Redis.URL,
		Key:         cfg.Redis.Key,
	}, logger)

	orch := download.New(inv, files, p, download.Options{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Policies:    cfg.Retry.Policies(),
	}, logger)

	return &service{cfg: cfg, log: logger, files: files, pacer: p, orch: orch}, nil
}

func (s *service) Close() {
	if err := s.pacer.Close(); err != nil {
		s.log.Warn("Failed to close pacer", "error", err)
	}
}
