package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"streamlapse/internal/config"
	"streamlapse/internal/daemon"
	"streamlapse/internal/discovery"
	"streamlapse/internal/fetch"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/queue"
	"streamlapse/internal/transcode"
	"streamlapse/internal/upload"
	"streamlapse/internal/workflow"
	"streamlapse/internal/youtube"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		// A .env file in the working directory can supply YOUTUBE_API_KEY
		// and friends; absence is not an error.
		_ = godotenv.Load()

		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withDaemon builds the full pipeline around a shared config and hands
// the daemon to fn, closing the queue store afterward.
func (c *commandContext) withDaemon(logger *slog.Logger, fn func(*daemon.Daemon) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}

	d, err := buildDaemon(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer d.Close()
	return fn(d)
}

func buildDaemon(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	api, err := youtube.New(cfg.YouTube.APIKey, cfg.YouTube.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("build youtube client: %w", err)
	}
	processed := ledger.NewStore(cfg.Paths.ProcessedLog, logger)
	discoverer := discovery.New(api, cfg, logger)

	manager := workflow.NewManager(cfg, store, processed, discoverer, logger)
	manager.ConfigureStages(workflow.StageSet{
		Fetcher:    fetch.NewFetcher(cfg, store, processed, logger),
		Transcoder: transcode.NewTranscoder(cfg, store, logger),
		Uploader:   upload.NewUploader(cfg, store, processed, logger),
	})

	return daemon.New(cfg, store, logger, manager)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
