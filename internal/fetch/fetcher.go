// Package fetch downloads stream source files with yt-dlp and records the
// processed-set commit when the commit policy is after_download.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"streamlapse/internal/config"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/notifications"
	"streamlapse/internal/queue"
	"streamlapse/internal/retry"
	"streamlapse/internal/services"
	"streamlapse/internal/services/ytdlp"
	"streamlapse/internal/stage"
	"streamlapse/internal/staging"
)

// Fetcher manages the yt-dlp download stage.
type Fetcher struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	client   ytdlp.Downloader
	ledger   *ledger.Store
	notifier notifications.Service
	policy   retry.Policy
}

// NewFetcher constructs the fetch handler using default dependencies.
func NewFetcher(cfg *config.Config, store *queue.Store, processed *ledger.Store, logger *slog.Logger) *Fetcher {
	client, err := ytdlp.New(cfg.YtdlpBinary(), cfg.Fetch.Format, cfg.Fetch.DownloadTimeout)
	if err != nil {
		logger.Warn("yt-dlp client unavailable", logging.Error(err))
	}
	return NewFetcherWithDependencies(cfg, store, processed, logger, client, notifications.NewService(cfg))
}

// NewFetcherWithDependencies allows injecting all collaborators (used in tests).
func NewFetcherWithDependencies(cfg *config.Config, store *queue.Store, processed *ledger.Store, logger *slog.Logger, client ytdlp.Downloader, notifier notifications.Service) *Fetcher {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "fetcher"))
	}
	return &Fetcher{
		store:    store,
		cfg:      cfg,
		logger:   stageLogger,
		client:   client,
		ledger:   processed,
		notifier: notifier,
		policy:   retry.NewPolicy(cfg.Pipeline.RetryAttempts, time.Duration(cfg.Pipeline.RetryDelay)*time.Second),
	}
}

func (f *Fetcher) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, f.logger)
	item.SetProgress("Fetching", "Starting download")
	item.ErrorMessage = ""
	logger.Info("starting fetch preparation",
		logging.String("title", strings.TrimSpace(item.Title)),
		logging.String(logging.FieldVideoID, item.VideoID),
	)
	return nil
}

func (f *Fetcher) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, f.logger)
	if f.client == nil {
		return services.Wrap(services.ErrConfiguration, "fetch", "client",
			"yt-dlp client unavailable; check that yt-dlp is installed", nil)
	}

	destDir, err := staging.ItemDir(f.cfg.Paths.StagingDir, item.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "fetch", "ensure staging dir",
			"Failed to create staging directory; set staging_dir to a writable location", err)
	}

	var sourceFile string
	downloadErr := f.policy.Do(ctx, func(ctx context.Context) error {
		path, err := f.client.Download(ctx, item.URL, destDir, func(update ytdlp.ProgressUpdate) {
			f.applyProgress(ctx, item, update)
		})
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "fetch", "yt-dlp download",
				"Download failed; check network and yt-dlp version", err)
		}
		sourceFile = path
		return nil
	})
	if downloadErr != nil {
		return downloadErr
	}

	// A zero-byte file means yt-dlp exited cleanly without fetching
	// anything usable; treat it as a hard failure, not a retry.
	info, err := os.Stat(sourceFile)
	if err != nil {
		return services.Wrap(services.ErrValidation, "fetch", "verify download",
			"Downloaded file missing after yt-dlp run", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(sourceFile)
		return services.Wrap(services.ErrValidation, "fetch", "verify download",
			"Downloaded file is empty", nil)
	}

	item.SourceFile = sourceFile
	item.SetProgress("Fetched", "Source file downloaded")
	logger.Info("download completed",
		logging.String("source_file", sourceFile),
		logging.Int64("size_bytes", info.Size()),
		logging.String(logging.FieldEventType, "fetch_complete"),
	)

	// With the after_download policy the stream counts as handled the
	// moment the source file is verified on disk: a later transform or
	// publish failure will not cause it to be picked up again.
	if f.cfg.Pipeline.Commit == config.CommitAfterDownload && !item.Committed {
		f.ledger.Add(item.URL)
		item.Committed = true
		logger.Info("stream committed to processed log",
			logging.String("url", item.URL),
			logging.String(logging.FieldEventType, "ledger_commit"),
		)
	}

	if f.notifier != nil {
		if err := f.notifier.NotifyDownloadCompleted(ctx, item.Title); err != nil {
			logger.Warn("download notification failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck verifies download dependencies.
func (f *Fetcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "fetcher"
	if f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(f.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if f.client == nil {
		return stage.Unhealthy(name, "yt-dlp client unavailable")
	}
	binary := strings.TrimSpace(f.cfg.YtdlpBinary())
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("yt-dlp binary %q not found", binary))
	}
	return stage.Healthy(name)
}

func (f *Fetcher) applyProgress(ctx context.Context, item *queue.Item, update ytdlp.ProgressUpdate) {
	logger := logging.WithContext(ctx, f.logger)
	copied := *item
	copied.ProgressStage = "Fetching"
	if update.Message != "" {
		copied.ProgressMessage = update.Message
	}
	if err := f.store.Update(ctx, &copied); err != nil {
		logger.Warn("failed to persist progress", logging.Error(err))
		return
	}
	*item = copied
}
