// Package upload publishes rendered timelapses, appends the link back to
// the source stream, and performs the final cleanup and commit steps.
package upload

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"streamlapse/internal/compose"
	"streamlapse/internal/config"
	"streamlapse/internal/fileutil"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/notifications"
	"streamlapse/internal/publish"
	"streamlapse/internal/queue"
	"streamlapse/internal/retry"
	"streamlapse/internal/services"
	"streamlapse/internal/stage"
	"streamlapse/internal/staging"
)

// Uploader manages the publish stage.
type Uploader struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	client   publish.Uploader
	ledger   *ledger.Store
	notifier notifications.Service
	policy   retry.Policy
	rng      *rand.Rand
}

// NewUploader constructs the upload handler using default dependencies.
func NewUploader(cfg *config.Config, store *queue.Store, processed *ledger.Store, logger *slog.Logger) *Uploader {
	tokens := publish.NewTokenManager(cfg.Upload.TokenFile, nil)
	client, err := publish.New(cfg.Upload.UploadURL, tokens)
	if err != nil {
		logger.Warn("upload client unavailable", logging.Error(err))
	}
	return NewUploaderWithDependencies(cfg, store, processed, logger, client,
		notifications.NewService(cfg), rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewUploaderWithDependencies allows injecting all collaborators (used in tests).
func NewUploaderWithDependencies(cfg *config.Config, store *queue.Store, processed *ledger.Store, logger *slog.Logger, client publish.Uploader, notifier notifications.Service, rng *rand.Rand) *Uploader {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "uploader"))
	}
	return &Uploader{
		store:    store,
		cfg:      cfg,
		logger:   stageLogger,
		client:   client,
		ledger:   processed,
		notifier: notifier,
		policy:   retry.NewPolicy(cfg.Pipeline.RetryAttempts, time.Duration(cfg.Pipeline.RetryDelay)*time.Second),
		rng:      rng,
	}
}

func (u *Uploader) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, u.logger)
	item.SetProgress("Uploading", "Starting upload")
	item.ErrorMessage = ""
	logger.Info("starting upload preparation",
		logging.String("output_file", strings.TrimSpace(item.OutputFile)),
		logging.String(logging.FieldVideoID, item.VideoID),
	)
	return nil
}

func (u *Uploader) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, u.logger)
	if u.client == nil {
		return services.Wrap(services.ErrConfiguration, "upload", "client",
			"upload client unavailable; check upload token configuration", nil)
	}
	output := strings.TrimSpace(item.OutputFile)
	if output == "" {
		return services.Wrap(services.ErrValidation, "upload", "locate output",
			"No transcoded file recorded for item", nil)
	}
	if _, err := os.Stat(output); err != nil {
		return services.Wrap(services.ErrValidation, "upload", "locate output",
			"Transcoded file missing from staging", err)
	}

	meta := u.buildMetadata(item)

	var uploadedID string
	uploadErr := u.policy.Do(ctx, func(ctx context.Context) error {
		id, err := u.client.Upload(ctx, output, meta)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "upload", "publish video",
				"Upload failed; check credentials and quota", err)
		}
		uploadedID = id
		return nil
	})
	if uploadErr != nil {
		// The rendered artifact is the only remaining copy of this work;
		// preserve it for manual recovery before surfacing the failure.
		u.preserveForReview(ctx, item, output)
		return uploadErr
	}

	item.UploadedVideoID = uploadedID
	timelapseURL := "https://youtu.be/" + uploadedID
	logger.Info("upload completed",
		logging.String("uploaded_video_id", uploadedID),
		logging.String("watch_url", timelapseURL),
		logging.String(logging.FieldEventType, "upload_complete"),
	)

	if u.cfg.Pipeline.Commit == config.CommitAfterPublish && !item.Committed {
		u.ledger.Add(item.URL)
		item.Committed = true
		logger.Info("stream committed to processed log",
			logging.String("url", item.URL),
			logging.String(logging.FieldEventType, "ledger_commit"),
		)
	}

	// Best effort: a failed link back never rolls back the publish.
	if err := u.client.AppendDescriptionLink(ctx, item.VideoID, timelapseURL); err != nil {
		logger.Warn("link back to source stream failed",
			logging.String(logging.FieldVideoID, item.VideoID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "source description missing timelapse link"),
		)
	}

	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to delete transcoded file", logging.Error(err))
	}
	if err := staging.RemoveItemDir(u.cfg.Paths.StagingDir, item.ID); err != nil {
		logger.Warn("failed to remove staging directory", logging.Error(err))
	}
	item.OutputFile = ""
	item.SetProgress("Completed", "Timelapse published")

	if u.notifier != nil {
		if err := u.notifier.NotifyUploadCompleted(ctx, meta.Title, timelapseURL); err != nil {
			logger.Warn("upload notification failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck verifies publish dependencies.
func (u *Uploader) HealthCheck(ctx context.Context) stage.Health {
	const name = "uploader"
	if u.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if u.client == nil {
		return stage.Unhealthy(name, "upload client unavailable")
	}
	if strings.TrimSpace(u.cfg.Upload.TokenFile) == "" {
		return stage.Unhealthy(name, "upload token file not configured")
	}
	return stage.Healthy(name)
}

func (u *Uploader) buildMetadata(item *queue.Item) publish.Metadata {
	startTime, err := time.Parse(time.RFC3339, item.StartTime)
	if err != nil {
		startTime = item.CreatedAt
	}
	generated := compose.Generate(compose.Source{
		Title:     item.Title,
		URL:       item.URL,
		StartTime: startTime,
	}, u.rng)

	tags := generated.Tags
	if len(u.cfg.Upload.Tags) > 0 {
		tags = append(append([]string(nil), tags...), u.cfg.Upload.Tags...)
	}
	return publish.Metadata{
		Title:       generated.Title,
		Description: generated.Description,
		Tags:        tags,
		CategoryID:  u.cfg.Upload.CategoryID,
		Privacy:     u.cfg.Upload.Privacy,
	}
}

func (u *Uploader) preserveForReview(ctx context.Context, item *queue.Item, output string) {
	logger := logging.WithContext(ctx, u.logger)
	reviewDir := strings.TrimSpace(u.cfg.Paths.ReviewDir)
	if reviewDir == "" {
		return
	}
	if err := os.MkdirAll(reviewDir, 0o755); err != nil {
		logger.Warn("failed to create review directory", logging.Error(err))
		return
	}
	target := filepath.Join(reviewDir, filepath.Base(output))
	if err := fileutil.CopyFileVerified(output, target); err != nil {
		logger.Warn("failed to preserve artifact for review",
			logging.Error(err),
			logging.String(logging.FieldImpact, "manual recovery requires the staging copy"),
		)
		return
	}
	item.NeedsReview = true
	item.ReviewReason = "upload retries exhausted; artifact preserved in review directory"
	logger.Info("artifact preserved for review",
		logging.String("review_file", target),
		logging.String(logging.FieldEventType, "review_preserved"),
	)
	if u.notifier != nil {
		if err := u.notifier.NotifyReviewRequired(ctx, item.Title, item.ReviewReason); err != nil {
			logger.Warn("review notification failed", logging.Error(err))
		}
	}
}
