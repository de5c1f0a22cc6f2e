package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamlapse/internal/config"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/queue"
	"streamlapse/internal/services"
	"streamlapse/internal/staging"
	"streamlapse/internal/youtube"
)

// PassSummary reports the outcome of one orchestrator pass.
type PassSummary struct {
	Discovered int
	Processed  int
	Failed     int
	Duration   time.Duration
}

// RunPass executes one full orchestrator pass: reclaim interrupted items,
// discover new completed streams, then drain the queue stage by stage
// until nothing is ready. The pass never aborts on a single item's
// failure; the item is parked and the drain continues.
func (m *Manager) RunPass(ctx context.Context) (PassSummary, error) {
	logger := m.passLogger()
	start := time.Now()
	summary := PassSummary{}

	if len(m.statusOrder) == 0 {
		return summary, errors.New("workflow stages not configured")
	}

	if reset, err := m.store.ResetStuckProcessing(ctx); err != nil {
		logger.Warn("reset of interrupted items failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "rollback_failed"),
		)
	} else if reset > 0 {
		logger.Info("rolled back interrupted items",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "rollback"),
		)
	}

	discovered, err := m.discover(ctx)
	if err != nil {
		m.setLastError(err)
		logger.Error("discovery failed; pass aborted",
			logging.Error(err),
			logging.String(logging.FieldEventType, "discovery_failed"),
		)
		summary.Duration = time.Since(start)
		return summary, err
	}
	summary.Discovered = discovered

	for {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		item, err := m.store.NextForStatuses(ctx, m.statusOrder...)
		if err != nil {
			m.setLastError(err)
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("fetch next queue item: %w", err)
		}
		if item == nil {
			break
		}
		if err := m.processItem(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) {
				summary.Duration = time.Since(start)
				return summary, err
			}
			summary.Failed++
			continue
		}
		if item.Status == queue.StatusCompleted {
			summary.Processed++
		}
	}

	retention := time.Duration(m.cfg.Workflow.StagingRetentionDays) * 24 * time.Hour
	if retention > 0 {
		staging.CleanStale(m.cfg.Paths.StagingDir, retention, logger)
	}

	summary.Duration = time.Since(start)
	if m.notifier != nil && (summary.Processed > 0 || summary.Failed > 0) {
		if err := m.notifier.NotifyPassCompleted(ctx, summary.Processed, summary.Failed, summary.Duration); err != nil {
			logger.Warn("pass notification failed", logging.Error(err))
		}
	}
	logger.Info("pass completed",
		logging.Int("discovered", summary.Discovered),
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Duration("pass_duration", summary.Duration),
		logging.String(logging.FieldEventType, "pass_complete"),
	)
	return summary, nil
}

// discover seeds the queue from the channel's uploads. In latest mode one
// candidate is enqueued per pass; in backlog mode the whole unprocessed
// backlog is enqueued oldest first.
func (m *Manager) discover(ctx context.Context) (int, error) {
	logger := m.passLogger()
	processed := m.ledger.Snapshot()

	candidates, err := m.selectCandidates(ctx, processed)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, video := range candidates {
		existing, err := m.store.FindByVideoID(ctx, video.ID)
		if err != nil {
			return seeded, fmt.Errorf("check queue for %s: %w", video.ID, err)
		}
		if existing != nil {
			// A failed item whose URL never reached the processed log is
			// still discoverable, so give it another run. Everything else
			// is already tracked by its queue entry.
			if existing.Status == queue.StatusFailed && !existing.Committed {
				existing.Status = queue.StatusPending
				existing.ErrorMessage = ""
				existing.SetProgress("Pending", "Requeued after earlier failure")
				if err := m.store.Update(ctx, existing); err != nil {
					return seeded, fmt.Errorf("requeue stream %s: %w", video.ID, err)
				}
				seeded++
				logger.Info("stream requeued",
					logging.Int64(logging.FieldItemID, existing.ID),
					logging.String(logging.FieldVideoID, video.ID),
					logging.String(logging.FieldEventType, "stream_requeued"),
				)
			}
			continue
		}
		item, err := m.store.NewStream(ctx,
			video.ID,
			video.URL(),
			video.Title,
			video.ActualStartTime.Format(time.RFC3339),
			video.ActualEndTime.Format(time.RFC3339),
			video.PublishedAt.Format(time.RFC3339),
		)
		if err != nil {
			return seeded, fmt.Errorf("enqueue stream %s: %w", video.ID, err)
		}
		seeded++
		logger.Info("stream enqueued",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldVideoID, video.ID),
			logging.String("title", video.Title),
			logging.String(logging.FieldEventType, "stream_enqueued"),
		)
		if m.notifier != nil {
			if err := m.notifier.NotifyStreamDiscovered(ctx, video.Title, video.ID); err != nil {
				logger.Warn("discovery notification failed", logging.Error(err))
			}
		}
	}
	return seeded, nil
}

func (m *Manager) selectCandidates(ctx context.Context, processed ledger.Set) ([]youtube.Video, error) {
	if m.cfg.Discovery.Mode == config.ModeBacklog {
		return m.discoverer.ScanAll(ctx, processed)
	}
	video, err := m.discoverer.Latest(ctx, processed)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, nil
	}
	return []youtube.Video{*video}, nil
}

func (m *Manager) processItem(ctx context.Context, item *queue.Item) error {
	stg, ok := m.stageByStart[item.Status]
	if !ok || stg.handler == nil {
		err := fmt.Errorf("no stage configured for status %q", item.Status)
		m.failItem(ctx, stg.name, item, err)
		return err
	}

	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(services.WithStage(services.WithItemID(ctx, item.ID), stg.name), requestID)
	logger := logging.WithContext(stageCtx, m.passLogger())

	item.Status = stg.processingStatus
	if err := m.store.Update(stageCtx, item); err != nil {
		m.setLastError(err)
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastItem(item)

	stageStart := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("title", strings.TrimSpace(item.Title)),
	)

	if err := stg.handler.Prepare(stageCtx, item); err != nil {
		m.failItem(stageCtx, stg.name, item, err)
		return err
	}
	if err := m.store.Update(stageCtx, item); err != nil {
		m.setLastError(err)
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := stg.handler.Execute(stageCtx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return err
		}
		m.failItem(stageCtx, stg.name, item, err)
		return err
	}

	if item.Status == stg.processingStatus || item.Status == "" {
		item.Status = stg.doneStatus
	}
	if err := m.store.Update(stageCtx, item); err != nil {
		m.setLastError(err)
		return fmt.Errorf("persist stage result: %w", err)
	}
	m.setLastItem(item)

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

func (m *Manager) failItem(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	logger := logging.WithContext(ctx, m.passLogger())

	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed without error detail", stageName)
	}

	switch {
	case item.NeedsReview && strings.TrimSpace(item.ReviewReason) != "":
		// The stage already set its review reason; keep it.
		item.Status = queue.StatusReview
		item.ErrorMessage = message
	case services.FailureStatus(stageErr) == queue.StatusReview:
		item.SetReview(message)
		item.ErrorMessage = message
	case item.Committed:
		// The stream is already in the processed log, so it will never be
		// rediscovered: an operator has to resolve it.
		item.SetReview("failed after the stream was marked handled; resolve manually")
		item.ErrorMessage = message
	default:
		item.SetFailed(message)
	}

	logger.Error("stage failed",
		logging.String(logging.FieldStage, stageName),
		logging.String("resolved_status", string(item.Status)),
		logging.String("error_message", message),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
	)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutdown in progress, could not persist stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastItem(item)
	m.setLastError(stageErr)

	if m.notifier != nil {
		if err := m.notifier.NotifyError(ctx, stageErr, stageName); err != nil {
			logger.Warn("error notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) passLogger() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return logging.NewNop()
}
