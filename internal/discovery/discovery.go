// Package discovery selects completed livestreams that have not been
// processed yet. It pages the channel's uploads playlist newest-first,
// batches detail lookups, and applies the processed-set, completion,
// and start-floor filters.
package discovery

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"streamlapse/internal/config"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/services"
	"streamlapse/internal/youtube"
)

// Discoverer walks a channel's uploads and picks processing candidates.
type Discoverer struct {
	api        youtube.API
	channelID  string
	pageSize   int
	scanBudget int
	floor      time.Time
	logger     *slog.Logger

	mu        sync.Mutex
	uploadsID string
}

// New builds a Discoverer from configuration. The scan floor has been
// validated as RFC3339 by config, so a parse failure here is treated as
// no floor.
func New(api youtube.API, cfg *config.Config, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = logging.NewNop()
	}
	var floor time.Time
	if raw := strings.TrimSpace(cfg.Discovery.ScanFloor); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			floor = parsed.UTC()
		}
	}
	return &Discoverer{
		api:        api,
		channelID:  cfg.YouTube.ChannelID,
		pageSize:   cfg.Discovery.PageSize,
		scanBudget: cfg.Discovery.ScanBudget,
		floor:      floor,
		logger:     logger.With(logging.String(logging.FieldComponent, "discovery")),
	}
}

// Latest returns the unprocessed completed stream with the most recent
// actual start time, or nil when nothing qualifies. Ties on start time
// keep the candidate encountered first in playlist order, so repeated
// passes over unchanged data pick the same stream.
func (d *Discoverer) Latest(ctx context.Context, processed ledger.Set) (*youtube.Video, error) {
	var best *youtube.Video
	err := d.scan(ctx, processed, func(video youtube.Video) {
		if best == nil || video.ActualStartTime.After(best.ActualStartTime) {
			copied := video
			best = &copied
		}
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		d.logger.Info("no unprocessed completed streams found",
			logging.String(logging.FieldEventType, "discovery_empty"))
		return nil, nil
	}
	d.logger.Info("selected latest completed stream",
		logging.String(logging.FieldVideoID, best.ID),
		logging.String("title", best.Title),
		logging.String("started_at", best.ActualStartTime.Format(time.RFC3339)),
		logging.String(logging.FieldEventType, "discovery_selected"))
	return best, nil
}

// ScanAll returns every unprocessed completed stream within the scan
// budget, oldest publish date first, for backlog seeding.
func (d *Discoverer) ScanAll(ctx context.Context, processed ledger.Set) ([]youtube.Video, error) {
	var found []youtube.Video
	err := d.scan(ctx, processed, func(video youtube.Video) {
		found = append(found, video)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].PublishedAt.Before(found[j].PublishedAt)
	})
	d.logger.Info("backlog scan complete",
		logging.Int("candidates", len(found)),
		logging.String(logging.FieldEventType, "discovery_backlog"))
	return found, nil
}

// scan pages the uploads playlist and invokes visit for each candidate
// that passes every filter. The scan budget counts playlist entries
// examined, not candidates accepted; a budget of zero or less means the
// whole playlist.
func (d *Discoverer) scan(ctx context.Context, processed ledger.Set, visit func(youtube.Video)) error {
	uploadsID, err := d.uploadsPlaylist(ctx)
	if err != nil {
		return err
	}

	scanned := 0
	pageToken := ""
	for {
		page, err := d.api.ListPlaylistPage(ctx, uploadsID, pageToken, d.pageSize)
		if err != nil {
			return services.Wrap(services.ErrTransient, "discovery", "list uploads", "uploads playlist page fetch failed", err)
		}

		ids := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			if d.scanBudget > 0 && scanned >= d.scanBudget {
				break
			}
			scanned++
			if processed.Contains(youtube.WatchURL(item.VideoID)) {
				continue
			}
			ids = append(ids, item.VideoID)
		}

		if len(ids) > 0 {
			videos, err := d.api.VideoDetails(ctx, ids)
			if err != nil {
				return services.Wrap(services.ErrTransient, "discovery", "video details", "video detail fetch failed", err)
			}
			for _, video := range videos {
				if !video.CompletedStream() {
					continue
				}
				if !d.floor.IsZero() && video.ActualStartTime.Before(d.floor) {
					continue
				}
				visit(video)
			}
		}

		if d.scanBudget > 0 && scanned >= d.scanBudget {
			d.logger.Debug("scan budget exhausted",
				logging.Int("scanned", scanned),
				logging.String(logging.FieldEventType, "discovery_budget"))
			return nil
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

func (d *Discoverer) uploadsPlaylist(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadsID != "" {
		return d.uploadsID, nil
	}
	uploadsID, err := d.api.UploadsPlaylistID(ctx, d.channelID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "discovery", "resolve channel", "uploads playlist lookup failed", err)
	}
	d.uploadsID = uploadsID
	return uploadsID, nil
}
