// Package transcode turns downloaded stream sources into sped-up
// timelapses with ffmpeg. The multi-gigabyte source file is deleted once
// the transcode attempt finishes, whether it succeeded or not.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"streamlapse/internal/config"
	"streamlapse/internal/logging"
	"streamlapse/internal/queue"
	"streamlapse/internal/services"
	"streamlapse/internal/services/ffmpeg"
	"streamlapse/internal/stage"
)

// maxAudioOffsetSeconds bounds the random seek into the backing audio
// track so short tracks still have material left to play.
const maxAudioOffsetSeconds = 600

// Transcoder manages the ffmpeg timelapse stage.
type Transcoder struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client ffmpeg.Transcoder
	rng    *rand.Rand
}

// NewTranscoder constructs the transcode handler using default dependencies.
func NewTranscoder(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcoder {
	client, err := ffmpeg.New(cfg.FFmpegBinary())
	if err != nil {
		logger.Warn("ffmpeg client unavailable", logging.Error(err))
	}
	return NewTranscoderWithDependencies(cfg, store, logger, client, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewTranscoderWithDependencies allows injecting all collaborators (used in tests).
func NewTranscoderWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client ffmpeg.Transcoder, rng *rand.Rand) *Transcoder {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "transcoder"))
	}
	return &Transcoder{store: store, cfg: cfg, logger: stageLogger, client: client, rng: rng}
}

func (t *Transcoder) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, t.logger)
	item.SetProgress("Transcoding", "Starting timelapse transcode")
	item.ErrorMessage = ""
	logger.Info("starting transcode preparation",
		logging.String("source_file", strings.TrimSpace(item.SourceFile)),
		logging.String(logging.FieldVideoID, item.VideoID),
	)
	return nil
}

func (t *Transcoder) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, t.logger)
	if t.client == nil {
		return services.Wrap(services.ErrConfiguration, "transcode", "client",
			"ffmpeg client unavailable; check that ffmpeg is installed", nil)
	}
	source := strings.TrimSpace(item.SourceFile)
	if source == "" {
		return services.Wrap(services.ErrValidation, "transcode", "locate source",
			"No source file recorded for item", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrValidation, "transcode", "locate source",
			"Source file missing from staging", err)
	}

	// The source is scoped to this attempt: whether ffmpeg succeeds or
	// not, the multi-gigabyte download is reclaimed before we return.
	defer func() {
		if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete source file",
				logging.String("source_file", source),
				logging.Error(err),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		} else {
			logger.Info("source file deleted", logging.String("source_file", source))
		}
	}()

	output := filepath.Join(filepath.Dir(source), item.VideoID+"-timelapse.mp4")
	params := ffmpeg.Params{
		Input:       source,
		Output:      output,
		SpeedFactor: t.cfg.Transcode.SpeedFactor,
		FrameRate:   t.cfg.Transcode.FrameRate,
		VideoCodec:  t.cfg.Transcode.VideoCodec,
		DropAudio:   t.cfg.Transcode.DropAudio,
	}
	if !t.cfg.Transcode.DropAudio && strings.TrimSpace(t.cfg.Transcode.AudioTrack) != "" {
		params.AudioTrack = t.cfg.Transcode.AudioTrack
		params.AudioOffset = t.rng.Float64() * maxAudioOffsetSeconds
	}

	logger.Info("launching ffmpeg transcode",
		logging.String("output_file", output),
		logging.Float64("speed_factor", params.SpeedFactor),
		logging.Int("frame_rate", params.FrameRate),
	)
	if err := t.client.Transcode(ctx, params, func(update ffmpeg.ProgressUpdate) {
		t.applyProgress(ctx, item, update)
	}); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg transcode",
			"Timelapse transcode failed; check ffmpeg installation and source integrity", err)
	}

	item.OutputFile = output
	item.SourceFile = ""
	item.SetProgress("Transcoded", "Timelapse rendered")
	logger.Info("transcode completed",
		logging.String("output_file", output),
		logging.String(logging.FieldEventType, "transcode_complete"),
	)
	return nil
}

// HealthCheck verifies transcode dependencies.
func (t *Transcoder) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcoder"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if t.cfg.Transcode.SpeedFactor <= 1 {
		return stage.Unhealthy(name, "speed factor must exceed 1")
	}
	if t.client == nil {
		return stage.Unhealthy(name, "ffmpeg client unavailable")
	}
	binary := strings.TrimSpace(t.cfg.FFmpegBinary())
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", binary))
	}
	return stage.Healthy(name)
}

func (t *Transcoder) applyProgress(ctx context.Context, item *queue.Item, update ffmpeg.ProgressUpdate) {
	logger := logging.WithContext(ctx, t.logger)
	copied := *item
	copied.ProgressStage = "Transcoding"
	if update.Timecode != "" {
		copied.ProgressMessage = "Rendered through " + update.Timecode
	}
	if err := t.store.Update(ctx, &copied); err != nil {
		logger.Warn("failed to persist progress", logging.Error(err))
		return
	}
	*item = copied
}
