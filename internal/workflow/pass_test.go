package workflow_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamlapse/internal/config"
	"streamlapse/internal/fetch"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/queue"
	"streamlapse/internal/services"
	"streamlapse/internal/services/ffmpeg"
	"streamlapse/internal/services/ytdlp"
	"streamlapse/internal/stage"
	"streamlapse/internal/testsupport"
	"streamlapse/internal/transcode"
	"streamlapse/internal/workflow"
	"streamlapse/internal/youtube"
)

type fakeDiscoverer struct {
	videos []youtube.Video
	err    error
	calls  int
}

func (f *fakeDiscoverer) Latest(_ context.Context, processed ledger.Set) (*youtube.Video, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.videos {
		if !processed.Contains(f.videos[i].URL()) {
			return &f.videos[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDiscoverer) ScanAll(_ context.Context, processed ledger.Set) ([]youtube.Video, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []youtube.Video
	for _, video := range f.videos {
		if !processed.Contains(video.URL()) {
			out = append(out, video)
		}
	}
	return out, nil
}

type fakeHandler struct {
	name      string
	execErr   error
	executed  int
	onExecute func(*queue.Item)
	health    stage.Health
}

func (f *fakeHandler) Prepare(context.Context, *queue.Item) error { return nil }

func (f *fakeHandler) Execute(_ context.Context, item *queue.Item) error {
	f.executed++
	if f.onExecute != nil {
		f.onExecute(item)
	}
	return f.execErr
}

func (f *fakeHandler) HealthCheck(context.Context) stage.Health {
	if f.health.Name != "" {
		return f.health
	}
	return stage.Healthy(f.name)
}

func completedVideo(id, title string, start time.Time) youtube.Video {
	return youtube.Video{
		ID:              id,
		Title:           title,
		PublishedAt:     start.Add(-time.Hour),
		ActualStartTime: start,
		ActualEndTime:   start.Add(6 * time.Hour),
		IsLiveBroadcast: true,
	}
}

func newManager(t *testing.T, cfg *config.Config, store *queue.Store, discoverer workflow.Discoverer, set workflow.StageSet) (*workflow.Manager, *ledger.Store) {
	t.Helper()
	processed := ledger.NewStore(cfg.Paths.ProcessedLog, logging.NewNop())
	manager := workflow.NewManager(cfg, store, processed, discoverer, logging.NewNop())
	manager.ConfigureStages(set)
	return manager, processed
}

func TestRunPassProcessesDiscoveredStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	discoverer := &fakeDiscoverer{videos: []youtube.Video{
		completedVideo("vid1", "Morning Harbor Stream", time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC)),
	}}
	fetcher := &fakeHandler{name: "fetch"}
	transcoder := &fakeHandler{name: "transcode"}
	uploader := &fakeHandler{name: "upload"}
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    fetcher,
		Transcoder: transcoder,
		Uploader:   uploader,
	})

	summary, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Discovered != 1 {
		t.Errorf("Discovered = %d, want 1", summary.Discovered)
	}
	if summary.Processed != 1 {
		t.Errorf("Processed = %d, want 1", summary.Processed)
	}
	if summary.Failed != 0 {
		t.Errorf("Failed = %d, want 0", summary.Failed)
	}
	if fetcher.executed != 1 || transcoder.executed != 1 || uploader.executed != 1 {
		t.Errorf("stage executions = %d/%d/%d, want 1/1/1",
			fetcher.executed, transcoder.executed, uploader.executed)
	}

	item, err := store.FindByVideoID(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("FindByVideoID: %v", err)
	}
	if item == nil {
		t.Fatal("queue item not created")
	}
	if item.Status != queue.StatusCompleted {
		t.Errorf("status = %q, want completed", item.Status)
	}
}

func TestRunPassSkipsAlreadyQueuedStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	existing := testsupport.NewStream(t, store, "vid1", youtube.WatchURL("vid1"), "Morning Harbor Stream")
	existing.Status = queue.StatusFailed
	existing.Committed = true
	if err := store.Update(context.Background(), existing); err != nil {
		t.Fatalf("Update: %v", err)
	}

	discoverer := &fakeDiscoverer{videos: []youtube.Video{
		completedVideo("vid1", "Morning Harbor Stream", time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC)),
	}}
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch"},
		Transcoder: &fakeHandler{name: "transcode"},
		Uploader:   &fakeHandler{name: "upload"},
	})

	summary, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Discovered != 0 {
		t.Errorf("Discovered = %d, want 0 for already-queued stream", summary.Discovered)
	}
}

func TestRunPassRequeuesUncommittedFailedStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	existing := testsupport.NewStream(t, store, "vid1", youtube.WatchURL("vid1"), "Morning Harbor Stream")
	existing.SetFailed("download failed")
	if err := store.Update(context.Background(), existing); err != nil {
		t.Fatalf("Update: %v", err)
	}

	discoverer := &fakeDiscoverer{videos: []youtube.Video{
		completedVideo("vid1", "Morning Harbor Stream", time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC)),
	}}
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch"},
		Transcoder: &fakeHandler{name: "transcode"},
		Uploader:   &fakeHandler{name: "upload"},
	})

	summary, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Discovered != 1 {
		t.Errorf("Discovered = %d, want 1 for requeued stream", summary.Discovered)
	}
	if summary.Processed != 1 {
		t.Errorf("Processed = %d, want 1", summary.Processed)
	}

	item, err := store.FindByVideoID(context.Background(), "vid1")
	if err != nil || item == nil {
		t.Fatalf("FindByVideoID: item=%v err=%v", item, err)
	}
	if item.Status != queue.StatusCompleted {
		t.Errorf("status = %q, want completed", item.Status)
	}
}

func TestRunPassBacklogSeedsAllCandidates(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiscoveryMode(config.ModeBacklog))
	store := testsupport.MustOpenStore(t, cfg)
	discoverer := &fakeDiscoverer{videos: []youtube.Video{
		completedVideo("vid1", "First Stream", time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)),
		completedVideo("vid2", "Second Stream", time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC)),
		completedVideo("vid3", "Third Stream", time.Date(2025, 4, 3, 6, 0, 0, 0, time.UTC)),
	}}
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch"},
		Transcoder: &fakeHandler{name: "transcode"},
		Uploader:   &fakeHandler{name: "upload"},
	})

	summary, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Discovered != 3 {
		t.Errorf("Discovered = %d, want 3", summary.Discovered)
	}
	if summary.Processed != 3 {
		t.Errorf("Processed = %d, want 3", summary.Processed)
	}
}

func TestRunPassTransientFailureParksItemAsFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	discoverer := &fakeDiscoverer{videos: []youtube.Video{
		completedVideo("vid1", "Morning Harbor Stream", time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC)),
	}}
	transcodeErr := services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg",
		"render failed", errors.New("exit status 1"))
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch"},
		Transcoder: &fakeHandler{name: "transcode", execErr: transcodeErr},
		Uploader:   &fakeHandler{name: "upload"},
	})

	summary, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
	if summary.Processed != 0 {
		t.Errorf("Processed = %d, want 0", summary.Processed)
	}

	item, err := store.FindByVideoID(context.Background(), "vid1")
	if err != nil || item == nil {
		t.Fatalf("FindByVideoID: item=%v err=%v", item, err)
	}
	if item.Status != queue.StatusFailed {
		t.Errorf("status = %q, want failed", item.Status)
	}
	if item.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
	if manager.LastError() == nil {
		t.Error("LastError not recorded")
	}
}

func TestRunPassValidationFailureRoutesToReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	discoverer := &fakeDiscoverer{videos: []youtube.Video{
		completedVideo("vid1", "Morning Harbor Stream", time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC)),
	}}
	fetchErr := services.Wrap(services.ErrValidation, "fetch", "verify download",
		"Downloaded file is empty", nil)
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch", execErr: fetchErr},
		Transcoder: &fakeHandler{name: "transcode"},
		Uploader:   &fakeHandler{name: "upload"},
	})

	if _, err := manager.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	item, err := store.FindByVideoID(context.Background(), "vid1")
	if err != nil || item == nil {
		t.Fatalf("FindByVideoID: item=%v err=%v", item, err)
	}
	if item.Status != queue.StatusReview {
		t.Errorf("status = %q, want review", item.Status)
	}
	if !item.NeedsReview {
		t.Error("NeedsReview not set")
	}
	if !strings.Contains(item.ErrorMessage, "Downloaded file is empty") {
		t.Errorf("ErrorMessage = %q, want the stage error text", item.ErrorMessage)
	}
}

func TestRunPassDiscoveryFailureAbortsPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	discoverer := &fakeDiscoverer{err: services.Wrap(services.ErrTransient, "discovery", "list uploads",
		"listing failed", errors.New("503"))}
	manager, _ := newManager(t, cfg, store, discoverer, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch"},
		Transcoder: &fakeHandler{name: "transcode"},
		Uploader:   &fakeHandler{name: "upload"},
	})

	if _, err := manager.RunPass(context.Background()); err == nil {
		t.Fatal("expected discovery error to surface")
	}
}

type invariantDownloader struct {
	size int
}

func (d *invariantDownloader) Download(_ context.Context, _ string, destDir string, _ func(ytdlp.ProgressUpdate)) (string, error) {
	path := filepath.Join(destDir, "vid1.mp4")
	payload := make([]byte, d.size)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type failingTranscoder struct{}

func (failingTranscoder) Transcode(context.Context, ffmpeg.Params, func(ffmpeg.ProgressUpdate)) error {
	return errors.New("exit status 1")
}

// A download that succeeds under the after_download commit policy must
// leave the stream URL in the processed log even when the render that
// follows fails, and neither the source nor a rendered file may remain
// on disk afterward.
func TestCommitSurvivesTranscodeFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCommitPolicy(config.CommitAfterDownload))
	store := testsupport.MustOpenStore(t, cfg)
	video := completedVideo("vid1", "Morning Harbor Stream", time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC))
	discoverer := &fakeDiscoverer{videos: []youtube.Video{video}}

	processed := ledger.NewStore(cfg.Paths.ProcessedLog, logging.NewNop())
	fetcher := fetch.NewFetcherWithDependencies(cfg, store, processed, logging.NewNop(), &invariantDownloader{size: 2048}, nil)
	transcoder := transcode.NewTranscoderWithDependencies(cfg, store, logging.NewNop(), failingTranscoder{}, rand.New(rand.NewSource(1)))

	manager := workflow.NewManager(cfg, store, processed, discoverer, logging.NewNop())
	manager.ConfigureStages(workflow.StageSet{
		Fetcher:    fetcher,
		Transcoder: transcoder,
		Uploader:   &fakeHandler{name: "upload"},
	})

	summary, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}

	if !processed.Contains(video.URL()) {
		t.Error("stream URL missing from processed log after committed download")
	}

	item, err := store.FindByVideoID(context.Background(), "vid1")
	if err != nil || item == nil {
		t.Fatalf("FindByVideoID: item=%v err=%v", item, err)
	}
	if item.Status != queue.StatusReview {
		t.Errorf("status = %q, want review for a post-commit failure", item.Status)
	}
	if !item.Committed {
		t.Error("Committed flag not set")
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(cfg.Paths.StagingDir, entry.Name()))
		if err != nil {
			t.Fatalf("read item dir: %v", err)
		}
		for _, file := range files {
			t.Errorf("unexpected artifact left in staging: %s/%s", entry.Name(), file.Name())
		}
	}

	// A later pass must not pick the stream up again: the ledger filters it.
	second, err := manager.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second RunPass: %v", err)
	}
	if second.Discovered != 0 {
		t.Errorf("second pass Discovered = %d, want 0", second.Discovered)
	}
}

func TestHealthReportsEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager, _ := newManager(t, cfg, store, &fakeDiscoverer{}, workflow.StageSet{
		Fetcher:    &fakeHandler{name: "fetch"},
		Transcoder: &fakeHandler{name: "transcode", health: stage.Unhealthy("transcode", "ffmpeg missing")},
		Uploader:   &fakeHandler{name: "upload"},
	})

	checks := manager.Health(context.Background())
	if len(checks) != 3 {
		t.Fatalf("got %d health checks, want 3", len(checks))
	}
	if workflow.Ready(checks) {
		t.Error("Ready = true with an unhealthy stage")
	}
	if checks[1].Detail != "ffmpeg missing" {
		t.Errorf("detail = %q", checks[1].Detail)
	}
}
