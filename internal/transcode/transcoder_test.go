package transcode_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"streamlapse/internal/logging"
	"streamlapse/internal/queue"
	"streamlapse/internal/services"
	"streamlapse/internal/services/ffmpeg"
	"streamlapse/internal/testsupport"
	"streamlapse/internal/transcode"
)

type fakeTranscoder struct {
	params ffmpeg.Params
	err    error
}

func (f *fakeTranscoder) Transcode(ctx context.Context, params ffmpeg.Params, progress func(ffmpeg.ProgressUpdate)) error {
	f.params = params
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(params.Output, []byte("timelapse"), 0o644)
}

func newItemWithSource(t *testing.T, store *queue.Store) *queue.Item {
	t.Helper()
	item := testsupport.NewStream(t, store, "vid1", "https://www.youtube.com/watch?v=vid1", "Storm stream")
	dir := t.TempDir()
	source := filepath.Join(dir, "source.mp4")
	testsupport.WriteFile(t, source, 4096)
	item.SourceFile = source
	return item
}

func TestExecuteRendersTimelapse(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := newItemWithSource(t, store)
	source := item.SourceFile

	client := &fakeTranscoder{}
	handler := transcode.NewTranscoderWithDependencies(cfg, store, logging.NewNop(), client, rand.New(rand.NewSource(1)))
	if err := handler.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if item.OutputFile == "" {
		t.Fatal("expected output file recorded")
	}
	if _, err := os.Stat(item.OutputFile); err != nil {
		t.Fatalf("expected output on disk: %v", err)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("source should be deleted after transcode, got %v", err)
	}
	if client.params.SpeedFactor != cfg.Transcode.SpeedFactor {
		t.Fatalf("expected configured speed factor, got %g", client.params.SpeedFactor)
	}
}

func TestExecuteDeletesSourceOnFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := newItemWithSource(t, store)
	source := item.SourceFile

	handler := transcode.NewTranscoderWithDependencies(cfg, store, logging.NewNop(), &fakeTranscoder{err: errors.New("encoder crashed")}, rand.New(rand.NewSource(1)))
	err := handler.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	// Scoped cleanup: the source goes away even when the transcode fails.
	if _, statErr := os.Stat(source); !os.IsNotExist(statErr) {
		t.Fatalf("source should be deleted after failed transcode, got %v", statErr)
	}
}

func TestExecuteMissingSourceIsValidationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewStream(t, store, "vid1", "https://www.youtube.com/watch?v=vid1", "Storm stream")
	item.SourceFile = filepath.Join(t.TempDir(), "gone.mp4")

	handler := transcode.NewTranscoderWithDependencies(cfg, store, logging.NewNop(), &fakeTranscoder{}, rand.New(rand.NewSource(1)))
	if err := handler.Execute(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteSeedsAudioOffsetDeterministically(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcode.DropAudio = false
	cfg.Transcode.AudioTrack = filepath.Join(t.TempDir(), "ambient.mp3")
	store := testsupport.MustOpenStore(t, cfg)

	run := func(seed int64) float64 {
		item := newItemWithSource(t, store)
		client := &fakeTranscoder{}
		handler := transcode.NewTranscoderWithDependencies(cfg, store, logging.NewNop(), client, rand.New(rand.NewSource(seed)))
		if err := handler.Execute(context.Background(), item); err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
		return client.params.AudioOffset
	}

	first := run(11)
	second := run(11)
	if first != second {
		t.Fatalf("same seed should give same offset: %v vs %v", first, second)
	}
	if first < 0 || first > 600 {
		t.Fatalf("offset out of range: %v", first)
	}
}

func TestHealthCheckRequiresClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := transcode.NewTranscoderWithDependencies(cfg, store, logging.NewNop(), nil, rand.New(rand.NewSource(1)))
	if health := handler.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy without ffmpeg client")
	}
}
