package daemon_test

import (
	"context"
	"testing"

	"streamlapse/internal/config"
	"streamlapse/internal/daemon"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/queue"
	"streamlapse/internal/stage"
	"streamlapse/internal/testsupport"
	"streamlapse/internal/workflow"
	"streamlapse/internal/youtube"
)

type emptyDiscoverer struct{}

func (emptyDiscoverer) Latest(context.Context, ledger.Set) (*youtube.Video, error) {
	return nil, nil
}

func (emptyDiscoverer) ScanAll(context.Context, ledger.Set) ([]youtube.Video, error) {
	return nil, nil
}

type readyHandler struct{ name string }

func (h readyHandler) Prepare(context.Context, *queue.Item) error { return nil }
func (h readyHandler) Execute(context.Context, *queue.Item) error { return nil }
func (h readyHandler) HealthCheck(context.Context) stage.Health   { return stage.Healthy(h.name) }

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	processed := ledger.NewStore(cfg.Paths.ProcessedLog, logging.NewNop())
	manager := workflow.NewManager(cfg, store, processed, emptyDiscoverer{}, logging.NewNop())
	manager.ConfigureStages(workflow.StageSet{
		Fetcher:    readyHandler{name: "fetch"},
		Transcoder: readyHandler{name: "transcode"},
		Uploader:   readyHandler{name: "upload"},
	})
	d, err := daemon.New(cfg, store, logging.NewNop(), manager)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second := newDaemon(t, cfg)
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("second Start succeeded while lock held")
	}

	first.Stop()
	if err := second.Start(); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
	second.Stop()
}

func TestStartTwiceOnSameDaemonFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(); err == nil {
		t.Fatal("second Start on running daemon succeeded")
	}
}

func TestRunOnceWithEmptyChannel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	summary, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Discovered != 0 || summary.Processed != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want all zero", summary)
	}
}

func TestStatusReportsQueueAndStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(context.Background())
	if !status.Running {
		t.Error("Running = false after Start")
	}
	if status.QueueDBPath == "" {
		t.Error("QueueDBPath empty")
	}
	if len(status.Stages) != 3 {
		t.Errorf("got %d stage checks, want 3", len(status.Stages))
	}
	for _, check := range status.Stages {
		if !check.Ready {
			t.Errorf("stage %s not ready: %s", check.Name, check.Detail)
		}
	}
}

func TestNotificationUnconfiguredTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Error("notification reported sent without a topic")
	}
	if detail == "" {
		t.Error("detail empty")
	}
}
