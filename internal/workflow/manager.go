package workflow

import (
	"context"
	"log/slog"
	"sync"

	"streamlapse/internal/config"
	"streamlapse/internal/ledger"
	"streamlapse/internal/notifications"
	"streamlapse/internal/queue"
	"streamlapse/internal/stage"
	"streamlapse/internal/youtube"
)

// Discoverer selects processing candidates for a pass.
type Discoverer interface {
	Latest(ctx context.Context, processed ledger.Set) (*youtube.Video, error)
	ScanAll(ctx context.Context, processed ledger.Set) ([]youtube.Video, error)
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Fetcher    stage.Handler
	Transcoder stage.Handler
	Uploader   stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// Manager coordinates discovery and queue processing for one pass at a time.
type Manager struct {
	cfg        *config.Config
	store      *queue.Store
	ledger     *ledger.Store
	discoverer Discoverer
	logger     *slog.Logger
	notifier   notifications.Service

	stages       []pipelineStage
	stageByStart map[queue.Status]pipelineStage
	statusOrder  []queue.Status

	mu       sync.Mutex
	lastItem *queue.Item
	lastErr  error
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, processed *ledger.Store, discoverer Discoverer, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, processed, discoverer, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom
// notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, processed *ledger.Store, discoverer Discoverer, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      store,
		ledger:     processed,
		discoverer: discoverer,
		logger:     logger,
		notifier:   notifier,
	}
}

// ConfigureStages registers the pipeline stage handlers in order.
func (m *Manager) ConfigureStages(set StageSet) {
	m.stages = []pipelineStage{
		{
			name:             "fetch",
			handler:          set.Fetcher,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusFetching,
			doneStatus:       queue.StatusFetched,
		},
		{
			name:             "transcode",
			handler:          set.Transcoder,
			startStatus:      queue.StatusFetched,
			processingStatus: queue.StatusTranscoding,
			doneStatus:       queue.StatusTranscoded,
		},
		{
			name:             "upload",
			handler:          set.Uploader,
			startStatus:      queue.StatusTranscoded,
			processingStatus: queue.StatusUploading,
			doneStatus:       queue.StatusCompleted,
		},
	}
	m.stageByStart = make(map[queue.Status]pipelineStage, len(m.stages))
	m.statusOrder = make([]queue.Status, 0, len(m.stages))
	for _, stg := range m.stages {
		m.stageByStart[stg.startStatus] = stg
		m.statusOrder = append(m.statusOrder, stg.startStatus)
	}
}

// LastItem returns the most recently processed queue item.
func (m *Manager) LastItem() *queue.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastItem == nil {
		return nil
	}
	copied := *m.lastItem
	return &copied
}

// LastError returns the most recent pass error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.lastItem = &copied
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}
