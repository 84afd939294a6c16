package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/models"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

// DefaultAutosaveInterval is how often staged drafts are flushed.
const DefaultAutosaveInterval = 30 * time.Second

const maxSessionLength = 128

type draftStore interface {
	Get(ctx context.Context, session string) (*models.Draft, error)
	Put(ctx context.Context, session string, draft models.Draft) error
	Delete(ctx context.Context, session string) error
}

// DraftService keeps one unsubmitted form per session.
type DraftService struct {
	store  draftStore
	logger *zap.Logger
	now    func() time.Time
}

// NewDraftService constructs a DraftService.
func NewDraftService(store draftStore, logger *zap.Logger) *DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Save overwrites the session's draft.
func (s *DraftService) Save(ctx context.Context, session string, draft models.Draft) (*models.Draft, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	draft.SavedAt = s.now()
	if err := s.store.Put(ctx, session, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to save draft")
	}
	return &draft, nil
}

// Load returns the session's draft or nil.
func (s *DraftService) Load(ctx context.Context, session string) (*models.Draft, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	draft, err := s.store.Get(ctx, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load draft")
	}
	return draft, nil
}

// Clear removes the session's draft. Clearing an empty slot succeeds.
func (s *DraftService) Clear(ctx context.Context, session string) error {
	if err := ValidateSession(session); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to clear draft")
	}
	return nil
}

// ValidateSession rejects session identifiers that cannot be used as storage keys.
func ValidateSession(session string) error {
	trimmed := strings.TrimSpace(session)
	if trimmed == "" || len(trimmed) > maxSessionLength || strings.ContainsAny(trimmed, "/\\") {
		return appErrors.WithDetails(appErrors.ErrValidation, map[string]string{"session": "invalid session identifier"})
	}
	return nil
}

type draftSaver interface {
	Save(ctx context.Context, session string, draft models.Draft) (*models.Draft, error)
}

// Autosaver periodically flushes the latest staged draft of every session. Flushes are
// fire-and-forget: failures are logged and never retried.
type Autosaver struct {
	drafts   draftSaver
	interval time.Duration
	metrics  *MetricsService
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]models.Draft
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAutosaver constructs an Autosaver.
func NewAutosaver(drafts draftSaver, interval time.Duration, metrics *MetricsService, logger *zap.Logger) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		drafts:   drafts,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		pending:  make(map[string]models.Draft),
	}
}

// Stage records the latest form state of session for the next tick.
func (a *Autosaver) Stage(session string, draft models.Draft) {
	a.mu.Lock()
	a.pending[session] = draft
	a.mu.Unlock()
}

// Cancel stops autosave for session, typically after a successful submission.
func (a *Autosaver) Cancel(session string) {
	a.mu.Lock()
	delete(a.pending, session)
	a.mu.Unlock()
}

// Pending returns how many sessions are staged.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Start launches the ticker loop. Safe to call once.
func (a *Autosaver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(loopCtx, a.done)
	a.logger.Info("draft autosave started", zap.Duration("interval", a.interval))
}

// Stop halts the loop and waits for an in-flight flush.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.logger.Info("draft autosave stopped")
}

func (a *Autosaver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}

// Flush writes every staged draft with a non-blank name and empties the stage.
func (a *Autosaver) Flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string]models.Draft, len(batch))
	a.mu.Unlock()

	for session, draft := range batch {
		if draft.Blank() {
			a.metrics.RecordAutosave("skipped")
			continue
		}
		if _, err := a.drafts.Save(ctx, session, draft); err != nil {
			a.metrics.RecordAutosave("failed")
			a.logger.Warn("draft autosave failed", zap.String("session", session), zap.Error(err))
			continue
		}
		a.metrics.RecordAutosave("saved")
	}
}
