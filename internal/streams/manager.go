// Package streams owns the stream-session lifecycle: the session ledger, the
// per-session viewer poll loop and the HTTP surface that starts and stops it.
//
// Pollers live in memory only. After a process restart, sessions that were
// polling stay open in the ledger but stop accumulating samples until stopped.
package streams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/internal/viewers"
)

// DefaultInterval is the viewer poll period.
const DefaultInterval = 15 * time.Second

var (
	// ErrValidation marks a rejected request; no state was changed.
	ErrValidation = errors.New("validation error")
	// ErrAccountUnlinked is a tick outcome when the account disappeared mid-session.
	ErrAccountUnlinked = errors.New("account no longer linked")
)

// validationError carries the message shown to the client and matches ErrValidation.
type validationError string

func (e validationError) Error() string        { return string(e) }
func (e validationError) Is(target error) bool { return target == ErrValidation }

// Ledger persists sessions and their samples.
type Ledger interface {
	Create(ctx context.Context, localUser string, platform models.Platform, startedAt time.Time) (*models.StreamSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error)
	Append(ctx context.Context, sessionID uuid.UUID, ts time.Time, viewerCount int) error
	Finalize(ctx context.Context, sessionID uuid.UUID, stoppedAt time.Time, finalViews *int64) (*Finalized, error)
}

// AccountLookup finds the linked account used for polling.
type AccountLookup interface {
	GetByUserAndPlatform(ctx context.Context, localUser string, platform models.Platform) (*models.Account, error)
}

// TokenValidator returns an account with a usable (possibly stale) token. It never fails.
type TokenValidator interface {
	EnsureValid(ctx context.Context, account *models.Account) *models.Account
}

// AdapterSource selects the metrics adapter for a platform.
type AdapterSource interface {
	Get(p models.Platform) (viewers.Adapter, bool)
}

// SampleListener is notified after each recorded sample.
type SampleListener interface {
	PublishSample(sample models.MetricSample)
}

// Exporter schedules an archive of a stopped session.
type Exporter interface {
	EnqueueSessionExport(ctx context.Context, sessionID uuid.UUID, localUser string) error
}

// MetricsRecorder receives poll loop telemetry.
type MetricsRecorder interface {
	ObserveTick(platform, outcome string, d time.Duration)
	SetActivePollers(n int)
}

// TickOutcome is the result of one poll tick.
type TickOutcome struct {
	Viewers  int
	Recorded bool
	// Err is set when any stage failed. A sample of 0 may still have been recorded.
	Err error
}

// StartResult is returned by Start.
type StartResult struct {
	SessionID uuid.UUID           `json:"sessionId"`
	Polling   bool                `json:"polling"`
	State     models.SessionState `json:"state"`
	Warning   string              `json:"warning,omitempty"`
}

// ManagerConfig tunes the manager.
type ManagerConfig struct {
	Interval    time.Duration // poll period; <= 0 uses DefaultInterval
	TickTimeout time.Duration // upper bound for the viewer fetch; <= 0 means the interval
}

type pollTarget struct {
	sessionID uuid.UUID
	localUser string
	platform  models.Platform
	adapter   viewers.Adapter
}

// Manager is the session state machine: it opens sessions, owns one poller
// per polling session and finalizes sessions on stop.
type Manager struct {
	ledger   Ledger
	accounts AccountLookup
	tokens   TokenValidator
	adapters AdapterSource
	cfg      ManagerConfig
	registry *pollerRegistry
	logger   *zap.Logger
	now      func() time.Time

	listener SampleListener
	exporter Exporter
	metrics  MetricsRecorder

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewManager creates a session manager.
func NewManager(ledger Ledger, accounts AccountLookup, tokens TokenValidator, adapters AdapterSource, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = cfg.Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ledger:     ledger,
		accounts:   accounts,
		tokens:     tokens,
		adapters:   adapters,
		cfg:        cfg,
		registry:   newPollerRegistry(),
		logger:     logger,
		now:        time.Now,
		metrics:    nopMetrics{},
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// SetSampleListener sets the receiver of live samples (e.g. the WebSocket hub).
func (m *Manager) SetSampleListener(l SampleListener) { m.listener = l }

// SetExporter sets where stopped sessions are queued for archiving.
func (m *Manager) SetExporter(e Exporter) { m.exporter = e }

// SetMetrics sets the telemetry recorder.
func (m *Manager) SetMetrics(r MetricsRecorder) {
	if r == nil {
		r = nopMetrics{}
	}
	m.metrics = r
}

// Start opens a session for localUser on platform. Without a linked account
// (or without a metrics adapter for the platform) the session stays pending
// and is returned with a warning. Otherwise one tick runs synchronously
// before the recurring poller is scheduled.
func (m *Manager) Start(ctx context.Context, localUser, platform string) (*StartResult, error) {
	localUser = strings.TrimSpace(localUser)
	if localUser == "" || strings.TrimSpace(platform) == "" {
		return nil, validationError("localUser and platform required")
	}
	p := models.ParsePlatform(platform)

	sess, err := m.ledger.Create(ctx, localUser, p, m.now())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log := m.logger.With(zap.String("session_id", sess.ID.String()), zap.String("local_user", localUser), zap.String("platform", p.String()))

	acc, err := m.accounts.GetByUserAndPlatform(ctx, localUser, p)
	if err != nil {
		log.Warn("account lookup failed, session not polled", zap.Error(err))
		acc = nil
	}
	if acc == nil {
		log.Info("session started without polling: no linked account")
		return &StartResult{SessionID: sess.ID, State: models.SessionPending, Warning: "No account found for platform; polling not started"}, nil
	}
	adapter, ok := m.adapters.Get(p)
	if !ok {
		log.Info("session started without polling: no viewer metrics for platform")
		return &StartResult{SessionID: sess.ID, State: models.SessionPending, Warning: "Viewer metrics not supported for platform; polling not started"}, nil
	}

	target := pollTarget{sessionID: sess.ID, localUser: localUser, platform: p, adapter: adapter}
	if out := m.runTick(m.baseCtx, target); errors.Is(out.Err, ErrSessionStopped) {
		log.Info("session stopped during first tick, polling not started")
		return &StartResult{SessionID: sess.ID, State: models.SessionStopped}, nil
	}

	var pl *poller
	pl = newPoller(m.baseCtx, sess.ID, m.cfg.Interval, func(ctx context.Context) {
		// A Stop that ran before this poller was registered leaves it orphaned; the ledger refusing the sample retires it.
		if out := m.runTick(ctx, target); errors.Is(out.Err, ErrSessionStopped) {
			m.retire(pl)
		}
	})
	if !m.registry.add(pl) {
		// Ids are freshly allocated by the ledger, so this only happens on a ledger bug.
		return nil, fmt.Errorf("session %s already has a poller", sess.ID)
	}
	if !pl.start() {
		log.Info("session stopped before polling started")
		return &StartResult{SessionID: sess.ID, State: models.SessionStopped}, nil
	}
	m.metrics.SetActivePollers(m.registry.count())
	log.Info("session polling started", zap.Duration("interval", m.cfg.Interval))
	return &StartResult{SessionID: sess.ID, Polling: true, State: models.SessionPolling}, nil
}

// Stop cancels the session's poller (if any), finalizes the ledger and
// returns the summary. On the first stop, one best-effort fetch of the
// owner's lifetime views fills FinalViews and an export is queued; later
// stops return what was stored. An id that names no session, parseable or
// not, gets an all-zero summary.
func (m *Manager) Stop(ctx context.Context, localUser, sessionID string) (*models.Summary, error) {
	localUser = strings.TrimSpace(localUser)
	sessionID = strings.TrimSpace(sessionID)
	if localUser == "" || sessionID == "" {
		return nil, validationError("localUser and sessionId required")
	}
	summary := &models.Summary{SessionID: sessionID}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		m.logger.Info("stop for unknown session", zap.String("session_id", sessionID))
		return summary, nil
	}

	if pl := m.registry.remove(id); pl != nil {
		pl.stop()
		m.metrics.SetActivePollers(m.registry.count())
	}

	sess, err := m.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		m.logger.Info("stop for unknown session", zap.String("session_id", sessionID))
		return summary, nil
	}

	var views *int64
	if sess.StoppedAt == nil {
		views = m.finalViews(ctx, sess.LocalUser, sess.Platform)
	}
	res, err := m.ledger.Finalize(ctx, id, m.now(), views)
	if err != nil {
		return nil, err
	}
	summary.Peak, summary.Avg, summary.FinalViews = res.Peak, res.Avg, res.FinalViews

	if res.FirstStop && m.exporter != nil {
		if err := m.exporter.EnqueueSessionExport(ctx, id, sess.LocalUser); err != nil {
			m.logger.Warn("enqueue session export", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	m.logger.Info("session stopped",
		zap.String("session_id", sessionID),
		zap.String("local_user", sess.LocalUser),
		zap.Bool("first_stop", res.FirstStop),
		zap.Int("peak", res.Peak),
		zap.Float64("avg", res.Avg))
	return summary, nil
}

// IsPolling reports whether a poller is registered for sessionID.
func (m *Manager) IsPolling(sessionID uuid.UUID) bool {
	return m.registry.has(sessionID)
}

// ActivePollers returns the number of running pollers.
func (m *Manager) ActivePollers() int {
	return m.registry.count()
}

// Shutdown cancels every poller and waits for in-flight ticks. Sessions stay open in the ledger.
func (m *Manager) Shutdown() {
	m.baseCancel()
	pollers := m.registry.drain()
	for _, pl := range pollers {
		pl.stop()
	}
	m.metrics.SetActivePollers(0)
	m.logger.Info("session manager stopped", zap.Int("pollers", len(pollers)))
}

// retire drops a poller whose session was stopped behind its back. Runs on the poller's own goroutine.
func (m *Manager) retire(pl *poller) {
	if m.registry.removeIf(pl) {
		m.metrics.SetActivePollers(m.registry.count())
	}
	pl.cancel()
	m.logger.Info("poller retired, session already stopped", zap.String("session_id", pl.sessionID.String()))
}

func (m *Manager) finalViews(ctx context.Context, localUser string, p models.Platform) *int64 {
	adapter, ok := m.adapters.Get(p)
	if !ok {
		return nil
	}
	fetcher, ok := adapter.(viewers.TotalViewsFetcher)
	if !ok {
		return nil
	}
	acc, err := m.accounts.GetByUserAndPlatform(ctx, localUser, p)
	if err != nil || acc == nil {
		return nil
	}
	acc = m.tokens.EnsureValid(ctx, acc)
	views, err := fetcher.FetchTotalViews(ctx, acc)
	if err != nil {
		m.logger.Warn("fetch final views", zap.String("platform", p.String()), zap.Error(err))
		return nil
	}
	return views
}

// runTick executes one tick and absorbs every failure, including panics.
func (m *Manager) runTick(ctx context.Context, t pollTarget) TickOutcome {
	started := time.Now()
	out := m.safeTick(ctx, t)

	outcome := "ok"
	switch {
	case out.Err != nil && out.Recorded:
		outcome = "degraded"
	case out.Err != nil:
		outcome = "failed"
	}
	m.metrics.ObserveTick(t.platform.String(), outcome, time.Since(started))
	if out.Err != nil {
		m.logger.Warn("poll tick",
			zap.String("session_id", t.sessionID.String()),
			zap.String("platform", t.platform.String()),
			zap.Bool("recorded", out.Recorded),
			zap.Error(out.Err))
	}
	return out
}

func (m *Manager) safeTick(ctx context.Context, t pollTarget) (out TickOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = TickOutcome{Err: fmt.Errorf("poll tick panic: %v", r)}
		}
	}()
	return m.tick(ctx, t)
}

// tick re-reads the account, refreshes its token, fetches the viewer count and
// appends it. Upstream failures are recorded as a 0 sample; a fetch refused by
// the local rate limiter records nothing.
func (m *Manager) tick(ctx context.Context, t pollTarget) TickOutcome {
	acc, err := m.accounts.GetByUserAndPlatform(ctx, t.localUser, t.platform)
	if err != nil {
		return TickOutcome{Err: fmt.Errorf("load account: %w", err)}
	}
	if acc == nil {
		return TickOutcome{Err: ErrAccountUnlinked}
	}
	acc = m.tokens.EnsureValid(ctx, acc)

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.TickTimeout)
	count, fetchErr := t.adapter.FetchViewerCount(fetchCtx, acc)
	cancel()
	if errors.Is(fetchErr, viewers.ErrRateLimited) {
		return TickOutcome{Err: fmt.Errorf("fetch viewer count: %w", fetchErr)}
	}
	if fetchErr != nil {
		count = 0
	}
	// A tick cancelled by Stop or Shutdown records nothing.
	if err := ctx.Err(); err != nil {
		return TickOutcome{Err: err}
	}

	ts := m.now()
	if err := m.ledger.Append(ctx, t.sessionID, ts, count); err != nil {
		return TickOutcome{Viewers: count, Err: fmt.Errorf("append sample: %w", err)}
	}
	if m.listener != nil {
		m.listener.PublishSample(models.MetricSample{SessionID: t.sessionID, Timestamp: ts, ViewerCount: count})
	}
	out := TickOutcome{Viewers: count, Recorded: true}
	if fetchErr != nil {
		out.Err = fmt.Errorf("fetch viewer count: %w", fetchErr)
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(string, string, time.Duration) {}
func (nopMetrics) SetActivePollers(int)                      {}
