package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/internal/streams"
	"github.com/brocker-tv/backend/internal/telemetry"
	"github.com/brocker-tv/backend/pkg/queue"
	"github.com/brocker-tv/backend/pkg/storage"
)

// SessionSource loads what goes into an export.
type SessionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error)
	ListSamples(ctx context.Context, sessionID uuid.UUID) ([]models.MetricSample, error)
}

// ObjectStore writes export documents and signs links to them.
type ObjectStore interface {
	PutExport(ctx context.Context, key string, doc []byte) error
	ExportURL(ctx context.Context, key string) (string, error)
}

// JobQueue is the part of queue.Queue the processor drives.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// JobCounter counts processed jobs by status.
type JobCounter interface {
	IncExportJobs(status string)
}

// ExportDocument is the JSON written for each stopped session.
type ExportDocument struct {
	Session    models.StreamSession  `json:"session"`
	Samples    []models.MetricSample `json:"samples"`
	ExportedAt time.Time             `json:"exported_at"`
}

// ExportProcessor processes session export jobs: load the session and its samples, upload JSON to S3.
type ExportProcessor struct {
	sessions SessionSource
	store    ObjectStore
	queue    JobQueue
	logger   *zap.Logger
	metrics  JobCounter
	backoff  time.Duration
	now      func() time.Time
}

// NewExportProcessor creates a session export processor.
func NewExportProcessor(sessions SessionSource, store ObjectStore, q JobQueue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		sessions: sessions,
		store:    store,
		queue:    q,
		logger:   logger,
		backoff:  queue.RetryBackoff,
		now:      time.Now,
	}
}

// SetMetrics sets the job counter.
func (p *ExportProcessor) SetMetrics(c JobCounter) { p.metrics = c }

// Process executes one export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sess, err := p.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		p.logger.Warn("export skipped, session gone", zap.String("session_id", payload.SessionID.String()))
		return nil
	}
	if sess.StoppedAt == nil {
		return fmt.Errorf("session %s still running", sess.ID)
	}
	samples, err := p.sessions.ListSamples(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load samples: %w", err)
	}
	if samples == nil {
		samples = []models.MetricSample{}
	}

	doc, err := json.Marshal(ExportDocument{Session: *sess, Samples: samples, ExportedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	key := storage.ExportKey(sess.LocalUser, sess.ID.String())
	if err := p.store.PutExport(ctx, key, doc); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("session export completed",
		zap.String("session_id", sess.ID.String()),
		zap.String("s3_key", key),
		zap.Int("samples", len(samples)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		err = p.Process(ctx, job)
		p.count(err)
		if err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ExportProcessor) count(err error) {
	if p.metrics == nil {
		return
	}
	if err != nil {
		p.metrics.IncExportJobs(telemetry.StatusFailure)
		return
	}
	p.metrics.IncExportJobs(telemetry.StatusSuccess)
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ExportLinks signs download links for session exports.
type ExportLinks struct {
	store ObjectStore
}

// NewExportLinks creates an export link signer.
func NewExportLinks(store ObjectStore) *ExportLinks {
	return &ExportLinks{store: store}
}

// ExportURL returns a presigned URL, or streams.ErrExportNotReady if the worker has not written it yet.
func (l *ExportLinks) ExportURL(ctx context.Context, sess *models.StreamSession) (string, error) {
	url, err := l.store.ExportURL(ctx, storage.ExportKey(sess.LocalUser, sess.ID.String()))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", streams.ErrExportNotReady
	}
	return url, err
}
