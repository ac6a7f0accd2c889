package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/internal/streams"
	"github.com/brocker-tv/backend/internal/telemetry"
	"github.com/brocker-tv/backend/pkg/queue"
	"github.com/brocker-tv/backend/pkg/storage"
)

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StreamSession), args.Error(1)
}

func (m *MockSessions) ListSamples(ctx context.Context, id uuid.UUID) ([]models.MetricSample, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MetricSample), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) PutExport(ctx context.Context, key string, doc []byte) error {
	return m.Called(ctx, key, doc).Error(0)
}

func (m *MockStore) ExportURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func exportJob(t *testing.T, id uuid.UUID) *queue.Job {
	job, err := queue.NewJob(queue.JobTypeSessionExport, queue.SessionExportPayload{SessionID: id, LocalUser: "alice"})
	require.NoError(t, err)
	return job
}

func TestExportProcessor_WritesDocument(t *testing.T) {
	id := uuid.New()
	stopped := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	sess := &models.StreamSession{ID: id, LocalUser: "alice", Platform: models.PlatformTwitch, StoppedAt: &stopped, PeakViewers: 15, AvgViewers: 12}
	samples := []models.MetricSample{{ID: 1, SessionID: id, ViewerCount: 12}, {ID: 2, SessionID: id, ViewerCount: 15}}

	sessions := new(MockSessions)
	sessions.On("GetByID", mock.Anything, id).Return(sess, nil)
	sessions.On("ListSamples", mock.Anything, id).Return(samples, nil)

	var written ExportDocument
	store := new(MockStore)
	store.On("PutExport", mock.Anything, "exports/alice/"+id.String()+".json", mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &written))
		}).
		Return(nil)

	p := NewExportProcessor(sessions, store, nil, nil)
	require.NoError(t, p.Process(context.Background(), exportJob(t, id)))

	store.AssertExpectations(t)
	assert.Equal(t, 15, written.Session.PeakViewers)
	assert.Len(t, written.Samples, 2)
}

func TestExportProcessor_SessionGoneIsNotAnError(t *testing.T) {
	id := uuid.New()
	sessions := new(MockSessions)
	sessions.On("GetByID", mock.Anything, id).Return(nil, nil)
	store := new(MockStore)

	p := NewExportProcessor(sessions, store, nil, nil)
	assert.NoError(t, p.Process(context.Background(), exportJob(t, id)))
	store.AssertNotCalled(t, "PutExport", mock.Anything, mock.Anything, mock.Anything)
}

func TestExportProcessor_RunningSessionFails(t *testing.T) {
	id := uuid.New()
	sessions := new(MockSessions)
	sessions.On("GetByID", mock.Anything, id).Return(&models.StreamSession{ID: id, LocalUser: "alice"}, nil)

	p := NewExportProcessor(sessions, new(MockStore), nil, nil)
	assert.Error(t, p.Process(context.Background(), exportJob(t, id)))
}

func TestExportProcessor_UnknownJobType(t *testing.T) {
	p := NewExportProcessor(new(MockSessions), new(MockStore), nil, nil)
	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "email"}))
}

type jobCounter struct {
	mu       sync.Mutex
	statuses []string
}

func (c *jobCounter) IncExportJobs(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, status)
}

type scriptedQueue struct {
	jobs    chan *queue.Job
	retried chan *queue.Job
}

func (q *scriptedQueue) Dequeue(ctx context.Context, _ time.Duration) (*queue.Job, string, error) {
	select {
	case j := <-q.jobs:
		return j, queue.QueueExports, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (q *scriptedQueue) Retry(_ context.Context, job *queue.Job) error {
	q.retried <- job
	return nil
}

func TestExportProcessor_RunRetriesFailedJobs(t *testing.T) {
	id := uuid.New()
	sessions := new(MockSessions)
	sessions.On("GetByID", mock.Anything, id).Return(nil, errors.New("db down"))

	q := &scriptedQueue{jobs: make(chan *queue.Job, 1), retried: make(chan *queue.Job, 1)}
	p := NewExportProcessor(sessions, new(MockStore), q, nil)
	p.backoff = time.Millisecond
	counter := &jobCounter{}
	p.SetMetrics(counter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	job := exportJob(t, id)
	q.jobs <- job
	select {
	case got := <-q.retried:
		assert.Equal(t, job.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("job was not retried")
	}
	cancel()
	<-done
	assert.Equal(t, []string{telemetry.StatusFailure}, counter.statuses)
}

func TestExportProcessor_CountsWithTelemetryStatuses(t *testing.T) {
	p := NewExportProcessor(new(MockSessions), new(MockStore), nil, nil)
	counter := &jobCounter{}
	p.SetMetrics(counter)

	p.count(nil)
	p.count(errors.New("boom"))
	assert.Equal(t, []string{telemetry.StatusSuccess, telemetry.StatusFailure}, counter.statuses)
}

func TestExportLinks_NotReady(t *testing.T) {
	id := uuid.New()
	store := new(MockStore)
	store.On("ExportURL", mock.Anything, storage.ExportKey("alice", id.String())).Return("", storage.ErrObjectNotFound)

	_, err := NewExportLinks(store).ExportURL(context.Background(), &models.StreamSession{ID: id, LocalUser: "alice"})
	assert.ErrorIs(t, err, streams.ErrExportNotReady)
}

func TestExportLinks_Signed(t *testing.T) {
	id := uuid.New()
	store := new(MockStore)
	store.On("ExportURL", mock.Anything, mock.Anything).Return("https://signed", nil)

	url, err := NewExportLinks(store).ExportURL(context.Background(), &models.StreamSession{ID: id, LocalUser: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "https://signed", url)
}
