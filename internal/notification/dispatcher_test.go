package notification

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"storeledger/internal/config"
	"storeledger/internal/database"
	"storeledger/internal/domain"
	"storeledger/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memTxRunner struct{ mu sync.Mutex }

func (r *memTxRunner) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

// memEmailRepo keeps the email log in memory, enforcing the same
// PENDING-only transition rule as the SQL implementation.
type memEmailRepo struct {
	mu   sync.Mutex
	jobs []*domain.EmailJob
}

func (m *memEmailRepo) Enqueue(ctx context.Context, q database.Queryer, job *domain.EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs = append(m.jobs, &copied)
	return nil
}

func (m *memEmailRepo) ClaimPending(ctx context.Context, tx *sql.Tx) (*domain.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Status == domain.EmailStatusPending {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memEmailRepo) MarkSent(ctx context.Context, q database.Queryer, id uuid.UUID) error {
	return m.transition(id, domain.EmailStatusSent, "")
}

func (m *memEmailRepo) MarkFailed(ctx context.Context, q database.Queryer, id uuid.UUID, errorMessage string) error {
	return m.transition(id, domain.EmailStatusFailed, errorMessage)
}

func (m *memEmailRepo) transition(id uuid.UUID, status domain.EmailStatus, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ID != id {
			continue
		}
		if job.Status != domain.EmailStatusPending {
			return repository.ErrTerminalStatus
		}
		job.Status = status
		job.ErrorMessage = errorMessage
		return nil
	}
	return repository.ErrEmailJobNotFound
}

func (m *memEmailRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ID == id {
			copied := *job
			return &copied, nil
		}
	}
	return nil, repository.ErrEmailJobNotFound
}

func (m *memEmailRepo) ListByStatus(ctx context.Context, status domain.EmailStatus, limit int) ([]*domain.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*domain.EmailJob{}
	for _, job := range m.jobs {
		if job.Status == status && len(result) < limit {
			copied := *job
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *memEmailRepo) get(id uuid.UUID) *domain.EmailJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ID == id {
			copied := *job
			return &copied
		}
	}
	return nil
}

func (m *memEmailRepo) countByStatus(status domain.EmailStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, job := range m.jobs {
		if job.Status == status {
			count++
		}
	}
	return count
}

// scriptedSender fails the first failures deliveries, then succeeds.
type scriptedSender struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts int
}

func (s *scriptedSender) Send(ctx context.Context, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return s.err
	}
	return nil
}

func (s *scriptedSender) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func testConfig() config.NotifierConfig {
	return config.NotifierConfig{
		MaxAttempts:      3,
		BackoffBase:      time.Millisecond,
		AttemptTimeout:   time.Second,
		DispatchInterval: 10 * time.Millisecond,
	}
}

func newTestDispatcher(repo *memEmailRepo, sender Sender) *Dispatcher {
	return NewDispatcher(&memTxRunner{}, repo, sender, testConfig(), zap.NewNop())
}

func pendingJob(emailType domain.EmailType) *domain.EmailJob {
	now := time.Now().UTC()
	return &domain.EmailJob{
		ID:             uuid.New(),
		RecipientEmail: "seller@example.com",
		Type:           emailType,
		Subject:        "Subject",
		Body:           "Body",
		Status:         domain.EmailStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	repo := &memEmailRepo{}
	dispatcher := newTestDispatcher(repo, &scriptedSender{})

	processed, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessOne_DeliversAndMarksSent(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{}
	dispatcher := newTestDispatcher(repo, sender)

	job := pendingJob(domain.EmailTypeLowStock)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))

	processed, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, sender.attemptCount())

	stored := repo.get(job.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.EmailStatusSent, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
}

func TestProcessOne_RetriesTransientFailure(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{failures: 2, err: errors.New("smtp: temporary failure")}
	dispatcher := newTestDispatcher(repo, sender)

	job := pendingJob(domain.EmailTypeWelcome)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))

	processed, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 3, sender.attemptCount(), "two failures then one success")
	assert.Equal(t, domain.EmailStatusSent, repo.get(job.ID).Status)
}

func TestProcessOne_ExhaustedRetriesMarkFailed(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{failures: 100, err: errors.New("smtp: connection refused")}
	dispatcher := newTestDispatcher(repo, sender)

	job := pendingJob(domain.EmailTypeLowStock)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))

	processed, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err, "delivery failure resolves the job, it is not a dispatch error")
	assert.True(t, processed)
	assert.Equal(t, 3, sender.attemptCount())

	stored := repo.get(job.ID)
	assert.Equal(t, domain.EmailStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "delivery retries exhausted")
	assert.Contains(t, stored.ErrorMessage, "smtp: connection refused", "underlying error recorded verbatim")
}

func TestProcessOne_ZeroMaxAttemptsStillBoundsDelivery(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{failures: 100, err: errors.New("smtp: connection refused")}

	cfg := testConfig()
	cfg.MaxAttempts = 0
	dispatcher := NewDispatcher(&memTxRunner{}, repo, sender, cfg, zap.NewNop())

	job := pendingJob(domain.EmailTypeLowStock)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))

	processed, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, sender.attemptCount(), "misconfigured budget must not retry forever")
	assert.Equal(t, domain.EmailStatusFailed, repo.get(job.ID).Status)
}

func TestProcessOne_TerminalJobIsNeverRedelivered(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{failures: 100, err: errors.New("boom")}
	dispatcher := newTestDispatcher(repo, sender)

	job := pendingJob(domain.EmailTypeLowStock)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))

	_, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.EmailStatusFailed, repo.get(job.ID).Status)
	attemptsAfterFailure := sender.attemptCount()

	// The queue only ever hands out PENDING jobs, so the failed one stays put.
	processed, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, attemptsAfterFailure, sender.attemptCount())
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	repo := &memEmailRepo{}
	job := pendingJob(domain.EmailTypeWelcome)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))

	require.NoError(t, repo.MarkSent(context.Background(), nil, job.ID))
	assert.ErrorIs(t, repo.MarkFailed(context.Background(), nil, job.ID, "late failure"), repository.ErrTerminalStatus)
	assert.ErrorIs(t, repo.MarkSent(context.Background(), nil, job.ID), repository.ErrTerminalStatus)
	assert.Equal(t, domain.EmailStatusSent, repo.get(job.ID).Status)
}

func TestRequeue_CreatesFreshPendingCopy(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{failures: 100, err: errors.New("mailbox full")}
	dispatcher := newTestDispatcher(repo, sender)

	job := pendingJob(domain.EmailTypeAnalyticsReport)
	require.NoError(t, repo.Enqueue(context.Background(), nil, job))
	_, err := dispatcher.ProcessOne(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.EmailStatusFailed, repo.get(job.ID).Status)

	requeued, err := dispatcher.Requeue(context.Background(), job.ID)
	require.NoError(t, err)

	assert.NotEqual(t, job.ID, requeued.ID, "requeue never reopens the failed row")
	assert.Equal(t, domain.EmailStatusPending, requeued.Status)
	assert.Equal(t, job.Subject, requeued.Subject)
	assert.Equal(t, job.Body, requeued.Body)
	assert.Equal(t, job.RecipientEmail, requeued.RecipientEmail)
	assert.Empty(t, requeued.ErrorMessage)

	// The original stays FAILED with its error intact.
	original := repo.get(job.ID)
	assert.Equal(t, domain.EmailStatusFailed, original.Status)
	assert.NotEmpty(t, original.ErrorMessage)
}

func TestRequeue_RejectsNonFailedJobs(t *testing.T) {
	repo := &memEmailRepo{}
	dispatcher := newTestDispatcher(repo, &scriptedSender{})

	pending := pendingJob(domain.EmailTypeWelcome)
	require.NoError(t, repo.Enqueue(context.Background(), nil, pending))
	_, err := dispatcher.Requeue(context.Background(), pending.ID)
	assert.ErrorIs(t, err, ErrNotRequeueable)

	sent := pendingJob(domain.EmailTypeWelcome)
	require.NoError(t, repo.Enqueue(context.Background(), nil, sent))
	require.NoError(t, repo.MarkSent(context.Background(), nil, sent.ID))
	_, err = dispatcher.Requeue(context.Background(), sent.ID)
	assert.ErrorIs(t, err, ErrNotRequeueable)
}

func TestRequeue_UnknownJob(t *testing.T) {
	dispatcher := newTestDispatcher(&memEmailRepo{}, &scriptedSender{})

	_, err := dispatcher.Requeue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrEmailJobNotFound)
}

func TestWake_NeverBlocks(t *testing.T) {
	dispatcher := newTestDispatcher(&memEmailRepo{}, &scriptedSender{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			dispatcher.Wake()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake blocked")
	}
}

func TestStart_DrainsQueueOnWake(t *testing.T) {
	repo := &memEmailRepo{}
	sender := &scriptedSender{}
	dispatcher := newTestDispatcher(repo, sender)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Enqueue(context.Background(), nil, pendingJob(domain.EmailTypeLowStock)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	dispatcher.Wake()

	require.Eventually(t, func() bool {
		return repo.countByStatus(domain.EmailStatusSent) == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, repo.countByStatus(domain.EmailStatusPending))
}
