package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storeledger/internal/config"
	"storeledger/internal/domain"
	"storeledger/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRetriesExhausted marks a delivery that failed every attempt.
	ErrRetriesExhausted = errors.New("delivery retries exhausted")

	// ErrNotRequeueable is returned when an operator tries to requeue a
	// job that is not in FAILED state.
	ErrNotRequeueable = errors.New("only failed jobs can be requeued")
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Dispatcher drives email jobs through their PENDING -> SENT | FAILED state
// machine. It claims one pending job at a time under SKIP LOCKED, attempts
// delivery with bounded exponential backoff, and records the terminal
// outcome. Delivery failures never propagate to the purchase path; they are
// visible only through the email log.
type Dispatcher struct {
	db     TxRunner
	emails repository.EmailLogRepository
	sender Sender
	cfg    config.NotifierConfig
	logger *zap.Logger
	wake   chan struct{}
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(db TxRunner, emails repository.EmailLogRepository, sender Sender, cfg config.NotifierConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		emails: emails,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Wake nudges the dispatcher to drain the queue now instead of waiting for
// the next tick. Non-blocking; safe from any goroutine.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.cfg.DispatchInterval)
		defer ticker.Stop()

		d.logger.Info("Notification dispatcher started",
			zap.Duration("interval", d.cfg.DispatchInterval),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
		)

		for {
			select {
			case <-ctx.Done():
				d.logger.Info("Notification dispatcher stopped")
				return
			case <-ticker.C:
			case <-d.wake:
			}
			d.drain(ctx)
		}
	}()
}

// drain processes pending jobs until the queue is empty or ctx is cancelled.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := d.ProcessOne(ctx)
		if err != nil {
			d.logger.Error("Failed to process email job", zap.Error(err))
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessOne claims and resolves a single pending job. Returns false when no
// pending job exists. The claim holds only the email row lock, never a
// product row lock, so slow deliveries cannot stall reservations.
func (d *Dispatcher) ProcessOne(ctx context.Context) (bool, error) {
	var processed bool

	err := d.db.RunInTransaction(ctx, func(tx *sql.Tx) error {
		job, err := d.emails.ClaimPending(ctx, tx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		processed = true

		if deliveryErr := d.deliver(ctx, job); deliveryErr != nil {
			d.logger.Warn("Email delivery failed permanently",
				zap.String("job_id", job.ID.String()),
				zap.String("email_type", string(job.Type)),
				zap.Error(deliveryErr),
			)
			return d.emails.MarkFailed(ctx, tx, job.ID, deliveryErr.Error())
		}

		d.logger.Info("Email delivered",
			zap.String("job_id", job.ID.String()),
			zap.String("email_type", string(job.Type)),
			zap.String("recipient", job.RecipientEmail),
		)
		return d.emails.MarkSent(ctx, tx, job.ID)
	})
	if err != nil {
		return processed, err
	}

	return processed, nil
}

// deliver attempts delivery with bounded exponential backoff. Each attempt
// is individually time-bounded and counts toward the retry budget.
func (d *Dispatcher) deliver(ctx context.Context, job *domain.EmailJob) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.BackoffBase

	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()

		if err := d.sender.Send(attemptCtx, job.RecipientEmail, job.Subject, job.Body); err != nil {
			d.logger.Debug("Email delivery attempt failed",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		return nil
	}

	// MaxAttempts below 1 would underflow the retry budget; a misconfigured
	// dispatcher still gets exactly one attempt.
	retryBudget := d.cfg.MaxAttempts - 1
	if retryBudget < 0 {
		retryBudget = 0
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(retryBudget)), ctx,
	))
	if err != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, err)
	}

	return nil
}

// Requeue creates a fresh PENDING copy of a FAILED job. The failed row is
// never mutated back to pending; terminal states stay terminal.
func (d *Dispatcher) Requeue(ctx context.Context, jobID uuid.UUID) (*domain.EmailJob, error) {
	job, err := d.emails.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != domain.EmailStatusFailed {
		return nil, ErrNotRequeueable
	}

	now := time.Now().UTC()
	requeued := &domain.EmailJob{
		ID:             uuid.New(),
		RecipientEmail: job.RecipientEmail,
		RecipientID:    job.RecipientID,
		Type:           job.Type,
		Subject:        job.Subject,
		Body:           job.Body,
		Status:         domain.EmailStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := d.emails.Enqueue(ctx, nil, requeued); err != nil {
		return nil, err
	}

	d.logger.Info("Email job requeued",
		zap.String("failed_job_id", jobID.String()),
		zap.String("new_job_id", requeued.ID.String()),
	)

	d.Wake()
	return requeued, nil
}
