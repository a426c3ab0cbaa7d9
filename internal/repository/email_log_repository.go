package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storeledger/internal/database"
	"storeledger/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrEmailJobNotFound = errors.New("email job not found")
	// ErrTerminalStatus is returned when a transition would leave SENT or
	// FAILED, which are terminal.
	ErrTerminalStatus = errors.New("email job already in a terminal status")
)

// EmailLogRepository persists the email job queue and its delivery log.
type EmailLogRepository interface {
	// Enqueue inserts a PENDING job. Pass the reservation transaction to
	// make the enqueue atomic with the stock decrement.
	Enqueue(ctx context.Context, q database.Queryer, job *domain.EmailJob) error
	// ClaimPending locks the oldest PENDING job with SKIP LOCKED so
	// concurrent dispatchers never pick the same job.
	ClaimPending(ctx context.Context, tx *sql.Tx) (*domain.EmailJob, error)
	MarkSent(ctx context.Context, q database.Queryer, id uuid.UUID) error
	MarkFailed(ctx context.Context, q database.Queryer, id uuid.UUID, errorMessage string) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.EmailJob, error)
	ListByStatus(ctx context.Context, status domain.EmailStatus, limit int) ([]*domain.EmailJob, error)
}

type emailLogRepository struct {
	db *database.DB
}

// NewEmailLogRepository creates a new instance of EmailLogRepository
func NewEmailLogRepository(db *database.DB) EmailLogRepository {
	return &emailLogRepository{db: db}
}

const emailColumns = `id, recipient_email, recipient_id, email_type, subject, body, status, error_message, created_at, updated_at`

// Enqueue inserts a new PENDING email job
func (r *emailLogRepository) Enqueue(ctx context.Context, q database.Queryer, job *domain.EmailJob) error {
	if q == nil {
		q = r.db
	}

	query := `
		INSERT INTO email_logs (id, recipient_email, recipient_id, email_type, subject, body, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.ExecContext(
		ctx,
		query,
		job.ID,
		job.RecipientEmail,
		job.RecipientID,
		job.Type,
		job.Subject,
		job.Body,
		job.Status,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to enqueue email job: %w", err)
	}

	return nil
}

// ClaimPending locks and returns the oldest pending job, or nil when the
// queue is empty
func (r *emailLogRepository) ClaimPending(ctx context.Context, tx *sql.Tx) (*domain.EmailJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM email_logs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, emailColumns)

	job, err := scanEmailJob(tx.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim pending email job: %w", err)
	}

	return job, nil
}

// MarkSent transitions a job from PENDING to SENT
func (r *emailLogRepository) MarkSent(ctx context.Context, q database.Queryer, id uuid.UUID) error {
	return r.transition(ctx, q, id, domain.EmailStatusSent, "")
}

// MarkFailed transitions a job from PENDING to FAILED, recording the error
// verbatim
func (r *emailLogRepository) MarkFailed(ctx context.Context, q database.Queryer, id uuid.UUID, errorMessage string) error {
	return r.transition(ctx, q, id, domain.EmailStatusFailed, errorMessage)
}

// transition guards monotonicity in SQL: only PENDING rows can move.
func (r *emailLogRepository) transition(ctx context.Context, q database.Queryer, id uuid.UUID, status domain.EmailStatus, errorMessage string) error {
	if q == nil {
		q = r.db
	}

	query := `
		UPDATE email_logs
		SET status = $2, error_message = $3
		WHERE id = $1 AND status = 'PENDING'
	`

	result, err := q.ExecContext(ctx, query, id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update email job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return ErrTerminalStatus
	}

	return nil
}

// FindByID retrieves an email job by ID
func (r *emailLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.EmailJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM email_logs WHERE id = $1`, emailColumns)

	job, err := scanEmailJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEmailJobNotFound
		}
		return nil, fmt.Errorf("failed to find email job: %w", err)
	}

	return job, nil
}

// ListByStatus returns jobs in a given status, oldest first
func (r *emailLogRepository) ListByStatus(ctx context.Context, status domain.EmailStatus, limit int) ([]*domain.EmailJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM email_logs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, emailColumns)

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list email jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*domain.EmailJob{}
	for rows.Next() {
		job, err := scanEmailJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating email jobs: %w", err)
	}

	return jobs, nil
}

func scanEmailJob(row rowScanner) (*domain.EmailJob, error) {
	job := &domain.EmailJob{}
	err := row.Scan(
		&job.ID,
		&job.RecipientEmail,
		&job.RecipientID,
		&job.Type,
		&job.Subject,
		&job.Body,
		&job.Status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
