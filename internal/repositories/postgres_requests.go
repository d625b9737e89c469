package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dloadly/backend/internal/db"
	"github.com/dloadly/backend/internal/models"
)

const requestColumns = `id, url, platform, user_id, display_name, sender_email, recipient_email,
        status, is_manual_processing, instructions, file_size, result_link, failure_reason,
        created_at, updated_at, completed_at`

// PostgresRequestRepository provides PostgreSQL-backed persistence for the
// download request ledger.
type PostgresRequestRepository struct {
	pool db.Pool
}

// NewPostgresRequestRepository constructs a request ledger backed by PostgreSQL.
func NewPostgresRequestRepository(pool db.Pool) *PostgresRequestRepository {
	return &PostgresRequestRepository{pool: pool}
}

// Create persists a new ledger entry.
func (r *PostgresRequestRepository) Create(ctx context.Context, req models.DownloadRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := req.Status
	if status == "" {
		status = models.StatusPending
	}

	instructions := req.Instructions
	if instructions == nil {
		instructions = []string{}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO download_requests (id, url, platform, user_id, display_name, sender_email, recipient_email,
            status, is_manual_processing, instructions, file_size, result_link, failure_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `, req.ID, req.URL, req.Platform, req.UserID, req.DisplayName, req.SenderEmail, req.RecipientEmail,
		status, req.IsManualProcessing, instructions, req.FileSize, req.ResultLink, req.FailureReason,
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert download request: %w", err)
	}

	return nil
}

// FindByID loads a single ledger entry.
func (r *PostgresRequestRepository) FindByID(ctx context.Context, id string) (models.DownloadRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.DownloadRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+requestColumns+`
        FROM download_requests
        WHERE id = $1
    `, id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DownloadRequest{}, ErrNotFound
		}
		return models.DownloadRequest{}, fmt.Errorf("select download request: %w", err)
	}

	return req, nil
}

// List returns the most recent ledger entries.
func (r *PostgresRequestRepository) List(ctx context.Context, limit int) ([]models.DownloadRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
        SELECT `+requestColumns+`
        FROM download_requests
        ORDER BY created_at DESC
        LIMIT $1
    `, limit)
}

// ListPendingManual returns entries awaiting manual processing by an admin.
func (r *PostgresRequestRepository) ListPendingManual(ctx context.Context) ([]models.DownloadRequest, error) {
	return r.list(ctx, `
        SELECT `+requestColumns+`
        FROM download_requests
        WHERE status = $1 AND is_manual_processing
        ORDER BY created_at ASC
    `, models.StatusPending)
}

func (r *PostgresRequestRepository) list(ctx context.Context, query string, args ...any) ([]models.DownloadRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query download requests: %w", err)
	}
	defer rows.Close()

	var requests []models.DownloadRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan download request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate download requests: %w", err)
	}

	return requests, nil
}

// UpdateStatus moves a ledger entry forward through its lifecycle. Backwards
// moves and transitions out of completed/failed return ErrInvalidTransition.
func (r *PostgresRequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, failureReason string) error {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if !models.CanTransition(current.Status, status) {
		return ErrInvalidTransition
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	completedAt := sql.NullTime{}
	if status == models.StatusCompleted || status == models.StatusFailed {
		completedAt = sql.NullTime{Valid: true, Time: time.Now().UTC()}
	}

	// The WHERE clause re-checks the prior status so a concurrent writer
	// cannot drag a terminal entry backwards.
	tag, err := conn.Exec(ctx, `
        UPDATE download_requests
        SET status = $2,
            failure_reason = $3,
            updated_at = NOW(),
            completed_at = COALESCE($4, completed_at)
        WHERE id = $1 AND status = $5
    `, id, status, failureReason, completedAt, current.Status)
	if err != nil {
		return fmt.Errorf("update download request status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}

	return nil
}

// MarkManualPending flags an entry for manual processing, keeping it pending
// with the admin instruction list attached.
func (r *PostgresRequestRepository) MarkManualPending(ctx context.Context, id string, instructions []string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if instructions == nil {
		instructions = []string{}
	}

	tag, err := conn.Exec(ctx, `
        UPDATE download_requests
        SET status = $2,
            is_manual_processing = TRUE,
            instructions = $3,
            updated_at = NOW()
        WHERE id = $1 AND status = $2
    `, id, models.StatusPending, instructions)
	if err != nil {
		return fmt.Errorf("mark download request manual: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}

	return nil
}

// MarkCompleted finalizes an entry with its result link and file size.
func (r *PostgresRequestRepository) MarkCompleted(ctx context.Context, id, resultLink string, fileSize int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE download_requests
        SET status = $2,
            result_link = $3,
            file_size = $4,
            failure_reason = '',
            updated_at = NOW(),
            completed_at = NOW()
        WHERE id = $1 AND status IN ($5, $6)
    `, id, models.StatusCompleted, resultLink, fileSize, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark download request completed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}

	return nil
}

// Delete removes a ledger entry. Admin-only; allowed regardless of state.
func (r *PostgresRequestRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM download_requests
        WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("delete download request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Stats computes the derived statistics view in a single ledger scan.
func (r *PostgresRequestRepository) Stats(ctx context.Context) (models.RequestStats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.RequestStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT status, platform, created_at
        FROM download_requests
    `)
	if err != nil {
		return models.RequestStats{}, fmt.Errorf("query request stats: %w", err)
	}
	defer rows.Close()

	stats := models.RequestStats{
		ByStatus:   make(map[models.RequestStatus]int64),
		ByPlatform: make(map[models.Platform]int64),
	}

	now := time.Now().UTC()
	for rows.Next() {
		var (
			status    models.RequestStatus
			platform  models.Platform
			createdAt time.Time
		)
		if err := rows.Scan(&status, &platform, &createdAt); err != nil {
			return models.RequestStats{}, fmt.Errorf("scan request stats row: %w", err)
		}

		stats.Total++
		stats.ByStatus[status]++
		stats.ByPlatform[platform]++
		if now.Sub(createdAt) <= 24*time.Hour {
			stats.Last24Hours++
		}
		if now.Sub(createdAt) <= 7*24*time.Hour {
			stats.Last7Days++
		}
	}

	if err := rows.Err(); err != nil {
		return models.RequestStats{}, fmt.Errorf("iterate request stats: %w", err)
	}

	return stats, nil
}

// CountSince reports how many requests a platform received since the given time.
func (r *PostgresRequestRepository) CountSince(ctx context.Context, platform models.Platform, since time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	row := conn.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM download_requests
        WHERE platform = $1 AND created_at >= $2
    `, platform, since)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}

	return count, nil
}

func scanRequest(row pgx.Row) (models.DownloadRequest, error) {
	var (
		req         models.DownloadRequest
		completedAt sql.NullTime
	)

	if err := row.Scan(&req.ID, &req.URL, &req.Platform, &req.UserID, &req.DisplayName,
		&req.SenderEmail, &req.RecipientEmail, &req.Status, &req.IsManualProcessing,
		&req.Instructions, &req.FileSize, &req.ResultLink, &req.FailureReason,
		&req.CreatedAt, &req.UpdatedAt, &completedAt); err != nil {
		return models.DownloadRequest{}, err
	}

	if completedAt.Valid {
		t := completedAt.Time.UTC()
		req.CompletedAt = &t
	}

	return req, nil
}

var _ RequestRepository = (*PostgresRequestRepository)(nil)
