package repositories

import (
	"context"
	"time"

	"github.com/dloadly/backend/internal/models"
)

// RequestRepository exposes data access for the download request ledger.
type RequestRepository interface {
	Create(ctx context.Context, req models.DownloadRequest) error
	FindByID(ctx context.Context, id string) (models.DownloadRequest, error)
	List(ctx context.Context, limit int) ([]models.DownloadRequest, error)
	ListPendingManual(ctx context.Context) ([]models.DownloadRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, failureReason string) error
	MarkManualPending(ctx context.Context, id string, instructions []string) error
	MarkCompleted(ctx context.Context, id, resultLink string, fileSize int64) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (models.RequestStats, error)
	CountSince(ctx context.Context, platform models.Platform, since time.Time) (int64, error)
}
