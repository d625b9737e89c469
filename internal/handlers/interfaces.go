package handlers

import (
	"context"
	"io"

	"github.com/dloadly/backend/internal/download"
	"github.com/dloadly/backend/internal/fshare"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/progress"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, refreshes, and validates authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Validate(ctx context.Context, accessToken string) (string, error)
}

// Submitter runs the download pipeline for a submitted URL.
type Submitter interface {
	Submit(ctx context.Context, req download.Request) (models.DownloadResult, error)
}

// RequestStore captures the ledger operations exposed over HTTP.
type RequestStore interface {
	FindByID(ctx context.Context, id string) (models.DownloadRequest, error)
	List(ctx context.Context, limit int) ([]models.DownloadRequest, error)
	ListPendingManual(ctx context.Context) ([]models.DownloadRequest, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (models.RequestStats, error)
}

// QuotaService exposes the bandwidth budget to HTTP handlers.
type QuotaService interface {
	Status(ctx context.Context) (models.BandwidthBudget, error)
	CheckAdmission(ctx context.Context, requestedBytes int64) (models.Admission, error)
	Reset(ctx context.Context) error
	SetLimit(ctx context.Context, limitGB float64) error
}

// PlatformConfigService reads and writes per-platform operator settings.
type PlatformConfigService interface {
	Get(ctx context.Context, p models.Platform) (models.PlatformConfig, error)
	Set(ctx context.Context, cfg models.PlatformConfig) error
}

// FileInfoService resolves metadata for Fshare file URLs.
type FileInfoService interface {
	FileInfo(ctx context.Context, fileURL string) (fshare.FileInfo, error)
}

// UploadBridge accepts an admin-supplied file and completes a pending request.
type UploadBridge interface {
	Upload(ctx context.Context, requestID, recipientEmail, filename string, size int64, r io.Reader) (string, error)
}

// ProgressSource exposes the progress event channel to HTTP handlers.
type ProgressSource interface {
	Subscribe(downloadID string) (<-chan progress.Event, func())
	Snapshot(downloadID string) (progress.Event, bool)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users      UserStore
	Sessions   SessionManager
	Requests   RequestStore
	Submitter  Submitter
	Quota      QuotaService
	Platforms  PlatformConfigService
	FshareInfo FileInfoService
	Uploader   UploadBridge
	Progress   ProgressSource
	RateLimit  RateLimiter

	// DownloadDir is the scratch directory whose artifacts are served under
	// /downloads/, matching the links in automatic download results.
	DownloadDir string
}
