package download

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/platform"
	"github.com/dloadly/backend/internal/progress"
	"github.com/dloadly/backend/internal/repositories"
)

// Dispatcher routes a submitted URL to its platform downloader and keeps the
// request ledger in sync with the download lifecycle.
type Dispatcher struct {
	Requests    repositories.RequestRepository
	Users       repositories.UserRepository
	Platforms   *PlatformStore
	Downloaders map[models.Platform]Downloader
	Hub         *progress.Hub
	NowFunc     func() time.Time
}

// Submit runs the full pipeline for one submission: detect, admission checks,
// ledger entry, download, ledger transition. Input and quota failures are
// raised before any ledger write or network call.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (models.DownloadResult, error) {
	ctx, span := logging.StartSpan(ctx, "download.submit")
	defer span.End()

	logger := logging.FromContext(ctx)

	detection := platform.Detect(req.URL)
	if detection.Platform == models.PlatformUnknown {
		return models.DownloadResult{}, ErrUnsupportedPlatform
	}
	if !detection.Valid {
		return models.DownloadResult{}, fmt.Errorf("%w: malformed %s link", ErrInvalidURL, detection.Platform)
	}

	downloader, ok := d.Downloaders[detection.Platform]
	if !ok {
		return models.DownloadResult{}, ErrUnsupportedPlatform
	}

	cfg, err := d.Platforms.Get(ctx, detection.Platform)
	if err != nil {
		return models.DownloadResult{}, err
	}
	if !cfg.Enabled {
		return models.DownloadResult{}, &DisabledError{Platform: detection.Platform}
	}

	if cfg.DailyLimit > 0 {
		since := d.now().Add(-24 * time.Hour)
		count, err := d.Requests.CountSince(ctx, detection.Platform, since)
		if err != nil {
			return models.DownloadResult{}, err
		}
		if count >= cfg.DailyLimit {
			return models.DownloadResult{}, &QuotaExceededError{
				Platform: detection.Platform,
				Message:  fmt.Sprintf("daily request limit reached for %s (%d per day)", detection.Platform, cfg.DailyLimit),
			}
		}
	}

	var warning string
	if pf, ok := downloader.(Preflighter); ok {
		warning, err = pf.Preflight(ctx, req)
		if err != nil {
			return models.DownloadResult{}, err
		}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	now := d.now()
	entry := models.DownloadRequest{
		ID:             req.ID,
		URL:            req.URL,
		Platform:       detection.Platform,
		UserID:         req.UserID,
		DisplayName:    req.DisplayName,
		SenderEmail:    req.SenderEmail,
		RecipientEmail: req.RecipientEmail,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.Requests.Create(ctx, entry); err != nil {
		return models.DownloadResult{}, fmt.Errorf("create ledger entry: %w", err)
	}

	// The Fshare path stays pending while its automatic attempt runs so a
	// downgrade to manual processing never moves the entry backwards.
	tracksProcessing := detection.Platform != models.PlatformFshare
	if tracksProcessing {
		if err := d.Requests.UpdateStatus(ctx, req.ID, models.StatusProcessing, ""); err != nil {
			logger.Error("mark request processing", "requestId", req.ID, "error", err)
		}
	}

	d.publish(progress.Event{
		Type:       progress.EventProgress,
		DownloadID: req.ID,
		Message:    fmt.Sprintf("download started for %s", detection.Platform),
	})

	result, err := downloader.Download(ctx, req)
	if err != nil {
		reason := err.Error()
		if serr := d.Requests.UpdateStatus(ctx, req.ID, models.StatusFailed, reason); serr != nil {
			logger.Error("mark request failed", "requestId", req.ID, "error", serr)
		}
		d.publish(progress.Event{
			Type:       progress.EventError,
			DownloadID: req.ID,
			Message:    reason,
		})
		return models.DownloadResult{}, err
	}

	switch result.Kind {
	case models.ResultManualPending:
		if err := d.Requests.MarkManualPending(ctx, req.ID, result.Instructions); err != nil {
			logger.Error("mark request manual pending", "requestId", req.ID, "error", err)
		}
		d.publish(progress.Event{
			Type:       progress.EventProgress,
			DownloadID: req.ID,
			Message:    "request accepted, pending manual processing",
		})
	default:
		if err := d.Requests.MarkCompleted(ctx, req.ID, result.DownloadURL, result.FileSize); err != nil {
			logger.Error("mark request completed", "requestId", req.ID, "error", err)
		}
		if d.Users != nil && req.UserID != "" {
			if err := d.Users.IncrementDownloads(ctx, req.UserID); err != nil {
				logger.Warn("increment user downloads", "userId", req.UserID, "error", err)
			}
		}
		d.publish(progress.Event{
			Type:       progress.EventComplete,
			DownloadID: req.ID,
			Percent:    100,
			TotalBytes: result.FileSize,
		})
	}

	result.RequestID = req.ID
	if warning != "" {
		result.Warning = warning
	}

	return result, nil
}

func (d *Dispatcher) publish(event progress.Event) {
	if d.Hub != nil {
		d.Hub.Publish(event)
	}
}

func (d *Dispatcher) now() time.Time {
	if d.NowFunc != nil {
		return d.NowFunc()
	}
	return time.Now().UTC()
}
