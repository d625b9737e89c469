package download

import (
	"context"
	"fmt"
	"time"

	"github.com/dloadly/backend/internal/fshare"
	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/quota"
)

// FshareDownloader attempts the automatic VIP pathway and downgrades to
// manual processing when Fshare's API misbehaves. The downgrade is a designed
// completion path, not an error: Download never fails once admission passed.
type FshareDownloader struct {
	Client *fshare.Client
	Quota  *quota.Tracker
}

// NewFshareDownloader constructs the Fshare pathway.
func NewFshareDownloader(client *fshare.Client, tracker *quota.Tracker) *FshareDownloader {
	return &FshareDownloader{Client: client, Quota: tracker}
}

// Preflight runs the bandwidth admission check before any ledger write or
// network call. A QuotaExceededError carries the remaining budget and reset
// time for the user-facing message.
func (d *FshareDownloader) Preflight(ctx context.Context, req Request) (string, error) {
	adm, err := d.Quota.CheckAdmission(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("bandwidth admission check: %w", err)
	}

	if !adm.Allow {
		return "", &QuotaExceededError{
			Platform: models.PlatformFshare,
			Message: fmt.Sprintf(
				"daily Fshare bandwidth exhausted (%.1fGB remaining); quota resets at %s",
				adm.RemainingGB, adm.ResetsAt.Format(time.RFC1123)),
			RemainingGB: adm.RemainingGB,
			ResetsAt:    adm.ResetsAt,
		}
	}

	return adm.Warning, nil
}

// Download implements the Downloader contract for Fshare.
func (d *FshareDownloader) Download(ctx context.Context, req Request) (models.DownloadResult, error) {
	logger := logging.FromContext(ctx)

	session, err := d.Client.Login(ctx)
	if err != nil {
		logger.Warn("fshare login failed, downgrading to manual processing",
			"url", req.URL, "error", err)
		return d.manualResult(req), nil
	}

	link, err := d.Client.DownloadSession(ctx, session, req.URL, req.Password)
	if err != nil {
		logger.Warn("fshare download session failed, downgrading to manual processing",
			"url", req.URL, "error", err)
		return d.manualResult(req), nil
	}

	return models.DownloadResult{
		Kind:        models.ResultAutomatic,
		RequestID:   req.ID,
		Source:      "Fshare",
		Title:       "Fshare File",
		DownloadURL: link,
		IsVipLink:   true,
	}, nil
}

// manualResult builds the "request accepted, pending manual processing"
// record surfaced to the requester and queued for an administrator.
func (d *FshareDownloader) manualResult(req Request) models.DownloadResult {
	recipient := req.RecipientEmail
	if recipient == "" {
		recipient = req.SenderEmail
	}

	return models.DownloadResult{
		Kind:      models.ResultManualPending,
		RequestID: req.ID,
		Source:    "Fshare",
		Instructions: []string{
			fmt.Sprintf("Download the file manually from Fshare using the VIP account: %s", req.URL),
			"Upload the downloaded file through the admin upload page",
			fmt.Sprintf("The file will be shared via Google Drive with %s", recipient),
		},
	}
}
