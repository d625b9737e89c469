// Package upload implements the admin manual-upload bridge that completes
// manually processed Fshare requests.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/quota"
	"github.com/dloadly/backend/internal/repositories"
)

// ErrFileTooLarge indicates the uploaded file exceeds the configured cap.
var ErrFileTooLarge = errors.New("uploaded file exceeds size limit")

// UploadError wraps storage failures. The ledger entry is left in its prior
// state so the admin can retry; no partial-completion state exists.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Storage is the object store the bridge writes to.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Bridge uploads an admin-supplied file, shares it with the recipient, and
// finalizes the corresponding ledger entry.
type Bridge struct {
	Requests repositories.RequestRepository
	Storage  Storage
	Quota    *quota.Tracker
	MaxBytes int64
}

// Upload stores the file under a per-recipient folder, marks the request
// completed with the resulting link and size, and records bandwidth usage.
// On storage failure nothing is written to the ledger or the quota.
func (b *Bridge) Upload(ctx context.Context, requestID, recipientEmail, filename string, size int64, r io.Reader) (string, error) {
	logger := logging.FromContext(ctx)

	if b.MaxBytes > 0 && size > b.MaxBytes {
		return "", ErrFileTooLarge
	}

	req, err := b.Requests.FindByID(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("load request %s: %w", requestID, err)
	}

	if recipientEmail == "" {
		recipientEmail = req.RecipientEmail
	}
	if recipientEmail == "" {
		recipientEmail = req.SenderEmail
	}

	key := path.Join("uploads", folderName(recipientEmail), uuid.NewString()+"_"+sanitizeFilename(filename))

	link, err := b.Storage.Save(ctx, key, r)
	if err != nil {
		return "", &UploadError{Err: err}
	}

	if err := b.Requests.MarkCompleted(ctx, requestID, link, size); err != nil {
		return "", fmt.Errorf("finalize request %s: %w", requestID, err)
	}

	if err := b.Quota.RecordUsage(ctx, size); err != nil {
		// The upload itself succeeded; an imprecise quota beats a stuck file.
		logger.Error("record bandwidth usage", "requestId", requestID, "bytes", size, "error", err)
	}

	logger.Info("manual upload completed",
		"requestId", requestID, "recipient", recipientEmail, "bytes", size)

	return link, nil
}

func folderName(email string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, strings.ToLower(email))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
