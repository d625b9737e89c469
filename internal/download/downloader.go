// Package download contains the platform dispatch layer and the per-platform
// downloaders behind it.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dloadly/backend/internal/models"
)

// Request carries one user submission through the downloader pipeline.
type Request struct {
	ID             string
	URL            string
	Quality        string
	Password       string
	UserID         string
	DisplayName    string
	SenderEmail    string
	RecipientEmail string
}

// Downloader produces a normalized result for one platform.
type Downloader interface {
	Download(ctx context.Context, req Request) (models.DownloadResult, error)
}

// Preflighter is implemented by downloaders that can reject a request before
// any network call is made (e.g. the Fshare bandwidth admission check).
type Preflighter interface {
	Preflight(ctx context.Context, req Request) (warning string, err error)
}

// advertisedQualities is the static label list shown to requesters. It is not
// derived from the actual stream manifest.
var advertisedQualities = []string{"1080p", "720p", "480p", "360p"}

// scratchName returns a collision-free filename inside the scratch directory.
func scratchName(dir, ext string) string {
	return filepath.Join(dir, uuid.NewString()+ext)
}

// verifyArtifact checks that a downloaded file exists and is non-empty.
func verifyArtifact(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("artifact %s is empty", filepath.Base(path))
	}
	return info.Size(), nil
}
