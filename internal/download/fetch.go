package download

import (
	"context"
	"fmt"
	"time"

	"github.com/cavaliergopher/grab/v3"

	"github.com/dloadly/backend/internal/progress"
)

// Fetcher streams a direct media URL into the scratch directory, publishing
// progress events along the way.
type Fetcher struct {
	client *grab.Client
	hub    *progress.Hub
}

// NewFetcher constructs a Fetcher publishing to the provided hub.
func NewFetcher(hub *progress.Hub) *Fetcher {
	return &Fetcher{
		client: grab.NewClient(),
		hub:    hub,
	}
}

// Fetch downloads mediaURL into dst and returns the artifact size. The file
// must end up non-empty or an error is returned.
func (f *Fetcher) Fetch(ctx context.Context, downloadID, mediaURL, dst string) (int64, error) {
	req, err := grab.NewRequest(dst, mediaURL)
	if err != nil {
		return 0, fmt.Errorf("build fetch request: %w", err)
	}
	req = req.WithContext(ctx)

	resp := f.client.Do(req)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			f.publish(downloadID, resp)
		case <-resp.Done:
			break loop
		}
	}

	if err := resp.Err(); err != nil {
		return 0, fmt.Errorf("fetch %s: %w", mediaURL, err)
	}

	size, err := verifyArtifact(resp.Filename)
	if err != nil {
		return 0, err
	}

	f.publish(downloadID, resp)
	return size, nil
}

func (f *Fetcher) publish(downloadID string, resp *grab.Response) {
	if f.hub == nil {
		return
	}
	f.hub.Publish(progress.Event{
		Type:            progress.EventProgress,
		DownloadID:      downloadID,
		Percent:         resp.Progress() * 100,
		DownloadedBytes: resp.BytesComplete(),
		TotalBytes:      resp.Size(),
	})
}
