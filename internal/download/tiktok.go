package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dloadly/backend/internal/models"
)

// TikTokDownloader resolves a video through a third-party HTML helper service
// and streams the extracted media URL to the scratch directory.
type TikTokDownloader struct {
	HelperURL  string
	ScratchDir string
	HTTPClient *http.Client
	Fetcher    *Fetcher
}

// NewTikTokDownloader constructs a TikTok downloader against the given helper
// endpoint.
func NewTikTokDownloader(helperURL, scratchDir string, client *http.Client, fetcher *Fetcher) *TikTokDownloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TikTokDownloader{
		HelperURL:  helperURL,
		ScratchDir: scratchDir,
		HTTPClient: client,
		Fetcher:    fetcher,
	}
}

// Download implements the Downloader contract for TikTok.
func (d *TikTokDownloader) Download(ctx context.Context, req Request) (models.DownloadResult, error) {
	mediaURL, err := d.resolve(ctx, req.URL)
	if err != nil {
		return models.DownloadResult{}, &FailedError{Platform: models.PlatformTikTok, Err: err}
	}

	outPath := scratchName(d.ScratchDir, ".mp4")
	size, err := d.Fetcher.Fetch(ctx, req.ID, mediaURL, outPath)
	if err != nil {
		return models.DownloadResult{}, &FailedError{Platform: models.PlatformTikTok, Err: err}
	}

	title := "TikTok Video"
	return models.DownloadResult{
		Kind:          models.ResultAutomatic,
		RequestID:     req.ID,
		Source:        "TikTok",
		Title:         title,
		DownloadURL:   "/downloads/" + filepath.Base(outPath),
		Filename:      suggestedFilename(title, req.Quality),
		FileSize:      size,
		Qualities:     advertisedQualities,
		WatermarkFree: true,
	}, nil
}

// resolve posts the video URL to the helper service and extracts the first
// MP4 download anchor from the returned HTML.
func (d *TikTokDownloader) resolve(ctx context.Context, videoURL string) (string, error) {
	form := url.Values{"url": {videoURL}}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.HelperURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build helper request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call helper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("helper status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("parse helper page: %w", err)
	}

	mediaURL, ok := extractMediaHref(doc)
	if !ok {
		return "", errors.New("no mp4 download link found in helper page")
	}

	return mediaURL, nil
}
