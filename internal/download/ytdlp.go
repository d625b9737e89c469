package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/models"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLPDownloader drives the yt-dlp CLI for platforms it supports, with
// optional HTML-scraping fallback endpoints when the subprocess fails.
type YTDLPDownloader struct {
	Platform     models.Platform
	Source       string
	DefaultTitle string

	Binary     string
	ScratchDir string
	Timeout    time.Duration
	Run        CommandRunner

	FallbackURLs []string
	HTTPClient   *http.Client
	Fetcher      *Fetcher
}

// NewYTDLPDownloader constructs a downloader shelling out to yt-dlp for the
// given platform.
func NewYTDLPDownloader(platform models.Platform, source, binary, scratchDir string, timeout time.Duration) *YTDLPDownloader {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &YTDLPDownloader{
		Platform:     platform,
		Source:       source,
		DefaultTitle: source + " Video",
		Binary:       binary,
		ScratchDir:   scratchDir,
		Timeout:      timeout,
		Run:          defaultCommandRunner,
	}
}

// Download runs the subprocess path first and falls back to the scraping
// endpoints. When every method fails the error is a FailedError; the caller
// must not retry automatically.
func (d *YTDLPDownloader) Download(ctx context.Context, req Request) (models.DownloadResult, error) {
	logger := logging.FromContext(ctx)

	outPath := scratchName(d.ScratchDir, ".mp4")

	title, size, primaryErr := d.runSubprocess(ctx, req.URL, outPath)
	if primaryErr == nil {
		return d.result(req, title, outPath, size), nil
	}

	logger.Warn("yt-dlp subprocess failed, trying fallbacks",
		"platform", d.Platform, "url", req.URL, "error", primaryErr)

	errs := []error{primaryErr}
	for _, endpoint := range d.FallbackURLs {
		mediaURL, err := d.scrapeFallback(ctx, endpoint, req.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("fallback %s: %w", endpoint, err))
			continue
		}

		size, err := d.Fetcher.Fetch(ctx, req.ID, mediaURL, outPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("fallback %s: %w", endpoint, err))
			continue
		}

		return d.result(req, "", outPath, size), nil
	}

	return models.DownloadResult{}, &FailedError{
		Platform: d.Platform,
		Err:      fmt.Errorf("all download methods failed: %w", errors.Join(errs...)),
	}
}

func (d *YTDLPDownloader) runSubprocess(ctx context.Context, rawURL, outPath string) (string, int64, error) {
	run := d.Run
	if run == nil {
		run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	args := []string{
		"-f", "best[ext=mp4]/best",
		"-o", outPath,
		"--no-playlist",
		"--no-warnings",
		"--print", "title",
		"--no-simulate",
		rawURL,
	}

	out, err := run(execCtx, d.Binary, args...)
	if err != nil {
		return "", 0, fmt.Errorf("yt-dlp: %w", err)
	}

	size, err := verifyArtifact(outPath)
	if err != nil {
		return "", 0, err
	}

	return strings.TrimSpace(string(out)), size, nil
}

// scrapeFallback posts the video URL to a third-party helper endpoint and
// extracts a direct media URL from its JSON or HTML response. This path is
// best-effort and may legitimately fail entirely.
func (d *YTDLPDownloader) scrapeFallback(ctx context.Context, endpoint, videoURL string) (string, error) {
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	form := url.Values{"url": {videoURL}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build fallback request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call fallback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fallback status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read fallback response: %w", err)
	}

	// Some endpoints return {"url": "..."} or {"result": "<html>"}; others
	// return a raw HTML page.
	var payload struct {
		URL    string `json:"url"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.URL != "" {
			return payload.URL, nil
		}
		if payload.Result != "" {
			body = []byte(payload.Result)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse fallback page: %w", err)
	}

	mediaURL, ok := extractMediaHref(doc)
	if !ok {
		return "", errors.New("no media link found in fallback page")
	}

	return mediaURL, nil
}

func (d *YTDLPDownloader) result(req Request, title, outPath string, size int64) models.DownloadResult {
	if title == "" {
		title = d.DefaultTitle
	}
	return models.DownloadResult{
		Kind:          models.ResultAutomatic,
		RequestID:     req.ID,
		Source:        d.Source,
		Title:         title,
		DownloadURL:   "/downloads/" + filepath.Base(outPath),
		Filename:      suggestedFilename(title, req.Quality),
		FileSize:      size,
		Qualities:     advertisedQualities,
		WatermarkFree: true,
	}
}

func suggestedFilename(title, quality string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, title)
	if quality != "" {
		name += "_" + quality
	}
	return name + ".mp4"
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}
