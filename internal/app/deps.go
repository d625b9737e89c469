package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dloadly/backend/internal/auth"
	"github.com/dloadly/backend/internal/config"
	"github.com/dloadly/backend/internal/db"
	"github.com/dloadly/backend/internal/download"
	"github.com/dloadly/backend/internal/fshare"
	"github.com/dloadly/backend/internal/handlers"
	"github.com/dloadly/backend/internal/middleware"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/progress"
	"github.com/dloadly/backend/internal/quota"
	"github.com/dloadly/backend/internal/repositories"
	"github.com/dloadly/backend/internal/storage"
	"github.com/dloadly/backend/internal/upload"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour

	progressSnapshotTTL = time.Hour
	manualUploadMax     = 2 << 30
)

// unavailableStorage stands in when no bucket is configured so the manual
// bridge fails loudly instead of panicking.
type unavailableStorage struct{}

func (unavailableStorage) Save(context.Context, string, io.Reader) (string, error) {
	return "", errors.New("object store is not configured")
}

// buildDependencies wires repositories, platform downloaders, and supporting
// services into the handler dependency set.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	users := repositories.NewPostgresUserRepository(pool)
	requests := repositories.NewPostgresRequestRepository(pool)
	settings := repositories.NewPostgresSettingsRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)

	sessions := auth.NewManager(accessTokenTTL, refreshTokenTTL, sessionStore)

	hub := progress.NewHub(progressSnapshotTTL)
	fetcher := download.NewFetcher(hub)
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	tracker := quota.NewTracker(settings, cfg.DailyBandwidthGB)
	platforms := download.NewPlatformStore(settings, cfg.DefaultDailyRequests)
	fshareClient := fshare.NewClient(cfg.Fshare, cfg.HTTPClientTimeout).WithHTTPClient(httpClient)

	downloaders := map[models.Platform]download.Downloader{
		models.PlatformTikTok: download.NewTikTokDownloader(cfg.TikTokHelperURL, cfg.ScratchDir, httpClient, fetcher),
		models.PlatformFshare: download.NewFshareDownloader(fshareClient, tracker),
	}

	ytdlpSources := map[models.Platform]string{
		models.PlatformYouTube:   "YouTube",
		models.PlatformInstagram: "Instagram",
		models.PlatformFacebook:  "Facebook",
		models.PlatformTwitter:   "Twitter",
	}
	for p, source := range ytdlpSources {
		d := download.NewYTDLPDownloader(p, source, cfg.YTDLPPath, cfg.ScratchDir, cfg.YTDLPTimeout)
		d.HTTPClient = httpClient
		d.Fetcher = fetcher
		if p == models.PlatformYouTube && cfg.YouTubeFallbackURL != "" {
			d.FallbackURLs = []string{cfg.YouTubeFallbackURL}
		}
		downloaders[p] = d
	}

	dispatcher := &download.Dispatcher{
		Requests:    requests,
		Users:       users,
		Platforms:   platforms,
		Downloaders: downloaders,
		Hub:         hub,
	}

	var store upload.Storage
	if cfg.ObjectStore.Bucket != "" {
		s3store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		store = s3store
	} else {
		slog.Warn("object store bucket not configured, manual uploads disabled")
		store = unavailableStorage{}
	}

	bridge := &upload.Bridge{
		Requests: requests,
		Storage:  store,
		Quota:    tracker,
		MaxBytes: manualUploadMax,
	}

	limiter := middleware.NewIPRateLimiter(30, time.Minute, 10, 10*time.Minute)

	return handlers.Dependencies{
		Users:      users,
		Sessions:   sessions,
		Requests:   requests,
		Submitter:  dispatcher,
		Quota:      tracker,
		Platforms:  platforms,
		FshareInfo: fshareClient,
		Uploader:   bridge,
		Progress:   hub,
		RateLimit:  limiter,

		DownloadDir: cfg.ScratchDir,
	}, nil
}
