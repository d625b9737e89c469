package download

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dloadly/backend/internal/config"
	"github.com/dloadly/backend/internal/fshare"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/progress"
	"github.com/dloadly/backend/internal/quota"
	"github.com/dloadly/backend/internal/repositories"
)

type memoryRequestRepo struct {
	mu      sync.Mutex
	entries map[string]models.DownloadRequest
}

func newMemoryRequestRepo() *memoryRequestRepo {
	return &memoryRequestRepo{entries: make(map[string]models.DownloadRequest)}
}

func (r *memoryRequestRepo) Create(_ context.Context, req models.DownloadRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[req.ID]; exists {
		return repositories.ErrConflict
	}
	r.entries[req.ID] = req
	return nil
}

func (r *memoryRequestRepo) FindByID(_ context.Context, id string) (models.DownloadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return models.DownloadRequest{}, repositories.ErrNotFound
	}
	return entry, nil
}

func (r *memoryRequestRepo) List(_ context.Context, _ int) ([]models.DownloadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.DownloadRequest, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	return out, nil
}

func (r *memoryRequestRepo) ListPendingManual(_ context.Context) ([]models.DownloadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DownloadRequest
	for _, entry := range r.entries {
		if entry.Status == models.StatusPending && entry.IsManualProcessing {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memoryRequestRepo) UpdateStatus(_ context.Context, id string, status models.RequestStatus, failureReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if !models.CanTransition(entry.Status, status) {
		return repositories.ErrInvalidTransition
	}
	entry.Status = status
	entry.FailureReason = failureReason
	r.entries[id] = entry
	return nil
}

func (r *memoryRequestRepo) MarkManualPending(_ context.Context, id string, instructions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if entry.Status != models.StatusPending {
		return repositories.ErrInvalidTransition
	}
	entry.IsManualProcessing = true
	entry.Instructions = instructions
	r.entries[id] = entry
	return nil
}

func (r *memoryRequestRepo) MarkCompleted(_ context.Context, id, resultLink string, fileSize int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if !models.CanTransition(entry.Status, models.StatusCompleted) {
		return repositories.ErrInvalidTransition
	}
	now := time.Now().UTC()
	entry.Status = models.StatusCompleted
	entry.ResultLink = resultLink
	entry.FileSize = fileSize
	entry.CompletedAt = &now
	r.entries[id] = entry
	return nil
}

func (r *memoryRequestRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *memoryRequestRepo) Stats(_ context.Context) (models.RequestStats, error) {
	return models.RequestStats{}, nil
}

func (r *memoryRequestRepo) CountSince(_ context.Context, platform models.Platform, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, entry := range r.entries {
		if entry.Platform == platform && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memoryRequestRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type memoryUserRepo struct {
	mu        sync.Mutex
	downloads map[string]int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{downloads: make(map[string]int64)}
}

func (r *memoryUserRepo) Create(context.Context, models.User) error { return nil }

func (r *memoryUserRepo) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, repositories.ErrNotFound
}

func (r *memoryUserRepo) FindByID(context.Context, string) (models.User, error) {
	return models.User{}, repositories.ErrNotFound
}

func (r *memoryUserRepo) Update(context.Context, models.User) error { return nil }

func (r *memoryUserRepo) IncrementDownloads(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[id]++
	return nil
}

type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemorySettings() *memorySettings {
	return &memorySettings{values: make(map[string]string)}
}

func (s *memorySettings) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", repositories.ErrNotFound
	}
	return value, nil
}

func (s *memorySettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

type stubDownloader struct {
	result models.DownloadResult
	err    error
	calls  int
}

func (d *stubDownloader) Download(context.Context, Request) (models.DownloadResult, error) {
	d.calls++
	return d.result, d.err
}

func newTestDispatcher(requests *memoryRequestRepo, users *memoryUserRepo, settings *memorySettings, downloaders map[models.Platform]Downloader) *Dispatcher {
	return &Dispatcher{
		Requests:    requests,
		Users:       users,
		Platforms:   NewPlatformStore(settings, 100),
		Downloaders: downloaders,
		Hub:         progress.NewHub(time.Minute),
	}
}

func TestDispatcherAutomaticSuccess(t *testing.T) {
	requests := newMemoryRequestRepo()
	users := newMemoryUserRepo()
	stub := &stubDownloader{result: models.DownloadResult{
		Kind:          models.ResultAutomatic,
		Source:        "YouTube",
		Title:         "Test Video",
		DownloadURL:   "/downloads/test.mp4",
		FileSize:      2048,
		WatermarkFree: true,
	}}

	d := newTestDispatcher(requests, users, newMemorySettings(), map[models.Platform]Downloader{
		models.PlatformYouTube: stub,
	})

	result, err := d.Submit(context.Background(), Request{
		URL:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if result.Source != "YouTube" || result.DownloadURL == "" || !result.WatermarkFree {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.RequestID == "" {
		t.Fatal("expected a request id on the result")
	}

	entry, err := requests.FindByID(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("ledger entry missing: %v", err)
	}
	if entry.Status != models.StatusCompleted {
		t.Fatalf("expected completed status got %s", entry.Status)
	}
	if entry.ResultLink != "/downloads/test.mp4" || entry.FileSize != 2048 {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
	if users.downloads["user-1"] != 1 {
		t.Fatalf("expected download count increment, got %d", users.downloads["user-1"])
	}
}

func TestDispatcherUnsupportedPlatform(t *testing.T) {
	requests := newMemoryRequestRepo()
	d := newTestDispatcher(requests, newMemoryUserRepo(), newMemorySettings(), nil)

	_, err := d.Submit(context.Background(), Request{URL: "https://example.com/some/page"})
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected unsupported platform got %v", err)
	}
	if requests.len() != 0 {
		t.Fatal("no ledger entry should exist for rejected input")
	}
}

func TestDispatcherMalformedLink(t *testing.T) {
	requests := newMemoryRequestRepo()
	d := newTestDispatcher(requests, newMemoryUserRepo(), newMemorySettings(), map[models.Platform]Downloader{
		models.PlatformFshare: &stubDownloader{},
	})

	_, err := d.Submit(context.Background(), Request{URL: "https://www.fshare.vn/about"})
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected invalid url got %v", err)
	}
	if requests.len() != 0 {
		t.Fatal("no ledger entry should exist for rejected input")
	}
}

func TestDispatcherDisabledPlatform(t *testing.T) {
	settings := newMemorySettings()
	store := NewPlatformStore(settings, 100)
	disabled := models.PlatformConfig{Platform: models.PlatformYouTube, Enabled: false, DailyLimit: 100}
	if err := store.Set(context.Background(), disabled); err != nil {
		t.Fatalf("disable platform: %v", err)
	}

	requests := newMemoryRequestRepo()
	stub := &stubDownloader{}
	d := newTestDispatcher(requests, newMemoryUserRepo(), settings, map[models.Platform]Downloader{
		models.PlatformYouTube: stub,
	})

	_, err := d.Submit(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ"})

	var disabledErr *DisabledError
	if !errors.As(err, &disabledErr) {
		t.Fatalf("expected disabled error got %v", err)
	}
	if stub.calls != 0 {
		t.Fatal("downloader must not run for a disabled platform")
	}
	if requests.len() != 0 {
		t.Fatal("no ledger entry should exist for a disabled platform")
	}
}

func TestDispatcherDailyRequestLimit(t *testing.T) {
	settings := newMemorySettings()
	requests := newMemoryRequestRepo()
	stub := &stubDownloader{result: models.DownloadResult{Kind: models.ResultAutomatic, Source: "TikTok"}}
	d := &Dispatcher{
		Requests:    requests,
		Users:       newMemoryUserRepo(),
		Platforms:   NewPlatformStore(settings, 1),
		Downloaders: map[models.Platform]Downloader{models.PlatformTikTok: stub},
		Hub:         progress.NewHub(time.Minute),
	}

	if _, err := d.Submit(context.Background(), Request{URL: "https://www.tiktok.com/@user/video/123"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := d.Submit(context.Background(), Request{URL: "https://www.tiktok.com/@user/video/456"})

	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected quota error got %v", err)
	}
	if !strings.Contains(quotaErr.Error(), "daily request limit") {
		t.Fatalf("unexpected message: %s", quotaErr.Error())
	}
	if requests.len() != 1 {
		t.Fatalf("rejected submission must not create a ledger entry, have %d", requests.len())
	}
}

func TestDispatcherFshareQuotaExhausted(t *testing.T) {
	settings := newMemorySettings()
	tracker := quota.NewTracker(settings, 100)
	if err := tracker.RecordUsage(context.Background(), 100<<30); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	client := fshare.NewClient(config.FshareConfig{
		BaseURL: "http://127.0.0.1:1",
		Email:   "vip@example.com", Password: "secret", AppKey: "key",
	}, time.Second)

	requests := newMemoryRequestRepo()
	d := newTestDispatcher(requests, newMemoryUserRepo(), settings, map[models.Platform]Downloader{
		models.PlatformFshare: NewFshareDownloader(client, tracker),
	})

	_, err := d.Submit(context.Background(), Request{URL: "https://www.fshare.vn/file/ABCDEF123"})

	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected quota error got %v", err)
	}
	if !strings.Contains(quotaErr.Error(), "quota resets at") {
		t.Fatalf("message should name the reset time: %s", quotaErr.Error())
	}
	if requests.len() != 0 {
		t.Fatal("exhausted quota must reject before any ledger write")
	}
}

func TestDispatcherFshareManualDowngrade(t *testing.T) {
	settings := newMemorySettings()
	tracker := quota.NewTracker(settings, 100)

	// No server listens here, so login fails and the request downgrades.
	client := fshare.NewClient(config.FshareConfig{
		BaseURL: "http://127.0.0.1:1",
		Email:   "vip@example.com", Password: "secret", AppKey: "key",
	}, time.Second)

	requests := newMemoryRequestRepo()
	d := newTestDispatcher(requests, newMemoryUserRepo(), settings, map[models.Platform]Downloader{
		models.PlatformFshare: NewFshareDownloader(client, tracker),
	})

	result, err := d.Submit(context.Background(), Request{
		URL:            "https://www.fshare.vn/file/ABCDEF123",
		RecipientEmail: "friend@example.com",
	})
	if err != nil {
		t.Fatalf("downgrade must not surface an error: %v", err)
	}

	if result.Kind != models.ResultManualPending {
		t.Fatalf("expected manual pending result got %s", result.Kind)
	}
	joined := strings.Join(result.Instructions, "\n")
	if !strings.Contains(joined, "Google Drive") || !strings.Contains(joined, "friend@example.com") {
		t.Fatalf("instructions should mention Drive sharing and the recipient: %q", joined)
	}

	entry, err := requests.FindByID(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("ledger entry missing: %v", err)
	}
	if entry.Status != models.StatusPending || !entry.IsManualProcessing {
		t.Fatalf("expected pending manual entry got %+v", entry)
	}
	if len(entry.Instructions) == 0 {
		t.Fatal("ledger entry should carry the manual instructions")
	}
}

func TestDispatcherDownloadFailure(t *testing.T) {
	requests := newMemoryRequestRepo()
	stub := &stubDownloader{err: &FailedError{Platform: models.PlatformYouTube, Err: errors.New("all download methods failed")}}

	d := newTestDispatcher(requests, newMemoryUserRepo(), newMemorySettings(), map[models.Platform]Downloader{
		models.PlatformYouTube: stub,
	})

	_, err := d.Submit(context.Background(), Request{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected failed error got %v", err)
	}

	all, _ := requests.List(context.Background(), 10)
	if len(all) != 1 {
		t.Fatalf("expected one ledger entry, have %d", len(all))
	}
	if all[0].Status != models.StatusFailed || all[0].FailureReason == "" {
		t.Fatalf("expected failed entry with reason, got %+v", all[0])
	}
}
