package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dloadly/backend/internal/download"
	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/platform"
	"github.com/dloadly/backend/internal/progress"
)

// maxManualUploadBytes caps admin uploads at 2GB, matching the largest file
// the manual bridge is expected to relay. The request body cap adds headroom
// because multipart boundaries and form fields count toward the limit.
const (
	maxManualUploadBytes = 2 << 30
	maxUploadBodyBytes   = maxManualUploadBytes + 16<<20
)

// FshareHandler implements the Fshare-specific endpoints: dedicated download
// dispatch, bandwidth status, file metadata, and the manual upload bridge.
type FshareHandler struct {
	Submitter Submitter
	Quota     QuotaService
	FileInfo  FileInfoService
	Uploader  UploadBridge
	Progress  ProgressSource
	Users     UserStore
	Sessions  SessionManager
	RateLimit RateLimiter
}

type fshareDownloadBody struct {
	URL         string `json:"url"`
	Password    string `json:"password"`
	TargetEmail string `json:"targetEmail"`
}

// Download handles POST /api/fshare/download. It accepts only Fshare links;
// everything else is rejected before reaching the dispatcher.
func (h FshareHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.RateLimit, r, "fshare") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests, slow down"})
		return
	}

	var body fshareDownloadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid fshare payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	body.URL = strings.TrimSpace(body.URL)
	if detection := platform.Detect(body.URL); detection.Platform != models.PlatformFshare {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "a valid Fshare file link is required"})
		return
	}

	req := download.Request{
		URL:            body.URL,
		Password:       body.Password,
		RecipientEmail: strings.TrimSpace(strings.ToLower(body.TargetEmail)),
	}

	result, err := h.Submitter.Submit(ctx, req)
	if err != nil {
		respondDownloadError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Kind == models.ResultManualPending {
		status = http.StatusAccepted
	}

	respondJSON(ctx, w, status, result)
}

// Status handles GET /api/fshare/status, reporting the daily bandwidth budget.
func (h FshareHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	budget, err := h.Quota.Status(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("read bandwidth budget", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to read bandwidth status"})
		return
	}

	admission, err := h.Quota.CheckAdmission(ctx, 0)
	if err != nil {
		logging.FromContext(ctx).Error("bandwidth admission check", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to read bandwidth status"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"limitGb":     budget.LimitGB,
		"usedGb":      budget.UsedGB,
		"remainingGb": admission.RemainingGB,
		"percentUsed": admission.PercentUsed,
		"warning":     admission.Warning,
		"resetsAt":    admission.ResetsAt,
	})
}

type fshareInfoBody struct {
	URL string `json:"url"`
}

// Info handles POST /api/fshare/info, resolving file metadata for a link.
func (h FshareHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var body fshareInfoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid fshare info payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	body.URL = strings.TrimSpace(body.URL)
	if detection := platform.Detect(body.URL); detection.Platform != models.PlatformFshare {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "a valid Fshare file link is required"})
		return
	}

	info, err := h.FileInfo.FileInfo(ctx, body.URL)
	if err != nil {
		logger.Warn("fshare file info lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "unable to resolve file information"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"name": info.Name,
		"size": info.Size,
	})
}

// UploadToDrive handles POST /api/fshare/upload-to-drive. Administrators post
// the manually downloaded file together with the ledger entry it completes.
func (h FshareHandler) UploadToDrive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := requireAdmin(w, r, h.Sessions, h.Users); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Warn("invalid multipart upload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	requestID := strings.TrimSpace(r.FormValue("requestId"))
	if requestID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "requestId is required"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	recipient := strings.TrimSpace(strings.ToLower(r.FormValue("targetEmail")))

	link, err := h.Uploader.Upload(ctx, requestID, recipient, header.Filename, header.Size, file)
	if err != nil {
		respondUploadError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"status":     "completed",
		"requestId":  requestID,
		"sharedLink": link,
	})
}

// ProgressSnapshot handles GET /api/fshare/progress/{id}, returning the most
// recent progress event for a download without holding the connection open.
func (h FshareHandler) ProgressSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	event, ok := h.Progress.Snapshot(id)
	if !ok {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "no progress recorded for this download"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, event)
}

// Events handles GET /api/events/{id}, streaming progress updates over
// server-sent events until the download finishes or the client disconnects.
func (h FshareHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	id := r.PathValue("id")
	events, cancel := h.Progress.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Replay the latest known state so late subscribers are not blind until
	// the next tick.
	if snapshot, ok := h.Progress.Snapshot(id); ok {
		writeSSE(w, snapshot)
		flusher.Flush()
		if snapshot.Type != progress.EventProgress {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				logger.Warn("write progress event", "error", err, "downloadId", id)
				return
			}
			flusher.Flush()
			if event.Type != progress.EventProgress {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
