package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dloadly/backend/internal/download"
	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/repositories"
	"github.com/dloadly/backend/internal/upload"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondDownloadError maps the download error taxonomy onto HTTP statuses
// with messages that keep bad input, disabled platforms, exhausted quotas,
// and transient failures distinguishable for the user.
func respondDownloadError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		disabled *download.DisabledError
		quota    *download.QuotaExceededError
		failed   *download.FailedError
	)

	switch {
	case errors.Is(err, download.ErrUnsupportedPlatform):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{
			"error": "this site is not supported; submit a YouTube, TikTok, Instagram, Facebook, Twitter, or Fshare link",
		})
	case errors.Is(err, download.ErrInvalidURL):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &disabled):
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": disabled.Error()})
	case errors.As(err, &quota):
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": quota.Error()})
	case errors.As(err, &failed):
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{
			"error": "download failed, please try again later",
		})
	default:
		logging.FromContext(ctx).Error("download pipeline error", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func respondUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	var uploadErr *upload.UploadError

	switch {
	case errors.Is(err, upload.ErrFileTooLarge):
		respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": "uploaded file exceeds the size limit"})
	case errors.Is(err, repositories.ErrNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "request not found"})
	case errors.Is(err, repositories.ErrInvalidTransition):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "request is already completed or failed"})
	case errors.As(err, &uploadErr):
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "upload failed, please retry"})
	default:
		logging.FromContext(ctx).Error("upload bridge error", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
