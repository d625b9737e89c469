package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dloadly/backend/internal/download"
	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/models"
)

// DownloadHandler exposes the generic download dispatch endpoint.
type DownloadHandler struct {
	Submitter Submitter
	Users     UserStore
	Sessions  SessionManager
	RateLimit RateLimiter
}

type downloadRequestBody struct {
	URL         string `json:"url"`
	Quality     string `json:"quality"`
	Password    string `json:"password"`
	TargetEmail string `json:"targetEmail"`
}

// Submit handles POST /api/download.
func (h DownloadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.RateLimit, r, "download") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests, slow down"})
		return
	}

	var body downloadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid download payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	req := download.Request{
		URL:            body.URL,
		Quality:        body.Quality,
		Password:       body.Password,
		RecipientEmail: strings.TrimSpace(strings.ToLower(body.TargetEmail)),
	}

	if user, ok := h.requester(r); ok {
		req.UserID = user.ID
		req.DisplayName = user.DisplayName
		req.SenderEmail = user.Email
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

// requester resolves the authenticated user from the bearer token, if any.
// Submissions without a valid session are still accepted as anonymous.
func (h DownloadHandler) requester(r *http.Request) (models.User, bool) {
	if h.Sessions == nil || h.Users == nil {
		return models.User{}, false
	}

	token := bearerToken(r)
	if token == "" {
		return models.User{}, false
	}

	userID, err := h.Sessions.Validate(r.Context(), token)
	if err != nil {
		return models.User{}, false
	}

	user, err := h.Users.FindByID(r.Context(), userID)
	if err != nil {
		return models.User{}, false
	}

	return user, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
