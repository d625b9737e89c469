package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dloadly/backend/internal/logging"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/repositories"
)

const defaultRequestListLimit = 100

// AdminHandler exposes the operator endpoints: ledger inspection, statistics,
// platform toggles, and bandwidth budget controls.
type AdminHandler struct {
	Users     UserStore
	Sessions  SessionManager
	Requests  RequestStore
	Quota     QuotaService
	Platforms PlatformConfigService
}

// requireAdmin authenticates the bearer token and checks the admin role. On
// failure it writes the error response and returns ok=false.
func requireAdmin(w http.ResponseWriter, r *http.Request, sessions SessionManager, users UserStore) (models.User, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	token := bearerToken(r)
	if token == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return models.User{}, false
	}

	userID, err := sessions.Validate(ctx, token)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
		return models.User{}, false
	}

	user, err := users.FindByID(ctx, userID)
	if err != nil {
		logger.Warn("admin lookup failed", "userId", userID, "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
		return models.User{}, false
	}

	if user.Role != models.RoleAdmin {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "administrator access required"})
		return models.User{}, false
	}

	return user, true
}

// requestView is the JSON projection of a ledger entry.
type requestView struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	Platform           string     `json:"platform"`
	UserID             string     `json:"userId,omitempty"`
	DisplayName        string     `json:"displayName,omitempty"`
	SenderEmail        string     `json:"senderEmail,omitempty"`
	RecipientEmail     string     `json:"recipientEmail,omitempty"`
	Status             string     `json:"status"`
	IsManualProcessing bool       `json:"isManualProcessing"`
	Instructions       []string   `json:"instructions,omitempty"`
	FileSize           int64      `json:"fileSize,omitempty"`
	ResultLink         string     `json:"resultLink,omitempty"`
	FailureReason      string     `json:"failureReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

func toRequestView(req models.DownloadRequest) requestView {
	return requestView{
		ID:                 req.ID,
		URL:                req.URL,
		Platform:           string(req.Platform),
		UserID:             req.UserID,
		DisplayName:        req.DisplayName,
		SenderEmail:        req.SenderEmail,
		RecipientEmail:     req.RecipientEmail,
		Status:             string(req.Status),
		IsManualProcessing: req.IsManualProcessing,
		Instructions:       req.Instructions,
		FileSize:           req.FileSize,
		ResultLink:         req.ResultLink,
		FailureReason:      req.FailureReason,
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
		CompletedAt:        req.CompletedAt,
	}
}

// ListRequests handles GET /api/admin/requests. With ?pending=manual it
// returns only entries awaiting manual processing.
func (h AdminHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requireAdmin(w, r, h.Sessions, h.Users); !ok {
		return
	}

	var (
		requests []models.DownloadRequest
		err      error
	)

	if r.URL.Query().Get("pending") == "manual" {
		requests, err = h.Requests.ListPendingManual(ctx)
	} else {
		limit := defaultRequestListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, parseErr := strconv.Atoi(raw); parseErr == nil && parsed > 0 {
				limit = parsed
			}
		}
		requests, err = h.Requests.List(ctx, limit)
	}

	if err != nil {
		logging.FromContext(ctx).Error("list requests", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to list requests"})
		return
	}

	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, toRequestView(req))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"requests": views})
}

// GetRequest handles GET /api/admin/requests/{id}.
func (h AdminHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requireAdmin(w, r, h.Sessions, h.Users); !ok {
		return
	}

	req, err := h.Requests.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "request not found"})
			return
		}
		logging.FromContext(ctx).Error("load request", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load request"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, toRequestView(req))
}

// DeleteRequest handles DELETE /api/admin/requests/{id}.
func (h AdminHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	admin, ok := requireAdmin(w, r, h.Sessions, h.Users)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.Requests.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "request not found"})
			return
		}
		logging.FromContext(ctx).Error("delete request", "error", err, "requestId", id)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to delete request"})
		return
	}

	logging.FromContext(ctx).Info("request deleted", "requestId", id, "adminId", admin.ID)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// Stats handles GET /api/admin/stats, computed by scanning the ledger.
func (h AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requireAdmin(w, r, h.Sessions, h.Users); !ok {
		return
	}

	stats, err := h.Requests.Stats(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("compute stats", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to compute statistics"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"total":       stats.Total,
		"byStatus":    stats.ByStatus,
		"byPlatform":  stats.ByPlatform,
		"last24Hours": stats.Last24Hours,
		"last7Days":   stats.Last7Days,
	})
}

type platformConfigBody struct {
	Platform   string `json:"platform"`
	Enabled    *bool  `json:"enabled"`
	DailyLimit *int64 `json:"dailyLimit"`
}

// ConfigurePlatform handles POST /api/admin/platforms, updating the enabled
// flag and daily request limit for one platform.
func (h AdminHandler) ConfigurePlatform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	admin, ok := requireAdmin(w, r, h.Sessions, h.Users)
	if !ok {
		return
	}

	var body platformConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid platform config payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	p := models.Platform(strings.ToLower(strings.TrimSpace(body.Platform)))
	switch p {
	case models.PlatformYouTube, models.PlatformTikTok, models.PlatformInstagram,
		models.PlatformFacebook, models.PlatformTwitter, models.PlatformFshare:
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unknown platform"})
		return
	}

	cfg, err := h.Platforms.Get(ctx, p)
	if err != nil {
		logger.Error("load platform config", "error", err, "platform", p)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load platform settings"})
		return
	}

	if body.Enabled != nil {
		cfg.Enabled = *body.Enabled
	}
	if body.DailyLimit != nil {
		if *body.DailyLimit <= 0 {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "dailyLimit must be positive"})
			return
		}
		cfg.DailyLimit = *body.DailyLimit
	}

	if err := h.Platforms.Set(ctx, cfg); err != nil {
		logger.Error("save platform config", "error", err, "platform", p)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to save platform settings"})
		return
	}

	logger.Info("platform configured", "platform", p, "enabled", cfg.Enabled, "dailyLimit", cfg.DailyLimit, "adminId", admin.ID)
	respondJSON(ctx, w, http.StatusOK, cfg)
}

type bandwidthBody struct {
	LimitGB *float64 `json:"limitGb"`
}

// ResetBandwidth handles POST /api/admin/bandwidth/reset. The used counter is
// zeroed; an optional limitGb in the body also adjusts the daily cap.
func (h AdminHandler) ResetBandwidth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	admin, ok := requireAdmin(w, r, h.Sessions, h.Users)
	if !ok {
		return
	}

	var body bandwidthBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("invalid bandwidth reset payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if body.LimitGB != nil {
		if *body.LimitGB <= 0 {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "limitGb must be positive"})
			return
		}
		if err := h.Quota.SetLimit(ctx, *body.LimitGB); err != nil {
			logger.Error("set bandwidth limit", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update bandwidth limit"})
			return
		}
	}

	if err := h.Quota.Reset(ctx); err != nil {
		logger.Error("reset bandwidth budget", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to reset bandwidth budget"})
		return
	}

	budget, err := h.Quota.Status(ctx)
	if err != nil {
		logger.Error("read bandwidth budget after reset", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to read bandwidth status"})
		return
	}

	logger.Info("bandwidth budget reset", "limitGb", budget.LimitGB, "adminId", admin.ID)
	respondJSON(ctx, w, http.StatusOK, budget)
}
