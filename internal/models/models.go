package models

import "time"

// User represents an account within the DLoadly platform.
type User struct {
	ID            string
	Email         string
	Password      string
	DisplayName   string
	Role          string
	DownloadCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Platform identifies the source site of a submitted URL.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformFshare    Platform = "fshare"
	PlatformUnknown   Platform = "unknown"
)

// RequestStatus tracks the lifecycle of a download request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// CanTransition reports whether a request may move from one status to another.
// Transitions only move forward; completed and failed are terminal.
func CanTransition(from, to RequestStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// DownloadRequest is one entry in the request ledger.
type DownloadRequest struct {
	ID                 string
	URL                string
	Platform           Platform
	UserID             string
	DisplayName        string
	SenderEmail        string
	RecipientEmail     string
	Status             RequestStatus
	IsManualProcessing bool
	Instructions       []string
	FileSize           int64
	ResultLink         string
	FailureReason      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// RequestStats is the derived statistics view over the ledger, computed by
// scanning the ledger rather than maintained as incremental counters.
type RequestStats struct {
	Total       int64
	ByStatus    map[RequestStatus]int64
	ByPlatform  map[Platform]int64
	Last24Hours int64
	Last7Days   int64
}

// BandwidthBudget tracks the daily Fshare VIP quota in gigabytes.
type BandwidthBudget struct {
	LimitGB   float64   `json:"limitGb"`
	UsedGB    float64   `json:"usedGb"`
	LastReset time.Time `json:"lastReset"`
}

// Admission is the outcome of a bandwidth admission check.
type Admission struct {
	Allow       bool
	RemainingGB float64
	PercentUsed float64
	Warning     string
	ResetsAt    time.Time
}

// PlatformConfig holds per-platform operator settings.
type PlatformConfig struct {
	Platform   Platform `json:"platform"`
	Enabled    bool     `json:"enabled"`
	DailyLimit int64    `json:"dailyLimit"`
}

// ResultKind discriminates the two completion paths of a download.
type ResultKind string

const (
	// ResultAutomatic means a direct artifact or VIP link is ready.
	ResultAutomatic ResultKind = "automatic"
	// ResultManualPending means the request was accepted but waits for an
	// administrator to complete it by hand.
	ResultManualPending ResultKind = "manual_pending"
)

// DownloadResult is the normalized record returned to a requester. It is a
// tagged union: the download fields are meaningful only when Kind is
// ResultAutomatic, Instructions only when Kind is ResultManualPending.
type DownloadResult struct {
	Kind          ResultKind `json:"kind"`
	RequestID     string     `json:"requestId"`
	Source        string     `json:"source,omitempty"`
	Title         string     `json:"title,omitempty"`
	DownloadURL   string     `json:"downloadUrl,omitempty"`
	Filename      string     `json:"filename,omitempty"`
	FileSize      int64      `json:"fileSize,omitempty"`
	Qualities     []string   `json:"qualities,omitempty"`
	WatermarkFree bool       `json:"watermarkFree,omitempty"`
	IsVipLink     bool       `json:"isVipLink,omitempty"`
	Instructions  []string   `json:"instructions,omitempty"`
	Warning       string     `json:"warning,omitempty"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
