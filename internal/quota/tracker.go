// Package quota tracks the daily Fshare VIP bandwidth budget.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/repositories"
)

const budgetKey = "fshare_bandwidth_budget"

const bytesPerGB = 1 << 30

// warnThresholdPercent marks the band where admissions succeed with a warning.
const warnThresholdPercent = 90.0

// Tracker enforces the daily bandwidth budget for the Fshare pathway.
//
// Admission is a read-then-compare with no transaction around the later
// RecordUsage write; concurrent admissions may together exceed the budget.
// That imprecision is accepted: the consequence is an inexact daily total,
// never corrupted data.
type Tracker struct {
	settings repositories.SettingsRepository
	limitGB  float64
	now      func() time.Time
}

// NewTracker constructs a Tracker persisting through the settings store.
// defaultLimitGB seeds the budget when no stored value exists yet.
func NewTracker(settings repositories.SettingsRepository, defaultLimitGB float64) *Tracker {
	if defaultLimitGB <= 0 {
		defaultLimitGB = 150
	}
	return &Tracker{
		settings: settings,
		limitGB:  defaultLimitGB,
		now:      time.Now,
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (t *Tracker) WithNowFunc(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Status returns the current budget, applying the daily reset first.
func (t *Tracker) Status(ctx context.Context) (models.BandwidthBudget, error) {
	if err := t.ResetIfNewDay(ctx); err != nil {
		return models.BandwidthBudget{}, err
	}
	return t.load(ctx)
}

// CheckAdmission decides whether a new Fshare request may proceed. Requests
// are rejected once usage reaches the limit; within the warning band they are
// admitted with an advisory attached.
func (t *Tracker) CheckAdmission(ctx context.Context, requestedBytes int64) (models.Admission, error) {
	if err := t.ResetIfNewDay(ctx); err != nil {
		return models.Admission{}, err
	}

	budget, err := t.load(ctx)
	if err != nil {
		return models.Admission{}, err
	}

	remaining := budget.LimitGB - budget.UsedGB
	if remaining < 0 {
		remaining = 0
	}

	percent := 0.0
	if budget.LimitGB > 0 {
		percent = budget.UsedGB / budget.LimitGB * 100
	}

	adm := models.Admission{
		Allow:       budget.UsedGB < budget.LimitGB,
		RemainingGB: remaining,
		PercentUsed: percent,
		ResetsAt:    nextMidnight(t.now()),
	}

	if adm.Allow && percent >= warnThresholdPercent {
		adm.Warning = fmt.Sprintf("daily bandwidth nearly exhausted: %.1f%% of %.0fGB used", percent, budget.LimitGB)
	}

	_ = requestedBytes // advisory only; admission compares used vs limit

	return adm, nil
}

// RecordUsage adds the given byte count to today's usage. Called only after a
// confirmed manual upload completes, never speculatively.
func (t *Tracker) RecordUsage(ctx context.Context, bytes int64) error {
	if bytes <= 0 {
		return nil
	}

	if err := t.ResetIfNewDay(ctx); err != nil {
		return err
	}

	budget, err := t.load(ctx)
	if err != nil {
		return err
	}

	budget.UsedGB += float64(bytes) / bytesPerGB
	return t.save(ctx, budget)
}

// SetLimit updates the daily limit, preserving today's usage.
func (t *Tracker) SetLimit(ctx context.Context, limitGB float64) error {
	if limitGB <= 0 {
		return errors.New("bandwidth limit must be positive")
	}

	budget, err := t.load(ctx)
	if err != nil {
		return err
	}

	budget.LimitGB = limitGB
	return t.save(ctx, budget)
}

// Reset zeroes today's usage immediately (admin-triggered).
func (t *Tracker) Reset(ctx context.Context) error {
	budget, err := t.load(ctx)
	if err != nil {
		return err
	}

	budget.UsedGB = 0
	budget.LastReset = t.now().UTC()
	return t.save(ctx, budget)
}

// ResetIfNewDay zeroes the used counter when the stored reset date differs
// from today. Idempotent under repeated calls within the same day.
func (t *Tracker) ResetIfNewDay(ctx context.Context) error {
	budget, err := t.load(ctx)
	if err != nil {
		return err
	}

	now := t.now().UTC()
	if sameDay(budget.LastReset, now) {
		return nil
	}

	budget.UsedGB = 0
	budget.LastReset = now
	return t.save(ctx, budget)
}

func (t *Tracker) load(ctx context.Context) (models.BandwidthBudget, error) {
	raw, err := t.settings.Get(ctx, budgetKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.BandwidthBudget{
				LimitGB:   t.limitGB,
				LastReset: t.now().UTC(),
			}, nil
		}
		return models.BandwidthBudget{}, fmt.Errorf("load bandwidth budget: %w", err)
	}

	var budget models.BandwidthBudget
	if err := json.Unmarshal([]byte(raw), &budget); err != nil {
		return models.BandwidthBudget{}, fmt.Errorf("decode bandwidth budget: %w", err)
	}

	if budget.LimitGB <= 0 {
		budget.LimitGB = t.limitGB
	}

	return budget, nil
}

func (t *Tracker) save(ctx context.Context, budget models.BandwidthBudget) error {
	raw, err := json.Marshal(budget)
	if err != nil {
		return fmt.Errorf("encode bandwidth budget: %w", err)
	}

	if err := t.settings.Set(ctx, budgetKey, string(raw)); err != nil {
		return fmt.Errorf("save bandwidth budget: %w", err)
	}

	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func nextMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
