// Package progress is an in-memory publish/subscribe channel for download
// progress events, keyed by download identifier.
package progress

import (
	"sync"
	"time"
)

// Event types delivered over the progress channel.
const (
	EventProgress = "download_progress_update"
	EventComplete = "download_complete"
	EventError    = "download_error"
)

// Event describes one progress update for a download.
type Event struct {
	Type            string    `json:"type"`
	DownloadID      string    `json:"downloadId"`
	Percent         float64   `json:"percent"`
	DownloadedBytes int64     `json:"downloadedBytes"`
	TotalBytes      int64     `json:"totalBytes"`
	Message         string    `json:"message,omitempty"`
	At              time.Time `json:"at"`
}

type subscriber struct {
	id string
	ch chan Event
}

// Hub fans events out to subscribers and keeps the latest event per download
// so pollers can read a snapshot without holding a subscription.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string][]*subscriber
	snapshots map[string]Event
	ttl       time.Duration
}

// NewHub constructs a Hub. Snapshots are retained for the provided ttl after
// their last update so finished downloads eventually disappear.
func NewHub(ttl time.Duration) *Hub {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Hub{
		subs:      make(map[string][]*subscriber),
		snapshots: make(map[string]Event),
		ttl:       ttl,
	}
}

// Publish delivers the event to all subscribers of its download id. Slow
// subscribers are skipped rather than blocking the publisher.
func (h *Hub) Publish(event Event) {
	if event.DownloadID == "" {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	h.mu.Lock()
	h.snapshots[event.DownloadID] = event
	h.gcLocked(time.Now())
	subs := append([]*subscriber(nil), h.subs[event.DownloadID]...)
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe registers for events on the given download id. The returned
// cancel function must be called to release the subscription.
func (h *Hub) Subscribe(downloadID string) (<-chan Event, func()) {
	sub := &subscriber{id: downloadID, ch: make(chan Event, 16)}

	h.mu.Lock()
	h.subs[downloadID] = append(h.subs[downloadID], sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		subs := h.subs[downloadID]
		for i, s := range subs {
			if s == sub {
				h.subs[downloadID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subs[downloadID]) == 0 {
			delete(h.subs, downloadID)
		}
	}

	return sub.ch, cancel
}

// Snapshot returns the most recent event for a download, if any.
func (h *Hub) Snapshot(downloadID string) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event, ok := h.snapshots[downloadID]
	return event, ok
}

func (h *Hub) gcLocked(now time.Time) {
	for id, event := range h.snapshots {
		if now.Sub(event.At) > h.ttl {
			delete(h.snapshots, id)
		}
	}
}
