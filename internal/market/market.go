// Package market derives signals from price/volume snapshots, independently
// of any chat text.
package market

import (
	"context"
	"sync"
	"time"
)

// Snapshot is one token's 24h market state as reported by a provider.
type Snapshot struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
	MarketCap float64 `json:"market_cap"`
}

type Provider interface {
	Name() string
	Snapshots(ctx context.Context, symbols []string) ([]Snapshot, error)
}

type HealthStatus struct {
	Status     string     `json:"status"`
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`
}

// health is embedded by providers to report the outcome of their last call.
type health struct {
	mu        sync.Mutex
	lastPoll  *time.Time
	lastError *string
	status    string
}

func (h *health) record(err error) {
	now := time.Now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastPoll = &now
	if err != nil {
		msg := err.Error()
		h.lastError = &msg
		h.status = "down"
		return
	}
	h.lastError = nil
	h.status = "ok"
}

func (h *health) Health() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := h.status
	if status == "" {
		status = "unknown"
	}
	return HealthStatus{Status: status, LastPollAt: h.lastPoll, LastError: h.lastError}
}
