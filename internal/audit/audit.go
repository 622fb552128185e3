// Package audit provides the append-only audit sink consumed by admin
// write paths. Every override mutation lands here in addition to the
// per-wallet risk history.
package audit

import (
	"context"
	"time"
)

// Record is a single audit log entry.
type Record struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`   // e.g. "risk_override"
	Actor     string         `json:"actor"`  // admin identity
	Target    string         `json:"target"` // e.g. "eth:0xabc..."
	Action    string         `json:"action"` // e.g. "set", "clear"
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Logger persists audit records. Implementations must never reorder or
// delete entries.
type Logger interface {
	Log(ctx context.Context, rec *Record) error
	Query(ctx context.Context, target string, limit int) ([]*Record, error)
}
