// Package risk implements wallet risk scoring with admin overrides.
//
// A wallet's score represents risk: 0 = no risk, 100 = maximal risk.
// Signal sources contribute additive deltas which are summed and clamped
// to [0,100] once at the end. Categories are derived from the score via
// ordered thresholds, except for blacklisted wallets which are always
// "black" regardless of any score or override.
package risk

import (
	"context"
	"errors"
	"time"
)

// Category is a discrete risk band.
type Category string

const (
	CategoryGreen  Category = "green"  // score < 40
	CategoryYellow Category = "yellow" // 40 <= score < 70
	CategoryRed    Category = "red"    // score >= 70
	CategoryBlack  Category = "black"  // blacklisted, never reachable by score
)

// Category thresholds, highest risk first. The >=90 band folds into red:
// only the blacklist short-circuit produces black.
const (
	ThresholdCritical = 90
	ThresholdRed      = 70
	ThresholdYellow   = 40
)

// MinScore and MaxScore bound every persisted or returned score.
const (
	MinScore = 0
	MaxScore = 100
)

// Errors returned by the service and stores. Handlers map these to
// distinct HTTP statuses so callers can tell permanent failures from
// retryable ones.
var (
	ErrWalletNotFound   = errors.New("risk: wallet not found")
	ErrOverrideNotFound = errors.New("risk: no override set")
	ErrNoFields         = errors.New("risk: at least one of score or category is required")
	ErrInvalidCategory  = errors.New("risk: invalid category")
)

// ValidCategory reports whether c is one of the known bands.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryGreen, CategoryYellow, CategoryRed, CategoryBlack:
		return true
	}
	return false
}

// CategoryForScore maps a clamped score to its band.
func CategoryForScore(score int) Category {
	switch {
	case score >= ThresholdRed:
		return CategoryRed
	case score >= ThresholdYellow:
		return CategoryYellow
	default:
		return CategoryGreen
	}
}

// Clamp bounds a raw score sum to [MinScore, MaxScore].
func Clamp(score int) int {
	if score > MaxScore {
		return MaxScore
	}
	if score < MinScore {
		return MinScore
	}
	return score
}

// Contribution is the unit of output from a signal source. Deltas are
// additive; reasons are human-readable and carried through to the caller.
type Contribution struct {
	Delta   int      `json:"delta"`
	Reasons []string `json:"reasons,omitempty"`
}

// Source labels which path produced an assessment.
type Source string

const (
	SourceAutomated Source = "automated"
	SourceOverride  Source = "override"
	SourceBlacklist Source = "blacklist"
)

// Assessment is the discriminated result returned by every read path.
// Score and Category always reflect the authoritative value (override
// when present, otherwise automated); Source says which one that is.
type Assessment struct {
	Chain       string    `json:"chain"`
	Address     string    `json:"address"`
	Score       int       `json:"riskScore"`
	Category    Category  `json:"riskCategory"`
	Reasons     []string  `json:"reasons"`
	Source      Source    `json:"source"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Override is an admin-entered score/category pair that takes precedence
// over automated scoring until cleared. Nil fields were never set.
type Override struct {
	Chain     string    `json:"chain"`
	Address   string    `json:"address"`
	Score     *int      `json:"score,omitempty"`
	Category  *Category `json:"category,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HistoryEntry records one score/category change. History is append-only
// and ordered oldest first; entries are immutable once written.
type HistoryEntry struct {
	ID       string    `json:"id"`
	Chain    string    `json:"chain"`
	Address  string    `json:"address"`
	Date     time.Time `json:"date"`
	Score    *int      `json:"riskScore,omitempty"`
	Category *Category `json:"riskCategory,omitempty"`
	Note     string    `json:"note"`
}

// Store persists overrides and history. SetOverride and ClearOverride
// must write the override change and the history entry atomically: a
// partial failure must leave neither persisted.
type Store interface {
	// GetOverride returns the override for the key, or ErrOverrideNotFound.
	GetOverride(ctx context.Context, chain, address string) (*Override, error)
	// SetOverride upserts the override (partial update: nil fields on ov
	// leave the stored value untouched) and appends entry in the same
	// transaction. Returns the resulting override.
	SetOverride(ctx context.Context, ov *Override, entry *HistoryEntry) (*Override, error)
	// ClearOverride removes the override and appends entry atomically.
	// Returns ErrOverrideNotFound if no override was set.
	ClearOverride(ctx context.Context, chain, address string, entry *HistoryEntry) error
	// History returns entries for the key, oldest first. There is no
	// deletion API by design.
	History(ctx context.Context, chain, address string, limit int) ([]*HistoryEntry, error)
}
