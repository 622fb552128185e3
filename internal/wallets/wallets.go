// Package wallets provides the wallet record repository the risk engine
// reads and writes through. Records are keyed by (chain, address), both
// lower-cased; the composite key is unique.
package wallets

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no wallet exists for a (chain, address) key.
var ErrNotFound = errors.New("wallets: wallet not found")

// KYC statuses recognised by the risk engine. Anything else is treated
// as "no KYC signal".
const (
	KYCVerified = "verified"
	KYCPending  = "pending"
	KYCNone     = "none"
)

// Flag is a single community report against a wallet.
type Flag struct {
	Reporter  string    `json:"reporter,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Wallet is the stored wallet record. The risk profile fields
// (overrides, history) live in their own tables; everything the signal
// sources read comes from here.
type Wallet struct {
	Address     string    `json:"address"`
	Chain       string    `json:"chain"`
	Flags       []Flag    `json:"flags,omitempty"`
	Suspicious  bool      `json:"suspicious"`
	Blacklisted bool      `json:"blacklisted"`
	TxCount     int64     `json:"txCount"`
	KYCStatus   string    `json:"kycStatus"`
	TrustScore  int       `json:"trustScore"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Key returns the normalized composite key for this wallet.
func (w *Wallet) Key() string {
	return NormalizeChain(w.Chain) + ":" + NormalizeAddress(w.Address)
}

// FlagCount returns the number of reports filed against the wallet.
func (w *Wallet) FlagCount() int {
	return len(w.Flags)
}

// NormalizeAddress lower-cases and trims an address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeChain lower-cases and trims a chain name.
func NormalizeChain(chain string) string {
	return strings.ToLower(strings.TrimSpace(chain))
}

// Query filters wallet listings.
type Query struct {
	Chain       string
	Blacklisted *bool
	Suspicious  *bool
	Limit       int
}

// Store is the wallet repository contract. Implementations must treat
// (chain, address) case-insensitively.
type Store interface {
	// FindOne returns the wallet for the key, or ErrNotFound.
	FindOne(ctx context.Context, chain, address string) (*Wallet, error)
	// Find lists wallets matching the query.
	Find(ctx context.Context, q Query) ([]*Wallet, error)
	// Upsert creates or replaces a wallet record.
	Upsert(ctx context.Context, w *Wallet) error
	// Update applies fn to the stored record and persists the result.
	// Returns ErrNotFound if the wallet does not exist.
	Update(ctx context.Context, chain, address string, fn func(*Wallet) error) error
}
