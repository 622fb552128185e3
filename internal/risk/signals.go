package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/LegionofMany/blockpages-risk/internal/circuitbreaker"
	"github.com/LegionofMany/blockpages-risk/internal/wallets"
)

// SignalSource produces a bounded additive contribution toward a wallet's
// risk score. Implementations must be side-effect-free and must never
// fail: missing data is a zero-delta contribution, not an error.
type SignalSource interface {
	Name() string
	Evaluate(ctx context.Context, w *wallets.Wallet) Contribution
}

// Internal signal policy. Ordering of severity is fixed
// (blacklist > suspicious > flags > tx history > KYC).
const (
	deltaBlacklisted = 100
	deltaSuspicious  = 85
	deltaPerFlag     = 3
	deltaNoActivity  = 10 // txCount == 0, new/unused account
	deltaHighVolume  = -40
	deltaMidVolume   = -20
	deltaKYCVerified = -60
	deltaKYCPending  = 10

	highVolumeTxCount = 1000
	midVolumeTxCount  = 100
)

// InternalSignalSource scores a wallet from its own stored record:
// flag count, suspicious/blacklisted markers, transaction history,
// and KYC status.
type InternalSignalSource struct{}

// NewInternalSignalSource creates the internal record-based signal source.
func NewInternalSignalSource() *InternalSignalSource {
	return &InternalSignalSource{}
}

func (s *InternalSignalSource) Name() string { return "internal" }

func (s *InternalSignalSource) Evaluate(ctx context.Context, w *wallets.Wallet) Contribution {
	if w == nil {
		return Contribution{}
	}

	var c Contribution

	// Blacklist is short-circuited upstream to category black; the
	// delta is still reported so the source composes on its own.
	if w.Blacklisted {
		c.Delta += deltaBlacklisted
		c.Reasons = append(c.Reasons, "wallet is blacklisted")
	}

	if w.Suspicious {
		c.Delta += deltaSuspicious
		c.Reasons = append(c.Reasons, "wallet is marked suspicious")
	}

	if n := w.FlagCount(); n > 0 {
		c.Delta += n * deltaPerFlag
		c.Reasons = append(c.Reasons, fmt.Sprintf("%d community flag(s) filed", n))
	}

	switch {
	case w.TxCount == 0:
		c.Delta += deltaNoActivity
		c.Reasons = append(c.Reasons, "no transaction history (new or unused account)")
	case w.TxCount > highVolumeTxCount:
		c.Delta += deltaHighVolume
		c.Reasons = append(c.Reasons, "long transaction history (>1000 transactions)")
	case w.TxCount > midVolumeTxCount:
		c.Delta += deltaMidVolume
		c.Reasons = append(c.Reasons, "established transaction history (>100 transactions)")
	}

	switch w.KYCStatus {
	case wallets.KYCVerified:
		c.Delta += deltaKYCVerified
		c.Reasons = append(c.Reasons, "KYC verified")
	case wallets.KYCPending:
		c.Delta += deltaKYCPending
		c.Reasons = append(c.Reasons, "KYC pending")
	}

	return c
}

// FeedReport is the normalized shape a third-party risk feed produces.
type FeedReport struct {
	ExplorerFlags   int
	ScamDBHits      int
	SocialMentions  int
	VerifiedCharity bool
}

// FeedProvider looks up a wallet in an external threat-intel feed.
// A nil report with nil error means the feed had nothing to say.
type FeedProvider interface {
	Name() string
	Lookup(ctx context.Context, chain, address string) (*FeedReport, error)
}

// Normalization policy applied to provider reports.
const (
	deltaExplorerFlagsMany = 50 // more than one explorer flag
	deltaExplorerFlagsOne  = 20
	deltaScamDBMany        = 70 // more than one scam-database hit
	deltaScamDBOne         = 40
	deltaSocialMentions    = 10
	deltaVerifiedCharity   = -30
)

// DefaultFeedTimeout bounds a single provider lookup. A timeout degrades
// to a zero contribution; it never blocks or fails the evaluation.
const DefaultFeedTimeout = 2 * time.Second

// ExternalSignalSource adapts a FeedProvider into a SignalSource.
// Swapping providers does not touch aggregation logic.
type ExternalSignalSource struct {
	provider FeedProvider
	timeout  time.Duration
	breaker  *circuitbreaker.Breaker
}

// NewExternalSignalSource wraps the given provider. A nil provider
// behaves like the stub feed.
func NewExternalSignalSource(provider FeedProvider) *ExternalSignalSource {
	if provider == nil {
		provider = StubFeed{}
	}
	return &ExternalSignalSource{provider: provider, timeout: DefaultFeedTimeout}
}

// WithTimeout overrides the per-lookup timeout.
func (s *ExternalSignalSource) WithTimeout(d time.Duration) *ExternalSignalSource {
	s.timeout = d
	return s
}

// WithBreaker guards provider lookups with a circuit breaker. While the
// circuit is open, lookups are skipped and the signal degrades to zero.
func (s *ExternalSignalSource) WithBreaker(b *circuitbreaker.Breaker) *ExternalSignalSource {
	s.breaker = b
	return s
}

func (s *ExternalSignalSource) Name() string { return "external" }

func (s *ExternalSignalSource) Evaluate(ctx context.Context, w *wallets.Wallet) Contribution {
	if w == nil {
		return Contribution{}
	}

	name := s.provider.Name()
	if s.breaker != nil && !s.breaker.Allow(name) {
		return Contribution{
			Reasons: []string{fmt.Sprintf("external feed %q suspended after repeated failures, no signal counted", name)},
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.provider.Lookup(lookupCtx, w.Chain, w.Address)
	if err != nil {
		if s.breaker != nil {
			s.breaker.RecordFailure(name)
		}
		return Contribution{
			Reasons: []string{fmt.Sprintf("external feed %q unavailable, no signal counted", name)},
		}
	}
	if s.breaker != nil {
		s.breaker.RecordSuccess(name)
	}
	if report == nil {
		return Contribution{
			Reasons: []string{"external risk feeds reported no data"},
		}
	}

	var c Contribution
	if report.ExplorerFlags > 1 {
		c.Delta += deltaExplorerFlagsMany
		c.Reasons = append(c.Reasons, fmt.Sprintf("%d explorer flags reported", report.ExplorerFlags))
	} else if report.ExplorerFlags == 1 {
		c.Delta += deltaExplorerFlagsOne
		c.Reasons = append(c.Reasons, "1 explorer flag reported")
	}
	if report.ScamDBHits > 1 {
		c.Delta += deltaScamDBMany
		c.Reasons = append(c.Reasons, fmt.Sprintf("%d scam-database hits", report.ScamDBHits))
	} else if report.ScamDBHits == 1 {
		c.Delta += deltaScamDBOne
		c.Reasons = append(c.Reasons, "1 scam-database hit")
	}
	if report.SocialMentions > 0 {
		c.Delta += deltaSocialMentions
		c.Reasons = append(c.Reasons, fmt.Sprintf("%d social media scam mention(s)", report.SocialMentions))
	}
	if report.VerifiedCharity {
		c.Delta += deltaVerifiedCharity
		c.Reasons = append(c.Reasons, "verified charity wallet")
	}
	return c
}

// StubFeed is the placeholder provider used until a real threat-intel
// integration is wired in. It always reports no data.
type StubFeed struct{}

func (StubFeed) Name() string { return "stub" }

func (StubFeed) Lookup(ctx context.Context, chain, address string) (*FeedReport, error) {
	return nil, nil
}
