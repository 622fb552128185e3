package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/LegionofMany/blockpages-risk/internal/audit"
	"github.com/LegionofMany/blockpages-risk/internal/metrics"
	"github.com/LegionofMany/blockpages-risk/internal/traces"
	"github.com/LegionofMany/blockpages-risk/internal/wallets"
)

// EventPublisher receives risk-change events for fan-out to live
// consumers (admin dashboards). Implementations must not block.
type EventPublisher interface {
	Publish(eventType string, data map[string]any)
}

// Event types published to live consumers. Override mutations always
// publish; EventHighRisk fires when a wallet's authoritative assessment
// lands in the red or black band.
const (
	EventOverrideSet     = "risk_override_set"
	EventOverrideCleared = "risk_override_cleared"
	EventHighRisk        = "high_risk_wallet"
)

// DefaultListMinScore is the threshold for the admin high-risk listing.
const DefaultListMinScore = 60

// MaxListPageSize caps the high-risk listing page.
const MaxListPageSize = 100

// WalletRisk is one row of the admin high-risk listing: the assessment
// plus the wallet context fields admins triage with.
type WalletRisk struct {
	Chain       string   `json:"chain"`
	Address     string   `json:"address"`
	Score       int      `json:"riskScore"`
	Category    Category `json:"riskCategory"`
	Source      Source   `json:"source"`
	Blacklisted bool     `json:"blacklisted"`
	Suspicious  bool     `json:"suspicious"`
	TrustScore  int      `json:"trustScore"`
}

// Service is the public entry point for all risk reads and writes. It
// enforces the precedence order blacklist > override > automated.
type Service struct {
	wallets    wallets.Store
	store      Store
	aggregator *Aggregator
	auditLog   audit.Logger
	events     EventPublisher
	logger     *slog.Logger
}

// NewService creates the risk service.
func NewService(walletStore wallets.Store, store Store, aggregator *Aggregator) *Service {
	return &Service{
		wallets:    walletStore,
		store:      store,
		aggregator: aggregator,
		logger:     slog.Default(),
	}
}

// WithAuditLog sets the audit sink for override mutations.
func (s *Service) WithAuditLog(l audit.Logger) *Service {
	s.auditLog = l
	return s
}

// WithEvents sets the publisher for risk-change events.
func (s *Service) WithEvents(p EventPublisher) *Service {
	s.events = p
	return s
}

// WithLogger sets a custom logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Evaluate returns the authoritative risk assessment for a wallet.
// Unknown wallets are not an error: they produce a default no-signal
// result so read paths never 404 on a wallet that simply has no record.
func (s *Service) Evaluate(ctx context.Context, chain, address string) (*Assessment, error) {
	chain = wallets.NormalizeChain(chain)
	address = wallets.NormalizeAddress(address)

	ctx, span := traces.StartSpan(ctx, "risk.Evaluate", traces.Chain(chain), traces.WalletAddr(address))
	defer span.End()

	w, err := s.wallets.FindOne(ctx, chain, address)
	if errors.Is(err, wallets.ErrNotFound) {
		return &Assessment{
			Chain:       chain,
			Address:     address,
			Score:       MinScore,
			Category:    CategoryGreen,
			Reasons:     []string{"no record for this wallet"},
			Source:      SourceAutomated,
			EvaluatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up wallet: %w", err)
	}

	a, err := s.assess(ctx, w)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.Score(a.Score), traces.Category(string(a.Category)))
	return a, nil
}

// EvaluateAutomated runs the aggregation pipeline ignoring any override.
// Used for the recompute preview on overridden wallets; the blacklist
// short-circuit still applies.
func (s *Service) EvaluateAutomated(ctx context.Context, chain, address string) (*Assessment, error) {
	chain = wallets.NormalizeChain(chain)
	address = wallets.NormalizeAddress(address)

	w, err := s.wallets.FindOne(ctx, chain, address)
	if errors.Is(err, wallets.ErrNotFound) {
		return &Assessment{
			Chain:       chain,
			Address:     address,
			Score:       MinScore,
			Category:    CategoryGreen,
			Reasons:     []string{"no record for this wallet"},
			Source:      SourceAutomated,
			EvaluatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up wallet: %w", err)
	}
	if w.Blacklisted {
		return s.blacklistAssessment(w), nil
	}
	return s.automated(ctx, w), nil
}

// assess applies the precedence chain to a known wallet.
func (s *Service) assess(ctx context.Context, w *wallets.Wallet) (*Assessment, error) {
	// Blacklist precedes everything, including overrides.
	if w.Blacklisted {
		return s.blacklistAssessment(w), nil
	}

	ov, err := s.store.GetOverride(ctx, w.Chain, w.Address)
	if err == nil {
		return s.overridden(ctx, w, ov), nil
	}
	if !errors.Is(err, ErrOverrideNotFound) {
		return nil, fmt.Errorf("look up override: %w", err)
	}

	return s.automated(ctx, w), nil
}

func (s *Service) blacklistAssessment(w *wallets.Wallet) *Assessment {
	return &Assessment{
		Chain:       w.Chain,
		Address:     w.Address,
		Score:       MaxScore,
		Category:    CategoryBlack,
		Reasons:     []string{"wallet is blacklisted"},
		Source:      SourceBlacklist,
		EvaluatedAt: time.Now(),
	}
}

// overridden builds the assessment for a wallet with an active override.
// Reasons stay empty: they describe automated signal contributions, and
// an override is not recomputed on read.
func (s *Service) overridden(ctx context.Context, w *wallets.Wallet, ov *Override) *Assessment {
	score := MinScore
	switch {
	case ov.Score != nil:
		score = Clamp(*ov.Score)
	default:
		// Category-only override: the automated score stays authoritative
		// for the numeric value.
		score, _, _ = s.aggregator.Aggregate(ctx, w)
	}

	category := CategoryForScore(score)
	if ov.Category != nil {
		category = *ov.Category
	}

	return &Assessment{
		Chain:       w.Chain,
		Address:     w.Address,
		Score:       score,
		Category:    category,
		Reasons:     nil,
		Source:      SourceOverride,
		EvaluatedAt: time.Now(),
	}
}

func (s *Service) automated(ctx context.Context, w *wallets.Wallet) *Assessment {
	score, category, reasons := s.aggregator.Aggregate(ctx, w)
	metrics.RiskEvaluationsTotal.WithLabelValues(string(category)).Inc()
	return &Assessment{
		Chain:       w.Chain,
		Address:     w.Address,
		Score:       score,
		Category:    category,
		Reasons:     reasons,
		Source:      SourceAutomated,
		EvaluatedAt: time.Now(),
	}
}

// SetOverride records an admin override. At least one of score/category
// must be present; the wallet must exist. The override write and its
// history entry are atomic; exactly one history entry is appended per
// successful call.
func (s *Service) SetOverride(ctx context.Context, chain, address string, score *int, category *Category, actor string) (*Assessment, error) {
	if score == nil && category == nil {
		return nil, ErrNoFields
	}
	if category != nil && !ValidCategory(*category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, *category)
	}

	chain = wallets.NormalizeChain(chain)
	address = wallets.NormalizeAddress(address)

	ctx, span := traces.StartSpan(ctx, "risk.SetOverride",
		traces.Chain(chain), traces.WalletAddr(address), traces.Actor(actor))
	defer span.End()

	w, err := s.wallets.FindOne(ctx, chain, address)
	if errors.Is(err, wallets.ErrNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up wallet: %w", err)
	}

	ov := &Override{
		Chain:     chain,
		Address:   address,
		Score:     score,
		Category:  category,
		UpdatedBy: actor,
	}
	entry := &HistoryEntry{
		Chain:    chain,
		Address:  address,
		Score:    score,
		Category: category,
		Note:     overrideNote(actor, score, category),
	}

	stored, err := s.store.SetOverride(ctx, ov, entry)
	if err != nil {
		return nil, fmt.Errorf("persist override: %w", err)
	}

	metrics.RiskOverridesTotal.WithLabelValues("set").Inc()
	s.audit(ctx, actor, chain, address, "set", map[string]any{
		"score":    stored.Score,
		"category": stored.Category,
	})

	assessment, err := s.assess(ctx, w)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.Publish(EventOverrideSet, eventData(assessment, actor))
	}
	s.publishHighRisk(assessment)
	return assessment, nil
}

// ClearOverride removes an admin override, returning the wallet to
// automated scoring. Appends exactly one history entry.
func (s *Service) ClearOverride(ctx context.Context, chain, address, actor string) (*Assessment, error) {
	chain = wallets.NormalizeChain(chain)
	address = wallets.NormalizeAddress(address)

	ctx, span := traces.StartSpan(ctx, "risk.ClearOverride",
		traces.Chain(chain), traces.WalletAddr(address), traces.Actor(actor))
	defer span.End()

	w, err := s.wallets.FindOne(ctx, chain, address)
	if errors.Is(err, wallets.ErrNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up wallet: %w", err)
	}

	entry := &HistoryEntry{
		Chain:   chain,
		Address: address,
		Note:    fmt.Sprintf("override cleared by %s, automated scoring restored", actor),
	}
	if err := s.store.ClearOverride(ctx, chain, address, entry); err != nil {
		if errors.Is(err, ErrOverrideNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("clear override: %w", err)
	}

	metrics.RiskOverridesTotal.WithLabelValues("clear").Inc()
	s.audit(ctx, actor, chain, address, "clear", nil)

	assessment, err := s.assess(ctx, w)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.Publish(EventOverrideCleared, eventData(assessment, actor))
	}
	s.publishHighRisk(assessment)
	return assessment, nil
}

// NotifyWalletChanged re-evaluates a wallet after its record changed and
// announces it to live consumers if the new assessment is red or black.
// Best-effort: a failed evaluation is logged, never returned.
func (s *Service) NotifyWalletChanged(ctx context.Context, chain, address string) {
	if s.events == nil {
		return
	}
	assessment, err := s.Evaluate(ctx, chain, address)
	if err != nil {
		s.logger.Warn("skipping wallet change notification", "chain", chain, "address", address, "error", err)
		return
	}
	s.publishHighRisk(assessment)
}

// publishHighRisk emits EventHighRisk for assessments in the red or
// black band.
func (s *Service) publishHighRisk(a *Assessment) {
	if s.events == nil {
		return
	}
	if a.Category != CategoryRed && a.Category != CategoryBlack {
		return
	}
	s.events.Publish(EventHighRisk, map[string]any{
		"chain":        a.Chain,
		"address":      a.Address,
		"riskScore":    a.Score,
		"riskCategory": a.Category,
		"source":       a.Source,
	})
}

// eventData is the payload for override events. Keys mirror the JSON
// names of Assessment so websocket consumers and the REST API agree.
func eventData(a *Assessment, actor string) map[string]any {
	return map[string]any{
		"chain":        a.Chain,
		"address":      a.Address,
		"riskScore":    a.Score,
		"riskCategory": a.Category,
		"actor":        actor,
	}
}

// History returns the audit history for a wallet, oldest first.
func (s *Service) History(ctx context.Context, chain, address string, limit int) ([]*HistoryEntry, error) {
	return s.store.History(ctx, chain, address, limit)
}

// ListHighRisk returns wallets whose authoritative score is at or above
// minScore, sorted score descending, capped at MaxListPageSize.
func (s *Service) ListHighRisk(ctx context.Context, minScore, limit int) ([]*WalletRisk, error) {
	if minScore <= 0 {
		minScore = DefaultListMinScore
	}
	if limit <= 0 || limit > MaxListPageSize {
		limit = MaxListPageSize
	}

	all, err := s.wallets.Find(ctx, wallets.Query{})
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	var result []*WalletRisk
	for _, w := range all {
		assessment, err := s.assess(ctx, w)
		if err != nil {
			s.logger.Warn("skipping wallet in risk listing", "chain", w.Chain, "address", w.Address, "error", err)
			continue
		}
		if assessment.Score < minScore {
			continue
		}
		result = append(result, &WalletRisk{
			Chain:       w.Chain,
			Address:     w.Address,
			Score:       assessment.Score,
			Category:    assessment.Category,
			Source:      assessment.Source,
			Blacklisted: w.Blacklisted,
			Suspicious:  w.Suspicious,
			TrustScore:  w.TrustScore,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Address < result[j].Address
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// audit writes to the external audit sink. The per-wallet history is the
// auditability invariant; the sink is best-effort and never fails the
// mutation.
func (s *Service) audit(ctx context.Context, actor, chain, address, action string, meta map[string]any) {
	if s.auditLog == nil {
		return
	}
	rec := &audit.Record{
		Type:   "risk_override",
		Actor:  actor,
		Target: chain + ":" + address,
		Action: action,
		Meta:   meta,
	}
	if err := s.auditLog.Log(ctx, rec); err != nil {
		s.logger.Error("audit log write failed", "target", rec.Target, "action", action, "error", err)
	}
}

func overrideNote(actor string, score *int, category *Category) string {
	switch {
	case score != nil && category != nil:
		return fmt.Sprintf("manual override by %s: score=%d category=%s", actor, Clamp(*score), *category)
	case score != nil:
		return fmt.Sprintf("manual override by %s: score=%d", actor, Clamp(*score))
	default:
		return fmt.Sprintf("manual override by %s: category=%s", actor, *category)
	}
}
