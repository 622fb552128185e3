package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/LegionofMany/blockpages-risk/internal/metrics"
	"github.com/LegionofMany/blockpages-risk/internal/wallets"
)

// Aggregator combines signal source contributions into a single clamped
// score and category. Sources are evaluated concurrently (they are pure
// reads with no ordering dependency) but contributions are summed and
// reasons concatenated in registration order, so output is deterministic
// regardless of completion order.
type Aggregator struct {
	sources []SignalSource
}

// NewAggregator creates an aggregator over the given sources. Source
// order fixes the order of reasons in every result.
func NewAggregator(sources ...SignalSource) *Aggregator {
	return &Aggregator{sources: sources}
}

// Aggregate scores a wallet. The raw sum is clamped to [0,100] exactly
// once at the end, not per signal, so extreme deltas cannot produce
// order-dependent results. Duplicate reasons are preserved: they reflect
// independent contributions.
func (a *Aggregator) Aggregate(ctx context.Context, w *wallets.Wallet) (int, Category, []string) {
	contributions := make([]Contribution, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src SignalSource) {
			defer wg.Done()
			contributions[i] = a.safeEvaluate(ctx, src, w)
		}(i, src)
	}
	wg.Wait()

	total := 0
	var reasons []string
	for _, c := range contributions {
		total += c.Delta
		reasons = append(reasons, c.Reasons...)
	}

	score := Clamp(total)
	return score, CategoryForScore(score), reasons
}

// safeEvaluate shields the aggregation from a misbehaving source: a
// panic becomes a zero contribution with a reason noting the degraded
// source, so one bad signal never blocks the whole computation.
func (a *Aggregator) safeEvaluate(ctx context.Context, src SignalSource, w *wallets.Wallet) (c Contribution) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SignalSourceFailures.WithLabelValues(src.Name()).Inc()
			c = Contribution{
				Reasons: []string{fmt.Sprintf("signal source %q degraded, no signal counted", src.Name())},
			}
		}
	}()
	return src.Evaluate(ctx, w)
}
