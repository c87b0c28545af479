package price

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/metrics"
)

// ComputeCurrentPrice aggregates the feeds of an approved asset. When includeMovingAverage
// is set and the asset uses its moving average, the moving average is an extra input.
func (e *Engine) ComputeCurrentPrice(ctx context.Context, asset common.Address, includeMovingAverage bool) (CurrentPrice, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, err := e.approvedAsset(asset)
	if err != nil {
		return CurrentPrice{}, err
	}
	return e.computeCurrentPrice(ctx, asset, a, includeMovingAverage, e.clock.Now())
}

// computeCurrentPrice queries every feed of a and reduces the results.
//
// A feed that fails or returns zero leaves a zero in its slot and clears
// AllFeedsSucceeded. A stale moving average is fatal.
func (e *Engine) computeCurrentPrice(ctx context.Context, addr common.Address, a *Asset, includeMovingAverage bool, now uint64) (CurrentPrice, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation("engine", time.Since(start))
	}()

	withMA := includeMovingAverage && a.UseMovingAverage
	n := len(a.Feeds)
	if withMA {
		n++
	}
	prices := make([]math.Uint, 0, n)
	allSucceeded := true

	for i, feed := range a.Feeds {
		p, err := e.submodules.QueryFeed(ctx, feed.Target, feed.Selector, adapter.FeedRequest{
			Asset:          addr,
			OutputDecimals: e.decimals,
			Params:         feed.Params,
			Timestamp:      now,
		})
		if err != nil || isZeroUint(p) {
			allSucceeded = false
			metrics.RecordFeedFailure(addr.Hex(), string(feed.Target))
			e.logger.Warn("Price feed failed",
				"asset", addr.Hex(),
				"feed", i,
				"submodule", string(feed.Target),
				"selector", feed.Selector,
				"error", err)
			p = math.ZeroUint()
		}
		prices = append(prices, p)
	}

	if withMA {
		if a.LastObservationTime+uint64(a.MovingAverageDuration) <= now {
			return CurrentPrice{}, ErrMovingAverageStale.Wrapf("%s: last observation at %d, duration %d", addr.Hex(), a.LastObservationTime, a.MovingAverageDuration)
		}
		prices = append(prices, a.movingAverage())
	}

	if len(prices) == 1 {
		if prices[0].IsZero() {
			return CurrentPrice{}, ErrPriceZero.Wrap(addr.Hex())
		}
		return CurrentPrice{Price: prices[0], Timestamp: now, AllFeedsSucceeded: allSucceeded}, nil
	}

	if a.Strategy == nil {
		return CurrentPrice{}, ErrStrategyInsufficient.Wrapf("%s: %d price inputs", addr.Hex(), len(prices))
	}
	p, err := e.submodules.Reduce(ctx, a.Strategy.Target, a.Strategy.Selector, prices, a.Strategy.Params)
	if err != nil {
		return CurrentPrice{}, errorsmod.Wrapf(ErrStrategyExecutionFailed, "%s: %s.%s: %v", addr.Hex(), a.Strategy.Target, a.Strategy.Selector, err)
	}
	if isZeroUint(p) {
		return CurrentPrice{}, ErrPriceZero.Wrap(addr.Hex())
	}
	return CurrentPrice{Price: p, Timestamp: now, AllFeedsSucceeded: allSucceeded}, nil
}
