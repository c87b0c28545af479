package price

import (
	"context"
	"math/big"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/metrics"
)

// GetPrice returns the last stored price of an approved asset when it was stored in the
// current second, otherwise a freshly aggregated price including the moving average.
// The fresh price is not written back.
func (e *Engine) GetPrice(ctx context.Context, asset common.Address) (math.Uint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	return e.cachedPrice(ctx, asset, now, now)
}

// GetPriceWithMaxAge is GetPrice with the cache accepting observations made at or after
// now - maxAge. maxAge must be positive and less than now.
func (e *Engine) GetPriceWithMaxAge(ctx context.Context, asset common.Address, maxAge uint64) (math.Uint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	if maxAge == 0 || maxAge >= now {
		return math.ZeroUint(), ErrMaxAgeInvalid.Wrapf("%d", maxAge)
	}
	return e.cachedPrice(ctx, asset, now-maxAge, now)
}

// GetPriceVariant returns the price of an approved asset read through variant, with the
// time it refers to.
func (e *Engine) GetPriceVariant(ctx context.Context, asset common.Address, variant Variant) (math.Uint, uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.variantPrice(ctx, asset, variant, e.clock.Now())
}

// GetPriceIn returns the price of asset denominated in base, at the engine's decimals.
func (e *Engine) GetPriceIn(ctx context.Context, asset, base common.Address) (math.Uint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	assetPrice, err := e.cachedPrice(ctx, asset, now, now)
	if err != nil {
		return math.ZeroUint(), err
	}
	basePrice, err := e.cachedPrice(ctx, base, now, now)
	if err != nil {
		return math.ZeroUint(), err
	}
	return e.ratio(assetPrice, basePrice)
}

// GetPriceInWithMaxAge is GetPriceIn with both sides read under the same max age.
func (e *Engine) GetPriceInWithMaxAge(ctx context.Context, asset, base common.Address, maxAge uint64) (math.Uint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	if maxAge == 0 || maxAge >= now {
		return math.ZeroUint(), ErrMaxAgeInvalid.Wrapf("%d", maxAge)
	}
	assetPrice, err := e.cachedPrice(ctx, asset, now-maxAge, now)
	if err != nil {
		return math.ZeroUint(), err
	}
	basePrice, err := e.cachedPrice(ctx, base, now-maxAge, now)
	if err != nil {
		return math.ZeroUint(), err
	}
	return e.ratio(assetPrice, basePrice)
}

// GetPriceInVariant is GetPriceIn with both sides read through variant. The returned
// time is the older of the two.
func (e *Engine) GetPriceInVariant(ctx context.Context, asset, base common.Address, variant Variant) (math.Uint, uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	assetPrice, assetTime, err := e.variantPrice(ctx, asset, variant, now)
	if err != nil {
		return math.ZeroUint(), 0, err
	}
	basePrice, baseTime, err := e.variantPrice(ctx, base, variant, now)
	if err != nil {
		return math.ZeroUint(), 0, err
	}
	p, err := e.ratio(assetPrice, basePrice)
	if err != nil {
		return math.ZeroUint(), 0, err
	}
	return p, min(assetTime, baseTime), nil
}

// cachedPrice serves the last observation when it was made at or after minTime.
func (e *Engine) cachedPrice(ctx context.Context, addr common.Address, minTime, now uint64) (math.Uint, error) {
	a, err := e.approvedAsset(addr)
	if err != nil {
		return math.ZeroUint(), err
	}

	if last, ts := lastPrice(a); ts >= minTime && !isZeroUint(last) {
		metrics.RecordPriceQuery(VariantLast.String(), "cache")
		e.logger.Debug("Serving cached price", "asset", addr.Hex(), "timestamp", ts)
		return last, nil
	}

	current, err := e.computeCurrentPrice(ctx, addr, a, true, now)
	if err != nil {
		return math.ZeroUint(), err
	}
	metrics.RecordPriceQuery(VariantCurrent.String(), "computed")
	return current.Price, nil
}

func (e *Engine) variantPrice(ctx context.Context, addr common.Address, variant Variant, now uint64) (math.Uint, uint64, error) {
	a, err := e.approvedAsset(addr)
	if err != nil {
		return math.ZeroUint(), 0, err
	}

	switch variant {
	case VariantCurrent:
		current, err := e.computeCurrentPrice(ctx, addr, a, true, now)
		if err != nil {
			return math.ZeroUint(), 0, err
		}
		metrics.RecordPriceQuery(variant.String(), "computed")
		return current.Price, current.Timestamp, nil
	case VariantLast:
		p, ts := lastPrice(a)
		if isZeroUint(p) {
			return math.ZeroUint(), 0, ErrPriceZero.Wrapf("%s: no observation stored", addr.Hex())
		}
		metrics.RecordPriceQuery(variant.String(), "stored")
		return p, ts, nil
	case VariantMovingAverage:
		metrics.RecordPriceQuery(variant.String(), "stored")
		return movingAveragePrice(addr, a)
	}
	return math.ZeroUint(), 0, ErrInvalidVariant.Wrapf("%d", variant)
}

// ratio computes a * 10^decimals / b. Both sides must be non-zero.
func (e *Engine) ratio(a, b math.Uint) (math.Uint, error) {
	if isZeroUint(a) {
		return math.ZeroUint(), ErrPriceZero.Wrap("asset price")
	}
	if isZeroUint(b) {
		return math.ZeroUint(), ErrPriceZero.Wrap("base price")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.decimals)), nil)
	out := new(big.Int).Mul(a.BigInt(), scale)
	out.Quo(out, b.BigInt())
	p, err := adapter.ToUint(out)
	if err != nil {
		return math.ZeroUint(), ErrPriceOverflow.Wrapf("%s * 10^%d / %s", a, e.decimals, b)
	}
	return p, nil
}
