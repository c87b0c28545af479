package price

import (
	"context"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/metrics"
)

const maxObservations = uint32(^uint16(0))

// AddAsset registers and approves an asset. The configuration must produce a price
// before it is committed.
func (e *Engine) AddAsset(ctx context.Context, caller common.Address, p AddAssetParams) error {
	if err := e.authorize(ctx, caller, ActionConfigure, p.Asset); err != nil {
		return e.failed("add_asset", err)
	}
	return e.mutate("add_asset", func() ([]Event, error) {
		existing, err := e.store.Asset(p.Asset)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Approved {
			return nil, ErrAssetAlreadyApproved.Wrap(p.Asset.Hex())
		}

		isContract, err := e.contracts.IsContract(ctx, p.Asset)
		if err != nil {
			return nil, ErrAssetNotContract.Wrapf("%s: %v", p.Asset.Hex(), err)
		}
		if !isContract {
			return nil, ErrAssetNotContract.Wrap(p.Asset.Hex())
		}

		if p.UseMovingAverage && !p.MovingAverage.StoreMovingAverage {
			return nil, ErrStoreMovingAverageRequired.Wrap(p.Asset.Hex())
		}

		now := e.clock.Now()
		a := &Asset{CumulativeObs: math.ZeroUint()}
		if err := e.setFeeds(a, p.Feeds); err != nil {
			return nil, err
		}
		if err := e.setStrategy(a, p.Strategy, p.UseMovingAverage); err != nil {
			return nil, err
		}
		if err := e.setMovingAverage(a, p.MovingAverage, now); err != nil {
			return nil, err
		}
		if _, err := e.computeCurrentPrice(ctx, p.Asset, a, true, now); err != nil {
			return nil, errorsmod.Wrap(err, "configuration does not produce a price")
		}
		a.Approved = true

		list, err := e.store.AssetList()
		if err != nil {
			return nil, err
		}
		list = append(list, p.Asset)

		w := e.store.Writer()
		if err := w.SetAsset(p.Asset, a); err != nil {
			return nil, err
		}
		if err := w.SetAssetList(list); err != nil {
			return nil, err
		}
		if err := w.Commit(); err != nil {
			return nil, err
		}

		metrics.SetApprovedAssets(len(list))
		e.logger.Info("Asset added",
			"asset", p.Asset.Hex(),
			"feeds", len(a.Feeds),
			"store_moving_average", a.StoreMovingAverage,
			"use_moving_average", a.UseMovingAverage)
		return []Event{{Type: EventAssetAdded, Asset: p.Asset}}, nil
	})
}

// RemoveAsset deletes all state of an approved asset.
func (e *Engine) RemoveAsset(ctx context.Context, caller common.Address, asset common.Address) error {
	if err := e.authorize(ctx, caller, ActionConfigure, asset); err != nil {
		return e.failed("remove_asset", err)
	}
	return e.mutate("remove_asset", func() ([]Event, error) {
		if _, err := e.approvedAsset(asset); err != nil {
			return nil, err
		}

		list, err := e.store.AssetList()
		if err != nil {
			return nil, err
		}
		// swap with the last entry and pop
		for i, a := range list {
			if a == asset {
				list[i] = list[len(list)-1]
				list = list[:len(list)-1]
				break
			}
		}

		w := e.store.Writer()
		w.DeleteAsset(asset)
		if err := w.SetAssetList(list); err != nil {
			return nil, err
		}
		if err := w.Commit(); err != nil {
			return nil, err
		}

		metrics.SetApprovedAssets(len(list))
		e.logger.Info("Asset removed", "asset", asset.Hex())
		return []Event{{Type: EventAssetRemoved, Asset: asset}}, nil
	})
}

// UpdateAssetPriceFeeds replaces the feed list of an approved asset.
func (e *Engine) UpdateAssetPriceFeeds(ctx context.Context, caller common.Address, asset common.Address, feeds []Component) error {
	return e.reconfigure(ctx, caller, asset, "update_feeds", EventAssetPriceFeedsUpdated, func(a *Asset, _ uint64) error {
		if err := e.setFeeds(a, feeds); err != nil {
			return err
		}
		return checkStrategySufficiency(a)
	})
}

// UpdateAssetPriceStrategy replaces the strategy of an approved asset and sets whether
// the moving average is one of its inputs. strategy may be nil when only one input remains.
func (e *Engine) UpdateAssetPriceStrategy(ctx context.Context, caller common.Address, asset common.Address, strategy *Component, useMovingAverage bool) error {
	return e.reconfigure(ctx, caller, asset, "update_strategy", EventAssetPriceStrategyUpdated, func(a *Asset, _ uint64) error {
		if useMovingAverage && !a.StoreMovingAverage {
			return ErrStoreMovingAverageRequired.Wrap(asset.Hex())
		}
		return e.setStrategy(a, strategy, useMovingAverage)
	})
}

// UpdateAssetMovingAverage reconfigures and reseeds the observation buffer of an approved asset.
func (e *Engine) UpdateAssetMovingAverage(ctx context.Context, caller common.Address, asset common.Address, cfg MovingAverageConfig) error {
	return e.reconfigure(ctx, caller, asset, "update_moving_average", EventAssetMovingAverageUpdated, func(a *Asset, now uint64) error {
		if !cfg.StoreMovingAverage && a.UseMovingAverage {
			return ErrStoreMovingAverageRequired.Wrap(asset.Hex())
		}
		return e.setMovingAverage(a, cfg, now)
	})
}

// reconfigure applies update to a copy of an approved asset, checks the result still
// produces a price and commits it.
func (e *Engine) reconfigure(ctx context.Context, caller common.Address, asset common.Address, operation string, event EventType, update func(a *Asset, now uint64) error) error {
	if err := e.authorize(ctx, caller, ActionConfigure, asset); err != nil {
		return e.failed(operation, err)
	}
	return e.mutate(operation, func() ([]Event, error) {
		a, err := e.approvedAsset(asset)
		if err != nil {
			return nil, err
		}

		now := e.clock.Now()
		if err := update(a, now); err != nil {
			return nil, err
		}
		if _, err := e.computeCurrentPrice(ctx, asset, a, true, now); err != nil {
			return nil, errorsmod.Wrap(err, "configuration does not produce a price")
		}

		w := e.store.Writer()
		if err := w.SetAsset(asset, a); err != nil {
			return nil, err
		}
		if err := w.Commit(); err != nil {
			return nil, err
		}

		e.logger.Info("Asset reconfigured", "asset", asset.Hex(), "event", string(event))
		return []Event{{Type: event, Asset: asset}}, nil
	})
}

// mutate runs fn under the writer lock and emits its events once the lock is released.
func (e *Engine) mutate(operation string, fn func() ([]Event, error)) error {
	events, err := func() ([]Event, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return fn()
	}()
	if err != nil {
		return e.failed(operation, err)
	}
	for _, ev := range events {
		e.events.Emit(ev)
	}
	return nil
}

// GetAssets returns the approved assets.
func (e *Engine) GetAssets() ([]common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.AssetList()
}

// GetAssetData returns the full state of an approved asset.
func (e *Engine) GetAssetData(asset common.Address) (*Asset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.approvedAsset(asset)
}

// IsAssetApproved reports whether asset is approved.
func (e *Engine) IsAssetApproved(asset common.Address) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, err := e.store.Asset(asset)
	if err != nil {
		return false, err
	}
	return a != nil && a.Approved, nil
}

func (e *Engine) setFeeds(a *Asset, feeds []Component) error {
	if len(feeds) == 0 {
		return ErrFeedsInsufficient.Wrap("empty feed list")
	}

	out := make([]Component, len(feeds))
	seen := make(map[common.Hash]int, len(feeds))
	for i, f := range feeds {
		if !e.submodules.IsInstalled(f.Target) {
			return ErrSubmoduleNotInstalled.Wrapf("feed %d: %q", i, f.Target)
		}
		c, err := normalizeComponent(f)
		if err != nil {
			return errorsmod.Wrapf(err, "feed %d", i)
		}
		h := c.Hash()
		if j, ok := seen[h]; ok {
			return ErrDuplicateFeed.Wrapf("feeds %d and %d", j, i)
		}
		seen[h] = i
		out[i] = c
	}
	a.Feeds = out
	return nil
}

func (e *Engine) setStrategy(a *Asset, strategy *Component, useMovingAverage bool) error {
	var s *Component
	if strategy != nil {
		if !e.submodules.IsInstalled(strategy.Target) {
			return ErrSubmoduleNotInstalled.Wrapf("strategy: %q", strategy.Target)
		}
		c, err := normalizeComponent(*strategy)
		if err != nil {
			return errorsmod.Wrap(err, "strategy")
		}
		s = &c
	}
	a.Strategy = s
	a.UseMovingAverage = useMovingAverage
	return checkStrategySufficiency(a)
}

// setMovingAverage resets the observation buffer. The seed observations are ordered
// oldest first, so the last one becomes the most recent observation.
func (e *Engine) setMovingAverage(a *Asset, cfg MovingAverageConfig, now uint64) error {
	if cfg.LastObservationTime > now {
		return ErrLastObservationTimeInvalid.Wrapf("%d is after %d", cfg.LastObservationTime, now)
	}

	if !cfg.StoreMovingAverage {
		if len(cfg.Observations) > 1 {
			return ErrObservationCountInvalid.Wrapf("at most one observation without a stored moving average, got %d", len(cfg.Observations))
		}
		slot := math.ZeroUint()
		if len(cfg.Observations) == 1 {
			if isZeroUint(cfg.Observations[0]) {
				return ErrObservationZero.Wrap("observation 0")
			}
			slot = cfg.Observations[0]
		}
		a.StoreMovingAverage = false
		a.MovingAverageDuration = 0
		a.NumObservations = 1
		a.NextObsIndex = 0
		a.Observations = []math.Uint{slot}
		a.CumulativeObs = math.ZeroUint()
		a.LastObservationTime = cfg.LastObservationTime
		return nil
	}

	if cfg.MovingAverageDuration == 0 || cfg.MovingAverageDuration%e.frequency != 0 {
		return ErrMovingAverageDurationInvalid.Wrapf("%d is not a positive multiple of %d", cfg.MovingAverageDuration, e.frequency)
	}
	n := cfg.MovingAverageDuration / e.frequency
	if n < 2 || n > maxObservations {
		return ErrMovingAverageDurationInvalid.Wrapf("%d observations, need 2 to %d", n, maxObservations)
	}
	if len(cfg.Observations) != int(n) {
		return ErrObservationCountInvalid.Wrapf("got %d, want %d", len(cfg.Observations), n)
	}

	sum := new(big.Int)
	observations := make([]math.Uint, n)
	for i, o := range cfg.Observations {
		if isZeroUint(o) {
			return ErrObservationZero.Wrapf("observation %d", i)
		}
		sum.Add(sum, o.BigInt())
		observations[i] = o
	}
	cumulative, err := adapter.ToUint(sum)
	if err != nil {
		return ErrPriceOverflow.Wrap("cumulative observation")
	}

	a.StoreMovingAverage = true
	a.MovingAverageDuration = cfg.MovingAverageDuration
	a.NumObservations = uint16(n)
	a.NextObsIndex = 0
	a.Observations = observations
	a.CumulativeObs = cumulative
	a.LastObservationTime = cfg.LastObservationTime
	return nil
}

func checkStrategySufficiency(a *Asset) error {
	if a.inputCount() > 1 && a.Strategy == nil {
		return ErrStrategyInsufficient.Wrapf("%d price inputs", a.inputCount())
	}
	return nil
}

// normalizeComponent rewrites params in canonical JSON so equal params hash equally.
func normalizeComponent(c Component) (Component, error) {
	if len(c.Params) == 0 {
		c.Params = nil
		return c, nil
	}
	params, err := adapter.EncodeParams(c.Params)
	if err != nil {
		return Component{}, err
	}
	c.Params = params
	return c, nil
}

func isZeroUint(u math.Uint) bool {
	return u.IsNil() || u.IsZero()
}
