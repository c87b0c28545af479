package price

import (
	"context"
	"math/big"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/metrics"
)

// StorePrice aggregates the current price of an approved asset without its moving
// average and writes it into the next observation slot.
func (e *Engine) StorePrice(ctx context.Context, caller common.Address, asset common.Address) error {
	if err := e.authorize(ctx, caller, ActionStore, asset); err != nil {
		return e.failed("store_price", err)
	}
	return e.mutate("store_price", func() ([]Event, error) {
		a, err := e.approvedAsset(asset)
		if err != nil {
			return nil, err
		}

		w := e.store.Writer()
		ev, err := e.storePrice(ctx, w, asset, a, e.clock.Now())
		if err != nil {
			return nil, err
		}
		if err := w.Commit(); err != nil {
			return nil, err
		}
		metrics.RecordObservation(asset.Hex(), ev.Timestamp)
		return []Event{ev}, nil
	})
}

// StoreObservations stores a price for every approved asset that keeps a moving
// average. Either all observations are written or none.
func (e *Engine) StoreObservations(ctx context.Context, caller common.Address) error {
	if err := e.authorize(ctx, caller, ActionStore, common.Address{}); err != nil {
		return e.failed("store_observations", err)
	}
	return e.mutate("store_observations", func() ([]Event, error) {
		list, err := e.store.AssetList()
		if err != nil {
			return nil, err
		}

		now := e.clock.Now()
		w := e.store.Writer()
		events := make([]Event, 0, len(list))
		for _, addr := range list {
			a, err := e.approvedAsset(addr)
			if err != nil {
				return nil, err
			}
			if !a.StoreMovingAverage {
				continue
			}
			ev, err := e.storePrice(ctx, w, addr, a, now)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if err := w.Commit(); err != nil {
			return nil, err
		}

		for _, ev := range events {
			metrics.RecordObservation(ev.Asset.Hex(), ev.Timestamp)
		}
		e.logger.Debug("Observations stored", "assets", len(events), "timestamp", now)
		return events, nil
	})
}

// storePrice advances the ring buffer of a and stages the result in w.
func (e *Engine) storePrice(ctx context.Context, w *Writer, addr common.Address, a *Asset, now uint64) (Event, error) {
	current, err := e.computeCurrentPrice(ctx, addr, a, false, now)
	if err != nil {
		return Event{}, err
	}

	idx := a.NextObsIndex
	evicted := a.Observations[idx]
	a.Observations[idx] = current.Price
	a.NextObsIndex = uint16((uint32(idx) + 1) % uint32(a.NumObservations))
	a.LastObservationTime = now

	if a.StoreMovingAverage {
		sum := new(big.Int).Add(a.CumulativeObs.BigInt(), current.Price.BigInt())
		sum.Sub(sum, evicted.BigInt())
		cumulative, err := adapter.ToUint(sum)
		if err != nil {
			return Event{}, ErrPriceOverflow.Wrapf("%s: cumulative observation", addr.Hex())
		}
		a.CumulativeObs = cumulative
	}

	if err := w.SetAsset(addr, a); err != nil {
		return Event{}, err
	}
	e.logger.Debug("Observation stored", "asset", addr.Hex(), "price", current.Price.String(), "slot", idx)
	return Event{Type: EventPriceStored, Asset: addr, Price: current.Price, Timestamp: now}, nil
}

// GetLastPrice returns the most recent observation slot of an approved asset and its time.
// The slot is zero until something has been stored or seeded.
func (e *Engine) GetLastPrice(asset common.Address) (math.Uint, uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, err := e.approvedAsset(asset)
	if err != nil {
		return math.ZeroUint(), 0, err
	}
	p, ts := lastPrice(a)
	return p, ts, nil
}

// GetMovingAveragePrice returns the moving average of an approved asset and the time of
// its last observation.
func (e *Engine) GetMovingAveragePrice(asset common.Address) (math.Uint, uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, err := e.approvedAsset(asset)
	if err != nil {
		return math.ZeroUint(), 0, err
	}
	return movingAveragePrice(asset, a)
}

func lastPrice(a *Asset) (math.Uint, uint64) {
	return a.Observations[a.lastIndex()], a.LastObservationTime
}

func movingAveragePrice(addr common.Address, a *Asset) (math.Uint, uint64, error) {
	if !a.StoreMovingAverage {
		return math.ZeroUint(), 0, ErrMovingAverageNotStored.Wrap(addr.Hex())
	}
	return a.movingAverage(), a.LastObservationTime, nil
}
