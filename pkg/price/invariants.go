package price

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CheckInvariants verifies the stored state of every approved asset and the asset list.
func (e *Engine) CheckInvariants() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	list, err := e.store.AssetList()
	if err != nil {
		return err
	}

	seen := make(map[common.Address]struct{}, len(list))
	for _, addr := range list {
		if _, dup := seen[addr]; dup {
			return ErrStateCorrupted.Wrapf("%s listed twice", addr.Hex())
		}
		seen[addr] = struct{}{}

		a, err := e.store.Asset(addr)
		if err != nil {
			return err
		}
		if a == nil || !a.Approved {
			return ErrStateCorrupted.Wrapf("%s listed but not approved", addr.Hex())
		}
		if err := checkAsset(a); err != nil {
			return ErrStateCorrupted.Wrapf("%s: %v", addr.Hex(), err)
		}
	}
	return nil
}

func checkAsset(a *Asset) error {
	if a.NumObservations == 0 || len(a.Observations) != int(a.NumObservations) {
		return ErrObservationCountInvalid.Wrapf("%d slots for %d observations", len(a.Observations), a.NumObservations)
	}
	if a.NextObsIndex >= a.NumObservations {
		return ErrObservationCountInvalid.Wrapf("next index %d out of %d", a.NextObsIndex, a.NumObservations)
	}
	if a.UseMovingAverage && !a.StoreMovingAverage {
		return ErrStoreMovingAverageRequired
	}
	if err := checkStrategySufficiency(a); err != nil {
		return err
	}
	if len(a.Feeds) == 0 {
		return ErrFeedsInsufficient
	}

	hashes := make(map[common.Hash]struct{}, len(a.Feeds))
	for _, f := range a.Feeds {
		h := f.Hash()
		if _, dup := hashes[h]; dup {
			return ErrDuplicateFeed
		}
		hashes[h] = struct{}{}
	}

	if !a.StoreMovingAverage {
		if a.NumObservations != 1 || !a.CumulativeObs.IsZero() {
			return ErrObservationCountInvalid.Wrap("single-slot cache expected")
		}
		return nil
	}

	if a.NumObservations < 2 {
		return ErrObservationCountInvalid.Wrapf("%d observations", a.NumObservations)
	}
	sum := new(big.Int)
	for _, o := range a.Observations {
		sum.Add(sum, o.BigInt())
	}
	if sum.Cmp(a.CumulativeObs.BigInt()) != 0 {
		return ErrStateCorrupted.Wrapf("cumulative %s, sum of observations %s", a.CumulativeObs, sum)
	}
	return nil
}
