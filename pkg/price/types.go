package price

import (
	"encoding/json"
	"strings"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/StrathCole/price-engine/pkg/adapter"
)

// Component references a method on an installed submodule together with its parameters.
type Component struct {
	Target   adapter.Keycode `json:"target"`
	Selector string          `json:"selector"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Hash identifies a component by target, selector and params.
func (c Component) Hash() common.Hash {
	return crypto.Keccak256Hash([]byte(c.Target), []byte{0}, []byte(c.Selector), []byte{0}, c.Params)
}

// Asset is the configuration and observation state of one asset.
//
// Observations is a ring buffer of NumObservations slots. NextObsIndex is the slot
// written by the next store; the slot before it holds the most recent observation.
// When StoreMovingAverage is false the buffer has a single slot used as a cache and
// CumulativeObs stays zero.
type Asset struct {
	Approved              bool        `json:"approved"`
	StoreMovingAverage    bool        `json:"store_moving_average"`
	UseMovingAverage      bool        `json:"use_moving_average"`
	MovingAverageDuration uint32      `json:"moving_average_duration"`
	NextObsIndex          uint16      `json:"next_obs_index"`
	NumObservations       uint16      `json:"num_observations"`
	LastObservationTime   uint64      `json:"last_observation_time"`
	CumulativeObs         math.Uint   `json:"cumulative_obs"`
	Observations          []math.Uint `json:"observations"`
	Strategy              *Component  `json:"strategy,omitempty"`
	Feeds                 []Component `json:"feeds"`
}

// inputCount is the number of prices handed to the strategy.
func (a *Asset) inputCount() int {
	n := len(a.Feeds)
	if a.UseMovingAverage {
		n++
	}
	return n
}

// lastIndex is the slot holding the most recent observation.
func (a *Asset) lastIndex() int {
	num := int(a.NumObservations)
	return (int(a.NextObsIndex) + num - 1) % num
}

func (a *Asset) movingAverage() math.Uint {
	return a.CumulativeObs.Quo(math.NewUint(uint64(a.NumObservations)))
}

func (a *Asset) clone() *Asset {
	out := *a
	out.Observations = append([]math.Uint(nil), a.Observations...)
	out.Feeds = append([]Component(nil), a.Feeds...)
	if a.Strategy != nil {
		s := *a.Strategy
		out.Strategy = &s
	}
	return &out
}

// MovingAverageConfig carries the arguments of a moving-average (re)configuration.
// Observations seeds the ring buffer, oldest first.
type MovingAverageConfig struct {
	StoreMovingAverage    bool
	MovingAverageDuration uint32
	LastObservationTime   uint64
	Observations          []math.Uint
}

// AddAssetParams carries the arguments of AddAsset.
type AddAssetParams struct {
	Asset            common.Address
	UseMovingAverage bool
	MovingAverage    MovingAverageConfig
	Strategy         *Component
	Feeds            []Component
}

// CurrentPrice is the result of an aggregation.
type CurrentPrice struct {
	Price             math.Uint
	Timestamp         uint64
	AllFeedsSucceeded bool
}

// Variant selects the read path of a price query.
type Variant uint8

// Price variants.
const (
	VariantCurrent Variant = iota
	VariantLast
	VariantMovingAverage
)

func (v Variant) String() string {
	switch v {
	case VariantCurrent:
		return "current"
	case VariantLast:
		return "last"
	case VariantMovingAverage:
		return "moving_average"
	}
	return "unknown"
}

// ParseVariant parses "current", "last" or "moving_average".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "current", "":
		return VariantCurrent, nil
	case "last":
		return VariantLast, nil
	case "moving_average", "movingaverage", "ma":
		return VariantMovingAverage, nil
	}
	return 0, ErrInvalidVariant.Wrapf("%q", s)
}
