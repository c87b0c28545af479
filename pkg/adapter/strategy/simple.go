// Package strategy provides the built-in strategies for reducing several feed prices to one.
//
// Every selector treats zero entries as failed feeds and ignores them. When all inputs
// are zero the result is zero, which the engine reports as a zero price.
package strategy

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"cosmossdk.io/math"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/metrics"
)

// Keycode is the keycode the simple strategy is installed under.
const Keycode adapter.Keycode = "PRICE.SIMPLESTRATEGY"

// Selectors served by the simple strategy.
const (
	SelectorFirst              = "getFirstPrice"
	SelectorAverage            = "getAveragePrice"
	SelectorMedian             = "getMedianPrice"
	SelectorAverageIfDeviation = "getAveragePriceIfDeviation"
	SelectorMedianIfDeviation  = "getMedianPriceIfDeviation"
	SelectorAdaptive           = "getAdaptivePrice"
)

const maxDeviationBps = 10_000

func init() {
	adapter.Register(Keycode, New)
}

// DeviationParams configures the *IfDeviation selectors.
type DeviationParams struct {
	DeviationBps int `json:"deviation_bps"`
}

// Strategy implements the simple reduction selectors.
type Strategy struct {
	logger *logging.Logger
}

var _ adapter.Strategy = (*Strategy)(nil)

// New creates the simple strategy.
func New(config map[string]interface{}) (adapter.Submodule, error) {
	return &Strategy{logger: adapter.LoggerFromConfig(config).With("submodule", string(Keycode))}, nil
}

// Keycode implements adapter.Submodule.
func (s *Strategy) Keycode() adapter.Keycode {
	return Keycode
}

// Reduce implements adapter.Strategy.
func (s *Strategy) Reduce(_ context.Context, selector string, prices []math.Uint, params []byte) (math.Uint, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(selector, time.Since(start))
	}()

	var (
		out *big.Int
		err error
	)
	switch selector {
	case SelectorFirst:
		out, err = firstPrice(prices)
	case SelectorAverage:
		out, err = averagePrice(prices)
	case SelectorMedian:
		out, err = medianPrice(prices)
	case SelectorAverageIfDeviation:
		out, err = ifDeviation(prices, params, 2, average)
	case SelectorMedianIfDeviation:
		out, err = ifDeviation(prices, params, 3, median)
	case SelectorAdaptive:
		out, err = s.adaptivePrice(prices, params)
	default:
		return math.ZeroUint(), fmt.Errorf("%w: %s", adapter.ErrUnknownSelector, selector)
	}
	if err != nil {
		return math.ZeroUint(), err
	}
	return adapter.ToUint(out)
}

func requireCount(prices []math.Uint, minimum int) error {
	if len(prices) < minimum {
		return fmt.Errorf("%w: got %d, need at least %d", adapter.ErrPriceCountInvalid, len(prices), minimum)
	}
	return nil
}

// nonZero returns the non-zero inputs in their original order.
func nonZero(prices []math.Uint) []*big.Int {
	out := make([]*big.Int, 0, len(prices))
	for _, p := range prices {
		if !p.IsZero() {
			out = append(out, p.BigInt())
		}
	}
	return out
}

func firstPrice(prices []math.Uint) (*big.Int, error) {
	if err := requireCount(prices, 1); err != nil {
		return nil, err
	}
	values := nonZero(prices)
	if len(values) == 0 {
		return new(big.Int), nil
	}
	return values[0], nil
}

func averagePrice(prices []math.Uint) (*big.Int, error) {
	if err := requireCount(prices, 2); err != nil {
		return nil, err
	}
	values := nonZero(prices)
	if len(values) == 0 {
		return new(big.Int), nil
	}
	return average(values), nil
}

func medianPrice(prices []math.Uint) (*big.Int, error) {
	if err := requireCount(prices, 3); err != nil {
		return nil, err
	}
	values := nonZero(prices)
	switch {
	case len(values) == 0:
		return new(big.Int), nil
	case len(values) < 3:
		return values[0], nil
	}
	return median(values), nil
}

// ifDeviation returns the aggregate only when some input deviates from it by more than
// the configured threshold, otherwise the first non-zero input.
func ifDeviation(prices []math.Uint, params []byte, minimum int, aggregate func([]*big.Int) *big.Int) (*big.Int, error) {
	if err := requireCount(prices, minimum); err != nil {
		return nil, err
	}
	var p DeviationParams
	if err := adapter.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.DeviationBps <= 0 || p.DeviationBps >= maxDeviationBps {
		return nil, fmt.Errorf("%w: %d", ErrDeviationInvalid, p.DeviationBps)
	}

	values := nonZero(prices)
	switch {
	case len(values) == 0:
		return new(big.Int), nil
	case len(values) < minimum:
		return values[0], nil
	}

	agg := aggregate(values)
	for _, v := range values {
		if deviationBps(v, agg).Cmp(big.NewInt(int64(p.DeviationBps))) > 0 {
			return agg, nil
		}
	}
	return values[0], nil
}

func average(values []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, v := range values {
		sum.Add(sum, v)
	}
	return sum.Quo(sum, big.NewInt(int64(len(values))))
}

func median(values []*big.Int) *big.Int {
	sorted := make([]*big.Int, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	n := len(sorted)
	if n%2 == 0 {
		mid := new(big.Int).Add(sorted[n/2-1], sorted[n/2])
		return mid.Quo(mid, big.NewInt(2))
	}
	return new(big.Int).Set(sorted[n/2])
}

// deviationBps is |value - ref| * 10000 / ref.
func deviationBps(value, ref *big.Int) *big.Int {
	if ref.Sign() == 0 {
		return new(big.Int)
	}
	diff := new(big.Int).Sub(value, ref)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(int64(maxDeviationBps)))
	return diff.Quo(diff, ref)
}
