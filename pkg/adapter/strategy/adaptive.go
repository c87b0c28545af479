package strategy

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	cosmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/price-engine/pkg/adapter"
)

// Final aggregation modes of the adaptive selector.
const (
	ModeMedian  = "median"
	ModeAverage = "average"
)

const defaultSensitivity = 1.5

// AdaptiveParams configures getAdaptivePrice.
// Sensitivity is the k in |Pi - median| <= k * σ (1.5 = strict, 2.0 = tolerant).
type AdaptiveParams struct {
	Sensitivity float64 `json:"sensitivity"`
	FinalMode   string  `json:"final_mode"`
}

// adaptivePrice filters outliers by their distance from the median in standard deviations,
// then aggregates what is left. With fewer than three non-zero inputs there is nothing to
// filter and the first non-zero input is returned.
func (s *Strategy) adaptivePrice(prices []cosmath.Uint, params []byte) (*big.Int, error) {
	if err := requireCount(prices, 2); err != nil {
		return nil, err
	}

	p := AdaptiveParams{Sensitivity: defaultSensitivity, FinalMode: ModeAverage}
	if len(params) > 0 {
		if err := adapter.DecodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	if p.Sensitivity < 0 {
		return nil, fmt.Errorf("%w: %v", ErrSensitivityInvalid, p.Sensitivity)
	}
	if p.Sensitivity == 0 {
		p.Sensitivity = defaultSensitivity
	}
	switch p.FinalMode {
	case "":
		p.FinalMode = ModeAverage
	case ModeMedian, ModeAverage:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, p.FinalMode)
	}

	values := nonZero(prices)
	switch {
	case len(values) == 0:
		return new(big.Int), nil
	case len(values) < 3:
		return values[0], nil
	}

	decs := make([]decimal.Decimal, len(values))
	for i, v := range values {
		decs[i] = decimal.NewFromBigInt(v, 0)
	}
	sort.Slice(decs, func(i, j int) bool { return decs[i].LessThan(decs[j]) })

	med := decimalMedian(decs)
	stdDev := stdDevAround(decs, med)
	threshold := decimal.NewFromFloat(p.Sensitivity).Mul(stdDev)

	filtered := make([]decimal.Decimal, 0, len(decs))
	for _, d := range decs {
		deviation := d.Sub(med).Abs()
		if deviation.GreaterThan(threshold) {
			s.logger.Debug("Rejecting outlier (adaptive)",
				"price", d.String(),
				"median", med.String(),
				"deviation", deviation.String(),
				"threshold", threshold.String())
			continue
		}
		filtered = append(filtered, d)
	}
	if len(filtered) == 0 {
		s.logger.Warn("All prices rejected by adaptive filter, using all prices",
			"initial_count", len(decs),
			"stddev", stdDev.String())
		filtered = decs
	}

	var final decimal.Decimal
	if p.FinalMode == ModeMedian {
		final = decimalMedian(filtered)
	} else {
		sum := decimal.Zero
		for _, d := range filtered {
			sum = sum.Add(d)
		}
		final = sum.Div(decimal.NewFromInt(int64(len(filtered))))
	}

	return final.Truncate(0).BigInt(), nil
}

// decimalMedian expects sorted input.
func decimalMedian(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n%2 == 0 {
		return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
	}
	return sorted[n/2]
}

// stdDevAround computes σ = sqrt(Σ(Pi - median)² / n).
func stdDevAround(values []decimal.Decimal, med decimal.Decimal) decimal.Decimal {
	sumSquaredDev := decimal.Zero
	for _, v := range values {
		deviation := v.Sub(med)
		sumSquaredDev = sumSquaredDev.Add(deviation.Mul(deviation))
	}
	variance := sumSquaredDev.Div(decimal.NewFromInt(int64(len(values))))

	varianceFloat, _ := variance.Float64()
	return decimal.NewFromFloat(math.Sqrt(varianceFloat))
}
