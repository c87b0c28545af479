package api

import (
	"cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/price-engine/pkg/price"
)

// PriceResponse is returned by the price endpoints. Price is the raw integer at the
// engine's output decimals; Value is the same amount as a decimal string.
type PriceResponse struct {
	Asset     string `json:"asset"`
	Base      string `json:"base,omitempty"`
	Variant   string `json:"variant,omitempty"`
	MaxAge    uint64 `json:"max_age,omitempty"`
	Price     string `json:"price"`
	Value     string `json:"value"`
	Decimals  uint8  `json:"decimals"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// AssetResponse is returned by /v1/assets/{asset}.
type AssetResponse struct {
	Asset string       `json:"asset"`
	Data  *price.Asset `json:"data"`
}

// AssetsResponse is returned by /v1/assets.
type AssetsResponse struct {
	Assets []string `json:"assets"`
}

// InfoResponse is returned by /v1/info.
type InfoResponse struct {
	Version              string   `json:"version"`
	Decimals             uint8    `json:"decimals"`
	ObservationFrequency uint32   `json:"observation_frequency"`
	Submodules           []string `json:"submodules"`
}

// ErrorResponse carries the message and, for engine errors, the "codespace:code" pair.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// formatValue renders an integer price at decimals as a decimal string.
func formatValue(p math.Uint, decimals uint8) string {
	if p.IsNil() {
		return ""
	}
	return decimal.NewFromBigInt(p.BigInt(), -int32(decimals)).String()
}
