// Package fixed provides a constant-price feed for pegged assets and bootstrapping.
package fixed

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"

	"github.com/StrathCole/price-engine/pkg/adapter"
)

// Keycode is the keycode the fixed feed is installed under.
const Keycode adapter.Keycode = "PRICE.FIXED"

// SelectorGetPrice returns the configured price unchanged.
const SelectorGetPrice = "getPrice"

// ErrPriceRequired indicates that the params carry no price.
var ErrPriceRequired = errors.New("fixed price is required")

func init() {
	adapter.Register(Keycode, New)
}

// Params configures one fixed-price feed. Price is an integer already expressed at the engine's output decimals.
type Params struct {
	Price string `json:"price"`
}

// Feed returns constant prices.
type Feed struct{}

var _ adapter.Feed = (*Feed)(nil)

// New creates the fixed feed. It takes no configuration.
func New(_ map[string]interface{}) (adapter.Submodule, error) {
	return &Feed{}, nil
}

// Keycode implements adapter.Submodule.
func (f *Feed) Keycode() adapter.Keycode {
	return Keycode
}

// Price implements adapter.Feed.
func (f *Feed) Price(_ context.Context, selector string, req adapter.FeedRequest) (math.Uint, error) {
	if selector != SelectorGetPrice {
		return math.ZeroUint(), fmt.Errorf("%w: %s", adapter.ErrUnknownSelector, selector)
	}

	var p Params
	if err := adapter.DecodeParams(req.Params, &p); err != nil {
		return math.ZeroUint(), err
	}
	if p.Price == "" {
		return math.ZeroUint(), fmt.Errorf("%w", ErrPriceRequired)
	}

	price, err := math.ParseUint(p.Price)
	if err != nil {
		return math.ZeroUint(), fmt.Errorf("%w: %v", adapter.ErrInvalidParams, err)
	}
	return price, nil
}
