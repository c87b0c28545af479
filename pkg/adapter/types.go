package adapter

import (
	"context"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Keycode identifies an installed submodule, e.g. "PRICE.CHAINLINK".
type Keycode string

// Submodule is the common interface of everything that can be installed into a Registry.
type Submodule interface {
	// Keycode returns the identifier the engine uses to address this submodule
	Keycode() Keycode
}

// FeedRequest carries the arguments of a feed call. Timestamp is the engine time in
// unix seconds, zero when the caller has none.
type FeedRequest struct {
	Asset          common.Address
	OutputDecimals uint8
	Params         []byte
	Timestamp      uint64
}

// Feed is a submodule producing a single price estimate for an asset.
// Implementations must not mutate engine state.
type Feed interface {
	Submodule

	// Price runs the method named by selector
	Price(ctx context.Context, selector string, req FeedRequest) (math.Uint, error)
}

// Strategy is a submodule reducing several price estimates to one.
// Zero entries in prices stand for failed feeds.
type Strategy interface {
	Submodule

	// Reduce runs the method named by selector
	Reduce(ctx context.Context, selector string, prices []math.Uint, params []byte) (math.Uint, error)
}

// Factory creates a submodule from its configuration map.
type Factory func(config map[string]interface{}) (Submodule, error)
