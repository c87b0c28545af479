// Package price implements the multi-asset price engine: the asset registry, feed
// aggregation, the observation ring buffer and the price query surface.
//
// Mutating operations are serialized by a single writer lock and commit their changes
// to the store in one batch, so each either fully applies or leaves state untouched.
// Reads share the lock and never write.
package price

import (
	"context"
	"sync"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/metrics"
)

// MaxDecimals bounds the output decimals.
const MaxDecimals = 38

// Options configures an Engine. DB, Submodules, Contracts, Authorizer and a positive
// ObservationFrequency are required.
type Options struct {
	DB                   dbm.DB
	Submodules           *adapter.Registry
	Decimals             uint8
	ObservationFrequency uint32
	Clock                Clock
	Authorizer           Authorizer
	Contracts            ContractChecker
	Events               EventSink
	Logger               *logging.Logger
}

// Engine is the price engine.
type Engine struct {
	mu sync.RWMutex

	store      *Store
	submodules *adapter.Registry
	clock      Clock
	auth       Authorizer
	contracts  ContractChecker
	events     EventSink
	logger     *logging.Logger

	decimals  uint8
	frequency uint32
}

// New creates an engine over opts.DB. A database written by an engine with different
// decimals or observation frequency is rejected.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.DB == nil:
		return nil, ErrInvalidOptions.Wrap("db is required")
	case opts.Submodules == nil:
		return nil, ErrInvalidOptions.Wrap("submodule registry is required")
	case opts.Authorizer == nil:
		return nil, ErrInvalidOptions.Wrap("authorizer is required")
	case opts.Contracts == nil:
		return nil, ErrInvalidOptions.Wrap("contract checker is required")
	case opts.ObservationFrequency == 0:
		return nil, ErrObservationFrequencyInvalid.Wrap("must be positive")
	case opts.Decimals > MaxDecimals:
		return nil, ErrDecimalsInvalid.Wrapf("%d exceeds %d", opts.Decimals, MaxDecimals)
	}

	e := &Engine{
		store:      NewStore(opts.DB),
		submodules: opts.Submodules,
		clock:      opts.Clock,
		auth:       opts.Authorizer,
		contracts:  opts.Contracts,
		events:     opts.Events,
		logger:     opts.Logger,
		decimals:   opts.Decimals,
		frequency:  opts.ObservationFrequency,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.events == nil {
		e.events = discardSink{}
	}
	if e.logger == nil {
		e.logger = logging.NewNoopLogger()
	}

	decimals, frequency, found, err := e.store.Params()
	if err != nil {
		return nil, err
	}
	if found {
		if decimals != opts.Decimals || frequency != opts.ObservationFrequency {
			return nil, ErrInvalidOptions.Wrapf("store was created with decimals %d and frequency %d", decimals, frequency)
		}
	} else {
		w := e.store.Writer()
		if err := w.SetParams(opts.Decimals, opts.ObservationFrequency); err != nil {
			return nil, err
		}
		if err := w.Commit(); err != nil {
			return nil, err
		}
	}

	list, err := e.store.AssetList()
	if err != nil {
		return nil, err
	}
	metrics.SetApprovedAssets(len(list))
	return e, nil
}

// Decimals returns the fixed-point scale of every returned price.
func (e *Engine) Decimals() uint8 {
	return e.decimals
}

// ObservationFrequency returns the expected seconds between stored observations.
func (e *Engine) ObservationFrequency() uint32 {
	return e.frequency
}

// Submodules returns the registry feeds and strategies are dispatched through.
func (e *Engine) Submodules() *adapter.Registry {
	return e.submodules
}

func (e *Engine) authorize(ctx context.Context, caller common.Address, action Action, asset common.Address) error {
	if !e.auth.Authorize(ctx, caller, action, asset) {
		return ErrNotPermitted.Wrapf("%s may not %s %s", caller.Hex(), action, asset.Hex())
	}
	return nil
}

// approvedAsset loads addr and fails unless it is approved.
func (e *Engine) approvedAsset(addr common.Address) (*Asset, error) {
	a, err := e.store.Asset(addr)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.Approved {
		return nil, ErrAssetNotApproved.Wrap(addr.Hex())
	}
	return a, nil
}

// failed records a failed mutating operation and returns err unchanged.
func (e *Engine) failed(operation string, err error) error {
	metrics.RecordEngineError(operation, ErrorCode(err))
	e.logger.Warn("Engine operation failed", "operation", operation, "error", err)
	return err
}
