package price

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"cosmossdk.io/math"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/adapter/strategy"
)

const (
	testKeycode   adapter.Keycode = "TEST.FEED"
	testStart     uint64          = 1_700_000_000
	testFrequency uint32          = 3600
	testDecimals  uint8           = 18
)

var (
	admin       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	keeper      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	ohm         = common.HexToAddress("0x64aa3364F17a4D01c6f1751Fd97C2BD3D7e7f1D5")
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai         = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	notContract = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

var errFeedDown = errors.New("feed down")

// testFeed serves prices keyed by the "id" param.
type testFeed struct {
	mu            sync.Mutex
	prices        map[string]math.Uint
	errs          map[string]error
	calls         int
	lastTimestamp uint64
}

func newTestFeed() *testFeed {
	return &testFeed{prices: make(map[string]math.Uint), errs: make(map[string]error)}
}

func (f *testFeed) Keycode() adapter.Keycode { return testKeycode }

func (f *testFeed) Price(_ context.Context, _ string, req adapter.FeedRequest) (math.Uint, error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := adapter.DecodeParams(req.Params, &p); err != nil {
		return math.ZeroUint(), err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTimestamp = req.Timestamp
	if p.ID == "panic" {
		panic("boom")
	}
	if err := f.errs[p.ID]; err != nil {
		return math.ZeroUint(), err
	}
	if v, ok := f.prices[p.ID]; ok {
		return v, nil
	}
	return math.ZeroUint(), nil
}

func (f *testFeed) set(id string, v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[id] = math.NewUint(v)
}

func (f *testFeed) setUint(id string, v math.Uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[id] = v
}

func (f *testFeed) fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

func (f *testFeed) requestTime() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTimestamp
}

func (f *testFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	engine *Engine
	db     dbm.DB
	clock  *ManualClock
	feed   *testFeed

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:    dbm.NewMemDB(),
		clock: NewManualClock(testStart),
		feed:  newTestFeed(),
	}

	registry := adapter.NewRegistry()
	require.NoError(t, registry.Install(f.feed))
	simple, err := strategy.New(nil)
	require.NoError(t, err)
	require.NoError(t, registry.Install(simple))

	f.engine, err = New(Options{
		DB:                   f.db,
		Submodules:           registry,
		Decimals:             testDecimals,
		ObservationFrequency: testFrequency,
		Clock:                f.clock,
		Authorizer:           NewAllowList([]common.Address{admin}, []common.Address{keeper}),
		Contracts: ContractCheckerFunc(func(_ context.Context, addr common.Address) (bool, error) {
			return addr != notContract, nil
		}),
		Events: EventSinkFunc(func(e Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, e)
		}),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) emitted() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func feedComponent(id string) Component {
	return Component{Target: testKeycode, Selector: "getPrice", Params: json.RawMessage(`{"id":"` + id + `"}`)}
}

func strategyComponent(selector string) *Component {
	return &Component{Target: strategy.Keycode, Selector: selector}
}

func uints(vals ...uint64) []math.Uint {
	out := make([]math.Uint, len(vals))
	for i, v := range vals {
		out[i] = math.NewUint(v)
	}
	return out
}

func uintStrings(vals []math.Uint) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

// singleFeedAsset has one feed and no moving average.
func singleFeedAsset(asset common.Address, id string) AddAssetParams {
	return AddAssetParams{Asset: asset, Feeds: []Component{feedComponent(id)}}
}

// movingAverageAsset stores a three-observation moving average seeded with seeds.
func movingAverageAsset(asset common.Address, id string, useMA bool, lastObs uint64, seeds ...uint64) AddAssetParams {
	p := AddAssetParams{
		Asset:            asset,
		UseMovingAverage: useMA,
		MovingAverage: MovingAverageConfig{
			StoreMovingAverage:    true,
			MovingAverageDuration: 3 * testFrequency,
			LastObservationTime:   lastObs,
			Observations:          uints(seeds...),
		},
		Feeds: []Component{feedComponent(id)},
	}
	if useMA {
		p.Strategy = strategyComponent(strategy.SelectorAverage)
	}
	return p
}

func TestNew_Options(t *testing.T) {
	registry := adapter.NewRegistry()
	contracts := ContractCheckerFunc(func(context.Context, common.Address) (bool, error) { return true, nil })

	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{name: "missing db", opts: Options{Submodules: registry, Authorizer: AllowAll{}, Contracts: contracts, ObservationFrequency: 1}, wantErr: ErrInvalidOptions},
		{name: "missing authorizer", opts: Options{DB: dbm.NewMemDB(), Submodules: registry, Contracts: contracts, ObservationFrequency: 1}, wantErr: ErrInvalidOptions},
		{name: "zero frequency", opts: Options{DB: dbm.NewMemDB(), Submodules: registry, Authorizer: AllowAll{}, Contracts: contracts}, wantErr: ErrObservationFrequencyInvalid},
		{name: "decimals too large", opts: Options{DB: dbm.NewMemDB(), Submodules: registry, Authorizer: AllowAll{}, Contracts: contracts, ObservationFrequency: 1, Decimals: 39}, wantErr: ErrDecimalsInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}
}

func TestNew_ReopensStore(t *testing.T) {
	f := newFixture(t)
	f.feed.set("ohm", 11)
	require.NoError(t, f.engine.AddAsset(context.Background(), admin, singleFeedAsset(ohm, "ohm")))

	reopened, err := New(Options{
		DB:                   f.db,
		Submodules:           f.engine.Submodules(),
		Decimals:             testDecimals,
		ObservationFrequency: testFrequency,
		Clock:                f.clock,
		Authorizer:           AllowAll{},
		Contracts:            ContractCheckerFunc(func(context.Context, common.Address) (bool, error) { return true, nil }),
	})
	require.NoError(t, err)

	approved, err := reopened.IsAssetApproved(ohm)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, testDecimals, reopened.Decimals())
	assert.Equal(t, testFrequency, reopened.ObservationFrequency())

	_, err = New(Options{
		DB:                   f.db,
		Submodules:           f.engine.Submodules(),
		Decimals:             8,
		ObservationFrequency: testFrequency,
		Authorizer:           AllowAll{},
		Contracts:            ContractCheckerFunc(func(context.Context, common.Address) (bool, error) { return true, nil }),
	})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "price:5", ErrorCode(ErrPriceZero.Wrap("x")))
	assert.True(t, IsInvalidConfiguration(ErrDuplicateFeed.Wrap("feeds 0 and 1")))
	assert.False(t, IsInvalidConfiguration(ErrPriceZero))
}
