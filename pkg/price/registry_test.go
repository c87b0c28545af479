package price

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/adapter/strategy"
)

func TestAddAsset_Validation(t *testing.T) {
	tests := []struct {
		name    string
		caller  common.Address
		params  func() AddAssetParams
		wantErr error
	}{
		{
			name:    "keeper cannot configure",
			caller:  keeper,
			params:  func() AddAssetParams { return singleFeedAsset(weth, "weth") },
			wantErr: ErrNotPermitted,
		},
		{
			name:    "already approved",
			caller:  admin,
			params:  func() AddAssetParams { return singleFeedAsset(ohm, "ohm") },
			wantErr: ErrAssetAlreadyApproved,
		},
		{
			name:    "not a contract",
			caller:  admin,
			params:  func() AddAssetParams { return singleFeedAsset(notContract, "weth") },
			wantErr: ErrAssetNotContract,
		},
		{
			name:   "use without store",
			caller: admin,
			params: func() AddAssetParams {
				p := singleFeedAsset(weth, "weth")
				p.UseMovingAverage = true
				p.Strategy = strategyComponent(strategy.SelectorAverage)
				return p
			},
			wantErr: ErrStoreMovingAverageRequired,
		},
		{
			name:    "no feeds",
			caller:  admin,
			params:  func() AddAssetParams { return AddAssetParams{Asset: weth} },
			wantErr: ErrFeedsInsufficient,
		},
		{
			name:   "feed not installed",
			caller: admin,
			params: func() AddAssetParams {
				return AddAssetParams{Asset: weth, Feeds: []Component{{Target: "PRICE.UNISWAPV3", Selector: "getTokenTWAP"}}}
			},
			wantErr: ErrSubmoduleNotInstalled,
		},
		{
			name:   "strategy not installed",
			caller: admin,
			params: func() AddAssetParams {
				p := singleFeedAsset(weth, "weth")
				p.Strategy = &Component{Target: "PRICE.OTHER", Selector: "getMedianPrice"}
				return p
			},
			wantErr: ErrSubmoduleNotInstalled,
		},
		{
			name:   "duplicate feeds",
			caller: admin,
			params: func() AddAssetParams {
				dup := Component{Target: testKeycode, Selector: "getPrice", Params: json.RawMessage(`{ "id" : "weth" }`)}
				return AddAssetParams{
					Asset:    weth,
					Strategy: strategyComponent(strategy.SelectorAverage),
					Feeds:    []Component{feedComponent("weth"), dup},
				}
			},
			wantErr: ErrDuplicateFeed,
		},
		{
			name:   "two feeds without strategy",
			caller: admin,
			params: func() AddAssetParams {
				return AddAssetParams{Asset: weth, Feeds: []Component{feedComponent("weth"), feedComponent("weth2")}}
			},
			wantErr: ErrStrategyInsufficient,
		},
		{
			name:   "feed plus moving average without strategy",
			caller: admin,
			params: func() AddAssetParams {
				p := movingAverageAsset(weth, "weth", true, testStart, 1, 2, 3)
				p.Strategy = nil
				return p
			},
			wantErr: ErrStrategyInsufficient,
		},
		{
			name:   "duration not a multiple of frequency",
			caller: admin,
			params: func() AddAssetParams {
				p := movingAverageAsset(weth, "weth", false, testStart, 1, 2, 3)
				p.MovingAverage.MovingAverageDuration = 3*testFrequency + 1
				return p
			},
			wantErr: ErrMovingAverageDurationInvalid,
		},
		{
			name:   "single observation window",
			caller: admin,
			params: func() AddAssetParams {
				p := movingAverageAsset(weth, "weth", false, testStart, 1)
				p.MovingAverage.MovingAverageDuration = testFrequency
				return p
			},
			wantErr: ErrMovingAverageDurationInvalid,
		},
		{
			name:    "seed length mismatch",
			caller:  admin,
			params:  func() AddAssetParams { return movingAverageAsset(weth, "weth", false, testStart, 1, 2) },
			wantErr: ErrObservationCountInvalid,
		},
		{
			name:    "zero seed",
			caller:  admin,
			params:  func() AddAssetParams { return movingAverageAsset(weth, "weth", false, testStart, 1, 0, 3) },
			wantErr: ErrObservationZero,
		},
		{
			name:    "future last observation",
			caller:  admin,
			params:  func() AddAssetParams { return movingAverageAsset(weth, "weth", false, testStart+1, 1, 2, 3) },
			wantErr: ErrLastObservationTimeInvalid,
		},
		{
			name:   "cache with two seeds",
			caller: admin,
			params: func() AddAssetParams {
				p := singleFeedAsset(weth, "weth")
				p.MovingAverage.Observations = uints(1, 2)
				return p
			},
			wantErr: ErrObservationCountInvalid,
		},
		{
			name:    "configuration yields zero",
			caller:  admin,
			params:  func() AddAssetParams { return singleFeedAsset(weth, "unpriced") },
			wantErr: ErrPriceZero,
		},
		{
			name:    "stale seeded moving average",
			caller:  admin,
			params:  func() AddAssetParams { return movingAverageAsset(weth, "weth", true, testStart-3*uint64(testFrequency), 1, 2, 3) },
			wantErr: ErrMovingAverageStale,
		},
		{
			name:   "invalid params json",
			caller: admin,
			params: func() AddAssetParams {
				return AddAssetParams{Asset: weth, Feeds: []Component{{Target: testKeycode, Selector: "getPrice", Params: json.RawMessage(`{"id":`)}}}
			},
			wantErr: adapter.ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.feed.set("ohm", 11)
			f.feed.set("weth", 2000)
			f.feed.set("weth2", 2001)
			require.NoError(t, f.engine.AddAsset(context.Background(), admin, singleFeedAsset(ohm, "ohm")))

			err := f.engine.AddAsset(context.Background(), tt.caller, tt.params())
			assert.ErrorIs(t, err, tt.wantErr)

			approved, aerr := f.engine.IsAssetApproved(weth)
			require.NoError(t, aerr)
			assert.False(t, approved, "failed registration must not approve the asset")
			assets, aerr := f.engine.GetAssets()
			require.NoError(t, aerr)
			assert.Equal(t, []common.Address{ohm}, assets)
		})
	}
}

func TestAddAsset_Success(t *testing.T) {
	f := newFixture(t)
	f.feed.set("weth", 2000)
	f.feed.set("weth2", 2010)

	p := movingAverageAsset(weth, "weth", true, testStart, 1990, 2000, 2010)
	p.Feeds = append(p.Feeds, Component{Target: testKeycode, Selector: "getPrice", Params: json.RawMessage(`{ "id": "weth2" }`)})
	require.NoError(t, f.engine.AddAsset(context.Background(), admin, p))

	a, err := f.engine.GetAssetData(weth)
	require.NoError(t, err)
	assert.True(t, a.Approved)
	assert.True(t, a.StoreMovingAverage)
	assert.True(t, a.UseMovingAverage)
	assert.Equal(t, uint16(3), a.NumObservations)
	assert.Equal(t, uint16(0), a.NextObsIndex)
	assert.Equal(t, testStart, a.LastObservationTime)
	assert.Equal(t, "6000", a.CumulativeObs.String())
	require.Len(t, a.Feeds, 2)
	assert.JSONEq(t, `{"id":"weth2"}`, string(a.Feeds[1].Params))
	assert.Equal(t, `{"id":"weth2"}`, string(a.Feeds[1].Params), "params are stored canonically")
	require.NotNil(t, a.Strategy)
	assert.Equal(t, strategy.SelectorAverage, a.Strategy.Selector)

	assets, err := f.engine.GetAssets()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{weth}, assets)

	assert.Equal(t, []Event{{Type: EventAssetAdded, Asset: weth}}, f.emitted())
	assert.NoError(t, f.engine.CheckInvariants())
}

func TestAddAsset_SeededCache(t *testing.T) {
	f := newFixture(t)
	f.feed.set("ohm", 11)

	p := singleFeedAsset(ohm, "ohm")
	p.MovingAverage = MovingAverageConfig{LastObservationTime: testStart, Observations: uints(10)}
	require.NoError(t, f.engine.AddAsset(context.Background(), admin, p))

	price, ts, err := f.engine.GetLastPrice(ohm)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), price.Uint64())
	assert.Equal(t, testStart, ts)

	// the seeded observation was made this second, so it is served from cache
	got, err := f.engine.GetPrice(context.Background(), ohm)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Uint64())
}

func TestRemoveAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"ohm", "weth", "dai"} {
		f.feed.set(id, 1)
	}
	require.NoError(t, f.engine.AddAsset(ctx, admin, singleFeedAsset(ohm, "ohm")))
	require.NoError(t, f.engine.AddAsset(ctx, admin, singleFeedAsset(weth, "weth")))
	require.NoError(t, f.engine.AddAsset(ctx, admin, singleFeedAsset(dai, "dai")))

	assert.ErrorIs(t, f.engine.RemoveAsset(ctx, keeper, ohm), ErrNotPermitted)
	require.NoError(t, f.engine.RemoveAsset(ctx, admin, ohm))

	// last entry moves into the freed slot
	assets, err := f.engine.GetAssets()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{dai, weth}, assets)

	_, err = f.engine.GetAssetData(ohm)
	assert.ErrorIs(t, err, ErrAssetNotApproved)
	_, err = f.engine.GetPrice(ctx, ohm)
	assert.ErrorIs(t, err, ErrAssetNotApproved)
	assert.ErrorIs(t, f.engine.RemoveAsset(ctx, admin, ohm), ErrAssetNotApproved)

	// a removed asset can be registered again from scratch
	require.NoError(t, f.engine.AddAsset(ctx, admin, singleFeedAsset(ohm, "ohm")))
	assets, err = f.engine.GetAssets()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{dai, weth, ohm}, assets)
	assert.NoError(t, f.engine.CheckInvariants())
}

func TestUpdateAssetPriceFeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.feed.set("weth", 2000)
	f.feed.set("weth2", 2100)
	require.NoError(t, f.engine.AddAsset(ctx, admin, singleFeedAsset(weth, "weth")))

	err := f.engine.UpdateAssetPriceFeeds(ctx, admin, weth, []Component{feedComponent("weth"), feedComponent("weth")})
	assert.ErrorIs(t, err, ErrDuplicateFeed)

	err = f.engine.UpdateAssetPriceFeeds(ctx, admin, weth, nil)
	assert.ErrorIs(t, err, ErrFeedsInsufficient)

	err = f.engine.UpdateAssetPriceFeeds(ctx, admin, weth, []Component{feedComponent("weth"), feedComponent("weth2")})
	assert.ErrorIs(t, err, ErrStrategyInsufficient)

	err = f.engine.UpdateAssetPriceFeeds(ctx, admin, weth, []Component{feedComponent("missing")})
	assert.ErrorIs(t, err, ErrPriceZero)

	err = f.engine.UpdateAssetPriceFeeds(ctx, admin, dai, []Component{feedComponent("weth")})
	assert.ErrorIs(t, err, ErrAssetNotApproved)

	require.NoError(t, f.engine.UpdateAssetPriceFeeds(ctx, admin, weth, []Component{feedComponent("weth2")}))
	got, err := f.engine.GetPrice(ctx, weth)
	require.NoError(t, err)
	assert.Equal(t, uint64(2100), got.Uint64())

	events := f.emitted()
	assert.Equal(t, EventAssetPriceFeedsUpdated, events[len(events)-1].Type)
}

func TestUpdateAssetPriceStrategy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.feed.set("weth", 2000)
	f.feed.set("weth2", 2100)

	p := singleFeedAsset(weth, "weth")
	p.Feeds = append(p.Feeds, feedComponent("weth2"))
	p.Strategy = strategyComponent(strategy.SelectorFirst)
	require.NoError(t, f.engine.AddAsset(ctx, admin, p))

	got, err := f.engine.GetPrice(ctx, weth)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), got.Uint64())

	assert.ErrorIs(t, f.engine.UpdateAssetPriceStrategy(ctx, admin, weth, nil, false), ErrStrategyInsufficient)
	assert.ErrorIs(t, f.engine.UpdateAssetPriceStrategy(ctx, admin, weth, strategyComponent(strategy.SelectorAverage), true), ErrStoreMovingAverageRequired)
	assert.ErrorIs(t, f.engine.UpdateAssetPriceStrategy(ctx, admin, weth, strategyComponent(strategy.SelectorMedian), false), ErrStrategyExecutionFailed,
		"median needs three inputs and the configuration check must catch it")

	require.NoError(t, f.engine.UpdateAssetPriceStrategy(ctx, admin, weth, strategyComponent(strategy.SelectorAverage), false))
	got, err = f.engine.GetPrice(ctx, weth)
	require.NoError(t, err)
	assert.Equal(t, uint64(2050), got.Uint64())
}

func TestUpdateAssetMovingAverage_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.feed.set("weth", 2000)
	require.NoError(t, f.engine.AddAsset(ctx, admin, movingAverageAsset(weth, "weth", false, testStart, 10, 20, 30)))

	require.NoError(t, f.engine.UpdateAssetMovingAverage(ctx, admin, weth, MovingAverageConfig{}))
	a, err := f.engine.GetAssetData(weth)
	require.NoError(t, err)
	assert.False(t, a.StoreMovingAverage)
	assert.Equal(t, uint16(1), a.NumObservations)
	require.Len(t, a.Observations, 1)
	assert.True(t, a.Observations[0].IsZero())
	assert.True(t, a.CumulativeObs.IsZero())
	_, _, err = f.engine.GetMovingAveragePrice(weth)
	assert.ErrorIs(t, err, ErrMovingAverageNotStored)

	require.NoError(t, f.engine.UpdateAssetMovingAverage(ctx, admin, weth, MovingAverageConfig{
		StoreMovingAverage:    true,
		MovingAverageDuration: 4 * testFrequency,
		LastObservationTime:   testStart - 60,
		Observations:          uints(5, 6, 7, 8),
	}))
	a, err = f.engine.GetAssetData(weth)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), a.NumObservations)
	assert.Equal(t, "26", a.CumulativeObs.String())
	assert.NoError(t, f.engine.CheckInvariants())

	ma, ts, err := f.engine.GetMovingAveragePrice(weth)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), ma.Uint64(), "26 / 4 truncates")
	assert.Equal(t, testStart-60, ts)

	events := f.emitted()
	assert.Equal(t, EventAssetMovingAverageUpdated, events[len(events)-1].Type)
}

func TestUpdateAssetMovingAverage_InUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.feed.set("weth", 2000)
	require.NoError(t, f.engine.AddAsset(ctx, admin, movingAverageAsset(weth, "weth", true, testStart, 1990, 2000, 2010)))

	err := f.engine.UpdateAssetMovingAverage(ctx, admin, weth, MovingAverageConfig{})
	assert.ErrorIs(t, err, ErrStoreMovingAverageRequired)

	err = f.engine.UpdateAssetMovingAverage(ctx, stranger, weth, MovingAverageConfig{})
	assert.ErrorIs(t, err, ErrNotPermitted)

	a, err := f.engine.GetAssetData(weth)
	require.NoError(t, err)
	assert.True(t, a.StoreMovingAverage, "rejected update leaves state untouched")
	assert.Equal(t, []string{"1990", "2000", "2010"}, uintStrings(a.Observations))
}
