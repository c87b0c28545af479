// Package chainlink reads Chainlink aggregator contracts as price feeds.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/StrathCole/price-engine/pkg/adapter"
)

// Keycode is the keycode the Chainlink feed is installed under.
const Keycode adapter.Keycode = "PRICE.CHAINLINK"

// Selectors served by the Chainlink feed.
const (
	SelectorOneFeed    = "getOneFeedPrice"
	SelectorTwoFeedDiv = "getTwoFeedPriceDiv"
	SelectorTwoFeedMul = "getTwoFeedPriceMul"
)

// AggregatorV3 ABI (decimals and latestRoundData only).
const aggregatorABIJSON = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

func init() {
	adapter.Register(Keycode, New)
}

// OneFeedParams configures getOneFeedPrice.
type OneFeedParams struct {
	Feed            common.Address `json:"feed"`
	UpdateThreshold uint64         `json:"update_threshold"`
}

// TwoFeedParams configures getTwoFeedPriceDiv and getTwoFeedPriceMul.
type TwoFeedParams struct {
	FirstFeed             common.Address `json:"first_feed"`
	FirstUpdateThreshold  uint64         `json:"first_update_threshold"`
	SecondFeed            common.Address `json:"second_feed"`
	SecondUpdateThreshold uint64         `json:"second_update_threshold"`
}

// Feed queries Chainlink AggregatorV3 contracts.
type Feed struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
	now    func() time.Time
}

var _ adapter.Feed = (*Feed)(nil)

// New creates a Chainlink feed from config. It accepts either a ready "client"
// (an ethereum.ContractCaller) or an "rpc_url" to dial.
func New(config map[string]interface{}) (adapter.Submodule, error) {
	if caller, ok := config["client"].(ethereum.ContractCaller); ok {
		return NewWithCaller(caller, nil)
	}

	rpcURL, ok := config["rpc_url"].(string)
	if !ok || rpcURL == "" {
		return nil, ErrRPCURLRequired
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewWithCaller(client, nil)
}

// NewWithCaller creates a Chainlink feed over an existing contract caller.
// Staleness is judged against the request timestamp; now, defaulting to time.Now,
// is used when a request carries none.
func NewWithCaller(caller ethereum.ContractCaller, now func() time.Time) (*Feed, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Feed{caller: caller, abi: parsed, now: now}, nil
}

// Keycode implements adapter.Submodule.
func (f *Feed) Keycode() adapter.Keycode {
	return Keycode
}

// Price implements adapter.Feed.
func (f *Feed) Price(ctx context.Context, selector string, req adapter.FeedRequest) (math.Uint, error) {
	var (
		price *big.Int
		err   error
	)

	switch selector {
	case SelectorOneFeed:
		price, err = f.oneFeedPrice(ctx, req)
	case SelectorTwoFeedDiv:
		price, err = f.twoFeedPrice(ctx, req, true)
	case SelectorTwoFeedMul:
		price, err = f.twoFeedPrice(ctx, req, false)
	default:
		return math.ZeroUint(), fmt.Errorf("%w: %s", adapter.ErrUnknownSelector, selector)
	}
	if err != nil {
		return math.ZeroUint(), err
	}
	return adapter.ToUint(price)
}

func (f *Feed) oneFeedPrice(ctx context.Context, req adapter.FeedRequest) (*big.Int, error) {
	var p OneFeedParams
	if err := adapter.DecodeParams(req.Params, &p); err != nil {
		return nil, err
	}
	return f.scaledAnswer(ctx, p.Feed, p.UpdateThreshold, req.OutputDecimals, f.requestTime(req))
}

func (f *Feed) requestTime(req adapter.FeedRequest) int64 {
	if req.Timestamp != 0 {
		return int64(req.Timestamp) //nolint:gosec // unix seconds
	}
	return f.now().Unix()
}

func (f *Feed) twoFeedPrice(ctx context.Context, req adapter.FeedRequest, divide bool) (*big.Int, error) {
	var p TwoFeedParams
	if err := adapter.DecodeParams(req.Params, &p); err != nil {
		return nil, err
	}

	now := f.requestTime(req)
	first, err := f.scaledAnswer(ctx, p.FirstFeed, p.FirstUpdateThreshold, req.OutputDecimals, now)
	if err != nil {
		return nil, fmt.Errorf("first feed: %w", err)
	}
	second, err := f.scaledAnswer(ctx, p.SecondFeed, p.SecondUpdateThreshold, req.OutputDecimals, now)
	if err != nil {
		return nil, fmt.Errorf("second feed: %w", err)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(req.OutputDecimals)), nil)
	if divide {
		if second.Sign() == 0 {
			return nil, fmt.Errorf("%w", ErrDivideByZero)
		}
		return new(big.Int).Quo(new(big.Int).Mul(first, scale), second), nil
	}
	return new(big.Int).Quo(new(big.Int).Mul(first, second), scale), nil
}

// scaledAnswer reads one aggregator, validates the round against now and rescales the
// answer to outputDecimals.
func (f *Feed) scaledAnswer(ctx context.Context, feed common.Address, updateThreshold uint64, outputDecimals uint8, now int64) (*big.Int, error) {
	if feed == (common.Address{}) {
		return nil, fmt.Errorf("%w", ErrFeedAddressRequired)
	}

	decOut, err := f.call(ctx, feed, "decimals")
	if err != nil {
		return nil, err
	}
	feedDecimals, ok := decOut[0].(uint8)
	if !ok {
		return nil, fmt.Errorf("%w: decimals has type %T", ErrFeedCallFailed, decOut[0])
	}

	roundOut, err := f.call(ctx, feed, "latestRoundData")
	if err != nil {
		return nil, err
	}
	roundID, _ := roundOut[0].(*big.Int)
	answer, _ := roundOut[1].(*big.Int)
	updatedAt, _ := roundOut[3].(*big.Int)
	answeredInRound, _ := roundOut[4].(*big.Int)
	if roundID == nil || answer == nil || updatedAt == nil || answeredInRound == nil {
		return nil, fmt.Errorf("%w: malformed latestRoundData", ErrFeedCallFailed)
	}

	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFeedInvalidAnswer, feed.Hex(), answer)
	}
	if answeredInRound.Cmp(roundID) < 0 {
		return nil, fmt.Errorf("%w: %s answered in %s, round %s", ErrFeedRoundIncomplete, feed.Hex(), answeredInRound, roundID)
	}
	if updatedAt.Int64()+int64(updateThreshold) < now { //nolint:gosec // thresholds are seconds
		return nil, fmt.Errorf("%w: %s updated at %s", ErrFeedStale, feed.Hex(), updatedAt)
	}

	return adapter.ScaleDecimals(answer, feedDecimals, outputDecimals), nil
}

func (f *Feed) call(ctx context.Context, to common.Address, method string) ([]interface{}, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrFeedCallFailed, to.Hex(), method, err)
	}

	values, err := f.abi.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("%w: %s.%s: unpack: %v", ErrFeedCallFailed, to.Hex(), method, err)
	}
	return values, nil
}
