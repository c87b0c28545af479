// Package univ2 prices an asset from the reserves of a Uniswap V2 style pool.
package univ2

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/logging"
)

// Keycode is the keycode the pool feed is installed under.
const Keycode adapter.Keycode = "PRICE.UNIV2"

// SelectorTokenPrice prices the asset in units of the pool's other token.
const SelectorTokenPrice = "getTokenPrice"

// maxTokenDecimals bounds token decimals read from chain.
const maxTokenDecimals = 38

// Uniswap V2 pair ABI (getReserves, token0, token1) plus ERC20 decimals.
const pairABIJSON = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[
		{"internalType":"uint112","name":"reserve0","type":"uint112"},
		{"internalType":"uint112","name":"reserve1","type":"uint112"},
		{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}
	],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

func init() {
	adapter.Register(Keycode, New)
}

// Params configures getTokenPrice.
type Params struct {
	Pool common.Address `json:"pool"`
}

// Reserves holds the pair reserves.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Feed reads pool reserves over an ethereum.ContractCaller.
type Feed struct {
	caller  ethereum.ContractCaller
	pairABI abi.ABI
	logger  *logging.Logger
}

var _ adapter.Feed = (*Feed)(nil)

// New creates the pool feed from config. It accepts either a ready "client"
// (an ethereum.ContractCaller) or an "rpc_url" to dial.
func New(config map[string]interface{}) (adapter.Submodule, error) {
	logger := adapter.LoggerFromConfig(config).With("submodule", string(Keycode))

	if caller, ok := config["client"].(ethereum.ContractCaller); ok {
		return NewWithCaller(caller, logger)
	}

	rpcURL, ok := config["rpc_url"].(string)
	if !ok || rpcURL == "" {
		return nil, ErrRPCURLRequired
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewWithCaller(client, logger)
}

// NewWithCaller creates the pool feed over an existing contract caller.
func NewWithCaller(caller ethereum.ContractCaller, logger *logging.Logger) (*Feed, error) {
	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Feed{caller: caller, pairABI: pairABI, logger: logger}, nil
}

// Keycode implements adapter.Submodule.
func (f *Feed) Keycode() adapter.Keycode {
	return Keycode
}

// Price implements adapter.Feed. The result is the spot price of req.Asset quoted in the
// other pool token at req.OutputDecimals.
func (f *Feed) Price(ctx context.Context, selector string, req adapter.FeedRequest) (math.Uint, error) {
	if selector != SelectorTokenPrice {
		return math.ZeroUint(), fmt.Errorf("%w: %s", adapter.ErrUnknownSelector, selector)
	}

	var p Params
	if err := adapter.DecodeParams(req.Params, &p); err != nil {
		return math.ZeroUint(), err
	}
	if p.Pool == (common.Address{}) {
		return math.ZeroUint(), fmt.Errorf("%w", ErrPoolAddressRequired)
	}

	token0, err := f.address(ctx, p.Pool, "token0")
	if err != nil {
		return math.ZeroUint(), err
	}
	token1, err := f.address(ctx, p.Pool, "token1")
	if err != nil {
		return math.ZeroUint(), err
	}

	reserves, err := f.getReserves(ctx, p.Pool)
	if err != nil {
		return math.ZeroUint(), err
	}

	var (
		assetReserve, quoteReserve *big.Int
		quoteToken                 common.Address
	)
	switch req.Asset {
	case token0:
		assetReserve, quoteReserve, quoteToken = reserves.Reserve0, reserves.Reserve1, token1
	case token1:
		assetReserve, quoteReserve, quoteToken = reserves.Reserve1, reserves.Reserve0, token0
	default:
		return math.ZeroUint(), fmt.Errorf("%w: %s not in %s", ErrAssetNotInPool, req.Asset.Hex(), p.Pool.Hex())
	}

	assetDecimals, err := f.decimals(ctx, req.Asset)
	if err != nil {
		return math.ZeroUint(), err
	}
	quoteDecimals, err := f.decimals(ctx, quoteToken)
	if err != nil {
		return math.ZeroUint(), err
	}

	price, err := calculatePrice(assetReserve, quoteReserve, assetDecimals, quoteDecimals, req.OutputDecimals)
	if err != nil {
		return math.ZeroUint(), fmt.Errorf("%w: %s", err, p.Pool.Hex())
	}
	f.logger.Debug("Pool price", "pool", p.Pool.Hex(), "asset", req.Asset.Hex(), "price", price.String())
	return adapter.ToUint(price)
}

// calculatePrice returns quoteReserve/assetReserve adjusted for token decimals and scaled to
// outputDecimals: quote * 10^assetDec * 10^out / (asset * 10^quoteDec).
func calculatePrice(assetReserve, quoteReserve *big.Int, assetDecimals, quoteDecimals, outputDecimals uint8) (*big.Int, error) {
	if assetReserve == nil || quoteReserve == nil || assetReserve.Sign() == 0 || quoteReserve.Sign() == 0 {
		return nil, ErrEmptyReserves
	}
	num := new(big.Int).Mul(quoteReserve, pow10(int64(assetDecimals)+int64(outputDecimals)))
	den := new(big.Int).Mul(assetReserve, pow10(int64(quoteDecimals)))
	return num.Quo(num, den), nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// getReserves calls the getReserves() function on a Uniswap V2 pair contract.
func (f *Feed) getReserves(ctx context.Context, pairAddr common.Address) (*Reserves, error) {
	result, err := f.call(ctx, pairAddr, "getReserves")
	if err != nil {
		return nil, err
	}

	var reserves Reserves
	if err := f.pairABI.UnpackIntoInterface(&reserves, "getReserves", result); err != nil {
		return nil, fmt.Errorf("%w: failed to unpack getReserves result: %v", ErrPoolCallFailed, err)
	}
	return &reserves, nil
}

func (f *Feed) address(ctx context.Context, to common.Address, method string) (common.Address, error) {
	result, err := f.call(ctx, to, method)
	if err != nil {
		return common.Address{}, err
	}
	values, err := f.pairABI.Unpack(method, result)
	if err != nil || len(values) == 0 {
		return common.Address{}, fmt.Errorf("%w: %s.%s: unpack: %v", ErrPoolCallFailed, to.Hex(), method, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s.%s has type %T", ErrPoolCallFailed, to.Hex(), method, values[0])
	}
	return addr, nil
}

func (f *Feed) decimals(ctx context.Context, token common.Address) (uint8, error) {
	result, err := f.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	values, err := f.pairABI.Unpack("decimals", result)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("%w: %s.decimals: unpack: %v", ErrPoolCallFailed, token.Hex(), err)
	}
	d, ok := values[0].(uint8)
	if !ok || d > maxTokenDecimals {
		return 0, fmt.Errorf("%w: %s reports %v", ErrTokenDecimalsInvalid, token.Hex(), values[0])
	}
	return d, nil
}

func (f *Feed) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := f.pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	// nil = latest block
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrPoolCallFailed, to.Hex(), method, err)
	}
	return out, nil
}
