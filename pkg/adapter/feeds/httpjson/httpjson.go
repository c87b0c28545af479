// Package httpjson reads a decimal quote out of an HTTP JSON endpoint.
package httpjson

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/version"
)

// Keycode is the keycode the HTTP JSON feed is installed under.
const Keycode adapter.Keycode = "PRICE.HTTPJSON"

// SelectorGetPrice fetches url and reads the quote at path.
const SelectorGetPrice = "getPrice"

const maxBodySize = 1 << 20

func init() {
	adapter.Register(Keycode, New)
}

// Params configures one HTTP JSON feed. Path uses gjson syntax, e.g. "data.ethereum.usd".
type Params struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Feed fetches quotes over HTTP.
type Feed struct {
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
	logger  *logging.Logger
}

var _ adapter.Feed = (*Feed)(nil)

// New creates the HTTP JSON feed. Options: timeout (ms), rate_limit (requests per second),
// burst, headers (map of extra request headers) and logger.
func New(config map[string]interface{}) (adapter.Submodule, error) {
	timeout := time.Duration(adapter.IntFromConfig(config, "timeout", 5000)) * time.Millisecond
	limit := adapter.FloatFromConfig(config, "rate_limit", 5)
	burst := adapter.IntFromConfig(config, "burst", 1)

	headers := make(map[string]string)
	if raw, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	f := &Feed{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		headers: headers,
		logger:  adapter.LoggerFromConfig(config).With("submodule", string(Keycode)),
	}
	return f, nil
}

// Keycode implements adapter.Submodule.
func (f *Feed) Keycode() adapter.Keycode {
	return Keycode
}

// Price implements adapter.Feed.
func (f *Feed) Price(ctx context.Context, selector string, req adapter.FeedRequest) (math.Uint, error) {
	if selector != SelectorGetPrice {
		return math.ZeroUint(), fmt.Errorf("%w: %s", adapter.ErrUnknownSelector, selector)
	}

	var p Params
	if err := adapter.DecodeParams(req.Params, &p); err != nil {
		return math.ZeroUint(), err
	}
	if err := p.validate(); err != nil {
		return math.ZeroUint(), err
	}

	value, err := f.fetch(ctx, p)
	if err != nil {
		f.logger.Warn("HTTP feed query failed", "asset", req.Asset.Hex(), "url", p.URL, "error", err)
		return math.ZeroUint(), err
	}

	scaled := value.Shift(int32(req.OutputDecimals)).Truncate(0)
	return adapter.ToUint(scaled.BigInt())
}

func (p Params) validate() error {
	if p.URL == "" {
		return fmt.Errorf("%w", ErrURLRequired)
	}
	if p.Path == "" {
		return fmt.Errorf("%w", ErrPathRequired)
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", adapter.ErrInvalidParams, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	return nil
}

func (f *Feed) fetch(ctx context.Context, p Params) (decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, fmt.Errorf("%w", ErrRateLimitExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}

	result := gjson.GetBytes(body, p.Path)
	if !result.Exists() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrValueNotFound, p.Path)
	}

	// Raw keeps the full precision of JSON numbers; quoted strings come back via String
	raw := result.String()
	if result.Type == gjson.Number {
		raw = result.Raw
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeValue, value)
	}
	return value, nil
}
