// Package api provides HTTP and WebSocket API endpoints for the price engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/metrics"
	"github.com/StrathCole/price-engine/pkg/price"
	"github.com/StrathCole/price-engine/pkg/version"
)

// Engine is the read surface of the price engine served over HTTP.
type Engine interface {
	Decimals() uint8
	ObservationFrequency() uint32
	Submodules() *adapter.Registry
	GetAssets() ([]common.Address, error)
	GetAssetData(asset common.Address) (*price.Asset, error)
	GetPrice(ctx context.Context, asset common.Address) (math.Uint, error)
	GetPriceIn(ctx context.Context, asset, base common.Address) (math.Uint, error)
	GetPriceWithMaxAge(ctx context.Context, asset common.Address, maxAge uint64) (math.Uint, error)
	GetPriceVariant(ctx context.Context, asset common.Address, variant price.Variant) (math.Uint, uint64, error)
	GetPriceInWithMaxAge(ctx context.Context, asset, base common.Address, maxAge uint64) (math.Uint, error)
	GetPriceInVariant(ctx context.Context, asset, base common.Address, variant price.Variant) (math.Uint, uint64, error)
}

var _ Engine = (*price.Engine)(nil)

// Server represents the HTTP API server.
type Server struct {
	addr         string
	engine       Engine
	mu           sync.Mutex
	server       *http.Server
	stopped      bool
	logger       *logging.Logger
	queryTimeout time.Duration
	wsServer     *WebSocketServer // Optional WebSocket server for streaming
	tlsCert      string
	tlsKey       string
}

// NewServer creates a new HTTP API server. queryTimeout bounds each price computation.
func NewServer(addr string, engine Engine, queryTimeout time.Duration, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:         addr,
		engine:       engine,
		logger:       logger,
		queryTimeout: queryTimeout,
	}
}

// SetWebSocketServer mounts ws at /ws.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// SetTLS serves HTTPS with the given certificate and key files.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCert = certFile
	s.tlsKey = keyFile
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.HandleFunc("GET /v1/assets", s.handleAssets)
	mux.HandleFunc("GET /v1/assets/{asset}", s.handleAsset)
	mux.HandleFunc("GET /v1/prices/{asset}", s.handlePrice)
	mux.HandleFunc("GET /v1/prices/{asset}/in/{base}", s.handlePriceIn)
	if s.wsServer != nil {
		mux.Handle("/ws", s.wsServer)
	}
	return mux
}

// Start starts the HTTP server. It returns nil at once when Stop was already called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	var err error
	if s.tlsCert != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.addr)
		err = srv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.addr)
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server. A Start that has not run yet will not serve.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	return srv.Shutdown(ctx)
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/v1/info", "200", time.Since(start))
	}()

	installed := s.engine.Submodules().Installed()
	submodules := make([]string, len(installed))
	for i, k := range installed {
		submodules[i] = string(k)
	}

	s.sendJSON(w, http.StatusOK, InfoResponse{
		Version:              version.Version,
		Decimals:             s.engine.Decimals(),
		ObservationFrequency: s.engine.ObservationFrequency(),
		Submodules:           submodules,
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest("/v1/assets", strconv.Itoa(status), time.Since(start))
	}()

	assets, err := s.engine.GetAssets()
	if err != nil {
		status = s.sendError(w, err)
		return
	}

	resp := AssetsResponse{Assets: make([]string, len(assets))}
	for i, a := range assets {
		resp.Assets[i] = a.Hex()
	}
	s.sendJSON(w, status, resp)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest("/v1/assets/{asset}", strconv.Itoa(status), time.Since(start))
	}()

	asset, err := parseAddress(r.PathValue("asset"))
	if err != nil {
		status = s.sendError(w, err)
		return
	}

	data, err := s.engine.GetAssetData(asset)
	if err != nil {
		status = s.sendError(w, err)
		return
	}
	s.sendJSON(w, status, AssetResponse{Asset: asset.Hex(), Data: data})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	s.servePrice(w, r, "/v1/prices/{asset}", false)
}

func (s *Server) handlePriceIn(w http.ResponseWriter, r *http.Request) {
	s.servePrice(w, r, "/v1/prices/{asset}/in/{base}", true)
}

// servePrice resolves ?variant= or ?max_age= against the asset, optionally quoted in a base asset.
// Without either parameter the price stored this second is served, or a fresh one is computed.
func (s *Server) servePrice(w http.ResponseWriter, r *http.Request, endpoint string, quoted bool) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(status), time.Since(start))
	}()

	asset, err := parseAddress(r.PathValue("asset"))
	if err != nil {
		status = s.sendError(w, err)
		return
	}
	var base common.Address
	if quoted {
		if base, err = parseAddress(r.PathValue("base")); err != nil {
			status = s.sendError(w, err)
			return
		}
	}

	q, err := parsePriceQuery(r)
	if err != nil {
		status = s.sendError(w, err)
		return
	}

	ctx := r.Context()
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	resp := PriceResponse{Asset: asset.Hex(), Decimals: s.engine.Decimals()}
	if quoted {
		resp.Base = base.Hex()
	}

	var p math.Uint
	switch {
	case q.cached:
		if quoted {
			p, err = s.engine.GetPriceIn(ctx, asset, base)
		} else {
			p, err = s.engine.GetPrice(ctx, asset)
		}
	case q.maxAge != nil:
		resp.MaxAge = *q.maxAge
		if quoted {
			p, err = s.engine.GetPriceInWithMaxAge(ctx, asset, base, *q.maxAge)
		} else {
			p, err = s.engine.GetPriceWithMaxAge(ctx, asset, *q.maxAge)
		}
	default:
		resp.Variant = q.variant.String()
		if quoted {
			p, resp.Timestamp, err = s.engine.GetPriceInVariant(ctx, asset, base, q.variant)
		} else {
			p, resp.Timestamp, err = s.engine.GetPriceVariant(ctx, asset, q.variant)
		}
	}
	if err != nil {
		status = s.sendError(w, err)
		return
	}

	resp.Price = p.String()
	resp.Value = formatValue(p, resp.Decimals)
	s.sendJSON(w, status, resp)
}

type priceQuery struct {
	cached  bool
	variant price.Variant
	maxAge  *uint64
}

func parsePriceQuery(r *http.Request) (priceQuery, error) {
	values := r.URL.Query()
	rawVariant, rawMaxAge := values.Get("variant"), values.Get("max_age")

	switch {
	case rawVariant != "" && rawMaxAge != "":
		return priceQuery{}, ErrConflictingQuery
	case rawVariant == "" && rawMaxAge == "":
		return priceQuery{cached: true}, nil
	}
	if rawMaxAge != "" {
		maxAge, err := strconv.ParseUint(rawMaxAge, 10, 64)
		if err != nil {
			return priceQuery{}, fmt.Errorf("%w: %s", ErrInvalidMaxAge, rawMaxAge)
		}
		return priceQuery{maxAge: &maxAge}, nil
	}

	variant, err := price.ParseVariant(rawVariant)
	if err != nil {
		return priceQuery{}, err
	}
	return priceQuery{variant: variant}, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrInvalidMaxAge),
		errors.Is(err, ErrConflictingQuery),
		errors.Is(err, price.ErrInvalidVariant),
		errors.Is(err, price.ErrMaxAgeInvalid):
		return http.StatusBadRequest
	case errors.Is(err, price.ErrAssetNotApproved):
		return http.StatusNotFound
	case errors.Is(err, price.ErrStateCorrupted),
		errors.Is(err, price.ErrStore):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		// Zero prices, stale averages and failing strategies are transient.
		return http.StatusServiceUnavailable
	}
}

// sendError writes err as an ErrorResponse and returns the status it used.
func (s *Server) sendError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if code := price.ErrorCode(err); strings.HasPrefix(code, price.Codespace+":") {
		resp.Code = code
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", "status", status, "error", err)
	}
	s.sendJSON(w, status, resp)
	return status
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
