package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"usdc-bridge/pkg/telemetry"
	"usdc-bridge/pkg/types"
)

// DefaultBaseURL is the public OKX Web3 API host
const DefaultBaseURL = "https://web3.okx.com"

// Cross-chain endpoint paths
const (
	PathQuote            = "/api/v5/dex/cross-chain/quote"
	PathBuildTx          = "/api/v5/dex/cross-chain/build-tx"
	PathStatus           = "/api/v5/dex/cross-chain/status"
	PathSupportedBridges = "/api/v5/dex/cross-chain/supported/bridges"
	PathSupportedChains  = "/api/v5/dex/cross-chain/supported/chains"
	PathSupportedTokens  = "/api/v5/dex/cross-chain/supported/tokens"
)

const apiPrefix = "/api/v5/dex/cross-chain/"

// APIError is returned when the aggregator answers with a non-zero code
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error %s: %s", e.Code, e.Msg)
}

// Unwrap lets errors.Is match types.ErrAggregator
func (e *APIError) Unwrap() error {
	return types.ErrAggregator
}

// IsRetryable reports whether the error code is one of codes
func (e *APIError) IsRetryable(codes []string) bool {
	for _, c := range codes {
		if c == e.Code {
			return true
		}
	}
	return false
}

// Options configures an OKXClient
type Options struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	RateLimit   float64 // requests per second, <= 0 disables pacing
	MaxRetries  int     // re-sends on HTTP 429 only
	Logger      logrus.FieldLogger
	Metrics     *telemetry.Metrics
}

// OKXClient talks to the OKX Web3 DEX cross-chain API
type OKXClient struct {
	baseURL string
	signer  *Signer
	http    *retryablehttp.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
	metrics *telemetry.Metrics
}

// NewOKXClient creates a new aggregator client
func NewOKXClient(opts Options) *OKXClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = opts.MaxRetries
	rc.CheckRetry = retryOnRateLimit
	// the last response reaches envelope decoding once retries run out
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &OKXClient{
		baseURL: baseURL,
		signer:  NewSigner(opts.Credentials),
		http:    rc,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		metrics: opts.Metrics,
	}
}

// retryOnRateLimit re-sends only requests rejected with HTTP 429
func retryOnRateLimit(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// GetQuote returns the candidate routes for a transfer
func (c *OKXClient) GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.RouteOption, error) {
	var data []quoteData
	if _, err := c.get(ctx, PathQuote, quoteParams(req), &data); err != nil {
		return nil, err
	}

	var routes []types.RouteOption
	for _, d := range data {
		routes = append(routes, d.routes()...)
	}
	return routes, nil
}

// BuildTransaction returns routes together with ready-to-sign transactions
func (c *OKXClient) BuildTransaction(ctx context.Context, req types.QuoteRequest) ([]types.BuildOption, error) {
	var data []buildData
	if _, err := c.get(ctx, PathBuildTx, quoteParams(req), &data); err != nil {
		return nil, err
	}

	options := make([]types.BuildOption, 0, len(data))
	for _, d := range data {
		options = append(options, d.option())
	}
	return options, nil
}

// GetStatus looks up a submitted bridge transaction
func (c *OKXClient) GetStatus(ctx context.Context, chainID, txHash string) (*types.StatusResponse, error) {
	params := []Param{
		{Key: "chainId", Value: chainID},
		{Key: "txHash", Value: txHash},
	}

	var records []types.StatusRecord
	raw, err := c.get(ctx, PathStatus, params, &records)
	if err != nil {
		return nil, err
	}
	return &types.StatusResponse{Records: records, Raw: raw}, nil
}

// ListSupportedBridges returns the supported bridges as received
func (c *OKXClient) ListSupportedBridges(ctx context.Context) (json.RawMessage, error) {
	return c.passthrough(ctx, PathSupportedBridges, nil)
}

// ListSupportedChains returns the supported chains as received
func (c *OKXClient) ListSupportedChains(ctx context.Context) (json.RawMessage, error) {
	return c.passthrough(ctx, PathSupportedChains, nil)
}

// ListSupportedTokens returns the bridgeable tokens of a chain as received
func (c *OKXClient) ListSupportedTokens(ctx context.Context, chainID string) (json.RawMessage, error) {
	return c.passthrough(ctx, PathSupportedTokens, []Param{{Key: "chainId", Value: chainID}})
}

func (c *OKXClient) passthrough(ctx context.Context, path string, params []Param) (json.RawMessage, error) {
	var data json.RawMessage
	if _, err := c.get(ctx, path, params, &data); err != nil {
		return nil, err
	}
	return data, nil
}

type envelope struct {
	Code flexString      `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs a signed GET, checks the envelope and decodes its data into out.
// The full response body is returned.
func (c *OKXClient) get(ctx context.Context, path string, params []Param, out interface{}) (raw json.RawMessage, err error) {
	endpoint := strings.TrimPrefix(path, apiPrefix)
	start := time.Now()
	defer func() {
		outcome := telemetry.OutcomeSuccess
		if err != nil {
			outcome = telemetry.OutcomeError
		}
		c.metrics.ObserveRequest(endpoint, outcome, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}

	query := BuildQueryString(params)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+query, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", types.ErrNetwork, err)
	}
	req.Header = c.signer.Headers(http.MethodGet, path, query)

	c.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"query":    query,
	}).Debug("aggregator request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", types.ErrNetwork, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s response: %v", types.ErrNetwork, endpoint, err)
	}

	c.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
	}).Debugf("aggregator response: %s", body)

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s returned HTTP %d with undecodable body", types.ErrNetwork, endpoint, resp.StatusCode)
	}

	if env.Code != "0" {
		if env.Code == "" && resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s returned HTTP %d", types.ErrNetwork, endpoint, resp.StatusCode)
		}
		return nil, &APIError{Code: string(env.Code), Msg: env.Msg}
	}

	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s data: %v", types.ErrNetwork, endpoint, err)
		}
	}

	return body, nil
}

func quoteParams(req types.QuoteRequest) []Param {
	sort := ""
	if req.Sort != 0 {
		sort = strconv.Itoa(req.Sort)
	}
	return []Param{
		{Key: "fromChainIndex", Value: req.FromChainIndex},
		{Key: "toChainIndex", Value: req.ToChainIndex},
		{Key: "fromChainId", Value: req.FromChainID},
		{Key: "toChainId", Value: req.ToChainID},
		{Key: "fromTokenAddress", Value: req.FromTokenAddress},
		{Key: "toTokenAddress", Value: req.ToTokenAddress},
		{Key: "amount", Value: req.Amount},
		{Key: "slippage", Value: req.Slippage},
		{Key: "userWalletAddress", Value: req.UserWalletAddress},
		{Key: "sort", Value: sort},
		{Key: "feePercent", Value: req.FeePercent},
		{Key: "referrerAddress", Value: req.ReferrerAddress},
	}
}

// flexString accepts both JSON strings and numbers
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("expected string or number")
	}
	*f = flexString(n.String())
	return nil
}

type routerEntry struct {
	ToTokenAmount   flexString   `json:"toTokenAmount"`
	MinimumReceived flexString   `json:"minimumReceived"`
	EstimateTime    flexString   `json:"estimateTime"`
	Router          types.Router `json:"router"`
}

type quoteData struct {
	FromTokenAmount flexString    `json:"fromTokenAmount"`
	ToTokenAmount   flexString    `json:"toTokenAmount"`
	MinimumReceive  flexString    `json:"minimumReceive"`
	EstimateTime    flexString    `json:"estimateTime"`
	Router          *types.Router `json:"router"`
	RouterList      []routerEntry `json:"routerList"`
}

// routes normalizes the routerList and single-router response shapes
func (d quoteData) routes() []types.RouteOption {
	if len(d.RouterList) > 0 {
		routes := make([]types.RouteOption, 0, len(d.RouterList))
		for _, r := range d.RouterList {
			routes = append(routes, types.RouteOption{
				FromTokenAmount: string(d.FromTokenAmount),
				ToTokenAmount:   string(r.ToTokenAmount),
				MinimumReceive:  string(r.MinimumReceived),
				EstimateTime:    string(r.EstimateTime),
				Router:          r.Router,
			})
		}
		return routes
	}

	if d.Router == nil {
		return nil
	}
	return []types.RouteOption{{
		FromTokenAmount: string(d.FromTokenAmount),
		ToTokenAmount:   string(d.ToTokenAmount),
		MinimumReceive:  string(d.MinimumReceive),
		EstimateTime:    string(d.EstimateTime),
		Router:          *d.Router,
	}}
}

type buildData struct {
	FromChainID     flexString      `json:"fromChainId"`
	ToChainID       flexString      `json:"toChainId"`
	FromTokenAmount flexString      `json:"fromTokenAmount"`
	ToTokenAmount   flexString      `json:"toTokenAmount"`
	MinimumReceive  flexString      `json:"minimumReceive"`
	EstimateTime    flexString      `json:"estimateTime"`
	Router          types.Router    `json:"router"`
	Tx              types.TxPayload `json:"tx"`
}

func (d buildData) option() types.BuildOption {
	return types.BuildOption{
		FromChainID:     string(d.FromChainID),
		ToChainID:       string(d.ToChainID),
		FromTokenAmount: string(d.FromTokenAmount),
		Route: types.RouteOption{
			FromTokenAmount: string(d.FromTokenAmount),
			ToTokenAmount:   string(d.ToTokenAmount),
			MinimumReceive:  string(d.MinimumReceive),
			EstimateTime:    string(d.EstimateTime),
			Router:          d.Router,
		},
		Tx: d.Tx,
	}
}
