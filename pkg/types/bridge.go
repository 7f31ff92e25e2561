package types

import "encoding/json"

// SortOptimal asks the aggregator to rank routes by overall value
const SortOptimal = 1

// QuoteRequest holds the parameters of a quote or build-tx call.
// Field order is the query-string order.
type QuoteRequest struct {
	FromChainIndex    string
	ToChainIndex      string
	FromChainID       string
	ToChainID         string
	FromTokenAddress  string
	ToTokenAddress    string
	Amount            string // base units
	Slippage          string
	UserWalletAddress string
	Sort              int
	FeePercent        string
	ReferrerAddress   string
}

// Router describes the bridge protocol behind a route
type Router struct {
	BridgeID                  int64  `json:"bridgeId"`
	BridgeName                string `json:"bridgeName"`
	CrossChainFee             string `json:"crossChainFee"`
	OtherNativeFee            string `json:"otherNativeFee"`
	CrossChainFeeTokenAddress string `json:"crossChainFeeTokenAddress"`
}

// RouteOption is one candidate path returned by the aggregator
type RouteOption struct {
	FromTokenAmount string `json:"fromTokenAmount"`
	ToTokenAmount   string `json:"toTokenAmount"`
	MinimumReceive  string `json:"minimumReceive"`
	EstimateTime    string `json:"estimateTime"`
	Router          Router `json:"router"`
}

// BridgeName returns the display name of the route's bridge
func (r RouteOption) BridgeName() string {
	return r.Router.BridgeName
}

// TxPayload is the executable transaction produced by build-tx.
// It is forwarded to the chain essentially unmodified.
type TxPayload struct {
	From                 string `json:"from"`
	To                   string `json:"to"`
	Data                 string `json:"data"`
	Value                string `json:"value"`
	GasLimit             string `json:"gasLimit"`
	GasPrice             string `json:"gasPrice"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
}

// IsDynamicFee reports whether the payload should be sent as an EIP-1559 transaction
func (p TxPayload) IsDynamicFee() bool {
	return p.MaxPriorityFeePerGas != "" && p.MaxPriorityFeePerGas != "0"
}

// BuildOption is one build-tx entry: a route plus its transaction and the
// request fields echoed back by the aggregator.
type BuildOption struct {
	FromChainID     string
	ToChainID       string
	FromTokenAmount string
	Route           RouteOption
	Tx              TxPayload
}

// BridgeStatus is the lifecycle state of a submitted transfer
type BridgeStatus string

const (
	StatusPending   BridgeStatus = "pending"
	StatusCompleted BridgeStatus = "completed"
	StatusFailed    BridgeStatus = "failed"
)

// IsTerminal reports whether no further status transitions are expected
func (s BridgeStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BridgeResult is returned once the source chain accepted the bridge transaction
type BridgeResult struct {
	TxHash    string       `json:"txHash"`
	FromChain string       `json:"fromChain"`
	ToChain   string       `json:"toChain"`
	FromToken string       `json:"fromToken"`
	ToToken   string       `json:"toToken"`
	Amount    string       `json:"amount"`
	Status    BridgeStatus `json:"status"`
	Timestamp int64        `json:"timestamp"`
}

// CrossChainResult is the destination-side part of a status record
type CrossChainResult struct {
	ToChainTxHash string `json:"toChainTxHash"`
	ToChainID     string `json:"toChainId"`
	Status        string `json:"status"`
}

// StatusRecord is a single entry of the status endpoint
type StatusRecord struct {
	ChainID          string            `json:"chainId"`
	TxHash           string            `json:"txHash"`
	Status           string            `json:"status"`
	CrossChainResult *CrossChainResult `json:"crossChainResult,omitempty"`
}

// StatusResponse keeps both the decoded records and the envelope exactly as received
type StatusResponse struct {
	Records []StatusRecord
	Raw     json.RawMessage
}

// Estimate summarizes the best quoted route for display
type Estimate struct {
	FromAmount     string        `json:"fromAmount"`
	ToAmount       string        `json:"toAmount"`
	MinimumReceive string        `json:"minimumReceive"`
	BridgeName     string        `json:"bridgeName"`
	EstimatedTime  string        `json:"estimatedTime"`
	CrossChainFee  string        `json:"crossChainFee"`
	OtherNativeFee string        `json:"otherNativeFee"`
	PriceImpact    string        `json:"priceImpact"`
	ExchangeRate   string        `json:"exchangeRate"`
	Routes         []RouteOption `json:"routes"`
}
