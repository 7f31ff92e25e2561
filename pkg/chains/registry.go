// Package chains holds the static chain, token and bridge-pair descriptors.
package chains

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Key identifies a supported network
type Key string

const (
	Base     Key = "base"
	Arbitrum Key = "arbitrum"
	BSC      Key = "bsc"
	Polygon  Key = "polygon"
)

// USDC is the only bridged asset
const USDC = "USDC"

// ErrUnknownChain is returned for lookups of unsupported chains or tokens
var ErrUnknownChain = errors.New("unknown chain")

// Well-known spender contracts on Base
const (
	OKXApproveRouter = "0x997aAb9324e9fE456Cc0E64AF510D770707c8d78"
	StargateRouter   = "0x57df6092665eb6058DE53939612413ff4B09114E"
	AcrossSpokePool  = "0x41ee28ee05341e7fdddc8d433ba66054cd302ca1"
)

// Chain describes a network
type Chain struct {
	Key          Key    `json:"key"`
	ChainID      string `json:"chainId"`
	ChainIndex   string `json:"chainIndex"`
	Name         string `json:"name"`
	RPCURL       string `json:"rpcUrl"`
	ExplorerURL  string `json:"explorerUrl"`
	NativeSymbol string `json:"nativeSymbol"`
}

// TxURL returns the explorer link of a transaction
func (c Chain) TxURL(hash string) string {
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

// Token describes a token contract on a chain
type Token struct {
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// Spender is a named contract that may need a token allowance
type Spender struct {
	Name    string
	Address string
}

// Pair is the full parameter set of one bridge direction
type Pair struct {
	Source          Chain
	Dest            Chain
	SourceToken     Token
	DestToken       Token
	DefaultSlippage string
	// ExtraSpenders are approved in addition to the spender named by the aggregator
	ExtraSpenders []Spender
}

// String returns "Base → Arbitrum One"
func (p Pair) String() string {
	return fmt.Sprintf("%s → %s", p.Source.Name, p.Dest.Name)
}

// Overrides replaces registry defaults, empty values keep the default
type Overrides struct {
	ChainIDs        map[Key]string
	RPCURLs         map[Key]string
	USDCAddresses   map[Key]string
	DefaultSlippage map[Key]string
}

// Registry is an immutable set of chain, token and pair descriptors
type Registry struct {
	source Key
	chains map[Key]Chain
	tokens map[Key]map[string]Token
	pairs  map[Key]Pair
}

func defaultChains() map[Key]Chain {
	return map[Key]Chain{
		Base: {
			Key:          Base,
			ChainID:      "8453",
			ChainIndex:   "8453",
			Name:         "Base",
			RPCURL:       "https://mainnet.base.org",
			ExplorerURL:  "https://basescan.org",
			NativeSymbol: "ETH",
		},
		Arbitrum: {
			Key:          Arbitrum,
			ChainID:      "42161",
			ChainIndex:   "42161",
			Name:         "Arbitrum One",
			RPCURL:       "https://arb1.arbitrum.io/rpc",
			ExplorerURL:  "https://arbiscan.io",
			NativeSymbol: "ETH",
		},
		BSC: {
			Key:          BSC,
			ChainID:      "56",
			ChainIndex:   "56",
			Name:         "BNB Smart Chain",
			RPCURL:       "https://bsc-dataseed.binance.org",
			ExplorerURL:  "https://bscscan.com",
			NativeSymbol: "BNB",
		},
		Polygon: {
			Key:          Polygon,
			ChainID:      "137",
			ChainIndex:   "137",
			Name:         "Polygon",
			RPCURL:       "https://polygon-rpc.com",
			ExplorerURL:  "https://polygonscan.com",
			NativeSymbol: "POL",
		},
	}
}

func defaultTokens() map[Key]map[string]Token {
	return map[Key]map[string]Token{
		Base:     {USDC: {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6, Symbol: USDC}},
		Arbitrum: {USDC: {Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6, Symbol: USDC}},
		BSC:      {USDC: {Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18, Symbol: USDC}},
		Polygon:  {USDC: {Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6, Symbol: USDC}},
	}
}

type pairSpec struct {
	slippage string
	spenders []Spender
}

func defaultPairs() map[Key]pairSpec {
	stargate := Spender{Name: "Stargate", Address: StargateRouter}
	across := Spender{Name: "Across", Address: AcrossSpokePool}
	return map[Key]pairSpec{
		Arbitrum: {slippage: "0.01", spenders: []Spender{stargate}},
		BSC:      {slippage: "0.30", spenders: []Spender{stargate}},
		Polygon:  {slippage: "0.30", spenders: []Spender{stargate, across}},
	}
}

// Default returns the built-in registry
func Default() *Registry {
	return New(Overrides{})
}

// New builds a registry from the built-in descriptors with overrides applied
func New(o Overrides) *Registry {
	r := &Registry{
		source: Base,
		chains: defaultChains(),
		tokens: defaultTokens(),
		pairs:  make(map[Key]Pair),
	}

	for key, c := range r.chains {
		if v := o.ChainIDs[key]; v != "" {
			c.ChainID = v
			c.ChainIndex = v
		}
		if v := o.RPCURLs[key]; v != "" {
			c.RPCURL = v
		}
		r.chains[key] = c
	}
	for key, addr := range o.USDCAddresses {
		if addr == "" {
			continue
		}
		if t, ok := r.tokens[key][USDC]; ok {
			t.Address = addr
			r.tokens[key][USDC] = t
		}
	}

	for dest, def := range defaultPairs() {
		slippage := def.slippage
		if v := o.DefaultSlippage[dest]; v != "" {
			slippage = v
		}
		r.pairs[dest] = Pair{
			Source:          r.chains[r.source],
			Dest:            r.chains[dest],
			SourceToken:     r.tokens[r.source][USDC],
			DestToken:       r.tokens[dest][USDC],
			DefaultSlippage: slippage,
			ExtraSpenders:   append([]Spender(nil), def.spenders...),
		}
	}

	return r
}

// Source returns the chain every bridge starts from
func (r *Registry) Source() Chain {
	return r.chains[r.source]
}

// Chain looks up a chain descriptor
func (r *Registry) Chain(key Key) (Chain, error) {
	c, ok := r.chains[key]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %s", ErrUnknownChain, key)
	}
	return c, nil
}

// Chains returns all chains ordered source first, then by name
func (r *Registry) Chains() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key == r.source || out[j].Key == r.source {
			return out[i].Key == r.source
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Token looks up a token descriptor on a chain
func (r *Registry) Token(key Key, symbol string) (Token, error) {
	t, ok := r.tokens[key][strings.ToUpper(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("%w: no %s token on %s", ErrUnknownChain, symbol, key)
	}
	return t, nil
}

// Pair returns the bridge parameters for a destination
func (r *Registry) Pair(dest Key) (Pair, error) {
	p, ok := r.pairs[dest]
	if !ok {
		return Pair{}, fmt.Errorf("%w: no bridge route from %s to %s", ErrUnknownChain, r.source, dest)
	}
	return p, nil
}

// Destinations lists the supported destination keys in a stable order
func (r *Registry) Destinations() []Key {
	keys := make([]Key, 0, len(r.pairs))
	for k := range r.pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Pairs returns every bridge direction ordered by destination key
func (r *Registry) Pairs() []Pair {
	out := make([]Pair, 0, len(r.pairs))
	for _, k := range r.Destinations() {
		out = append(out, r.pairs[k])
	}
	return out
}

// KnownSpenders lists the contracts worth inspecting in an allowance report
func (r *Registry) KnownSpenders() []Spender {
	return []Spender{
		{Name: "OKX Approve Router", Address: OKXApproveRouter},
		{Name: "Stargate", Address: StargateRouter},
		{Name: "Across", Address: AcrossSpokePool},
	}
}

// ParseKey normalizes user input such as "Arbitrum", "arb" or "bnb"
func ParseKey(s string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base":
		return Base, nil
	case "arbitrum", "arb", "arbitrum-one":
		return Arbitrum, nil
	case "bsc", "bnb", "binance":
		return BSC, nil
	case "polygon", "matic", "pol":
		return Polygon, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChain, s)
	}
}
