// Package types provides common type definitions for the wallet insight system.
package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TransactionDirection represents whether a transaction is incoming or outgoing
type TransactionDirection string

const (
	// DirectionIn represents an incoming transaction (address is recipient)
	DirectionIn TransactionDirection = "in"
	// DirectionOut represents an outgoing transaction (address is sender)
	DirectionOut TransactionDirection = "out"
)

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// ChainSpec describes how a chain is addressed by the upstream providers.
type ChainSpec struct {
	ID               ChainID
	NativeSymbol     string
	NativeDecimals   int
	EtherscanChainID string
	MoralisChain     string
}

var chainSpecs = map[ChainID]ChainSpec{
	ChainEthereum: {ID: ChainEthereum, NativeSymbol: "ETH", NativeDecimals: 18, EtherscanChainID: "1", MoralisChain: "eth"},
	ChainPolygon:  {ID: ChainPolygon, NativeSymbol: "MATIC", NativeDecimals: 18, EtherscanChainID: "137", MoralisChain: "polygon"},
	ChainBNB:      {ID: ChainBNB, NativeSymbol: "BNB", NativeDecimals: 18, EtherscanChainID: "56", MoralisChain: "bsc"},
}

// LookupChain returns the spec of a supported chain.
func LookupChain(chain ChainID) (ChainSpec, bool) {
	spec, ok := chainSpecs[chain]
	return spec, ok
}

// ParseChain parses a user supplied chain name. An empty value selects Ethereum.
func ParseChain(value string) (ChainID, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "eth", "ethereum", "mainnet":
		return ChainEthereum, true
	case "polygon", "matic":
		return ChainPolygon, true
	case "bnb", "bsc", "binance":
		return ChainBNB, true
	}
	return "", false
}

// SupportedChains returns every chain the service can report on.
func SupportedChains() []ChainID {
	return []ChainID{ChainEthereum, ChainPolygon, ChainBNB}
}

// NormalizeAddress canonicalizes an address for keys and comparisons.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValidAddress reports whether address is a 20-byte hex account address.
func IsValidAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && NormalizeAddress(a) == NormalizeAddress(b)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TokenBalance represents a wallet's holding of one token contract
type TokenBalance struct {
	TokenAddress string `json:"tokenAddress"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	RawBalance   string `json:"rawBalance"` // Integer amount in the token's smallest unit
	Decimals     int    `json:"decimals"`
	PossibleSpam bool   `json:"possibleSpam"`
}

// Amount returns the decimal-adjusted balance.
func (b TokenBalance) Amount() (decimal.Decimal, error) {
	return ScaleAmount(b.RawBalance, b.Decimals)
}

// TokenTransfer represents one ERC-20 style transfer event
type TokenTransfer struct {
	TokenAddress string    `json:"tokenAddress"`
	TokenSymbol  string    `json:"tokenSymbol"`
	TokenName    string    `json:"tokenName,omitempty"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	RawValue     string    `json:"rawValue"` // Transfer amount (as string for big numbers)
	Decimals     int       `json:"decimals"`
	Timestamp    time.Time `json:"timestamp"`
	TxHash       string    `json:"txHash"`
}

// Amount returns the decimal-adjusted transfer value.
func (t TokenTransfer) Amount() (decimal.Decimal, error) {
	return ScaleAmount(t.RawValue, t.Decimals)
}

// Transaction represents a normalized native transaction
type Transaction struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"` // Wei
	GasUsed     string    `json:"gasUsed"`
	GasPrice    string    `json:"gasPrice"`
	BlockNumber uint64    `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
	IsError     bool      `json:"isError"`
}

// GasCostWei returns gasUsed * gasPrice.
func (t Transaction) GasCostWei() (*big.Int, error) {
	used, ok := new(big.Int).SetString(orZero(t.GasUsed), 10)
	if !ok {
		return nil, fmt.Errorf("invalid gasUsed %q in tx %s", t.GasUsed, t.Hash)
	}
	price, ok := new(big.Int).SetString(orZero(t.GasPrice), 10)
	if !ok {
		return nil, fmt.Errorf("invalid gasPrice %q in tx %s", t.GasPrice, t.Hash)
	}
	return used.Mul(used, price), nil
}

// Direction returns the direction of the transaction relative to address.
func (t Transaction) Direction(address string) TransactionDirection {
	if SameAddress(t.From, address) {
		return DirectionOut
	}
	return DirectionIn
}

// ScaleAmount converts an integer string in base units to a decimal amount.
func ScaleAmount(raw string, decimals int) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if decimals < 0 {
		decimals = 0
	}
	return d.Shift(int32(-decimals)), nil
}

// WeiToNative scales a wei amount into whole native units.
func WeiToNative(wei *big.Int, decimals int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, int32(-decimals))
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// FigureStatus tells whether a figure was computed or defaulted.
type FigureStatus string

const (
	// FigureComputed marks a value backed by upstream data
	FigureComputed FigureStatus = "computed"
	// FigureUnavailable marks a zero default substituted after a failure
	FigureUnavailable FigureStatus = "unavailable"
)

// Figure is a numeric result that may have degraded to zero.
type Figure struct {
	Value  float64      `json:"value"`
	Status FigureStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// Computed wraps a successfully computed value.
func Computed(v float64) Figure {
	return Figure{Value: v, Status: FigureComputed}
}

// Unavailable returns the zero default for a failed sub-step.
func Unavailable(err error) Figure {
	f := Figure{Status: FigureUnavailable}
	if err != nil {
		f.Reason = err.Error()
	}
	return f
}

// Degraded reports whether the figure was defaulted.
func (f Figure) Degraded() bool {
	return f.Status == FigureUnavailable
}
