// Package spam separates genuine token holdings from airdropped spam.
package spam

import (
	"strings"
	"unicode/utf8"

	"github.com/wallet-insight/internal/types"
)

// DefaultMaxSymbolLength is the longest symbol accepted as genuine
const DefaultMaxSymbolLength = 6

// Reason explains why a token was rejected
type Reason string

const (
	ReasonFlagged       Reason = "flagged_by_provider"
	ReasonMissingSymbol Reason = "missing_symbol"
	ReasonLongSymbol    Reason = "symbol_too_long"
)

// Rejected is a token classified as spam
type Rejected struct {
	Token  types.TokenBalance
	Reason Reason
}

// Result of classifying a token list. Valid keeps input order.
type Result struct {
	Valid          []types.TokenBalance
	Rejected       []Rejected
	FlaggedCount   int
	HeuristicCount int
}

// SpamCount is the provider-flagged count plus heuristic rejections among
// the tokens the provider did not flag.
func (r Result) SpamCount() int {
	return r.FlaggedCount + r.HeuristicCount
}

// Classifier applies the provider flag and the symbol heuristic
type Classifier struct {
	maxSymbolLength int
}

// NewClassifier creates a classifier; a non-positive length selects the default.
func NewClassifier(maxSymbolLength int) *Classifier {
	if maxSymbolLength <= 0 {
		maxSymbolLength = DefaultMaxSymbolLength
	}
	return &Classifier{maxSymbolLength: maxSymbolLength}
}

// Classify splits tokens into valid and spam
func (c *Classifier) Classify(tokens []types.TokenBalance) Result {
	res := Result{Valid: make([]types.TokenBalance, 0, len(tokens))}

	for _, tok := range tokens {
		if tok.PossibleSpam {
			res.FlaggedCount++
			res.Rejected = append(res.Rejected, Rejected{Token: tok, Reason: ReasonFlagged})
			continue
		}
		if reason, bad := c.symbolReason(tok.Symbol); bad {
			res.HeuristicCount++
			res.Rejected = append(res.Rejected, Rejected{Token: tok, Reason: reason})
			continue
		}
		res.Valid = append(res.Valid, tok)
	}

	return res
}

// SymbolAcceptable reports whether symbol passes the length heuristic
func (c *Classifier) SymbolAcceptable(symbol string) bool {
	_, bad := c.symbolReason(symbol)
	return !bad
}

func (c *Classifier) symbolReason(symbol string) (Reason, bool) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ReasonMissingSymbol, true
	}
	if utf8.RuneCountInString(symbol) > c.maxSymbolLength {
		return ReasonLongSymbol, true
	}
	return "", false
}
