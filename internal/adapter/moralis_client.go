package adapter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/wallet-insight/internal/httpclient"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/types"
)

const moralisProvider = "moralis"

// MoralisClient reads native and ERC20 balances from the Moralis EVM API.
// The API key travels in the X-API-Key header set on the http client.
type MoralisClient struct {
	http       *httpclient.Client
	configured bool
	logger     *logging.Logger
}

type moralisNativeBalance struct {
	Balance string `json:"balance"`
}

type moralisTokenBalance struct {
	TokenAddress string       `json:"token_address"`
	Symbol       string       `json:"symbol"`
	Name         string       `json:"name"`
	Decimals     flexibleInt  `json:"decimals"`
	Balance      string       `json:"balance"`
	PossibleSpam flexibleBool `json:"possible_spam"`
}

// flexibleInt accepts a JSON number, a numeric string or null
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", data, err)
	}
	*f = flexibleInt(v)
	return nil
}

// flexibleBool accepts a JSON bool, "true"/"false" or null
type flexibleBool bool

func (f *flexibleBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*f = flexibleBool(strings.EqualFold(s, "true"))
	return nil
}

// NewMoralisClient creates a client. configured is false when no API key was
// supplied, in which case every call fails with ErrNotConfigured.
func NewMoralisClient(http *httpclient.Client, configured bool, logger *logging.Logger) *MoralisClient {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &MoralisClient{
		http:       http,
		configured: configured,
		logger:     logger.WithField("provider", moralisProvider),
	}
}

// GetNativeBalance returns the wallet's native balance in wei
func (c *MoralisClient) GetNativeBalance(ctx context.Context, address string, chain types.ChainID) (*big.Int, error) {
	const op = "GetNativeBalance"
	spec, err := c.prepare(chain, op)
	if err != nil {
		return nil, err
	}

	var resp moralisNativeBalance
	if err := c.http.Get(ctx, "/"+address+"/balance", map[string]string{"chain": spec.MoralisChain}, &resp); err != nil {
		return nil, c.wrap(ctx, chain, op, err)
	}

	wei, ok := new(big.Int).SetString(strings.TrimSpace(resp.Balance), 10)
	if !ok {
		return nil, NewAdapterError(moralisProvider, chain, op, ErrMalformedResponse, map[string]interface{}{"balance": resp.Balance})
	}
	return wei, nil
}

// GetTokenBalances returns the wallet's ERC20 balances. Spam exclusion is
// delegated to the provider; entries it still marks possible_spam are dropped
// unless includeSpam is set.
func (c *MoralisClient) GetTokenBalances(ctx context.Context, address string, chain types.ChainID, includeSpam bool) ([]types.TokenBalance, error) {
	const op = "GetTokenBalances"
	spec, err := c.prepare(chain, op)
	if err != nil {
		return nil, err
	}

	var rows []moralisTokenBalance
	params := map[string]string{
		"chain":        spec.MoralisChain,
		"exclude_spam": strconv.FormatBool(!includeSpam),
	}
	if err := c.http.Get(ctx, "/"+address+"/erc20", params, &rows); err != nil {
		return nil, c.wrap(ctx, chain, op, err)
	}

	balances := make([]types.TokenBalance, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if bool(row.PossibleSpam) && !includeSpam {
			dropped++
			continue
		}
		balances = append(balances, types.TokenBalance{
			TokenAddress: types.NormalizeAddress(row.TokenAddress),
			Symbol:       row.Symbol,
			Name:         row.Name,
			RawBalance:   row.Balance,
			Decimals:     int(row.Decimals),
			PossibleSpam: bool(row.PossibleSpam),
		})
	}

	if dropped > 0 {
		c.logger.WithFields(map[string]interface{}{
			"address": address,
			"chain":   chain,
			"dropped": dropped,
		}).Debug("Dropped provider-flagged spam tokens")
	}
	return balances, nil
}

func (c *MoralisClient) prepare(chain types.ChainID, op string) (types.ChainSpec, error) {
	if !c.configured {
		return types.ChainSpec{}, NewAdapterError(moralisProvider, chain, op, ErrNotConfigured, nil)
	}
	return lookupChain(moralisProvider, chain, op)
}

func (c *MoralisClient) wrap(ctx context.Context, chain types.ChainID, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	sentinel := ErrProviderUnavailable
	var httpErr *httpclient.HTTPError
	if stderrors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests {
		sentinel = ErrProviderRateLimit
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr) {
		sentinel = ErrMalformedResponse
	}
	return NewAdapterError(moralisProvider, chain, op, sentinel, map[string]interface{}{"cause": err.Error()})
}
