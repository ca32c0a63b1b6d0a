package adapter

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wallet-insight/internal/httpclient"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/retry"
	"github.com/wallet-insight/internal/types"
)

const etherscanProvider = "etherscan"

// EtherscanClient reads native transactions and token transfers from the
// Etherscan v2 multichain API
type EtherscanClient struct {
	http     *httpclient.Client
	apiKey   string
	pageSize int
	retry    *retry.RetryConfig
	logger   *logging.Logger
}

// EtherscanConfig configures an EtherscanClient
type EtherscanConfig struct {
	APIKey   string
	PageSize int                // Rows per txlist page, Etherscan caps this at 10000
	Retry    *retry.RetryConfig // Backoff for NOTOK and 429 responses
}

// etherscanTransaction represents a normal transaction from the txlist action
type etherscanTransaction struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	GasPrice    string `json:"gasPrice"`
	GasUsed     string `json:"gasUsed"`
	IsError     string `json:"isError"`
}

// etherscanTokenTransfer represents an ERC20 transfer from the tokentx action
type etherscanTokenTransfer struct {
	Hash            string `json:"hash"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// etherscanEnvelope is the common response wrapper. Result is an array on
// success and a string on errors and some empty responses.
type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// etherscanNotOK is a status "0" response that is not an empty result
type etherscanNotOK struct {
	message string
	result  string
}

func (e *etherscanNotOK) Error() string {
	return fmt.Sprintf("etherscan API error: %s (%s)", e.message, e.result)
}

// NewEtherscanClient creates a new Etherscan API client
func NewEtherscanClient(http *httpclient.Client, cfg EtherscanConfig, logger *logging.Logger) *EtherscanClient {
	if cfg.PageSize <= 0 || cfg.PageSize > 10000 {
		cfg.PageSize = 10000
	}
	if cfg.Retry == nil {
		cfg.Retry = &retry.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
		}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &EtherscanClient{
		http:     http,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		retry:    cfg.Retry,
		logger:   logger.WithField("provider", etherscanProvider),
	}
}

// GetTransactionHistory pages through txlist in ascending block order until
// a short page is returned
func (c *EtherscanClient) GetTransactionHistory(ctx context.Context, address string, chain types.ChainID) ([]types.Transaction, error) {
	const op = "GetTransactionHistory"
	spec, err := c.prepare(chain, op)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var history []types.Transaction
	startBlock := uint64(0)
	page := 1

	for request := 1; ; request++ {
		raw, err := c.call(ctx, chain, op, map[string]string{
			"chainid":    spec.EtherscanChainID,
			"action":     "txlist",
			"address":    address,
			"startblock": strconv.FormatUint(startBlock, 10),
			"endblock":   "99999999",
			"page":       strconv.Itoa(page),
			"offset":     strconv.Itoa(c.pageSize),
			"sort":       "asc",
		})
		if err != nil {
			return nil, err
		}

		txs, err := decodeTransactions(raw)
		if err != nil {
			return nil, NewAdapterError(etherscanProvider, chain, op, ErrMalformedResponse, map[string]interface{}{"cause": err.Error()})
		}

		added := 0
		lastBlock := startBlock
		for _, tx := range txs {
			if _, dup := seen[tx.Hash]; dup {
				continue
			}
			seen[tx.Hash] = struct{}{}
			history = append(history, tx)
			added++
			if tx.BlockNumber > lastBlock {
				lastBlock = tx.BlockNumber
			}
		}

		c.logger.WithFields(map[string]interface{}{
			"address":    address,
			"chain":      chain,
			"request":    request,
			"startBlock": startBlock,
			"page":       page,
			"rows":       len(txs),
			"added":      added,
		}).Debug("Fetched transaction page")

		if len(txs) < c.pageSize {
			break
		}

		// The next request restarts at the last seen block, so a block split
		// across pages is re-read and deduplicated by hash. A full page that
		// stays inside one block moves on to the next page of that block.
		if lastBlock > startBlock {
			startBlock = lastBlock
			page = 1
		} else {
			page++
		}
	}

	return history, nil
}

// GetRecentTransactions returns the newest transactions of the wallet
func (c *EtherscanClient) GetRecentTransactions(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.Transaction, error) {
	const op = "GetRecentTransactions"
	spec, err := c.prepare(chain, op)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.Transaction{}, nil
	}

	raw, err := c.call(ctx, chain, op, map[string]string{
		"chainid": spec.EtherscanChainID,
		"action":  "txlist",
		"address": address,
		"page":    "1",
		"offset":  strconv.Itoa(limit),
		"sort":    "desc",
	})
	if err != nil {
		return nil, err
	}

	txs, err := decodeTransactions(raw)
	if err != nil {
		return nil, NewAdapterError(etherscanProvider, chain, op, ErrMalformedResponse, map[string]interface{}{"cause": err.Error()})
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// GetTokenTransfers returns the most recent ERC20 transfers, newest first
func (c *EtherscanClient) GetTokenTransfers(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.TokenTransfer, error) {
	const op = "GetTokenTransfers"
	spec, err := c.prepare(chain, op)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.TokenTransfer{}, nil
	}

	raw, err := c.call(ctx, chain, op, map[string]string{
		"chainid": spec.EtherscanChainID,
		"action":  "tokentx",
		"address": address,
		"page":    "1",
		"offset":  strconv.Itoa(limit),
		"sort":    "desc",
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []types.TokenTransfer{}, nil
	}

	var rows []etherscanTokenTransfer
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, NewAdapterError(etherscanProvider, chain, op, ErrMalformedResponse, map[string]interface{}{"cause": err.Error()})
	}

	transfers := make([]types.TokenTransfer, 0, len(rows))
	for _, row := range rows {
		decimals, err := strconv.Atoi(row.TokenDecimal)
		if err != nil {
			decimals = 0
		}
		transfers = append(transfers, types.TokenTransfer{
			TokenAddress: types.NormalizeAddress(row.ContractAddress),
			TokenSymbol:  row.TokenSymbol,
			TokenName:    row.TokenName,
			From:         types.NormalizeAddress(row.From),
			To:           types.NormalizeAddress(row.To),
			RawValue:     row.Value,
			Decimals:     decimals,
			Timestamp:    parseUnix(row.TimeStamp),
			TxHash:       row.Hash,
		})
	}
	if len(transfers) > limit {
		transfers = transfers[:limit]
	}
	return transfers, nil
}

func (c *EtherscanClient) prepare(chain types.ChainID, op string) (types.ChainSpec, error) {
	if c.apiKey == "" {
		return types.ChainSpec{}, NewAdapterError(etherscanProvider, chain, op, ErrNotConfigured, nil)
	}
	return lookupChain(etherscanProvider, chain, op)
}

// call performs one account-module request with retries. A nil result with a
// nil error means the provider reported no records.
func (c *EtherscanClient) call(ctx context.Context, chain types.ChainID, op string, params map[string]string) (json.RawMessage, error) {
	params["module"] = "account"
	params["apikey"] = c.apiKey

	var result json.RawMessage
	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		var env etherscanEnvelope
		if err := c.http.Get(ctx, "", params, &env); err != nil {
			var httpErr *httpclient.HTTPError
			if stderrors.As(err, &httpErr) && httpErr.Code != http.StatusTooManyRequests && httpErr.Code < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		if env.Status == "1" {
			result = env.Result
			return nil
		}
		if isEmptyResult(env) {
			result = nil
			return nil
		}

		notOK := &etherscanNotOK{message: env.Message, result: strings.Trim(string(env.Result), `"`)}
		if strings.Contains(strings.ToLower(notOK.result), "invalid api key") {
			return retry.Permanent(notOK)
		}
		return notOK
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewAdapterError(etherscanProvider, chain, op, classifyFailure(err), map[string]interface{}{"cause": err.Error()})
	}

	// Some actions return a bare string on success with no rows
	if len(result) > 0 && result[0] == '"' {
		return nil, nil
	}
	return result, nil
}

func isEmptyResult(env etherscanEnvelope) bool {
	switch env.Message {
	case "No transactions found", "No records found", "No token transfers found":
		return true
	}
	return env.Message == "NOTOK" && strings.Contains(string(env.Result), "No record")
}

// classifyFailure maps an exhausted upstream failure onto a sentinel error
func classifyFailure(err error) error {
	var httpErr *httpclient.HTTPError
	if stderrors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests {
		return ErrProviderRateLimit
	}
	var notOK *etherscanNotOK
	if stderrors.As(err, &notOK) && strings.Contains(strings.ToLower(notOK.result), "rate limit") {
		return ErrProviderRateLimit
	}
	return ErrProviderUnavailable
}

func decodeTransactions(raw json.RawMessage) ([]types.Transaction, error) {
	if raw == nil {
		return []types.Transaction{}, nil
	}
	var rows []etherscanTransaction
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}

	txs := make([]types.Transaction, 0, len(rows))
	for _, row := range rows {
		block, _ := strconv.ParseUint(row.BlockNumber, 10, 64)
		txs = append(txs, types.Transaction{
			Hash:        row.Hash,
			From:        types.NormalizeAddress(row.From),
			To:          types.NormalizeAddress(row.To),
			Value:       row.Value,
			GasUsed:     row.GasUsed,
			GasPrice:    row.GasPrice,
			BlockNumber: block,
			Timestamp:   parseUnix(row.TimeStamp),
			IsError:     row.IsError == "1",
		})
	}
	return txs, nil
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
