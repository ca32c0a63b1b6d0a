package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/httpclient"
	"github.com/wallet-insight/internal/retry"
	"github.com/wallet-insight/internal/types"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func newTestEtherscan(t *testing.T, pageSize int, handler http.HandlerFunc) *EtherscanClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := httpclient.New(httpclient.Config{Provider: "etherscan", BaseURL: srv.URL}, nil)
	t.Cleanup(func() { _ = client.Close() })
	return NewEtherscanClient(client, EtherscanConfig{APIKey: "key", PageSize: pageSize, Retry: fastRetry()}, nil)
}

func TestEtherscanTransactionHistoryPaginates(t *testing.T) {
	pages := map[string]string{
		"0": `{"status":"1","message":"OK","result":[
			{"hash":"0xa","blockNumber":"1","timeStamp":"1700000000","from":"0x1111111111111111111111111111111111111111","to":"0x2","value":"1","gasUsed":"21000","gasPrice":"10","isError":"0"},
			{"hash":"0xb","blockNumber":"2","timeStamp":"1700000100","from":"0x2","to":"0x1111111111111111111111111111111111111111","value":"1","gasUsed":"21000","gasPrice":"10","isError":"0"}]}`,
		"2": `{"status":"1","message":"OK","result":[
			{"hash":"0xb","blockNumber":"2","timeStamp":"1700000100","from":"0x2","to":"0x1111111111111111111111111111111111111111","value":"1","gasUsed":"21000","gasPrice":"10","isError":"0"},
			{"hash":"0xc","blockNumber":"3","timeStamp":"1700000200","from":"0x1111111111111111111111111111111111111111","to":"0x3","value":"1","gasUsed":"50000","gasPrice":"20","isError":"1"}]}`,
		"3": `{"status":"1","message":"OK","result":[
			{"hash":"0xc","blockNumber":"3","timeStamp":"1700000200","from":"0x1111111111111111111111111111111111111111","to":"0x3","value":"1","gasUsed":"50000","gasPrice":"20","isError":"1"}]}`,
	}
	var calls int32
	c := newTestEtherscan(t, 2, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, "txlist", q.Get("action"))
		assert.Equal(t, "account", q.Get("module"))
		assert.Equal(t, "1", q.Get("chainid"))
		assert.Equal(t, "asc", q.Get("sort"))
		assert.Equal(t, "key", q.Get("apikey"))
		writeJSON(w, pages[q.Get("startblock")])
	})

	txs, err := c.GetTransactionHistory(context.Background(), testWallet, types.ChainEthereum)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, []string{txs[0].Hash, txs[1].Hash, txs[2].Hash})
	assert.Equal(t, uint64(3), txs[2].BlockNumber)
	assert.True(t, txs[2].IsError)
	assert.Equal(t, time.Unix(1700000200, 0).UTC(), txs[2].Timestamp)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEtherscanTransactionHistoryBusyBlock(t *testing.T) {
	row := func(hash, block string) string {
		return `{"hash":"` + hash + `","blockNumber":"` + block + `","timeStamp":"1700000000","from":"0x1111111111111111111111111111111111111111","to":"0x2","value":"0","gasUsed":"21000","gasPrice":"1","isError":"0"}`
	}
	// Block 7 holds four transactions, more than one page of two.
	pages := map[string]string{
		"0/1": `{"status":"1","message":"OK","result":[` + row("0xa", "5") + `,` + row("0xb", "7") + `]}`,
		"7/1": `{"status":"1","message":"OK","result":[` + row("0xb", "7") + `,` + row("0xc", "7") + `]}`,
		"7/2": `{"status":"1","message":"OK","result":[` + row("0xd", "7") + `,` + row("0xe", "7") + `]}`,
		"7/3": `{"status":"1","message":"OK","result":[` + row("0xf", "9") + `]}`,
	}
	var requested []string
	c := newTestEtherscan(t, 2, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		key := q.Get("startblock") + "/" + q.Get("page")
		requested = append(requested, key)
		body, ok := pages[key]
		if !ok {
			body = `{"status":"0","message":"No transactions found","result":[]}`
		}
		writeJSON(w, body)
	})

	txs, err := c.GetTransactionHistory(context.Background(), testWallet, types.ChainEthereum)
	require.NoError(t, err)

	hashes := make([]string, 0, len(txs))
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash)
	}
	assert.Equal(t, []string{"0xa", "0xb", "0xc", "0xd", "0xe", "0xf"}, hashes)
	assert.Equal(t, []string{"0/1", "7/1", "7/2", "7/3"}, requested)
}

func TestEtherscanEmptyResults(t *testing.T) {
	c := newTestEtherscan(t, 100, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"0","message":"No transactions found","result":[]}`)
	})

	txs, err := c.GetTransactionHistory(context.Background(), testWallet, types.ChainPolygon)
	require.NoError(t, err)
	assert.Empty(t, txs)

	transfers, err := c.GetTokenTransfers(context.Background(), testWallet, types.ChainPolygon, 100)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestEtherscanRetriesNotOK(t *testing.T) {
	var calls int32
	c := newTestEtherscan(t, 100, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
			return
		}
		writeJSON(w, `{"status":"1","message":"OK","result":[{"hash":"0xa","blockNumber":"9","timeStamp":"1","from":"0x1","to":"0x2","value":"0","gasUsed":"1","gasPrice":"1","isError":"0"}]}`)
	})

	txs, err := c.GetRecentTransactions(context.Background(), testWallet, types.ChainEthereum, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEtherscanRateLimitExhausted(t *testing.T) {
	c := newTestEtherscan(t, 100, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
	})

	_, err := c.GetTokenTransfers(context.Background(), testWallet, types.ChainEthereum, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderRateLimit))

	var adapterErr *AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, "etherscan", adapterErr.Provider)
	assert.Equal(t, "GetTokenTransfers", adapterErr.Op)
}

func TestEtherscanTokenTransfers(t *testing.T) {
	c := newTestEtherscan(t, 100, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "tokentx", q.Get("action"))
		assert.Equal(t, "desc", q.Get("sort"))
		assert.Equal(t, "2", q.Get("offset"))
		assert.Equal(t, "56", q.Get("chainid"))
		writeJSON(w, `{"status":"1","message":"OK","result":[
			{"hash":"0xa","timeStamp":"1700000000","from":"0xAAAA","to":"0x1111111111111111111111111111111111111111","value":"1500000","contractAddress":"0xTOKEN","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6"},
			{"hash":"0xb","timeStamp":"1699999999","from":"0x1111111111111111111111111111111111111111","to":"0xBBBB","value":"500000","contractAddress":"0xTOKEN","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6"}]}`)
	})

	transfers, err := c.GetTokenTransfers(context.Background(), testWallet, types.ChainBNB, 2)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	first := transfers[0]
	assert.Equal(t, "0xtoken", first.TokenAddress)
	assert.Equal(t, "0xaaaa", first.From)
	assert.Equal(t, "USDC", first.TokenSymbol)
	assert.Equal(t, 6, first.Decimals)
	amount, err := first.Amount()
	require.NoError(t, err)
	assert.Equal(t, "1.5", amount.String())
}

func TestEtherscanNotConfigured(t *testing.T) {
	c := NewEtherscanClient(httpclient.New(httpclient.Config{Provider: "etherscan", BaseURL: "http://127.0.0.1:1"}, nil), EtherscanConfig{}, nil)

	_, err := c.GetTransactionHistory(context.Background(), testWallet, types.ChainEthereum)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestEtherscanUnsupportedChain(t *testing.T) {
	c := newTestEtherscan(t, 100, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.GetRecentTransactions(context.Background(), testWallet, types.ChainID("solana"), 5)
	assert.True(t, errors.Is(err, ErrUnsupportedChain))
}
