package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/types"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 500
)

// WalletStatsResponse is the stats payload: the snapshot plus whether it was
// served from the store
type WalletStatsResponse struct {
	*models.WalletSnapshot
	Cached bool `json:"cached"`
}

// TransactionsResponse wraps the recent transaction list
type TransactionsResponse struct {
	Address      string                     `json:"address"`
	Chain        types.ChainID              `json:"chain"`
	Transactions []models.WalletTransaction `json:"transactions"`
}

// HistoryResponse wraps archived snapshot rows
type HistoryResponse struct {
	Address string                        `json:"address"`
	Chain   types.ChainID                 `json:"chain"`
	Entries []models.SnapshotHistoryEntry `json:"entries"`
}

// walletParams validates the {address} path variable and the chain query
// parameter shared by every wallet route
func walletParams(r *http.Request) (string, types.ChainID, error) {
	address := strings.TrimSpace(mux.Vars(r)["address"])
	if !types.IsValidAddress(address) {
		return "", "", errors.NewInvalidAddressError(address)
	}

	raw := r.URL.Query().Get("chain")
	chain, ok := types.ParseChain(raw)
	if !ok {
		return "", "", errors.NewUnsupportedChainError(raw)
	}

	return types.NormalizeAddress(address), chain, nil
}

// handleGetWalletStats handles GET /api/wallet/{address}/stats
func (s *Server) handleGetWalletStats(w http.ResponseWriter, r *http.Request) {
	address, chain, err := walletParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	snapshot, cached, err := s.services.Wallet.GetWalletStats(r.Context(), address, chain)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, WalletStatsResponse{WalletSnapshot: snapshot, Cached: cached})
}

// handleGetPerformance handles GET /api/wallet/{address}/performance
func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	address, chain, err := walletParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	report, err := s.services.Performance.GetPerformance(r.Context(), address, chain)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleGetTransactions handles GET /api/wallet/{address}/transactions
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	address, chain, err := walletParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	txs, err := s.services.Transactions.GetRecentTransactions(r.Context(), address, chain)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.WalletTransaction{}
	}

	respondJSON(w, http.StatusOK, TransactionsResponse{Address: address, Chain: chain, Transactions: txs})
}

// handleGetHistory handles GET /api/wallet/{address}/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	address, chain, err := walletParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			respondServiceError(w, r, errors.NewInvalidParameterError("limit", "must be a positive integer"))
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	entries, err := s.services.Wallet.ListHistory(r.Context(), address, chain, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.SnapshotHistoryEntry{}
	}

	respondJSON(w, http.StatusOK, HistoryResponse{Address: address, Chain: chain, Entries: entries})
}
