package service

import (
	"context"
	"sort"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/types"
)

// TransactionService lists a wallet's recent native transactions
type TransactionService struct {
	chainData adapter.ChainDataProvider
	limit     int
	logger    *logging.Logger
}

// NewTransactionService creates a service returning at most limit rows
func NewTransactionService(chainData adapter.ChainDataProvider, limit int, logger *logging.Logger) *TransactionService {
	if limit <= 0 {
		limit = 50
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TransactionService{chainData: chainData, limit: limit, logger: logger}
}

// GetRecentTransactions returns the newest transactions of address, newest first
func (s *TransactionService) GetRecentTransactions(ctx context.Context, address string, chain types.ChainID) ([]models.WalletTransaction, error) {
	address = types.NormalizeAddress(address)
	if _, ok := types.LookupChain(chain); !ok {
		return nil, errors.NewUnsupportedChainError(string(chain))
	}

	txs, err := s.chainData.GetRecentTransactions(ctx, address, chain, s.limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, upstreamError("GetRecentTransactions", err)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
	if len(txs) > s.limit {
		txs = txs[:s.limit]
	}

	out := make([]models.WalletTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, models.FromTransaction(tx, address, chain))
	}

	s.logger.WithFields(map[string]interface{}{
		"address": address,
		"chain":   chain,
		"count":   len(out),
	}).Debug("Listed recent transactions")
	return out, nil
}
