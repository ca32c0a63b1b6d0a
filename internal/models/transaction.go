package models

import (
	"time"

	"github.com/wallet-insight/internal/types"
)

// WalletTransaction is a native transaction as listed for one wallet
type WalletTransaction struct {
	Hash          string                     `json:"hash"`
	WalletAddress string                     `json:"walletAddress"`
	Chain         types.ChainID              `json:"chain"`
	From          string                     `json:"from"`
	To            string                     `json:"to"`
	Value         string                     `json:"value"`
	Direction     types.TransactionDirection `json:"direction"` // in, out
	Timestamp     time.Time                  `json:"timestamp"`
	BlockNumber   uint64                     `json:"blockNumber"`
	Status        string                     `json:"status"` // success, failed
	GasUsed       string                     `json:"gasUsed"`
	GasPrice      string                     `json:"gasPrice"`
}

// FromTransaction creates a WalletTransaction seen from address.
// The direction is out when address is the sender.
func FromTransaction(tx types.Transaction, address string, chain types.ChainID) WalletTransaction {
	status := "success"
	if tx.IsError {
		status = "failed"
	}

	return WalletTransaction{
		Hash:          tx.Hash,
		WalletAddress: types.NormalizeAddress(address),
		Chain:         chain,
		From:          tx.From,
		To:            tx.To,
		Value:         tx.Value,
		Direction:     tx.Direction(address),
		Timestamp:     tx.Timestamp,
		BlockNumber:   tx.BlockNumber,
		Status:        status,
		GasUsed:       tx.GasUsed,
		GasPrice:      tx.GasPrice,
	}
}
