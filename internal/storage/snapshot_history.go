package storage

import (
	"context"
	"fmt"

	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/types"
)

// ClickHouseSnapshotHistory archives every recomputed snapshot in the
// wallet_snapshot_history table
type ClickHouseSnapshotHistory struct {
	db *ClickHouseDB
}

// NewClickHouseSnapshotHistory creates a history archive backed by ClickHouse
func NewClickHouseSnapshotHistory(db *ClickHouseDB) *ClickHouseSnapshotHistory {
	return &ClickHouseSnapshotHistory{db: db}
}

// Append stores one history row for snapshot
func (h *ClickHouseSnapshotHistory) Append(ctx context.Context, snapshot *models.WalletSnapshot) error {
	entry := models.HistoryEntryFromSnapshot(snapshot)

	batch, err := h.db.Conn().PrepareBatch(ctx, `
		INSERT INTO wallet_snapshot_history (
			address, chain, net_worth_usd, net_worth_native, native_price_usd,
			gas_paid_native, token_count, spam_token_count, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history batch: %w", err)
	}

	if err := batch.Append(
		entry.Address,
		string(entry.Chain),
		entry.NetWorthUSD,
		entry.NetWorthNative,
		entry.NativePriceUSD,
		entry.GasPaidNative,
		entry.TokenCount,
		entry.SpamTokenCount,
		entry.RecordedAt,
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append history row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send history batch: %w", err)
	}
	return nil
}

// List returns up to limit history rows, newest first
func (h *ClickHouseSnapshotHistory) List(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error) {
	rows, err := h.db.Conn().Query(ctx, `
		SELECT
			address, chain, net_worth_usd, net_worth_native, native_price_usd,
			gas_paid_native, token_count, spam_token_count, recorded_at
		FROM wallet_snapshot_history
		WHERE address = ? AND chain = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`, types.NormalizeAddress(address), string(chain), uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var entries []models.SnapshotHistoryEntry
	for rows.Next() {
		var (
			e        models.SnapshotHistoryEntry
			chainStr string
		)
		if err := rows.Scan(
			&e.Address,
			&chainStr,
			&e.NetWorthUSD,
			&e.NetWorthNative,
			&e.NativePriceUSD,
			&e.GasPaidNative,
			&e.TokenCount,
			&e.SpamTokenCount,
			&e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Chain = types.ChainID(chainStr)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}
