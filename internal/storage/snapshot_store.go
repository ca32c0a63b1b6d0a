package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/types"
)

// PostgresSnapshotStore keeps one wallet snapshot row per (address, chain)
type PostgresSnapshotStore struct {
	db *PostgresDB
}

// NewPostgresSnapshotStore creates a snapshot store backed by Postgres
func NewPostgresSnapshotStore(db *PostgresDB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

// Get returns the stored snapshot, or nil when the wallet has none
func (s *PostgresSnapshotStore) Get(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, error) {
	query := `
		SELECT
			address, chain, native_symbol, native_price_usd, native_balance,
			native_balance_usd, net_worth_usd, net_worth_native,
			total_gas_paid_native, total_gas_paid_usd, spam_token_count,
			tokens, insights, degraded, last_updated
		FROM wallet_snapshots
		WHERE address = $1 AND chain = $2
	`

	var (
		snap                              models.WalletSnapshot
		chainStr                          string
		tokensJSON, insightsJSON, degJSON []byte
	)
	err := s.db.Pool().QueryRow(ctx, query, types.NormalizeAddress(address), string(chain)).Scan(
		&snap.Address,
		&chainStr,
		&snap.NativeSymbol,
		&snap.NativePriceUSD,
		&snap.NativeBalance,
		&snap.NativeBalanceUSD,
		&snap.NetWorthUSD,
		&snap.NetWorthNative,
		&snap.TotalGasPaidNative,
		&snap.TotalGasPaidUSD,
		&snap.SpamTokenCount,
		&tokensJSON,
		&insightsJSON,
		&degJSON,
		&snap.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet snapshot: %w", err)
	}
	snap.Chain = types.ChainID(chainStr)

	if err := json.Unmarshal(tokensJSON, &snap.Tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}
	if err := json.Unmarshal(insightsJSON, &snap.Insights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal insights: %w", err)
	}
	if len(degJSON) > 0 {
		if err := json.Unmarshal(degJSON, &snap.Degraded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal degraded figures: %w", err)
		}
	}

	return &snap, nil
}

// Upsert replaces the stored snapshot for the snapshot's (address, chain)
func (s *PostgresSnapshotStore) Upsert(ctx context.Context, snapshot *models.WalletSnapshot) error {
	tokensJSON, err := json.Marshal(nonNilTokens(snapshot.Tokens))
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	insightsJSON, err := json.Marshal(nonNilInsights(snapshot.Insights))
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}
	degJSON, err := json.Marshal(snapshot.Degraded)
	if err != nil {
		return fmt.Errorf("failed to marshal degraded figures: %w", err)
	}

	query := `
		INSERT INTO wallet_snapshots (
			address, chain, native_symbol, native_price_usd, native_balance,
			native_balance_usd, net_worth_usd, net_worth_native,
			total_gas_paid_native, total_gas_paid_usd, spam_token_count,
			tokens, insights, degraded, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (address, chain)
		DO UPDATE SET
			native_symbol = EXCLUDED.native_symbol,
			native_price_usd = EXCLUDED.native_price_usd,
			native_balance = EXCLUDED.native_balance,
			native_balance_usd = EXCLUDED.native_balance_usd,
			net_worth_usd = EXCLUDED.net_worth_usd,
			net_worth_native = EXCLUDED.net_worth_native,
			total_gas_paid_native = EXCLUDED.total_gas_paid_native,
			total_gas_paid_usd = EXCLUDED.total_gas_paid_usd,
			spam_token_count = EXCLUDED.spam_token_count,
			tokens = EXCLUDED.tokens,
			insights = EXCLUDED.insights,
			degraded = EXCLUDED.degraded,
			last_updated = EXCLUDED.last_updated
	`

	_, err = s.db.Pool().Exec(ctx, query,
		types.NormalizeAddress(snapshot.Address),
		string(snapshot.Chain),
		snapshot.NativeSymbol,
		snapshot.NativePriceUSD,
		snapshot.NativeBalance,
		snapshot.NativeBalanceUSD,
		snapshot.NetWorthUSD,
		snapshot.NetWorthNative,
		snapshot.TotalGasPaidNative,
		snapshot.TotalGasPaidUSD,
		snapshot.SpamTokenCount,
		tokensJSON,
		insightsJSON,
		degJSON,
		snapshot.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wallet snapshot: %w", err)
	}
	return nil
}

func nonNilTokens(t []models.TokenHolding) []models.TokenHolding {
	if t == nil {
		return []models.TokenHolding{}
	}
	return t
}

func nonNilInsights(i []models.Insight) []models.Insight {
	if i == nil {
		return []models.Insight{}
	}
	return i
}

// RedisSnapshotStore keeps snapshots as JSON values in Redis
type RedisSnapshotStore struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewRedisSnapshotStore creates a Redis snapshot store. Entries expire after
// ttl; zero keeps them until overwritten.
func NewRedisSnapshotStore(cache *RedisCache, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{cache: cache, ttl: ttl}
}

func snapshotKey(address string, chain types.ChainID) string {
	return fmt.Sprintf("snapshot:%s:%s", types.NormalizeAddress(address), chain)
}

// Get returns the stored snapshot, or nil when the key is absent
func (s *RedisSnapshotStore) Get(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, error) {
	data, err := s.cache.Client().Get(ctx, snapshotKey(address, chain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet snapshot: %w", err)
	}

	var snap models.WalletSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet snapshot: %w", err)
	}
	return &snap, nil
}

// Upsert overwrites the stored snapshot
func (s *RedisSnapshotStore) Upsert(ctx context.Context, snapshot *models.WalletSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet snapshot: %w", err)
	}
	if err := s.cache.Client().Set(ctx, snapshotKey(snapshot.Address, snapshot.Chain), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store wallet snapshot: %w", err)
	}
	return nil
}
