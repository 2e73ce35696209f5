package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var errStaleGeneration = errors.New("balance generation moved")

// BalanceCache implements ports.BalanceCache. Entries are JSON-encoded
// WalletBalance values keyed by wallet ID; a second key per wallet holds the
// generation counter that Invalidate increments.
type BalanceCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewBalanceCache creates a Redis-backed balance cache. A non-positive ttl
// stores entries without expiry.
func NewBalanceCache(client *goredis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{
		client: client,
		prefix: "balance:",
		ttl:    ttl,
	}
}

func (c *BalanceCache) key(walletID uuid.UUID) string {
	return c.prefix + walletID.String()
}

func (c *BalanceCache) genKey(walletID uuid.UUID) string {
	return c.prefix + "gen:" + walletID.String()
}

// Get returns nil and the wallet's current generation on a miss.
func (c *BalanceCache) Get(ctx context.Context, walletID uuid.UUID) (*domain.WalletBalance, int64, error) {
	var entry, gen *goredis.StringCmd
	_, err := c.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		entry = p.Get(ctx, c.key(walletID))
		gen = p.Get(ctx, c.genKey(walletID))
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, fmt.Errorf("redis balance get: %w", err)
	}

	generation, err := gen.Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, fmt.Errorf("redis balance generation: %w", err)
	}
	raw, err := entry.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, generation, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis balance get: %w", err)
	}

	var b domain.WalletBalance
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, 0, fmt.Errorf("decode cached balance: %w", err)
	}
	return &b, generation, nil
}

// Set stores balance if the wallet is still at generation. A balance read
// before a later Invalidate is silently dropped.
func (c *BalanceCache) Set(ctx context.Context, balance *domain.WalletBalance, generation int64) error {
	raw, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}

	genKey := c.genKey(balance.Wallet.ID)
	err = c.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, c.key(balance.Wallet.ID), raw, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, goredis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("redis balance set: %w", err)
	}
}

// Invalidate drops the cached entry and bumps the generation; a missing key is
// not an error.
func (c *BalanceCache) Invalidate(ctx context.Context, walletID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Incr(ctx, c.genKey(walletID))
		p.Del(ctx, c.key(walletID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis balance invalidate: %w", err)
	}
	return nil
}
