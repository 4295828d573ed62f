// Package rediscache caches pricing grids in Redis in front of the rule
// repository.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/pricing"
)

// DefaultPrefix namespaces tier cache keys.
const DefaultPrefix = "printshop:tiers:"

var _ pricing.Repository = (*TierCache)(nil)

// TierCache is a read-through cache over a pricing.Repository. Redis failures
// are logged and fall back to the repository.
type TierCache struct {
	next   pricing.Repository
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewTierCache wraps next. A nil client or non-positive ttl disables caching.
func NewTierCache(next pricing.Repository, client redis.UniversalClient, ttl time.Duration) *TierCache {
	return &TierCache{next: next, client: client, ttl: ttl, prefix: DefaultPrefix}
}

func (c *TierCache) enabled() bool {
	return c.client != nil && c.ttl > 0
}

func (c *TierCache) key(sig cart.Signature) string {
	return c.prefix + sig.Key()
}

// FindTiers returns the cached grid of sig, loading it from the repository
// on a miss. Empty grids are cached too.
func (c *TierCache) FindTiers(ctx context.Context, sig cart.Signature) ([]pricing.Tier, error) {
	if !c.enabled() {
		return c.next.FindTiers(ctx, sig)
	}
	lg := zctx.From(ctx)

	data, err := c.client.Get(ctx, c.key(sig)).Bytes()
	switch {
	case err == nil:
		tiers, err := decodeTiers(sig, data)
		if err == nil {
			return tiers, nil
		}
		lg.Warn("Corrupt tier cache entry", zap.String("signature", sig.String()), zap.Error(err))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Tier cache read failed", zap.String("signature", sig.String()), zap.Error(err))
	}

	tiers, err := c.next.FindTiers(ctx, sig)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, c.key(sig), encodeTiers(tiers), c.ttl).Err(); err != nil {
		lg.Warn("Tier cache write failed", zap.String("signature", sig.String()), zap.Error(err))
	}
	return tiers, nil
}

// Invalidate drops the cached grid of sig.
func (c *TierCache) Invalidate(ctx context.Context, sig cart.Signature) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(sig)).Err(); err != nil {
		return errors.Wrapf(err, "invalidate %s", sig)
	}
	return nil
}

// InvalidateAll drops every cached grid.
func (c *TierCache) InvalidateAll(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "scan tier keys")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "delete tier keys")
	}
	return nil
}

// The signature is the cache key, so entries only carry the tier fields.
func encodeTiers(tiers []pricing.Tier) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, t := range tiers {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(t.ID)
		e.FieldStart("seq")
		e.Int(t.Seq)
		e.FieldStart("blockSize")
		e.Int(t.BlockSize)
		e.FieldStart("blockPriceCents")
		e.Int64(t.BlockPriceCents)
		e.FieldStart("maxApplications")
		if t.MaxApplications != nil {
			e.Int(*t.MaxApplications)
		} else {
			e.Null()
		}
		e.FieldStart("isActive")
		e.Bool(t.IsActive)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeTiers(sig cart.Signature, data []byte) ([]pricing.Tier, error) {
	tiers := []pricing.Tier{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		t := pricing.Tier{Signature: sig}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				t.ID, err = d.Int64()
			case "seq":
				t.Seq, err = d.Int()
			case "blockSize":
				t.BlockSize, err = d.Int()
			case "blockPriceCents":
				t.BlockPriceCents, err = d.Int64()
			case "maxApplications":
				if d.Next() == jx.Null {
					return d.Null()
				}
				var v int
				v, err = d.Int()
				t.MaxApplications = &v
			case "isActive":
				t.IsActive, err = d.Bool()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		tiers = append(tiers, t)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode tiers")
	}
	return tiers, nil
}
