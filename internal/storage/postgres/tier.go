package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/pricing"
)

const tierColumns = `id, product_kind, impression, bulletin_format, affiche_format,
	seq, block_size, block_price_cents, max_applications, is_active`

// Options match with IS NOT DISTINCT FROM so that an absent option only
// matches NULL.
const findTiersSQL = `SELECT ` + tierColumns + `
	FROM pricing_tiers
	WHERE is_active
	  AND product_kind = $1
	  AND impression IS NOT DISTINCT FROM $2
	  AND bulletin_format IS NOT DISTINCT FROM $3
	  AND affiche_format IS NOT DISTINCT FROM $4
	ORDER BY seq`

const listActiveSQL = `SELECT ` + tierColumns + `
	FROM pricing_tiers
	WHERE is_active
	ORDER BY product_kind, impression NULLS FIRST, bulletin_format NULLS FIRST, affiche_format NULLS FIRST, seq`

const upsertTierSQL = `INSERT INTO pricing_tiers (
		product_kind, impression, bulletin_format, affiche_format,
		seq, block_size, block_price_cents, max_applications, is_active
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT ON CONSTRAINT pricing_tiers_signature_seq_key DO UPDATE SET
		block_size        = EXCLUDED.block_size,
		block_price_cents = EXCLUDED.block_price_cents,
		max_applications  = EXCLUDED.max_applications,
		is_active         = EXCLUDED.is_active,
		updated_at        = now()
	RETURNING id`

const deactivateSignatureSQL = `UPDATE pricing_tiers SET is_active = FALSE, updated_at = now()
	WHERE product_kind = $1
	  AND impression IS NOT DISTINCT FROM $2
	  AND bulletin_format IS NOT DISTINCT FROM $3
	  AND affiche_format IS NOT DISTINCT FROM $4`

var _ pricing.Repository = (*TierRepository)(nil)

// TierRepository implements pricing.Repository backed by PostgreSQL.
type TierRepository struct {
	pool *pgxpool.Pool
}

// NewTierRepository returns a TierRepository that uses the given pool.
func NewTierRepository(pool *pgxpool.Pool) *TierRepository {
	return &TierRepository{pool: pool}
}

// FindTiers returns the active tiers of sig ordered by seq.
func (r *TierRepository) FindTiers(ctx context.Context, sig cart.Signature) ([]pricing.Tier, error) {
	rows, err := r.pool.Query(ctx, findTiersSQL,
		string(sig.Kind), nullable(sig.Impression), nullable(sig.BulletinFormat), nullable(sig.AfficheFormat),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query tiers for %s", sig)
	}
	tiers, err := pgx.CollectRows(rows, scanTier)
	if err != nil {
		return nil, errors.Wrapf(err, "scan tiers for %s", sig)
	}
	return tiers, nil
}

// ListActive returns every active tier.
func (r *TierRepository) ListActive(ctx context.Context) ([]pricing.Tier, error) {
	rows, err := r.pool.Query(ctx, listActiveSQL)
	if err != nil {
		return nil, errors.Wrap(err, "query active tiers")
	}
	tiers, err := pgx.CollectRows(rows, scanTier)
	if err != nil {
		return nil, errors.Wrap(err, "scan active tiers")
	}
	return tiers, nil
}

// UpsertTier inserts t or updates the tier with the same signature and seq.
func (r *TierRepository) UpsertTier(ctx context.Context, t pricing.Tier) (int64, error) {
	return upsertTier(ctx, r.pool, t)
}

// ReplaceGrid atomically replaces the grids of every signature present in
// tiers: existing tiers of those signatures are deactivated, then the given
// tiers are upserted.
func (r *TierRepository) ReplaceGrid(ctx context.Context, tiers []pricing.Tier) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		done := make(map[string]struct{})
		for _, t := range tiers {
			sig := t.Signature
			if _, ok := done[sig.Key()]; ok {
				continue
			}
			done[sig.Key()] = struct{}{}
			if _, err := tx.Exec(ctx, deactivateSignatureSQL,
				string(sig.Kind), nullable(sig.Impression), nullable(sig.BulletinFormat), nullable(sig.AfficheFormat),
			); err != nil {
				return errors.Wrapf(err, "deactivate %s", sig)
			}
		}
		for _, t := range tiers {
			if _, err := upsertTier(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertTier(ctx context.Context, q querier, t pricing.Tier) (int64, error) {
	var maxApps *int32
	if t.MaxApplications != nil {
		v := int32(*t.MaxApplications)
		maxApps = &v
	}
	sig := t.Signature

	var id int64
	err := q.QueryRow(ctx, upsertTierSQL,
		string(sig.Kind), nullable(sig.Impression), nullable(sig.BulletinFormat), nullable(sig.AfficheFormat),
		int32(t.Seq), int32(t.BlockSize), t.BlockPriceCents, maxApps, t.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert tier %s seq %d", sig, t.Seq)
	}
	return id, nil
}

func scanTier(row pgx.CollectableRow) (pricing.Tier, error) {
	var (
		t                      pricing.Tier
		kind                   string
		imp, bulletin, affiche *string
		seq, blockSize         int32
		maxApps                *int32
	)
	if err := row.Scan(&t.ID, &kind, &imp, &bulletin, &affiche,
		&seq, &blockSize, &t.BlockPriceCents, &maxApps, &t.IsActive,
	); err != nil {
		return pricing.Tier{}, err
	}
	t.Signature = cart.Signature{
		Kind:           cart.ProductKind(kind),
		Impression:     cart.Impression(deref(imp)),
		BulletinFormat: cart.BulletinFormat(deref(bulletin)),
		AfficheFormat:  cart.AfficheFormat(deref(affiche)),
	}
	t.Seq = int(seq)
	t.BlockSize = int(blockSize)
	if maxApps != nil {
		v := int(*maxApps)
		t.MaxApplications = &v
	}
	return t, nil
}
