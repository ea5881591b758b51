package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certmint/internal/model"
)

const assetColumns = `id, owner_id, asset_type, wallet_address,
cert_status, cert_chain, cert_tx_hash, cert_token_id, cert_explorer_url,
cert_minting_since, cert_created_at, cert_updated_at, created_at, updated_at`

// Postgres persists assets in a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Create(ctx context.Context, asset *model.Asset) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO assets (id, owner_id, asset_type, wallet_address, cert_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (id) DO NOTHING
`, asset.ID, asset.OwnerID, asset.Type, asset.WalletAddress, model.CertStatusUncertified)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (p *Postgres) GetByID(ctx context.Context, id string, scope Scope) (*model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	args := []any{id}
	if !scope.Service {
		query += ` AND owner_id = $2`
		args = append(args, scope.OwnerID)
	}

	asset, err := scanAsset(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return asset, nil
}

func (p *Postgres) ClaimMinting(ctx context.Context, id, expectedStatus, chain string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
UPDATE assets
SET cert_status = $3, cert_chain = $4, cert_minting_since = now(), cert_updated_at = now(), updated_at = now()
WHERE id = $1 AND cert_status = $2
`, id, expectedStatus, model.CertStatusMinting, chain)
	if err != nil {
		return false, fmt.Errorf("claim minting for asset %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) MarkMinted(ctx context.Context, id string, cert Certificate) (*model.Asset, error) {
	asset, err := scanAsset(p.pool.QueryRow(ctx, `
UPDATE assets
SET cert_status = $2, cert_chain = $3, cert_tx_hash = $4, cert_token_id = $5, cert_explorer_url = $6,
    cert_minting_since = NULL, cert_created_at = now(), cert_updated_at = now(), updated_at = now()
WHERE id = $1 AND cert_status = $7
RETURNING `+assetColumns,
		id, model.CertStatusMinted, cert.Chain, cert.TxHash, cert.TokenID, cert.ExplorerURL,
		model.CertStatusMinting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mark asset %s minted: asset is not minting", id)
		}
		return nil, fmt.Errorf("mark asset %s minted: %w", id, err)
	}
	return asset, nil
}

func (p *Postgres) MarkFailed(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE assets
SET cert_status = $2, cert_minting_since = NULL, cert_updated_at = now(), updated_at = now()
WHERE id = $1 AND cert_status = $3
`, id, model.CertStatusFailed, model.CertStatusMinting)
	if err != nil {
		return fmt.Errorf("mark asset %s failed: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("mark asset %s failed: asset is not minting", id)
	}
	return nil
}

func (p *Postgres) ListStuckMinting(ctx context.Context, olderThan time.Time, limit int) ([]model.Asset, error) {
	rows, err := p.pool.Query(ctx, `
SELECT `+assetColumns+`
FROM assets
WHERE cert_status = $1 AND cert_minting_since < $2
ORDER BY cert_minting_since
LIMIT $3
`, model.CertStatusMinting, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck minting: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stuck asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck assets: %w", err)
	}
	return assets, nil
}

func scanAsset(row pgx.Row) (*model.Asset, error) {
	var a model.Asset
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Type, &a.WalletAddress,
		&a.CertStatus, &a.CertChain, &a.CertTxHash, &a.CertTokenID, &a.CertExplorerURL,
		&a.CertMintingSince, &a.CertCreatedAt, &a.CertUpdatedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
