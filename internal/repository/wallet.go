package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

const walletColumns = `id, coin, network, address, updated_at, updated_by`

type WalletAddressRepo struct {
	pool *pgxpool.Pool
}

func NewWalletAddressRepo(pool *pgxpool.Pool) *WalletAddressRepo {
	return &WalletAddressRepo{pool: pool}
}

func (r *WalletAddressRepo) List(ctx context.Context) ([]models.WalletAddress, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallet_addresses ORDER BY coin ASC, network ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.WalletAddress{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// Upsert writes every address in one transaction, keyed on (coin, network).
func (r *WalletAddressRepo) Upsert(ctx context.Context, addrs []models.WalletAddress, updatedBy uuid.UUID) ([]models.WalletAddress, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	out := make([]models.WalletAddress, 0, len(addrs))
	for _, a := range addrs {
		row := tx.QueryRow(ctx,
			`INSERT INTO wallet_addresses (coin, network, address, updated_at, updated_by)
			 VALUES ($1, $2, $3, NOW(), $4)
			 ON CONFLICT (coin, network)
			 DO UPDATE SET address = EXCLUDED.address, updated_at = NOW(), updated_by = EXCLUDED.updated_by
			 RETURNING `+walletColumns,
			string(a.Coin), string(a.Network), a.Address, updatedBy,
		)
		w, err := scanWallet(row)
		if err != nil {
			return nil, fmt.Errorf("upsert %s/%s: %w", a.Coin, a.Network, err)
		}
		out = append(out, *w)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func scanWallet(row scannable) (*models.WalletAddress, error) {
	var w models.WalletAddress
	var coin, network string
	if err := row.Scan(&w.ID, &coin, &network, &w.Address, &w.UpdatedAt, &w.UpdatedBy); err != nil {
		return nil, err
	}
	w.Coin = models.Symbol(coin)
	w.Network = models.Network(network)
	return &w, nil
}
