package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// Record stores one snapshot row per quote.
func (r *PriceRepo) Record(ctx context.Context, quotes []models.CoinPrice) error {
	for _, q := range quotes {
		ts := q.RecordedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO price_history (coin, price, source, recorded_at) VALUES ($1, $2, $3, $4)`,
			string(q.Coin), q.USD, q.Source, ts,
		); err != nil {
			return fmt.Errorf("record %s: %w", q.Coin, err)
		}
	}
	return nil
}

// Latest returns the most recent recorded quote for each coin.
func (r *PriceRepo) Latest(ctx context.Context) ([]models.CoinPrice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (coin) coin, price, source, recorded_at
		 FROM price_history
		 ORDER BY coin, recorded_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

// Prune drops snapshots older than the cutoff.
func (r *PriceRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_history WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectPrices(rows rowsIter) ([]models.CoinPrice, error) {
	out := []models.CoinPrice{}
	for rows.Next() {
		var p models.CoinPrice
		var coin string
		if err := rows.Scan(&coin, &p.USD, &p.Source, &p.RecordedAt); err != nil {
			return nil, err
		}
		p.Coin = models.Symbol(coin)
		out = append(out, p)
	}
	return out, rows.Err()
}
