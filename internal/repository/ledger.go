package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

const ledgerColumns = `id, user_id, coin, network, amount, status, created_at`

// LedgerRepo reads and writes the investments and withdrawals tables, which
// share a shape.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func ledgerTable(kind models.LedgerKind) (string, error) {
	switch kind {
	case models.KindInvestment, models.KindWithdrawal:
		return string(kind), nil
	}
	return "", fmt.Errorf("unknown ledger kind %q", kind)
}

// Create inserts a pending row. Status is never taken from the caller.
func (r *LedgerRepo) Create(ctx context.Context, kind models.LedgerKind, e *models.LedgerEntry) (*models.LedgerEntry, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return nil, err
	}
	var network *string
	if e.Network != nil {
		n := string(*e.Network)
		network = &n
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO `+table+` (user_id, coin, network, amount, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING `+ledgerColumns,
		e.UserID, string(e.Coin), network, e.Amount,
	)
	return scanLedgerEntry(row)
}

// Get returns nil, nil when the row does not exist.
func (r *LedgerRepo) Get(ctx context.Context, kind models.LedgerKind, id int64) (*models.LedgerEntry, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM `+table+` WHERE id = $1`, id)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *LedgerRepo) ListByUser(ctx context.Context, kind models.LedgerKind, userID uuid.UUID) ([]models.LedgerEntry, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM `+table+`
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

func (r *LedgerRepo) ListAll(ctx context.Context, kind models.LedgerKind) ([]models.LedgerEntry, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+ledgerColumns+` FROM `+table+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

// Approve moves a row to success. Approving an approved row is a no-op
// that still returns the row; concurrent approvals are last-write-wins.
func (r *LedgerRepo) Approve(ctx context.Context, kind models.LedgerKind, id int64) (*models.LedgerEntry, error) {
	return r.UpdateStatus(ctx, kind, id, models.StatusSuccess)
}

func (r *LedgerRepo) UpdateStatus(ctx context.Context, kind models.LedgerKind, id int64, status models.Status) (*models.LedgerEntry, error) {
	table, err := ledgerTable(kind)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE `+table+` SET status = $2 WHERE id = $1 RETURNING `+ledgerColumns,
		id, string(status),
	)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// --- scan helpers ---

func scanLedgerEntry(row scannable) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var coin, status string
	var network *string
	if err := row.Scan(&e.ID, &e.UserID, &coin, &network, &e.Amount, &status, &e.CreatedAt); err != nil {
		return nil, err
	}
	fillLedgerEntry(&e, coin, network, status)
	return &e, nil
}

func collectLedgerEntries(rows rowsIter) ([]models.LedgerEntry, error) {
	out := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		var coin, status string
		var network *string
		if err := rows.Scan(&e.ID, &e.UserID, &coin, &network, &e.Amount, &status, &e.CreatedAt); err != nil {
			return nil, err
		}
		fillLedgerEntry(&e, coin, network, status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func fillLedgerEntry(e *models.LedgerEntry, coin string, network *string, status string) {
	e.Coin = models.Symbol(coin)
	e.Status = models.Status(status)
	if network != nil {
		n := models.Network(*network)
		e.Network = &n
	}
}
