package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

const activityColumns = `id, user_id, event, description, ip, city, region, country, created_at`

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) Insert(ctx context.Context, a *models.UserActivity) (*models.UserActivity, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO user_activity (user_id, event, description, ip, city, region, country)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+activityColumns,
		a.UserID, a.Event, a.Description, a.IP, a.City, a.Region, a.Country,
	)
	return scanActivity(row)
}

// Page returns one page of rows, newest first, and the total row count.
// A nil userID means every user.
func (r *ActivityRepo) Page(ctx context.Context, userID *uuid.UUID, offset, limit int) ([]models.UserActivity, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_activity WHERE $1::uuid IS NULL OR user_id = $1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM user_activity
		 WHERE $1::uuid IS NULL OR user_id = $1
		 ORDER BY created_at DESC, id DESC
		 OFFSET $2 LIMIT $3`,
		userID, offset, limit,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectActivities(rows)
	return out, total, err
}

func (r *ActivityRepo) Latest(ctx context.Context, limit int) ([]models.UserActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM user_activity ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// Truncate empties the activity log through the schema's helper function.
func (r *ActivityRepo) Truncate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `SELECT truncate_user_activity()`)
	return err
}

func scanActivity(row scannable) (*models.UserActivity, error) {
	var a models.UserActivity
	if err := row.Scan(&a.ID, &a.UserID, &a.Event, &a.Description, &a.IP,
		&a.City, &a.Region, &a.Country, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectActivities(rows rowsIter) ([]models.UserActivity, error) {
	out := []models.UserActivity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
