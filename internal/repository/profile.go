package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

const profileColumns = `id, name, email, is_admin, profile_pic, created_at`

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// Create inserts the profile for a new auth user. A repeated sign-up for the
// same id refreshes name and email but never touches is_admin.
func (r *ProfileRepo) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, name, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		 RETURNING `+profileColumns,
		p.ID, p.Name, p.Email,
	)
	return scanProfile(row)
}

// Get returns nil, nil when the profile does not exist.
func (r *ProfileRepo) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Update changes the user-editable fields. Nil leaves a field unchanged.
func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, name, profilePic *string) (*models.Profile, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE profiles
		 SET name = COALESCE($2, name), profile_pic = COALESCE($3, profile_pic)
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, name, profilePic,
	)
	p, err := scanProfile(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Delete removes the profile; ledger rows cascade.
func (r *ProfileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProfile(row scannable) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.IsAdmin, &p.ProfilePic, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
