package library

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("library: entitlement not found")

type Entitlement struct {
	UserID       string    `json:"user_id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	LastPosition int       `json:"last_position"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type EntitlementRepo struct{ DB *pgxpool.Pool }

// Grant inserts {user, product, last_position=0} rows. Existing (user_id, product_id)
// pairs are left untouched; only the product ids actually inserted are returned.
func (r *EntitlementRepo) Grant(ctx context.Context, userID string, productIDs []string) ([]string, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, `
		INSERT INTO library_entitlements(user_id, product_id, last_position)
		SELECT $1, pid, 0 FROM unnest($2::text[]) AS pid
		ON CONFLICT (user_id, product_id) DO NOTHING
		RETURNING product_id`, userID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var granted []string
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		granted = append(granted, pid)
	}
	return granted, rows.Err()
}

func (r *EntitlementRepo) List(ctx context.Context, userID string) ([]Entitlement, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT e.user_id, e.product_id, COALESCE(p.name, ''), e.last_position, e.created_at, e.updated_at
		FROM library_entitlements e
		LEFT JOIN products p ON p.id = e.product_id
		WHERE e.user_id=$1
		ORDER BY e.created_at, e.product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entitlement{}
	for rows.Next() {
		var e Entitlement
		if err := rows.Scan(&e.UserID, &e.ProductID, &e.ProductName, &e.LastPosition, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EntitlementRepo) UpdateProgress(ctx context.Context, userID, productID string, position int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE library_entitlements SET last_position=$3, updated_at=now()
		WHERE user_id=$1 AND product_id=$2`, userID, productID, position)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type CatalogRepo struct{ DB *pgxpool.Pool }

// Candidates loads products referenced by id, or whose trimmed lower-cased name is in
// names, together with their e-book metadata presence.
func (r *CatalogRepo) Candidates(ctx context.Context, ids, names []string) ([]Candidate, error) {
	if len(ids) == 0 && len(names) == 0 {
		return nil, nil
	}
	if ids == nil {
		ids = []string{}
	}
	if names == nil {
		names = []string{}
	}
	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.category, ''), p.is_digital,
			EXISTS (SELECT 1 FROM ebooks e WHERE e.product_id = p.id)
		FROM products p
		WHERE p.id = ANY($1) OR lower(trim(p.name)) = ANY($2)
		ORDER BY p.id`, ids, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Category, &c.IsDigital, &c.HasEbook); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
