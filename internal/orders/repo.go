package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int    `json:"qty" validate:"min=1"`
}

type Repo struct{ DB *pgxpool.Pool }

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidItem       = errors.New("invalid order item")
)

const orderColumns = `id, COALESCE(user_id, ''), customer_name, customer_email, status, total_cents, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var s string
	err := row.Scan(&o.ID, &o.UserID, &o.CustomerName, &o.CustomerEmail, &s, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(s)
	return o, err
}

// CreateOrderTx: idempotent via external_id. Returns existed=true with the stored order
// when the key was already used.
// Prices and names are snapshotted from products, never trusted from the client.
func (r *Repo) CreateOrderTx(ctx context.Context, externalID string, c Customer, items []ItemInput) (orderID string, total int, existed bool, err error) {
	row := r.DB.QueryRow(ctx, `SELECT id, total_cents FROM orders WHERE external_id=$1`, externalID)
	if err = row.Scan(&orderID, &total); err == nil {
		return orderID, total, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	rows, err := tx.Query(ctx, `SELECT id, name, price_cents FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return "", 0, false, err
	}
	type snap struct {
		name  string
		price int
	}
	byID := map[string]snap{}
	for rows.Next() {
		var id string
		var s snap
		if err := rows.Scan(&id, &s.name, &s.price); err != nil {
			rows.Close()
			return "", 0, false, err
		}
		byID[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", 0, false, err
	}

	for _, it := range items {
		s, ok := byID[it.ProductID]
		if !ok {
			return "", 0, false, fmt.Errorf("%w: product not found: %s", ErrInvalidItem, it.ProductID)
		}
		if it.Qty <= 0 {
			return "", 0, false, fmt.Errorf("%w: invalid qty for product %s", ErrInvalidItem, it.ProductID)
		}
		total += s.price * it.Qty
	}

	orderID = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, customer_name, customer_email, status, total_cents)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`, orderID, externalID, c.UserID, c.Name, c.Email, string(StatusPending), total)
	if err != nil {
		return "", 0, false, err
	}

	for _, it := range items {
		s := byID[it.ProductID]
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, s.name, it.Qty, s.price,
		)
		if err != nil {
			return "", 0, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, false, err
	}
	return orderID, total, false, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// UpdateStatus locks the order row, validates the transition and commits the new
// status. It returns the previous status.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) (Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var s string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	from := Status(s)
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, string(to)); err != nil {
		return from, err
	}
	if err := tx.Commit(ctx); err != nil {
		return from, err
	}
	return from, nil
}

// ListOrdersForUser returns orders linked to userID, plus unlinked orders whose customer
// email equals email (case-insensitive) when email is non-empty.
func (r *Repo) ListOrdersForUser(ctx context.Context, userID, email string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 OR ($2 <> '' AND user_id IS NULL AND lower(customer_email)=$2)
		ORDER BY created_at`, userID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ListItems(ctx context.Context, orderIDs ...string) ([]OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT id, order_id, COALESCE(product_id, ''), product_name, qty, price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT p.id, p.name, COALESCE(p.category, ''), p.is_digital,
			EXISTS (SELECT 1 FROM ebooks e WHERE e.product_id = p.id),
			p.price_cents, p.stock, p.created_at, p.updated_at
		FROM products p ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.IsDigital, &p.HasEbook,
			&p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
