package orders

import "time"

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	IsDigital  *bool     `json:"is_digital,omitempty"` // NULL on rows older than the flag
	HasEbook   bool      `json:"has_ebook"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Order struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"` // empty for guest checkouts
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Status        Status    `json:"status"`
	TotalCents    int       `json:"total_cents"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderItem is the purchase-time snapshot of a product. ProductID is empty on
// legacy rows that only kept the name.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name"`
	Qty         int    `json:"qty"`
	PriceCents  int    `json:"price_cents"`
}

type Customer struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}
