package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a subscriber owned by a tenant. The scheduler only reads it.
type Client struct {
	ID           int64           `db:"id"`
	TenantID     int64           `db:"tenant_id"`
	Name         string          `db:"name"`
	Phone        string          `db:"phone"`
	Package      string          `db:"package"`
	Value        decimal.Decimal `db:"value"`
	DueDate      time.Time       `db:"due_date"` // civil date, time part ignored
	Active       bool            `db:"active"`
	BillingOptIn bool            `db:"billing_opt_in"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}
