package model

import "time"

// TemplateKindBilling is the template kind used for overdue reminders.
const TemplateKindBilling = "cobranca"

type Template struct {
	ID        int64     `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	Kind      string    `db:"kind"`
	Name      string    `db:"name"`
	Content   string    `db:"content"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
