package model

import "time"

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantTrial     TenantStatus = "trial"
	TenantSuspended TenantStatus = "suspended"
	TenantInactive  TenantStatus = "inactive"
)

// Tenant is an operator account; ChatID is its Telegram chat and its identity.
type Tenant struct {
	ChatID    int64        `db:"chat_id"`
	Name      string       `db:"name"`
	Status    TenantStatus `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// ReceivesDigest reports whether the daily digest targets this tenant.
func (t Tenant) ReceivesDigest() bool {
	return t.Status == TenantActive || t.Status == TenantTrial
}

// Setting keys stored in tenant_settings.
const (
	SettingCheckTime = "check_time"
	SettingSendTime  = "send_time"
)

// TenantSchedule is the typed per-tenant schedule override. Nil fields fall
// back to the global defaults.
type TenantSchedule struct {
	TenantID  int64
	CheckTime *string
	SendTime  *string
}

// Resolve returns the effective (check, send) pair, per-tenant first.
func (s TenantSchedule) Resolve(defCheck, defSend string) (check, send string) {
	check, send = defCheck, defSend
	if s.CheckTime != nil && *s.CheckTime != "" {
		check = *s.CheckTime
	}
	if s.SendTime != nil && *s.SendTime != "" {
		send = *s.SendTime
	}
	return check, send
}
