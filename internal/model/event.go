package model

import "time"

// MessageEvent is the payload published to Kafka on every queue transition.
// `worker events` copies the topic into ClickHouse duebot.message_events.
type MessageEvent struct {
	ID       string        `json:"id"        ch:"id"        db:"id"`
	TenantID int64         `json:"tenant_id" ch:"tenant_id" db:"tenant_id"`
	ClientID int64         `json:"client_id" ch:"client_id" db:"client_id"`
	Phone    string        `json:"phone"     ch:"phone"     db:"phone"`
	Status   MessageStatus `json:"status"    ch:"status"    db:"status"`
	Error    string        `json:"error,omitempty" ch:"error" db:"error"`
	At       time.Time     `json:"at"        ch:"at"        db:"at"`
}
