package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusError   MessageStatus = "error"
)

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) Valid() bool {
	return s == StatusPending || s == StatusSent || s == StatusError
}

// Terminal reports whether no further transition is allowed.
func (s MessageStatus) Terminal() bool {
	return s == StatusSent || s == StatusError
}

// Variables are the template placeholders of a queued message (keys unique).
type Variables map[string]string

// Value stores Variables as a JSON document.
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads Variables back from a JSON column.
func (v *Variables) Scan(src any) error {
	var b []byte
	switch t := src.(type) {
	case nil:
		*v = Variables{}
		return nil
	case []byte:
		b = t
	case string:
		b = []byte(t)
	default:
		return errors.New("variables: unsupported column type")
	}
	m := map[string]string{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
	}
	*v = m
	return nil
}

// QueuedMessage is the DB entity persisted in the message_queue table.
// Rows are never deleted; they double as the delivery audit trail.
type QueuedMessage struct {
	ID             string        `db:"id"              json:"id"` // ULID, sorts by creation time
	TenantID       int64         `db:"tenant_id"       json:"tenant_id"`
	ClientID       int64         `db:"client_id"       json:"client_id"`
	TemplateID     int64         `db:"template_id"     json:"template_id"`
	Phone          string        `db:"phone"           json:"phone"`
	Variables      Variables     `db:"variables"       json:"variables"`
	ScheduledDate  time.Time     `db:"scheduled_date"  json:"scheduled_date"`
	Status         MessageStatus `db:"status"          json:"status"`
	ErrorNote      *string       `db:"error_note"      json:"error_note,omitempty"`
	SentAt         *time.Time    `db:"sent_at"         json:"sent_at,omitempty"`
	IdempotencyKey string        `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time     `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"      json:"updated_at"`
}
