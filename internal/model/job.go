package model

import "fmt"

type JobKind string

const (
	JobCheck JobKind = "check"
	JobSend  JobKind = "send"
)

// GlobalTenant marks the degraded-mode job pair that serves no single tenant.
const GlobalTenant int64 = 0

// JobKey identifies a registered job. At most one job exists per key.
type JobKey struct {
	TenantID int64
	Kind     JobKind
}

func (k JobKey) String() string {
	if k.TenantID == GlobalTenant {
		return fmt.Sprintf("global:%s", k.Kind)
	}
	return fmt.Sprintf("%d:%s", k.TenantID, k.Kind)
}
