package domain

import "time"

type StaffRole string

const (
	RoleStaff StaffRole = "staff"
	RoleAdmin StaffRole = "admin"
)

// Actor identifies who is performing a queue operation.
type Actor struct {
	ID   string    `json:"id"`
	Role StaffRole `json:"role"`
}

// CanBypassConcurrencyLimit is the capability behind the admin bypass of
// per-staff ceilings, kept in one place instead of scattered role
// comparisons.
func (a Actor) CanBypassConcurrencyLimit() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// StaffSettings is per-staff queue configuration owned by admins.
// Staff without a row fall back to global defaults from config.
type StaffSettings struct {
	StaffID            string        `json:"staff_id"`
	MaxConcurrentFiles int           `json:"max_concurrent_files"`
	TimeLimit          time.Duration `json:"time_limit"`
}
