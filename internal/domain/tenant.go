package domain

import "time"

// Tenant is the isolation boundary. Every other entity carries its id and is
// never read or written without it.
type Tenant struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}
