package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary: extension schemas and record data are
// scoped per tenant.
type Tenant struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTenant creates a new tenant with immutable pattern
func NewTenant(name, description string) Tenant {
	now := time.Now()
	return Tenant{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithDescription returns a new tenant with updated description
func (t Tenant) WithDescription(description string) Tenant {
	return Tenant{
		ID:          t.ID,
		Name:        t.Name,
		Description: description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}

// WithName returns a new tenant with updated name
func (t Tenant) WithName(name string) Tenant {
	return Tenant{
		ID:          t.ID,
		Name:        name,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}
