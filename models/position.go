package models

import (
	"fmt"
	"math"
	"time"
)

type Role string

const (
	RoleCourier   Role = "courier"
	RoleRecipient Role = "recipient"
	RoleVendor    Role = "vendor"
)

// Valid reports whether r is empty or one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case "", RoleCourier, RoleRecipient, RoleVendor:
		return true
	}
	return false
}

// PositionReport is a single inbound position sample. It is never stored as-is.
type PositionReport struct {
	EntityID  string
	Name      string
	Role      Role
	GroupID   string
	Latitude  float64
	Longitude float64
	Heading   *float64
	Speed     *float64
	Timestamp time.Time
}

func (r *PositionReport) Validate() error {
	return ValidateCoordinate(r.Latitude, r.Longitude)
}

// ValidateCoordinate checks lat ∈ [-90, 90] and lng ∈ [-180, 180].
func ValidateCoordinate(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidCoordinate, lng)
	}
	return nil
}

// TrackedPosition is the current state for one entity. Values are replaced
// wholesale on every accepted report; pointer fields are never mutated after
// the record is built.
type TrackedPosition struct {
	EntityID   string    `json:"entity_id"`
	Name       string    `json:"name,omitempty"`
	Role       Role      `json:"role,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Stale reports whether the record is older than ttl at now. A zero ttl
// disables staleness.
func (p *TrackedPosition) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(p.UpdatedAt) > ttl
}
