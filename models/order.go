package models

import "time"

// OrderRole is the role segment of the REST fallback paths.
type OrderRole string

const (
	OrderRoleUser   OrderRole = "user"
	OrderRoleDasher OrderRole = "dasher"
)

func (r OrderRole) Valid() bool {
	return r == OrderRoleUser || r == OrderRoleDasher
}

// Role maps the REST role onto the tracked entity role.
func (r OrderRole) Role() Role {
	if r == OrderRoleDasher {
		return RoleCourier
	}
	return RoleRecipient
}

// OrderEntityID is the Position Store key for an order/role pair.
func OrderEntityID(orderID string, role OrderRole) string {
	return orderID + ":" + string(role)
}

type OrderLocation struct {
	OrderID   string    `json:"order_id"`
	Role      OrderRole `json:"role"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
