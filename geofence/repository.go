package geofence

import (
	"context"

	"food-delivery/tracking/models"
)

// Repository persists zones. The Index treats it as best-effort.
type Repository interface {
	Insert(ctx context.Context, zone *models.Zone) error
	List(ctx context.Context) ([]models.Zone, error)
}
