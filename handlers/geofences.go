package handlers

import (
	"github.com/gofiber/fiber/v2"

	"food-delivery/tracking/models"
)

type createGeofenceRequest struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Coordinates models.Ring `json:"coordinates" validate:"required,min=3"`
	CreatedBy   string      `json:"created_by,omitempty" validate:"max=200"`
}

// listGeofences godoc
// @Summary List registered zones
// @Tags geofences
// @Produce json
// @Success 200 {array} models.Zone
// @Router /geofences [get]
func (s *Server) listGeofences(c *fiber.Ctx) error {
	return c.JSON(s.zones.Zones())
}

// createGeofence godoc
// @Summary Register a zone
// @Description Coordinates are [lng, lat] pairs. An open ring is closed automatically.
// @Tags geofences
// @Accept json
// @Produce json
// @Param zone body createGeofenceRequest true "Zone"
// @Success 201 {object} models.Zone
// @Failure 400 {object} map[string]string
// @Router /geofences [post]
func (s *Server) createGeofence(c *fiber.Ctx) error {
	var req createGeofenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	zone, err := s.zones.AddZone(c.UserContext(), req.Name, req.Coordinates, req.CreatedBy)
	if err != nil {
		return err
	}
	s.log.Info("geofence created", "zone_id", zone.ID, "name", zone.Name, "vertices", len(zone.Ring))
	return c.Status(fiber.StatusCreated).JSON(zone)
}
