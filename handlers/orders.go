package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"food-delivery/tracking/models"
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
}

func orderParams(c *fiber.Ctx) (string, models.OrderRole, error) {
	orderID := c.Params("orderId")
	role := models.OrderRole(c.Params("role"))
	if orderID == "" {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "order id is required")
	}
	if !role.Valid() {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "role must be user or dasher")
	}
	return orderID, role, nil
}

// putOrderLocation godoc
// @Summary Report a location over REST
// @Description Fallback for clients without a websocket. The update is also broadcast to the order's group.
// @Tags orders
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Param role path string true "user or dasher"
// @Param location body locationRequest true "Location"
// @Success 200 {object} models.OrderLocation
// @Failure 400 {object} map[string]string
// @Router /orders/{orderId}/location/{role} [put]
func (s *Server) putOrderLocation(c *fiber.Ctx) error {
	orderID, role, err := orderParams(c)
	if err != nil {
		return err
	}

	var req locationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	report := models.PositionReport{
		EntityID:  models.OrderEntityID(orderID, role),
		Role:      role.Role(),
		GroupID:   orderID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Heading:   req.Heading,
		Speed:     req.Speed,
	}
	if _, err := s.gateway.Report(c.UserContext(), report); err != nil {
		return err
	}

	rec, err := s.positions.Get(c.UserContext(), report.EntityID)
	if err != nil {
		// the store refused the write; answer with what was accepted for broadcast
		return c.JSON(models.OrderLocation{
			OrderID:   orderID,
			Role:      role,
			Latitude:  report.Latitude,
			Longitude: report.Longitude,
			Heading:   report.Heading,
			Speed:     report.Speed,
		})
	}
	return c.JSON(orderLocation(orderID, role, rec))
}

// getOrderLocation godoc
// @Summary Last known location for an order role
// @Tags orders
// @Produce json
// @Param orderId path string true "Order ID"
// @Param role path string true "user or dasher"
// @Success 200 {object} models.OrderLocation
// @Failure 404 {object} map[string]string
// @Router /orders/{orderId}/location/{role} [get]
func (s *Server) getOrderLocation(c *fiber.Ctx) error {
	orderID, role, err := orderParams(c)
	if err != nil {
		return err
	}

	rec, err := s.positions.Get(c.UserContext(), models.OrderEntityID(orderID, role))
	if errors.Is(err, models.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "location not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(orderLocation(orderID, role, rec))
}

func orderLocation(orderID string, role models.OrderRole, rec models.TrackedPosition) models.OrderLocation {
	return models.OrderLocation{
		OrderID:   orderID,
		Role:      role,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Heading:   rec.Heading,
		Speed:     rec.Speed,
		UpdatedAt: rec.UpdatedAt,
	}
}
