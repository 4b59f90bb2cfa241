package client

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"food-delivery/tracking/broadcast"
	"food-delivery/tracking/geofence"
	"food-delivery/tracking/handlers"
	"food-delivery/tracking/location"
	"food-delivery/tracking/models"
	"food-delivery/tracking/position"
)

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func trackingServer(t *testing.T) string {
	t.Helper()
	positions := position.NewStore(nil, nil)
	zones := geofence.NewIndex(nil, nil)
	gw := location.NewGateway(positions, zones, broadcast.NewDispatcher(broadcast.NewRegistry()))
	srv := handlers.NewServer(handlers.Deps{Gateway: gw, Positions: positions, Zones: zones})
	return serve(t, handlers.NewApp(srv, handlers.AppConfig{}))
}

func TestRoundTrip(t *testing.T) {
	c := New(trackingServer(t), WithRetryDelay(10*time.Millisecond))
	ctx := context.Background()

	if _, err := c.GetLocation(ctx, "order123", models.OrderRoleUser); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any report, got %v", err)
	}

	loc, err := c.PutLocation(ctx, "order123", models.OrderRoleUser, LocationUpdate{Latitude: 10.0, Longitude: 120.0})
	if err != nil {
		t.Fatal(err)
	}
	if loc.Latitude != 10.0 || loc.Longitude != 120.0 {
		t.Fatalf("unexpected put response %+v", loc)
	}

	loc, err = c.GetLocation(ctx, "order123", models.OrderRoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Latitude != 10.0 || loc.Longitude != 120.0 || loc.Role != models.OrderRoleUser {
		t.Fatalf("unexpected location %+v", loc)
	}

	if _, err := c.GetLocation(ctx, "order123", models.OrderRoleDasher); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected dasher location to be absent, got %v", err)
	}
}

func TestPutLocation_RejectsWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.SendStatus(fiber.StatusOK)
	})
	c := New(serve(t, app))

	_, err := c.PutLocation(context.Background(), "order123", models.OrderRoleUser, LocationUpdate{Latitude: 91.0, Longitude: 120.0})
	if !errors.Is(err, models.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request, got %d", hits.Load())
	}
}

func TestPutLocation_ServerRejections(t *testing.T) {
	heading := 500.0
	_, err := New(trackingServer(t)).PutLocation(context.Background(), "order123", models.OrderRoleUser,
		LocationUpdate{Latitude: 10, Longitude: 120, Heading: &heading})
	if !errors.Is(err, models.ErrInvalidPayload) || errors.Is(err, models.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidPayload for bad heading, got %v", err)
	}

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"coordinate", fiber.StatusBadRequest, `{"error":"invalid coordinate: latitude 91 must be between -90 and 90"}`, models.ErrInvalidCoordinate},
		{"other bad request", fiber.StatusBadRequest, `{"error":"invalid request body"}`, models.ErrInvalidPayload},
		{"not found", fiber.StatusNotFound, `{"error":"Cannot PUT /orders"}`, models.ErrInvalidPayload},
		{"coordinate text on 422", fiber.StatusUnprocessableEntity, `{"error":"invalid coordinate: whatever"}`, models.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			app := fiber.New(fiber.Config{DisableStartupMessage: true})
			app.Put("/orders/:orderId/location/:role", func(c *fiber.Ctx) error {
				hits.Add(1)
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(tt.status).SendString(tt.body)
			})
			c := New(serve(t, app), WithRetryDelay(time.Millisecond))

			_, err := c.PutLocation(context.Background(), "o1", models.OrderRoleUser, LocationUpdate{Latitude: 1, Longitude: 1})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == models.ErrInvalidPayload && errors.Is(err, models.ErrInvalidCoordinate) {
				t.Fatalf("did not expect ErrInvalidCoordinate, got %v", err)
			}
			if hits.Load() != 1 {
				t.Fatalf("expected no retry, got %d attempts", hits.Load())
			}
		})
	}
}

func TestPutLocation_RetriesOnce(t *testing.T) {
	var hits atomic.Int32
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Put("/orders/:orderId/location/:role", func(c *fiber.Ctx) error {
		if hits.Add(1) == 1 {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		return c.JSON(fiber.Map{"order_id": c.Params("orderId"), "role": c.Params("role"), "latitude": 1.5, "longitude": 2.5})
	})
	c := New(serve(t, app), WithRetryDelay(time.Millisecond))

	loc, err := c.PutLocation(context.Background(), "o1", models.OrderRoleDasher, LocationUpdate{Latitude: 1.5, Longitude: 2.5})
	if err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 || loc.Latitude != 1.5 {
		t.Fatalf("expected success on second attempt, hits=%d loc=%+v", hits.Load(), loc)
	}
}

func TestPutLocation_GivesUpAfterOneRetry(t *testing.T) {
	var hits atomic.Int32
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Put("/orders/:orderId/location/:role", func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.SendStatus(fiber.StatusBadGateway)
	})
	c := New(serve(t, app), WithRetryDelay(time.Millisecond))

	_, err := c.PutLocation(context.Background(), "o1", models.OrderRoleDasher, LocationUpdate{Latitude: 1, Longitude: 1})
	if !errors.Is(err, models.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected exactly two attempts, got %d", hits.Load())
	}
}

func TestPutLocation_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := New("http://"+addr, WithRetryDelay(time.Millisecond), WithTimeout(time.Second))
	_, err = c.PutLocation(context.Background(), "o1", models.OrderRoleUser, LocationUpdate{Latitude: 1, Longitude: 1})
	if !errors.Is(err, models.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestGetLocation_MalformedPayload(t *testing.T) {
	bodies := map[string]string{
		"string":  `{"latitude":"abc","longitude":1}`,
		"missing": `{"longitude":1}`,
		"range":   `{"latitude":95,"longitude":1}`,
		"garbage": `<html>`,
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/orders/:orderId/location/:role", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(bodies[c.Params("orderId")])
	})
	c := New(serve(t, app))

	for name := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := c.GetLocation(context.Background(), name, models.OrderRoleUser)
			if !errors.Is(err, models.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDecodeLocation(t *testing.T) {
	loc, err := decodeLocation([]byte(`{"order_id":"o1","role":"dasher","latitude":-10.5,"longitude":33,"speed":4}`))
	if err != nil {
		t.Fatal(err)
	}
	if loc.OrderID != "o1" || loc.Role != models.OrderRoleDasher || loc.Latitude != -10.5 || loc.Longitude != 33 {
		t.Fatalf("unexpected location %+v", loc)
	}
	if loc.Speed == nil || *loc.Speed != 4 {
		t.Fatalf("expected speed 4, got %v", loc.Speed)
	}
}
