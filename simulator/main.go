// Command simulator drives a mock courier along a route over the websocket
// protocol, reports the recipient's position over REST and prints what a
// watcher of the order receives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"food-delivery/tracking/client"
	"food-delivery/tracking/models"
)

type point struct{ lat, lng float64 }

// route is walked back and forth, stepsPerLeg samples between waypoints.
var route = []point{
	{40.7128, -74.0060},
	{40.7161, -74.0031},
	{40.7190, -73.9987},
	{40.7225, -73.9962},
}

const stepsPerLeg = 10

func interpolate(a, b point, t float64) point {
	return point{a.lat + (b.lat-a.lat)*t, a.lng + (b.lng-a.lng)*t}
}

func path() []point {
	var out []point
	for i := 0; i < len(route)-1; i++ {
		for s := 0; s < stepsPerLeg; s++ {
			out = append(out, interpolate(route[i], route[i+1], float64(s)/stepsPerLeg))
		}
	}
	out = append(out, route[len(route)-1])
	for i := len(out) - 2; i > 0; i-- {
		out = append(out, out[i])
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func dial(base, token string) (*websocket.Conn, error) {
	url := "ws://" + base + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	return c, err
}

func send(c *websocket.Conn, event string, data interface{}) error {
	raw, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, raw)
}

func simulateCourier(ctx context.Context, addr, token, courierID, orderID string, interval time.Duration) {
	c, err := dial(addr, token)
	if err != nil {
		log.Printf("courier connect failed: %v", err)
		return
	}
	defer c.Close()

	if err := send(c, models.EventIdentify, models.IdentifyPayload{EntityID: courierID, Name: "Mock Courier", Role: models.RoleCourier}); err != nil {
		log.Printf("identify failed: %v", err)
		return
	}
	if err := send(c, models.EventJoinRoom, models.JoinRoomPayload{GroupID: orderID}); err != nil {
		log.Printf("join failed: %v", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	steps := path()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p := steps[i%len(steps)]
		update := models.LocationUpdatePayload{Lat: &p.lat, Lng: &p.lng, Timestamp: time.Now().UnixMilli()}
		if err := send(c, models.EventLocationUpdate, update); err != nil {
			log.Printf("courier update failed: %v", err)
			return
		}
		log.Printf("courier %s at %.5f, %.5f", courierID, p.lat, p.lng)
	}
}

func trackOrder(ctx context.Context, addr, token, orderID string) {
	c, err := dial(addr, token)
	if err != nil {
		log.Printf("tracker connect failed: %v", err)
		return
	}
	defer c.Close()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := send(c, models.EventJoinRoom, models.JoinRoomPayload{GroupID: orderID}); err != nil {
		log.Printf("join failed: %v", err)
		return
	}

	for {
		var env models.Envelope
		if err := c.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				log.Printf("tracker read failed: %v", err)
			}
			return
		}
		var b models.LocationBroadcast
		if err := json.Unmarshal(env.Data, &b); err != nil {
			continue
		}
		log.Printf("order %s: %s at %.5f, %.5f zones=%v", orderID, b.EntityID, b.Lat, b.Lng, b.InsideGeofences)
	}
}

func reportRecipient(ctx context.Context, api *client.Client, orderID string) {
	dest := route[len(route)-1]
	loc, err := api.PutLocation(ctx, orderID, models.OrderRoleUser, client.LocationUpdate{Latitude: dest.lat, Longitude: dest.lng})
	if err != nil {
		log.Printf("recipient report failed: %v", err)
		return
	}
	log.Printf("recipient of %s at %.5f, %.5f", orderID, loc.Latitude, loc.Longitude)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interval_seconds> [order_id]\n", os.Args[0])
		os.Exit(1)
	}
	intervalSec, err := strconv.Atoi(os.Args[1])
	if err != nil || intervalSec <= 0 {
		fmt.Fprintf(os.Stderr, "error: interval must be a positive integer\n")
		os.Exit(1)
	}
	orderID := "test_order"
	if len(os.Args) > 2 {
		orderID = os.Args[2]
	}

	addr := getEnv("TRACKING_ADDR", "localhost:9000")
	token := os.Getenv("TRACKING_TOKEN")
	courierID := getEnv("COURIER_ID", "test_courier")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reportRecipient(ctx, client.New("http://"+addr), orderID)
	go simulateCourier(ctx, addr, token, courierID, orderID, time.Duration(intervalSec)*time.Second)
	trackOrder(ctx, addr, token, orderID)
}
