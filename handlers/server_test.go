package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"

	"food-delivery/tracking/broadcast"
	"food-delivery/tracking/durable"
	"food-delivery/tracking/geofence"
	"food-delivery/tracking/location"
	"food-delivery/tracking/models"
	"food-delivery/tracking/position"
)

type testEnv struct {
	app       *fiber.App
	positions *position.Store
	zones     *geofence.Index
	registry  *broadcast.Registry
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	positions := position.NewStore(nil, nil)
	zones := geofence.NewIndex(nil, nil)
	registry := broadcast.NewRegistry()
	gw := location.NewGateway(positions, zones, broadcast.NewDispatcher(registry),
		location.WithObserver(Metrics{}))
	srv := NewServer(Deps{
		Gateway:   gw,
		Positions: positions,
		Zones:     zones,
		Backends:  []*durable.Capability{durable.New("redis"), durable.Disabled("postgres")},
		JWTSecret: secret,
	})
	return &testEnv{app: NewApp(srv, AppConfig{}), positions: positions, zones: zones, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() { _ = e.app.Shutdown() })
	return ln.Addr().String()
}

func TestOrderLocation_RoundTrip(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodPut, "/orders/order123/location/user", map[string]float64{"latitude": 91.0, "longitude": 120.0})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", code, body)
	}
	if _, err := env.positions.Get(context.Background(), "order123:user"); err == nil {
		t.Fatal("rejected update must not be stored")
	}

	code, body = env.do(t, http.MethodPut, "/orders/order123/location/user", map[string]float64{"latitude": 10.0, "longitude": 120.0, "heading": 45})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/orders/order123/location/user", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	var got models.OrderLocation
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Latitude != 10.0 || got.Longitude != 120.0 || got.Role != models.OrderRoleUser || got.OrderID != "order123" {
		t.Fatalf("unexpected location %+v", got)
	}
	if got.Heading == nil || *got.Heading != 45 {
		t.Fatalf("expected heading 45, got %v", got.Heading)
	}

	rec, err := env.positions.Get(context.Background(), "order123:user")
	if err != nil || rec.Role != models.RoleRecipient || rec.GroupID != "order123" {
		t.Fatalf("unexpected stored record %+v, %v", rec, err)
	}
}

func TestOrderLocation_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"not found", http.MethodGet, "/orders/order9/location/dasher", nil, http.StatusNotFound, "location not found"},
		{"bad role", http.MethodGet, "/orders/order9/location/chef", nil, http.StatusBadRequest, ""},
		{"missing latitude", http.MethodPut, "/orders/order9/location/dasher", map[string]float64{"longitude": 1}, http.StatusBadRequest, ""},
		{"bad longitude", http.MethodPut, "/orders/order9/location/dasher", map[string]float64{"latitude": 1, "longitude": 181}, http.StatusBadRequest, ""},
		{"negative speed", http.MethodPut, "/orders/order9/location/dasher", map[string]float64{"latitude": 1, "longitude": 1, "speed": -1}, http.StatusBadRequest, ""},
		{"not json", http.MethodPut, "/orders/order9/location/dasher", "nope", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, tt.method, tt.path, tt.body)
			if code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, code, body)
			}
			var resp map[string]string
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("expected json error body, got %s", body)
			}
			if resp["error"] == "" || (tt.wantErr != "" && resp["error"] != tt.wantErr) {
				t.Fatalf("unexpected error body %s", body)
			}
		})
	}
}

func TestOrderLocation_DasherZeroCoordinates(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodPut, "/orders/o1/location/dasher", map[string]float64{"latitude": 0, "longitude": 0})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	rec, err := env.positions.Get(context.Background(), "o1:dasher")
	if err != nil || rec.Role != models.RoleCourier {
		t.Fatalf("unexpected record %+v, %v", rec, err)
	}
}

func TestGeofences(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/geofences", nil)
	if code != http.StatusOK || string(body) != "[]" {
		t.Fatalf("expected empty list, got %d: %s", code, body)
	}

	code, body = env.do(t, http.MethodPost, "/geofences", map[string]interface{}{
		"name":        "Depot",
		"coordinates": [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", code, body)
	}
	var zone models.Zone
	if err := json.Unmarshal(body, &zone); err != nil {
		t.Fatal(err)
	}
	if zone.ID == "" || len(zone.Ring) != 5 || !zone.Ring.Closed() {
		t.Fatalf("unexpected zone %+v", zone)
	}

	code, body = env.do(t, http.MethodPost, "/geofences", map[string]interface{}{
		"name":        "Line",
		"coordinates": [][2]float64{{0, 0}, {1, 1}, {0, 0}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for degenerate ring, got %d: %s", code, body)
	}

	code, body = env.do(t, http.MethodPost, "/geofences", map[string]interface{}{
		"coordinates": [][2]float64{{0, 0}, {0, 10}, {10, 10}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 without name, got %d: %s", code, body)
	}

	var zones []models.Zone
	_, body = env.do(t, http.MethodGet, "/geofences", nil)
	if err := json.Unmarshal(body, &zones); err != nil || len(zones) != 1 {
		t.Fatalf("expected one zone, got %s", body)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/health", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var resp struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Backends["redis"] != "available" || resp.Backends["postgres"] != "degraded" {
		t.Fatalf("unexpected health %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPut, "/orders/o2/location/user", map[string]float64{"latitude": 1, "longitude": 1})

	code, body := env.do(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK || !bytes.Contains(body, []byte("tracking_reports_accepted_total")) {
		t.Fatalf("unexpected metrics response %d", code)
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, "")
	code, _ := env.do(t, http.MethodGet, "/ws", nil)
	if code != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", code)
	}
}

func send(t *testing.T, c *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := models.NewEnvelope(event, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatal(err)
	}
}

func readBroadcast(t *testing.T, c *websocket.Conn) models.LocationBroadcast {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env models.Envelope
	if err := c.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Event != models.EventLocationBroadcast {
		t.Fatalf("unexpected event %q", env.Event)
	}
	var b models.LocationBroadcast
	if err := json.Unmarshal(env.Data, &b); err != nil {
		t.Fatal(err)
	}
	return b
}

func (e *testEnv) waitMembers(t *testing.T, groupID string, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(e.registry.Members(groupID)) != n {
		if time.Now().After(deadline) {
			t.Fatalf("group %q never reached %d members", groupID, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	env := newTestEnv(t, "")
	url := "ws://" + env.listen(t) + "/ws"

	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	send(t, a, models.EventIdentify, models.IdentifyPayload{EntityID: "courier-1", Role: models.RoleCourier})
	send(t, a, models.EventJoinRoom, models.JoinRoomPayload{GroupID: "order-42"})
	send(t, b, models.EventJoinRoom, models.JoinRoomPayload{GroupID: "order-42"})
	env.waitMembers(t, "order-42", 2)

	send(t, a, models.EventLocationUpdate, map[string]float64{"lat": 10.0, "lng": 120.0})

	got := readBroadcast(t, b)
	if got.EntityID != "courier-1" || got.Lat != 10.0 || got.Lng != 120.0 {
		t.Fatalf("unexpected broadcast %+v", got)
	}
	if got.InsideGeofences == nil || len(got.InsideGeofences) != 0 {
		t.Fatalf("expected empty zone list, got %v", got.InsideGeofences)
	}
	if _, err := env.positions.Get(context.Background(), "courier-1"); err != nil {
		t.Fatalf("expected stored position, got %v", err)
	}

	// closing a connection removes it from its group
	b.Close()
	env.waitMembers(t, "order-42", 1)
}

func TestWebSocket_TokenPreIdentifies(t *testing.T) {
	const secret = "test-secret"
	env := newTestEnv(t, secret)
	addr := env.listen(t)

	if _, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil); err == nil {
		t.Fatal("expected dial without token to fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"entity_id": "courier-7",
		"role":      "courier",
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token="+token, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	send(t, c, models.EventLocationUpdate, map[string]float64{"lat": 1, "lng": 2})
	got := readBroadcast(t, c)
	if got.EntityID != "courier-7" || got.Role != models.RoleCourier {
		t.Fatalf("expected token identity, got %+v", got)
	}
}

func TestWebSocket_SubscribersDropMidBroadcast(t *testing.T) {
	const subscribers = 50
	env := newTestEnv(t, "")
	url := "ws://" + env.listen(t) + "/ws"

	dial := func() *websocket.Conn {
		t.Helper()
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	pub := dial()
	defer pub.Close()
	send(t, pub, models.EventIdentify, models.IdentifyPayload{EntityID: "courier-1", Role: models.RoleCourier})
	send(t, pub, models.EventJoinRoom, models.JoinRoomPayload{GroupID: "g"})

	subs := make([]*websocket.Conn, subscribers)
	for i := range subs {
		subs[i] = dial()
		send(t, subs[i], models.EventJoinRoom, models.JoinRoomPayload{GroupID: "g"})
	}
	env.waitMembers(t, "g", subscribers+1)

	marker := make(chan struct{})
	go func() {
		_ = pub.SetReadDeadline(time.Now().Add(10 * time.Second))
		for {
			var msg models.Envelope
			if err := pub.ReadJSON(&msg); err != nil {
				return
			}
			var b models.LocationBroadcast
			if json.Unmarshal(msg.Data, &b) == nil && b.Lat == 45 {
				close(marker)
				return
			}
		}
	}()

	flood := make(chan error, 1)
	go func() {
		for i := 0; i < 300; i++ {
			raw, err := models.NewEnvelope(models.EventLocationUpdate, map[string]float64{"lat": float64(i % 40), "lng": 120})
			if err == nil {
				err = pub.WriteMessage(websocket.TextMessage, raw)
			}
			if err != nil {
				flood <- err
				return
			}
		}
		flood <- nil
	}()

	// drop every subscriber without a close frame while the flood is running
	for _, s := range subs {
		_ = s.NetConn().Close()
	}
	if err := <-flood; err != nil {
		t.Fatalf("publisher write failed: %v", err)
	}

	env.waitMembers(t, "g", 1)
	if m := env.registry.Members("g"); len(m) != 1 || env.registry.GroupOf(m[0].ID()) != "g" {
		t.Fatalf("expected only the publisher left in g, got %d members", len(m))
	}

	send(t, pub, models.EventLocationUpdate, map[string]float64{"lat": 45, "lng": 120})
	select {
	case <-marker:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher stopped receiving broadcasts after subscribers dropped")
	}
}
