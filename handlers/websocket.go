package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"food-delivery/tracking/broadcast"
	"food-delivery/tracking/models"
)

const (
	writeWait     = 10 * time.Second
	localEntityID = "entity_id"
	localName     = "name"
	localRole     = "role"
)

// ValidateToken guards the websocket upgrade. With no secret configured
// every upgrade is accepted and clients identify themselves in-band. A
// token carrying entity_id pre-identifies the connection.
func (s *Server) ValidateToken(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if s.jwtSecret == "" {
		return c.Next()
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	}
	if token == "" {
		return fiber.ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		s.log.Warn("websocket token rejected", "ip", c.IP(), "error", err)
		return fiber.ErrUnauthorized
	}

	for _, key := range []string{localEntityID, localName, localRole} {
		if v, ok := claims[key].(string); ok {
			c.Locals(key, v)
		}
	}
	return c.Next()
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	connID := uuid.NewString()
	out := broadcast.NewOutbox(connID, s.outboxSize, func(msg []byte) error {
		if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.WriteMessage(websocket.TextMessage, msg)
	}, s.metrics.BroadcastDropped)

	sess := s.gateway.Connect(out)
	defer func() {
		sess.Close()
		out.Close()
		// c is pooled by the websocket middleware once this handler returns
		<-out.Stopped()
	}()

	if id, _ := c.Locals(localEntityID).(string); id != "" {
		name, _ := c.Locals(localName).(string)
		role, _ := c.Locals(localRole).(string)
		_ = sess.Identify(models.IdentifyPayload{EntityID: id, Name: name, Role: models.Role(role)})
	}

	// the upgraded conn must not inherit the HTTP read timeout
	_ = c.SetReadDeadline(time.Time{})

	log := s.log.With("conn_id", connID)
	log.Debug("websocket connected", "entity_id", sess.EntityID())

	for {
		mt, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if err := sess.HandleMessage(context.Background(), raw); err != nil {
			log.Warn("message rejected", "entity_id", sess.EntityID(), "error", err)
		}
		if out.Closed() {
			log.Warn("websocket writer stopped", "entity_id", sess.EntityID(), "dropped", out.Dropped())
			break
		}
	}

	log.Debug("websocket disconnected", "entity_id", sess.EntityID())
}
