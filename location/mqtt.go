package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"food-delivery/tracking/models"
)

// DefaultMQTTTopic carries the entity id as its second segment.
const DefaultMQTTTopic = "tracking/+/location"

type mqttLocationMessage struct {
	EntityID  string      `json:"entity_id"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	GroupID   string      `json:"group_id"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
	Heading   *float64    `json:"heading"`
	Speed     *float64    `json:"speed"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
}

// MQTTIngest feeds device reports published over MQTT into the gateway.
type MQTTIngest struct {
	client mqtt.Client
	gw     *Gateway
	topic  string
}

func NewMQTTIngest(client mqtt.Client, gw *Gateway, topic string) *MQTTIngest {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTIngest{client: client, gw: gw, topic: topic}
}

func (m *MQTTIngest) Start() error {
	token := m.client.Subscribe(m.topic, 1, m.handleMessage)
	token.Wait()
	return token.Error()
}

func (m *MQTTIngest) Stop() error {
	token := m.client.Unsubscribe(m.topic)
	token.Wait()
	return token.Error()
}

func (m *MQTTIngest) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	r, err := parseMQTTReport(msg.Topic(), msg.Payload())
	if err != nil {
		m.gw.observer.ReportRejected()
		m.gw.log.Warn("invalid mqtt location message", "topic", msg.Topic(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.gw.Report(ctx, r); err != nil {
		m.gw.log.Warn("mqtt location rejected", "entity_id", r.EntityID, "error", err)
	}
}

func parseMQTTReport(topic string, payload []byte) (models.PositionReport, error) {
	var raw mqttLocationMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.PositionReport{}, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}

	entityID := raw.EntityID
	if entityID == "" {
		entityID = entityFromTopic(topic)
	}
	if entityID == "" {
		return models.PositionReport{}, fmt.Errorf("%w: entity_id required", models.ErrInvalidPayload)
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return models.PositionReport{}, fmt.Errorf("%w: latitude and longitude are required", models.ErrInvalidCoordinate)
	}

	r := models.PositionReport{
		EntityID:  entityID,
		Name:      raw.Name,
		Role:      raw.Role,
		GroupID:   raw.GroupID,
		Latitude:  *raw.Latitude,
		Longitude: *raw.Longitude,
		Heading:   raw.Heading,
		Speed:     raw.Speed,
	}
	if raw.Timestamp > 0 {
		r.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
	}
	return r, r.Validate()
}

func entityFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
