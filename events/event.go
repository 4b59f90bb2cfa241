// Package events ships tracking events (geofence transitions, session
// lifecycle) to external consumers. Delivery is asynchronous and lossy.
package events

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"food-delivery/tracking/models"
)

type Type string

const (
	GeofenceEntered     Type = "geofence.entered"
	GeofenceExited      Type = "geofence.exited"
	SessionConnected    Type = "session.connected"
	SessionDisconnected Type = "session.disconnected"
)

type Event struct {
	Type         Type            `json:"type"`
	EntityID     string          `json:"entity_id,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	GroupID      string          `json:"group_id,omitempty"`
	Zone         *models.ZoneRef `json:"zone,omitempty"`
	Latitude     float64         `json:"latitude,omitempty"`
	Longitude    float64         `json:"longitude,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// New stamps an event with the current time.
func New(t Type) Event {
	return Event{Type: t, Timestamp: time.Now().Unix()}
}

// Key is used for partitioning so one entity's events stay ordered.
func (e Event) Key() string {
	if e.EntityID != "" {
		return e.EntityID
	}
	return e.ConnectionID
}

type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// Multi sends every event to all sinks and reports every failure.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m Multi) Close() error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
