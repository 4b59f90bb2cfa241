// Package location is the ingestion side of live tracking: it turns inbound
// position reports into store updates, geofence checks and group broadcasts.
package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"food-delivery/tracking/broadcast"
	"food-delivery/tracking/events"
	"food-delivery/tracking/geofence"
	"food-delivery/tracking/models"
)

type positionStore interface {
	Upsert(ctx context.Context, r models.PositionReport) (models.TrackedPosition, error)
}

type zoneLocator interface {
	ZonesContaining(lat, lng float64) []models.ZoneRef
}

type eventSender interface {
	Send(ev events.Event) bool
}

// Observer receives hot-path measurements.
type Observer interface {
	ReportAccepted()
	ReportRejected()
	SessionOpened()
	SessionClosed()
	ObserveReport(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ReportAccepted()             {}
func (nopObserver) ReportRejected()             {}
func (nopObserver) SessionOpened()              {}
func (nopObserver) SessionClosed()              {}
func (nopObserver) ObserveReport(time.Duration) {}

type Option func(*Gateway)

func WithEvents(e eventSender) Option { return func(g *Gateway) { g.events = e } }

func WithObserver(o Observer) Option { return func(g *Gateway) { g.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

type Gateway struct {
	positions  positionStore
	zones      zoneLocator
	dispatcher *broadcast.Dispatcher
	tracker    *geofence.Tracker
	events     eventSender
	observer   Observer
	log        *slog.Logger
}

// NewGateway wires the hot path. positions and zones may be nil, in which
// case those steps are skipped.
func NewGateway(positions positionStore, zones zoneLocator, dispatcher *broadcast.Dispatcher, opts ...Option) *Gateway {
	g := &Gateway{
		positions:  positions,
		zones:      zones,
		dispatcher: dispatcher,
		tracker:    geofence.NewTracker(),
		observer:   nopObserver{},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Report runs the hot path for one position sample: validate, upsert,
// locate zones, broadcast. Only validation can abort it; store and index
// problems degrade to an empty zone list.
func (g *Gateway) Report(ctx context.Context, r models.PositionReport) (models.LocationBroadcast, error) {
	start := time.Now()
	defer func() { g.observer.ObserveReport(time.Since(start)) }()

	if err := r.Validate(); err != nil {
		g.observer.ReportRejected()
		return models.LocationBroadcast{}, err
	}

	if g.positions != nil {
		if _, err := g.positions.Upsert(ctx, r); err != nil {
			if errors.Is(err, models.ErrInvalidCoordinate) {
				g.observer.ReportRejected()
				return models.LocationBroadcast{}, err
			}
			g.log.Warn("position not stored", "entity_id", r.EntityID, "error", err)
		}
	}

	inside := []models.ZoneRef{}
	if g.zones != nil {
		inside = g.zones.ZonesContaining(r.Latitude, r.Longitude)
	}
	g.emitTransitions(r, inside)

	msg := models.LocationBroadcast{
		EntityID:        r.EntityID,
		Name:            r.Name,
		Role:            r.Role,
		Lat:             r.Latitude,
		Lng:             r.Longitude,
		InsideGeofences: inside,
	}
	if _, err := g.dispatcher.Publish(r.GroupID, models.EventLocationBroadcast, msg); err != nil {
		g.log.Error("broadcast failed", "entity_id", r.EntityID, "error", err)
	}

	g.observer.ReportAccepted()
	return msg, nil
}

func (g *Gateway) emitTransitions(r models.PositionReport, inside []models.ZoneRef) {
	if g.events == nil || r.EntityID == "" {
		return
	}
	entered, exited := g.tracker.Update(r.EntityID, inside)
	send := func(t events.Type, zones []models.ZoneRef) {
		for i := range zones {
			ev := events.New(t)
			ev.EntityID = r.EntityID
			ev.GroupID = r.GroupID
			ev.Zone = &zones[i]
			ev.Latitude = r.Latitude
			ev.Longitude = r.Longitude
			g.events.Send(ev)
		}
	}
	send(events.GeofenceEntered, entered)
	send(events.GeofenceExited, exited)
}

func (g *Gateway) emit(ev events.Event) {
	if g.events != nil {
		g.events.Send(ev)
	}
}
