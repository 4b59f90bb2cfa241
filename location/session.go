package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"food-delivery/tracking/broadcast"
	"food-delivery/tracking/events"
	"food-delivery/tracking/models"
)

type State int

const (
	Connected State = iota
	Identified
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Identified:
		return "identified"
	default:
		return "disconnected"
	}
}

// Session is the per-connection state machine. Grouped is tracked
// separately from State since any live session may join a group.
type Session struct {
	gw  *Gateway
	sub broadcast.Subscriber

	mu       sync.Mutex
	state    State
	entityID string
	name     string
	role     models.Role
	group    string
}

// Connect registers sub in the global group and returns its session.
func (g *Gateway) Connect(sub broadcast.Subscriber) *Session {
	g.dispatcher.Registry().Subscribe(sub)
	g.observer.SessionOpened()

	ev := events.New(events.SessionConnected)
	ev.ConnectionID = sub.ID()
	g.emit(ev)

	return &Session{gw: g, sub: sub, state: Connected}
}

func (s *Session) ID() string { return s.sub.ID() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Group() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

func (s *Session) EntityID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entityID
}

// Identify binds entity metadata. Re-identifying overwrites the binding.
func (s *Session) Identify(p models.IdentifyPayload) error {
	if p.EntityID == "" {
		return fmt.Errorf("%w: entityId is required", models.ErrInvalidPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disconnected {
		return nil
	}
	s.entityID = p.EntityID
	s.name = p.Name
	s.role = p.Role
	s.state = Identified
	return nil
}

// JoinGroup moves the session into groupID, leaving its previous group.
func (s *Session) JoinGroup(groupID string) error {
	if groupID == "" {
		return fmt.Errorf("%w: groupId is required", models.ErrInvalidPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disconnected {
		return nil
	}
	s.gw.dispatcher.Registry().Join(s.sub, groupID)
	s.group = groupID
	return nil
}

// ReportPosition is the per-connection entry to the hot path. The report is
// attributed to the bound identity, or to the connection id before
// identify.
func (s *Session) ReportPosition(ctx context.Context, p models.LocationUpdatePayload) error {
	if p.Lat == nil || p.Lng == nil {
		s.gw.observer.ReportRejected()
		return fmt.Errorf("%w: lat and lng are required", models.ErrInvalidCoordinate)
	}

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	r := models.PositionReport{
		EntityID:  s.entityID,
		Name:      s.name,
		Role:      s.role,
		GroupID:   s.group,
		Latitude:  *p.Lat,
		Longitude: *p.Lng,
		Heading:   p.Heading,
		Speed:     p.Speed,
	}
	s.mu.Unlock()

	if r.EntityID == "" {
		r.EntityID = s.sub.ID()
	}
	if p.Role != "" {
		r.Role = p.Role
	}
	if p.Timestamp > 0 {
		r.Timestamp = time.UnixMilli(p.Timestamp).UTC()
	}

	_, err := s.gw.Report(ctx, r)
	return err
}

// HandleMessage decodes one inbound frame and dispatches it. Errors are
// per-message; the session stays usable.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}

	switch env.Event {
	case models.EventIdentify:
		var p models.IdentifyPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return s.Identify(p)
	case models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return s.JoinGroup(p.GroupID)
	case models.EventLocationUpdate:
		var p models.LocationUpdatePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return s.ReportPosition(ctx, p)
	default:
		return fmt.Errorf("%w: unknown event %q", models.ErrInvalidPayload, env.Event)
	}
}

// Close tears the session down. The entity's last position stays in the
// store.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	entityID, group := s.entityID, s.group
	s.mu.Unlock()

	s.gw.dispatcher.Registry().Remove(s.sub)
	s.gw.observer.SessionClosed()
	if entityID != "" {
		s.gw.tracker.Forget(entityID)
	} else {
		s.gw.tracker.Forget(s.sub.ID())
	}

	ev := events.New(events.SessionDisconnected)
	ev.ConnectionID = s.sub.ID()
	ev.EntityID = entityID
	ev.GroupID = group
	s.gw.emit(ev)
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", models.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return nil
}
