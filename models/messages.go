package models

import "encoding/json"

// Websocket event names.
const (
	EventIdentify          = "identify"
	EventJoinRoom          = "room:join"
	EventLocationUpdate    = "location:update"
	EventLocationBroadcast = "location:broadcast"
)

// Envelope wraps every websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type IdentifyPayload struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

type JoinRoomPayload struct {
	GroupID string `json:"groupId"`
}

// LocationUpdatePayload uses pointers so a missing coordinate can be told
// apart from zero.
type LocationUpdatePayload struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Role      Role     `json:"role,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

type LocationBroadcast struct {
	EntityID        string    `json:"entityId"`
	Name            string    `json:"name,omitempty"`
	Role            Role      `json:"role,omitempty"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	InsideGeofences []ZoneRef `json:"insideGeofences"`
}
