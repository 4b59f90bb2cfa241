package models

import "time"

// Vertex is a single ring point in GeoJSON order: [lng, lat].
type Vertex [2]float64

func (v Vertex) Lng() float64 { return v[0] }
func (v Vertex) Lat() float64 { return v[1] }

// Ring is a closed polygon boundary. A stored ring always has first == last.
type Ring []Vertex

// Closed reports whether the first and last vertices are identical.
func (r Ring) Closed() bool {
	return len(r) > 1 && r[0] == r[len(r)-1]
}

type Zone struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Ring      Ring      `json:"ring"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (z *Zone) Ref() ZoneRef {
	return ZoneRef{ID: z.ID, Name: z.Name}
}

type ZoneRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
