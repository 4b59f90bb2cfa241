package geo

import "food-delivery/tracking/models"

// Bounds is the axis-aligned box around a ring.
type Bounds struct {
	MinLng, MinLat, MaxLng, MaxLat float64
}

func RingBounds(ring models.Ring) Bounds {
	if len(ring) == 0 {
		return Bounds{}
	}
	b := Bounds{MinLng: ring[0].Lng(), MaxLng: ring[0].Lng(), MinLat: ring[0].Lat(), MaxLat: ring[0].Lat()}
	for _, v := range ring[1:] {
		if v.Lng() < b.MinLng {
			b.MinLng = v.Lng()
		}
		if v.Lng() > b.MaxLng {
			b.MaxLng = v.Lng()
		}
		if v.Lat() < b.MinLat {
			b.MinLat = v.Lat()
		}
		if v.Lat() > b.MaxLat {
			b.MaxLat = v.Lat()
		}
	}
	return b
}

func (b Bounds) Contains(lat, lng float64) bool {
	return lng >= b.MinLng && lng <= b.MaxLng && lat >= b.MinLat && lat <= b.MaxLat
}

// Contains runs an even-odd ray cast from (lat, lng) against ring.
// Points exactly on an edge may fall either way.
func Contains(ring models.Ring, lat, lng float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng(), ring[i].Lat()
		xj, yj := ring[j].Lng(), ring[j].Lat()
		if (yi > lat) != (yj > lat) && lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
