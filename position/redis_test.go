package position

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"food-delivery/tracking/durable"
	"food-delivery/tracking/models"
)

func stringify(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestEncodeDecodePosition(t *testing.T) {
	heading := 45.5
	in := &models.TrackedPosition{
		EntityID:   "courier-1",
		Name:       "Alice",
		Role:       models.RoleCourier,
		GroupID:    "order-42",
		Latitude:   -6.2088,
		Longitude:  106.8456,
		Heading:    &heading,
		ReportedAt: time.UnixMilli(1715003456123).UTC(),
		UpdatedAt:  time.UnixMilli(1715003457000).UTC(),
	}

	out, err := decodePosition("courier-1", stringify(encodePosition(in)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Latitude != in.Latitude || out.Longitude != in.Longitude {
		t.Errorf("coordinates differ: %+v", out)
	}
	if out.Name != "Alice" || out.Role != models.RoleCourier || out.GroupID != "order-42" {
		t.Errorf("meta differs: %+v", out)
	}
	if out.Heading == nil || *out.Heading != 45.5 || out.Speed != nil {
		t.Errorf("heading/speed differ: %+v", out)
	}
	if !out.ReportedAt.Equal(in.ReportedAt) || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Errorf("timestamps differ: %+v", out)
	}
}

func TestDecodePosition_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"missing latitude", map[string]string{"longitude": "1"}},
		{"text latitude", map[string]string{"latitude": "north", "longitude": "1"}},
		{"text longitude", map[string]string{"latitude": "1", "longitude": "NaNx"}},
		{"out of range", map[string]string{"latitude": "91", "longitude": "1"}},
		{"nan", map[string]string{"latitude": "NaN", "longitude": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodePosition("x", tt.fields); !errors.Is(err, models.ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestRedisMirror_UnreachableDegradesStore(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	capability := durable.New("redis")
	s := NewStore(NewRedisMirror(rdb, time.Minute), capability)

	if _, err := s.Upsert(context.Background(), report("courier-1", 10, 120)); err != nil {
		t.Fatalf("expected in-memory success, got %v", err)
	}
	if capability.Available() {
		t.Fatal("expected degraded capability")
	}
	got, err := s.Get(context.Background(), "courier-1")
	if err != nil || got.Latitude != 10 {
		t.Fatalf("expected in-memory record, got %+v, %v", got, err)
	}
}
