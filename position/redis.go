package position

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"food-delivery/tracking/models"
)

var _ Mirror = (*RedisMirror)(nil)

const keyPrefix = "tracking:position:"

// RedisMirror stores one hash per entity, expiring after ttl.
type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMirror(rdb *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

func (m *RedisMirror) Save(ctx context.Context, p *models.TrackedPosition) error {
	key := keyPrefix + p.EntityID
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodePosition(p))
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
		return nil
	})
	return err
}

func (m *RedisMirror) Load(ctx context.Context, entityID string) (*models.TrackedPosition, error) {
	fields, err := m.rdb.HGetAll(ctx, keyPrefix+entityID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}
	return decodePosition(entityID, fields)
}

func encodePosition(p *models.TrackedPosition) map[string]interface{} {
	fields := map[string]interface{}{
		"latitude":    strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		"longitude":   strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		"name":        p.Name,
		"role":        string(p.Role),
		"group_id":    p.GroupID,
		"reported_at": strconv.FormatInt(p.ReportedAt.UnixMilli(), 10),
		"updated_at":  strconv.FormatInt(p.UpdatedAt.UnixMilli(), 10),
	}
	if p.Heading != nil {
		fields["heading"] = strconv.FormatFloat(*p.Heading, 'f', -1, 64)
	}
	if p.Speed != nil {
		fields["speed"] = strconv.FormatFloat(*p.Speed, 'f', -1, 64)
	}
	return fields
}

// decodePosition rejects hashes whose coordinates are not well-formed
// numbers in range.
func decodePosition(entityID string, fields map[string]string) (*models.TrackedPosition, error) {
	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude %q", models.ErrInvalidPayload, fields["latitude"])
	}
	lng, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude %q", models.ErrInvalidPayload, fields["longitude"])
	}
	if err := models.ValidateCoordinate(lat, lng); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}

	p := &models.TrackedPosition{
		EntityID:   entityID,
		Name:       fields["name"],
		Role:       models.Role(fields["role"]),
		GroupID:    fields["group_id"],
		Latitude:   lat,
		Longitude:  lng,
		Heading:    optionalFloat(fields["heading"]),
		Speed:      optionalFloat(fields["speed"]),
		ReportedAt: parseMillis(fields["reported_at"]),
		UpdatedAt:  parseMillis(fields["updated_at"]),
	}
	return p, nil
}

func optionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
