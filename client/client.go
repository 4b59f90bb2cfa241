// Package client talks to the REST fallback endpoints of the tracking
// service for callers that cannot hold a websocket open.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sethvargo/go-retry"

	"food-delivery/tracking/models"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
)

// LocationUpdate is the body of a PUT. Nil Heading and Speed are omitted.
type LocationUpdate struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

type Client struct {
	baseURL string
	http    *fiber.Client
	timeout time.Duration
	backoff func() retry.Backoff
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRetryDelay sets the pause before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = func() retry.Backoff { return retry.WithMaxRetries(1, retry.NewConstant(d)) }
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fiber.Client{},
		timeout: defaultTimeout,
	}
	WithRetryDelay(defaultRetryDelay)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PutLocation reports a position for one role of an order. Coordinates are
// checked locally first; an invalid pair never reaches the network.
// Transport failures are retried once.
func (c *Client) PutLocation(ctx context.Context, orderID string, role models.OrderRole, u LocationUpdate) (models.OrderLocation, error) {
	if err := models.ValidateCoordinate(u.Latitude, u.Longitude); err != nil {
		return models.OrderLocation{}, err
	}
	if !role.Valid() {
		return models.OrderLocation{}, fmt.Errorf("%w: unknown role %q", models.ErrInvalidPayload, role)
	}

	var loc models.OrderLocation
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		a := c.http.Put(c.locationURL(orderID, role)).JSON(u).Timeout(c.timeout)
		code, body, err := c.send(ctx, a)
		if err != nil {
			return retry.RetryableError(err)
		}
		switch {
		case code == fiber.StatusOK:
			loc, err = decodeLocation(body)
			return err
		case code >= 500:
			return retry.RetryableError(fmt.Errorf("%w: status %d", models.ErrTransport, code))
		default:
			return rejection(body, code)
		}
	})
	return loc, err
}

// rejection maps a non-retryable PUT failure. Only a 400 whose message is the
// server's coordinate error counts as ErrInvalidCoordinate.
func rejection(body []byte, code int) error {
	msg := errorMessage(body, code)
	if code == fiber.StatusBadRequest && strings.HasPrefix(msg, models.ErrInvalidCoordinate.Error()) {
		return fmt.Errorf("%w: %s", models.ErrInvalidCoordinate, strings.TrimPrefix(msg, models.ErrInvalidCoordinate.Error()+": "))
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidPayload, msg)
}

// GetLocation returns the last known position for one role of an order.
// models.ErrNotFound is returned both when nothing was reported yet and
// when the server answers with a malformed record.
func (c *Client) GetLocation(ctx context.Context, orderID string, role models.OrderRole) (models.OrderLocation, error) {
	if !role.Valid() {
		return models.OrderLocation{}, fmt.Errorf("%w: unknown role %q", models.ErrInvalidPayload, role)
	}

	var loc models.OrderLocation
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		a := c.http.Get(c.locationURL(orderID, role)).Timeout(c.timeout)
		code, body, err := c.send(ctx, a)
		if err != nil {
			return retry.RetryableError(err)
		}
		switch {
		case code == fiber.StatusOK:
			loc, err = decodeLocation(body)
			if errors.Is(err, models.ErrInvalidPayload) {
				return fmt.Errorf("%w: %v", models.ErrNotFound, err)
			}
			return err
		case code == fiber.StatusNotFound:
			return models.ErrNotFound
		case code >= 500:
			return retry.RetryableError(fmt.Errorf("%w: status %d", models.ErrTransport, code))
		default:
			return fmt.Errorf("%w: %s", models.ErrInvalidPayload, errorMessage(body, code))
		}
	})
	return loc, err
}

func (c *Client) locationURL(orderID string, role models.OrderRole) string {
	return fmt.Sprintf("%s/orders/%s/location/%s", c.baseURL, url.PathEscape(orderID), role)
}

func (c *Client) send(ctx context.Context, a *fiber.Agent) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := a.Parse(); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return 0, nil, fmt.Errorf("%w: %v", models.ErrTransport, errs[0])
	}
	return code, body, nil
}

// decodeLocation rejects records whose coordinates are missing or not
// finite numbers in range.
func decodeLocation(body []byte) (models.OrderLocation, error) {
	var raw struct {
		models.OrderLocation
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.OrderLocation{}, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return models.OrderLocation{}, fmt.Errorf("%w: missing coordinates", models.ErrInvalidPayload)
	}
	lat, lng := *raw.Latitude, *raw.Longitude
	if math.IsInf(lat, 0) || math.IsInf(lng, 0) || models.ValidateCoordinate(lat, lng) != nil {
		return models.OrderLocation{}, fmt.Errorf("%w: coordinates out of range", models.ErrInvalidPayload)
	}

	loc := raw.OrderLocation
	loc.Latitude, loc.Longitude = lat, lng
	return loc, nil
}

func errorMessage(body []byte, code int) string {
	var resp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.Error != "" {
		return resp.Error
	}
	return fmt.Sprintf("status %d", code)
}
