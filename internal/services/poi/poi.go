// Package poi prefetches points of interest around a location hint.
package poi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	placesPath   = "/v1/places"
	defaultLimit = 20
)

type transport interface {
	DoJSON(ctx context.Context, req clients.Request, out any) error
}

type placesResponse struct {
	Places []domain.PointOfInterest `json:"places"`
}

// Client places search.
type Client struct {
	transport transport
	limit     int
	l         *zap.Logger
}

// NewClient creates a client; limit <= 0 selects the default page size.
func NewClient(t *clients.HTTPTransport, limit int, l *zap.Logger) *Client {
	return newClient(t, limit, l)
}

func newClient(t transport, limit int, l *zap.Logger) *Client {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Client{transport: t, limit: limit, l: l}
}

// Prefetch searches around hint. Entries without an id or name are dropped.
func (c *Client) Prefetch(ctx context.Context, hint domain.LocationHint) ([]domain.PointOfInterest, error) {
	if hint.IsEmpty() {
		return nil, errors.New("location hint is empty")
	}

	q := url.Values{"limit": []string{strconv.Itoa(c.limit)}}
	if hint.Query != "" {
		q.Set("q", hint.Query)
	}
	if hint.Location != nil {
		q.Set("lat", strconv.FormatFloat(hint.Location.Lat, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(hint.Location.Lng, 'f', -1, 64))
	}

	var resp placesResponse
	if err := c.transport.DoJSON(ctx, clients.Request{Path: placesPath, Query: q}, &resp); err != nil {
		return nil, errors.Wrap(err, "search places")
	}

	places := make([]domain.PointOfInterest, 0, len(resp.Places))
	for _, p := range resp.Places {
		if p.ID == "" || p.Name == "" {
			continue
		}
		places = append(places, p)
	}

	c.l.Debug("points of interest prefetched", zap.Int("count", len(places)), zap.String("query", hint.Query))

	return places, nil
}
