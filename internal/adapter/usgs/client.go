// Package usgs fetches earthquake events from the USGS FDSN event service.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
)

// instantLayout is the FDSN ISO 8601 form. Values are sent in UTC.
const instantLayout = "2006-01-02T15:04:05"

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 1024

// Client queries the FDSN event endpoint for GeoJSON feature collections.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Extract fetches every event in the window. The query covers the exact
// instants of the window's local-midnight bounds, so the last day is covered
// in full regardless of the process time zone.
func (c *Client) Extract(ctx context.Context, w domain.Window) ([]domain.RawEvent, error) {
	from, to := w.Bounds()
	params := url.Values{
		"format":    {"geojson"},
		"starttime": {from.UTC().Format(instantLayout)},
		"endtime":   {to.UTC().Format(instantLayout)},
	}

	start := time.Now()
	events, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.FeedRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.FeedRequests.WithLabelValues("success").Inc()

	c.logger.Info("feed extracted", "window", w.String(), "events", len(events), "duration", time.Since(start))
	return events, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.RawEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("usgs feed error: status %d: %s", resp.StatusCode, body)
	}

	var fc FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return fc.RawEvents(), nil
}

// FeatureCollection is the subset of the USGS GeoJSON response the ETL reads.
// Fields are kept raw and decoded leniently: null, missing or mistyped values
// become nil rather than failing the whole response.
type FeatureCollection struct {
	Features []Feature `json:"features"`
}

// Feature is one earthquake in a FeatureCollection.
type Feature struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
	Geometry   *Geometry  `json:"geometry"`
}

// Properties holds the event attributes the ETL keeps.
type Properties struct {
	Time  json.RawMessage `json:"time"`
	Place json.RawMessage `json:"place"`
	Mag   json.RawMessage `json:"mag"`
}

// Geometry holds the point coordinates in [longitude, latitude, depth] order.
type Geometry struct {
	Coordinates []json.RawMessage `json:"coordinates"`
}

// RawEvents converts the collection to raw events. The batch id is left for
// the loader to stamp.
func (fc FeatureCollection) RawEvents() []domain.RawEvent {
	events := make([]domain.RawEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		events = append(events, f.RawEvent())
	}
	return events
}

// RawEvent maps a single feature, tolerating missing properties and short
// coordinate arrays.
func (f Feature) RawEvent() domain.RawEvent {
	ev := domain.RawEvent{
		EpochMillis: decodeInt64(f.Properties.Time),
		Place:       decodeString(f.Properties.Place),
		Magnitude:   decodeFloat64(f.Properties.Mag),
	}
	if f.Geometry != nil {
		ev.Longitude = coordinate(f.Geometry.Coordinates, 0)
		ev.Latitude = coordinate(f.Geometry.Coordinates, 1)
		ev.Depth = coordinate(f.Geometry.Coordinates, 2)
	}
	return ev
}

func coordinate(coords []json.RawMessage, i int) *float64 {
	if i < len(coords) {
		return decodeFloat64(coords[i])
	}
	return nil
}

// decodeNumber accepts a JSON number or a numeric string.
func decodeNumber(raw json.RawMessage) (json.Number, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || n == "" {
		return "", false
	}
	return n, true
}

func decodeInt64(raw json.RawMessage) *int64 {
	n, ok := decodeNumber(raw)
	if !ok {
		return nil
	}
	if v, err := n.Int64(); err == nil {
		return &v
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	v := int64(f)
	return &v
}

func decodeFloat64(raw json.RawMessage) *float64 {
	n, ok := decodeNumber(raw)
	if !ok {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
