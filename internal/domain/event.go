package domain

import "time"

// RawEvent is one seismic observation as received from the feed.
// Nil pointers mean the upstream value was absent.
type RawEvent struct {
	EpochMillis *int64
	Place       string // empty when absent
	Magnitude   *float64
	Longitude   *float64
	Latitude    *float64
	Depth       *float64
	BatchID     string
}

// StagingEvent is the normalized, analysis-ready row in stage_earthquakes.
type StagingEvent struct {
	ID             int64     `json:"id"`
	EventTime      time.Time `json:"event_time"`
	Region         string    `json:"region"`
	Location       string    `json:"location"`
	Magnitude      *float64  `json:"magnitude,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Depth          *float64  `json:"depth,omitempty"`
	RawEpochMillis *int64    `json:"raw_time,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Stats is the aggregate view over the whole staging table.
// The zero value describes an empty table.
type Stats struct {
	Total           int64     `json:"total"`
	AvgMagnitude    float64   `json:"avg_magnitude"`
	MaxMagnitude    float64   `json:"max_magnitude"`
	MinEventTime    time.Time `json:"min_event_time"`
	MaxEventTime    time.Time `json:"max_event_time"`
	DistinctRegions int64     `json:"distinct_regions"`
}

// BatchIDFor returns the raw batch key for an ingestion run on the given day.
// Re-running extract on the same day replaces that day's batch.
func BatchIDFor(day time.Time) string {
	return "earthquake_data_" + day.Format("2006_01_02")
}

// NewStagingEvent derives a staging row from a raw event. It reports whether
// the event time had to fall back to the current time.
func NewStagingEvent(raw RawEvent) (StagingEvent, bool) {
	eventTime, ok := ToEventTime(raw.EpochMillis)
	region, location := ParsePlace(raw.Place)

	return StagingEvent{
		EventTime:      eventTime,
		Region:         region,
		Location:       location,
		Magnitude:      raw.Magnitude,
		Latitude:       raw.Latitude,
		Longitude:      raw.Longitude,
		Depth:          raw.Depth,
		RawEpochMillis: raw.EpochMillis,
	}, !ok
}
