// Command genmock reads a USGS GeoJSON feed sample and generates the expected
// staging fixture for the pipeline test suite. It uses the actual ETL domain
// and feed packages so the fixture matches real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -feed data/mock/usgs_feed_sample.json \
//	  -out data/mock/usgs_feed_sample_staged.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/adapter/usgs"
	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// stagedFixture is one expected staging row, keyed by the feed's event id.
type stagedFixture struct {
	ID                string   `json:"id"`
	Region            string   `json:"region"`
	Location          string   `json:"location"`
	RawTime           *int64   `json:"raw_time,omitempty"`
	Magnitude         *float64 `json:"magnitude,omitempty"`
	TimestampFallback bool     `json:"timestamp_fallback"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	feedPath := flag.String("feed", "", "path to a USGS GeoJSON feature collection")
	outPath := flag.String("out", "", "output path for the expected staging fixture")
	flag.Parse()

	if *feedPath == "" || *outPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -feed, -out")
	}

	// Fallback timestamps are not part of the fixture, but a fixed clock keeps runs reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.January, 16, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	data, err := os.ReadFile(*feedPath)
	if err != nil {
		return fmt.Errorf("read feed: %w", err)
	}

	var fc usgs.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("decode feed: %w", err)
	}

	fixtures := make([]stagedFixture, 0, len(fc.Features))
	for _, f := range fc.Features {
		ev, fallback := domain.NewStagingEvent(f.RawEvent())
		fixtures = append(fixtures, stagedFixture{
			ID:                f.ID,
			Region:            ev.Region,
			Location:          ev.Location,
			RawTime:           ev.RawEpochMillis,
			Magnitude:         ev.Magnitude,
			TimestampFallback: fallback,
		})
	}
	log.Printf("features: %d", len(fixtures))

	if err := writeJSON(*outPath, fixtures); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote staging fixture: %s", *outPath)

	printStats(fixtures)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func printStats(fixtures []stagedFixture) {
	regions := map[string]int{}
	fallbacks := 0
	for _, f := range fixtures {
		regions[f.Region]++
		if f.TimestampFallback {
			fallbacks++
		}
	}

	names := make([]string, 0, len(regions))
	for r := range regions {
		names = append(names, r)
	}
	sort.Strings(names)

	log.Printf("timestamp fallbacks: %d", fallbacks)
	for _, r := range names {
		log.Printf("  %-24s %d", r, regions[r])
	}
}
