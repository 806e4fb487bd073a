// Package domain models USGS earthquake event data as it moves from the raw
// feed into the normalized staging table.
//
// # Data Source
//
// Events come from the USGS FDSN event query service
// (https://earthquake.usgs.gov/fdsnws/event/1/). The extract stage requests a
// GeoJSON FeatureCollection for a date window; every feature becomes one
// [RawEvent] stamped with the batch key of the ingestion run.
//
// # USGS Data Conventions
//
// Time:
//
//	Epoch milliseconds (UTC), e.g. 1700000000000 = 2023-11-14T22:13:20Z.
//	The staging table stores the local wall-clock time in a TIMESTAMP column
//	and keeps the original value in raw_time for auditing.
//
// Place format:
//
//	"<distance> <compass> of <town>, <region>"  →  e.g. "5km SW of Townsville, Chile"
//	Rule order for splitting into (region, location):
//	  1. " of "  region = text before, location = text after
//	  2. ","     location = first segment, region = last segment
//	  3. else    region = "Unknown", location = place
//	Offshore and remote events often omit " of " ("Fiji region",
//	"South Sandwich Islands region") and land in rule 3.
//
// Coordinates:
//
//	geometry.coordinates is [longitude, latitude, depth_km]. Any element may be
//	missing; missing values are stored as NULL, never as zero.
//
// # Windows
//
// A [Window] is an inclusive range of calendar days. Both deletion from and
// re-population of the staging table use the same half-open instant range
// [start 00:00, end+1day 00:00) in local time, see [Window.Bounds].
package domain
