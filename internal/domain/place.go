package domain

import "strings"

// UnknownRegion is the region assigned when a place string matches neither
// the " of " nor the comma rule.
const UnknownRegion = "Unknown"

// ParsePlace splits a free-text USGS place description into (region, location).
// The first matching rule wins:
//   - "5km SW of Townsville" -> ("5km SW", "Townsville")
//   - "Townsville, Chile"    -> ("Chile", "Townsville")
//   - anything else          -> ("Unknown", place)
//
// ParsePlace is total: it never fails, and an empty place yields ("Unknown", "").
func ParsePlace(place string) (region, location string) {
	if before, after, found := strings.Cut(place, " of "); found {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}

	if first := strings.Index(place, ","); first >= 0 {
		last := strings.LastIndex(place, ",")
		return strings.TrimSpace(place[last+1:]), strings.TrimSpace(place[:first])
	}

	return UnknownRegion, place
}
