package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

// iso6709Pattern matches "±DD.DDDD±DDD.DDDD[±AAA.AAA]/", optionally followed
// by a CRS designator before the terminator.
var iso6709Pattern = regexp.MustCompile(`^([+-]\d{1,2}(?:\.\d+)?)([+-]\d{1,3}(?:\.\d+)?)([+-]\d+(?:\.\d+)?)?(?:CRS[A-Za-z0-9_:]*)?/$`)

// ParseISO6709 parses an ISO 6709 signed-decimal location string.
func ParseISO6709(s string) (Location, bool) {
	m := iso6709Pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Location{}, false
	}

	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil || lat < -90 || lat > 90 {
		return Location{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil || lon < -180 || lon > 180 {
		return Location{}, false
	}

	loc := Location{Latitude: lat, Longitude: lon}
	if m[3] != "" {
		alt, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return Location{}, false
		}
		loc.Altitude = alt
		loc.HasAltitude = true
	}
	return loc, true
}
