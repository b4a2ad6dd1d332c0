package modem

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fix is a decoded GPS position in decimal degrees
type Fix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Course    *float64  `json:"course,omitempty"`
}

// MapsLink returns a shareable Google Maps url for the fix
func (f *Fix) MapsLink() string {
	return "https://maps.google.com/?q=" +
		strconv.FormatFloat(f.Latitude, 'f', 6, 64) + "," +
		strconv.FormatFloat(f.Longitude, 'f', 6, 64)
}

// parseCoordinate decodes a DDMM.MMMMM field into decimal degrees.
//
// Latitude carries a 2-digit degree prefix (0-90) and must be at least 7
// characters, longitude a 3-digit prefix (0-180) and at least 8 characters.
// The asymmetry is part of the wire format, not a bug. Short or malformed
// fields reject the value, there are no partial results.
func parseCoordinate(field string, direction string, isLongitude bool) (float64, bool) {
	var degreeDigits, minLen int
	if isLongitude {
		degreeDigits, minLen = 3, 8
	} else {
		degreeDigits, minLen = 2, 7
	}

	if len(field) < minLen {
		return 0, false
	}

	degrees, err := strconv.ParseFloat(field[:degreeDigits], 64)
	if err != nil {
		return 0, false
	}

	minutes, err := strconv.ParseFloat(field[degreeDigits:], 64)
	if err != nil {
		return 0, false
	}

	decimal := degrees + minutes/60.0
	if direction == "S" || direction == "W" {
		decimal = -decimal
	}

	return decimal, inRange(decimal, isLongitude)
}

func inRange(decimal float64, isLongitude bool) bool {
	limit := 90.0
	if isLongitude {
		limit = 180.0
	}
	return decimal >= -limit && decimal <= limit
}

// parseInfoResponse decodes the +CGPSINFO reply. The payload is a comma list
// of lat,lat_dir,lon,lon_dir,date,time,alt,speed,course where the trailing
// fields are optional. Any failure invalidates the whole fix.
func parseInfoResponse(response string, now time.Time) *Fix {
	for _, line := range strings.Split(response, "\n") {
		if !strings.Contains(line, TagGpsInfo) {
			continue
		}

		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}

		fields := strings.Split(strings.TrimSpace(line[colon+1:]), ",")
		if len(fields) < 4 || fields[0] == "" || fields[2] == "" {
			continue
		}

		lat, latOk := parseCoordinate(fields[0], fields[1], false)
		lon, lonOk := parseCoordinate(fields[2], fields[3], true)
		if !latOk || !lonOk {
			return nil
		}

		fix := &Fix{Latitude: lat, Longitude: lon, Timestamp: now}
		if len(fields) > 6 && fields[6] != "" {
			if alt, err := strconv.ParseFloat(fields[6], 64); err == nil {
				fix.Altitude = &alt
			}
		}
		if len(fields) > 7 && fields[7] != "" {
			if speed, err := strconv.ParseFloat(fields[7], 64); err == nil {
				fix.Speed = &speed
			}
		}
		if len(fields) > 8 && fields[8] != "" {
			if course, err := strconv.ParseFloat(fields[8], 64); err == nil {
				fix.Course = &course
			}
		}

		return fix
	}

	return nil
}

// Some firmware revisions answer the alternative info query with plain
// decimal degrees instead of DDMM fields, both shapes stay supported.
var decimalPairPattern = regexp.MustCompile(`(\d+\.\d+),([NS]),(\d+\.\d+),([EW])`)

// parseDecimalResponse scans every reply line for an already-decimal
// latitude/longitude quadruple and applies the direction signs.
func parseDecimalResponse(response string, now time.Time) *Fix {
	for _, line := range strings.Split(response, "\n") {
		match := decimalPairPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		lat, latErr := strconv.ParseFloat(match[1], 64)
		lon, lonErr := strconv.ParseFloat(match[3], 64)
		if latErr != nil || lonErr != nil {
			continue
		}

		if match[2] == "S" {
			lat = -lat
		}
		if match[4] == "W" {
			lon = -lon
		}

		if !inRange(lat, false) || !inRange(lon, true) {
			return nil
		}

		return &Fix{Latitude: lat, Longitude: lon, Timestamp: now}
	}

	return nil
}
