package modem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinateRoundTrip(t *testing.T) {
	lat, ok := parseCoordinate("4807.038", "N", false)
	require.True(t, ok)
	assert.InDelta(t, 48.1173, lat, 0.0001)

	lon, ok := parseCoordinate("01131.000", "E", true)
	require.True(t, ok)
	assert.InDelta(t, 11.5167, lon, 0.0001)
}

func TestParseCoordinateSignFlip(t *testing.T) {
	lat, ok := parseCoordinate("3113.343286", "S", false)
	require.True(t, ok)
	assert.Negative(t, lat)

	lon, ok := parseCoordinate("12121.234064", "W", true)
	require.True(t, ok)
	assert.Negative(t, lon)
}

func TestParseCoordinateShortFields(t *testing.T) {
	// Latitude needs at least 7 characters, longitude at least 8
	_, ok := parseCoordinate("807.03", "N", false)
	assert.False(t, ok)

	_, ok = parseCoordinate("1131.00", "E", true)
	assert.False(t, ok)
}

func TestParseCoordinateOutOfRange(t *testing.T) {
	_, ok := parseCoordinate("9907.038", "N", false)
	assert.False(t, ok)

	_, ok = parseCoordinate("19131.000", "E", true)
	assert.False(t, ok)
}

func TestParseCoordinateGarbage(t *testing.T) {
	_, ok := parseCoordinate("48xy.038", "N", false)
	assert.False(t, ok)
}

func TestParseInfoResponse(t *testing.T) {
	now := time.Now()
	resp := "AT+CGPSINFO\n+CGPSINFO: 3113.343286,N,12121.234064,E,250411,072212.0,44.1,0.0,87.5\nOK"

	fix := parseInfoResponse(resp, now)
	require.NotNil(t, fix)
	assert.InDelta(t, 31.2224, fix.Latitude, 0.0001)
	assert.InDelta(t, 121.3539, fix.Longitude, 0.0001)
	assert.Equal(t, now, fix.Timestamp)

	require.NotNil(t, fix.Altitude)
	assert.InDelta(t, 44.1, *fix.Altitude, 0.001)
	require.NotNil(t, fix.Speed)
	assert.InDelta(t, 0.0, *fix.Speed, 0.001)
	require.NotNil(t, fix.Course)
	assert.InDelta(t, 87.5, *fix.Course, 0.001)
}

func TestParseInfoResponseNoFix(t *testing.T) {
	// The modem answers with empty fields until the engine has a fix
	fix := parseInfoResponse("+CGPSINFO: ,,,,,,,,\nOK", time.Now())
	assert.Nil(t, fix)
}

func TestParseInfoResponseInvalidatesWholeFix(t *testing.T) {
	// A malformed longitude rejects the parse even though the latitude is fine
	fix := parseInfoResponse("+CGPSINFO: 4807.038,N,1131.00,E,250411,072212.0\nOK", time.Now())
	assert.Nil(t, fix)
}

func TestParseDecimalResponse(t *testing.T) {
	fix := parseDecimalResponse("CGPSINF: 0,31.221634,N,121.447927,E\nOK", time.Now())
	require.NotNil(t, fix)
	assert.InDelta(t, 31.221634, fix.Latitude, 0.000001)
	assert.InDelta(t, 121.447927, fix.Longitude, 0.000001)

	fix = parseDecimalResponse("12.500000,S,68.250000,W", time.Now())
	require.NotNil(t, fix)
	assert.InDelta(t, -12.5, fix.Latitude, 0.000001)
	assert.InDelta(t, -68.25, fix.Longitude, 0.000001)
}

func TestParseDecimalResponseNoMatch(t *testing.T) {
	assert.Nil(t, parseDecimalResponse("ERROR", time.Now()))
	assert.Nil(t, parseDecimalResponse("", time.Now()))
}

func TestFixMapsLink(t *testing.T) {
	fix := &Fix{Latitude: 48.1173, Longitude: 11.5167}
	assert.Equal(t, "https://maps.google.com/?q=48.117300,11.516700", fix.MapsLink())
}
