// Package geocode resolves parcel addresses to coordinates through an
// ordered chain of interchangeable providers with bounding-box validation.
package geocode

import (
	"context"
	"errors"
	"math"
	"time"
)

// Result is a resolved coordinate from any provider. Confidence reflects the
// provider's own match-quality signal, not positional accuracy.
type Result struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	MatchedAddress string    `json:"matched_address"`
	Confidence     float64   `json:"confidence"`
	Provider       string    `json:"provider"`
	MatchType      string    `json:"match_type"`
	GeocodedAt     time.Time `json:"geocoded_at"`
}

// ErrProviderDenied marks quota or authentication failures from a paid
// provider. These indicate a configuration problem, not a data problem, so
// the facade surfaces them instead of falling through to the next provider.
var ErrProviderDenied = errors.New("geocoding provider denied request")

// Provider resolves a single address. A nil Result with nil error means
// "no match" and is an expected outcome, not a fault.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr, city, state string) (*Result, error)
}

// Bounds is a lat/lng bounding box used to reject coordinates that cannot
// belong to the municipality being scraped.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// WorcesterBounds covers Worcester MA and a margin of surrounding towns.
var WorcesterBounds = Bounds{
	MinLat: 42.20,
	MaxLat: 42.35,
	MinLng: -71.90,
	MaxLng: -71.70,
}

// Contains reports whether the coordinate falls inside the box. A zero-value
// Bounds contains nothing, so an unconfigured box rejects everything rather
// than accepting everything.
func (b Bounds) Contains(lat, lng float64) bool {
	return b.MinLat <= lat && lat <= b.MaxLat &&
		b.MinLng <= lng && lng <= b.MaxLng
}

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
