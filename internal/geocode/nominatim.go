package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org/search"

// NominatimProvider uses OpenStreetMap's Nominatim service. Free with strict
// rate limits; its terms of service require an identifying User-Agent.
type NominatimProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewNominatimProvider builds a provider with the given identifying agent.
func NewNominatimProvider(client *http.Client, userAgent string) *NominatimProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = "assessor-scraper/1.0"
	}
	return &NominatimProvider{client: client, baseURL: nominatimBaseURL, userAgent: userAgent}
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// Geocode implements Provider.
func (p *NominatimProvider) Geocode(ctx context.Context, addr, city, state string) (*Result, error) {
	params := url.Values{
		"q":              {fmt.Sprintf("%s, %s, %s", addr, city, state)},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim http %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}

	place := places[0]
	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse nominatim lat %q: %w", place.Lat, err)
	}
	lng, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse nominatim lon %q: %w", place.Lon, err)
	}

	// Confidence keyed to OSM feature granularity.
	confidence := 0.5
	switch place.Type {
	case "house", "building":
		confidence = 0.95
	case "street", "road":
		confidence = 0.7
	}

	return &Result{
		Lat:            lat,
		Lng:            lng,
		MatchedAddress: place.DisplayName,
		Confidence:     confidence,
		Provider:       p.Name(),
		MatchType:      place.Type,
		GeocodedAt:     time.Now().UTC(),
	}, nil
}
