package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const googleBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleProvider calls the Google Maps Geocoding API. It needs an API key
// and is the last resort in the chain because of quota cost.
type GoogleProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewGoogleProvider builds a provider for the given API key.
func NewGoogleProvider(client *http.Client, apiKey string) *GoogleProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleProvider{client: client, baseURL: googleBaseURL, apiKey: apiKey}
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "google" }

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, addr, city, state string) (*Result, error) {
	if p.apiKey == "" {
		return nil, nil
	}

	params := url.Values{
		"address": {fmt.Sprintf("%s, %s, %s", addr, city, state)},
		"key":     {p.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build google request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google http %d", resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode google response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT", "REQUEST_DENIED":
		return nil, fmt.Errorf("google status %s: %w", body.Status, ErrProviderDenied)
	default:
		return nil, fmt.Errorf("google status %s", body.Status)
	}
	if len(body.Results) == 0 {
		return nil, nil
	}

	match := body.Results[0]

	// ROOFTOP is an exact match; the rest degrade with precision.
	confidence := 0.4
	switch match.Geometry.LocationType {
	case "ROOFTOP":
		confidence = 1.0
	case "RANGE_INTERPOLATED":
		confidence = 0.8
	case "GEOMETRIC_CENTER":
		confidence = 0.6
	}

	return &Result{
		Lat:            match.Geometry.Location.Lat,
		Lng:            match.Geometry.Location.Lng,
		MatchedAddress: match.FormattedAddress,
		Confidence:     confidence,
		Provider:       p.Name(),
		MatchType:      match.Geometry.LocationType,
		GeocodedAt:     time.Now().UTC(),
	}, nil
}
