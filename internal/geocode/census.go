package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const censusBaseURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"

// CensusProvider uses the US Census Bureau geocoder: free, unlimited, no API
// key, US-only. Default primary provider.
type CensusProvider struct {
	client  *http.Client
	baseURL string
}

// NewCensusProvider builds a provider. A nil client gets a 30s-timeout default.
func NewCensusProvider(client *http.Client) *CensusProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CensusProvider{client: client, baseURL: censusBaseURL}
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return "census" }

type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
			TigerLine *struct {
				Side string `json:"side"`
			} `json:"tigerLine"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Geocode implements Provider.
func (p *CensusProvider) Geocode(ctx context.Context, addr, city, state string) (*Result, error) {
	params := url.Values{
		"address":   {fmt.Sprintf("%s, %s, %s", addr, city, state)},
		"benchmark": {"Public_AR_Current"},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build census request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("census request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("census http %d", resp.StatusCode)
	}

	var body censusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode census response: %w", err)
	}
	if len(body.Result.AddressMatches) == 0 {
		return nil, nil
	}

	match := body.Result.AddressMatches[0]
	if match.Coordinates.Y == 0 && match.Coordinates.X == 0 {
		return nil, nil
	}

	confidence := 0.8
	matchType := "unknown"
	if match.TigerLine != nil {
		confidence = 1.0
		if match.TigerLine.Side != "" {
			matchType = match.TigerLine.Side
		}
	}

	return &Result{
		Lat:            match.Coordinates.Y,
		Lng:            match.Coordinates.X,
		MatchedAddress: match.MatchedAddress,
		Confidence:     confidence,
		Provider:       p.Name(),
		MatchType:      matchType,
		GeocodedAt:     time.Now().UTC(),
	}, nil
}
