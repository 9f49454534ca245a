// Package mapbox resolves Brazilian municipalities to coordinates with the
// Mapbox Geocoding API. It is used to pick the reanalysis grid cell when a
// caller names a municipality but no coordinates.
package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Mapbox places endpoint.
const DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// minRelevance rejects fuzzy matches that are unlikely to be the municipality.
const minRelevance = 0.5

// ErrNotFound is returned when no sufficiently relevant place matches.
var ErrNotFound = errors.New("municipality not found")

// Place is a resolved municipality.
type Place struct {
	Lat       float64
	Lon       float64
	Name      string
	FullName  string
	Relevance float64
}

// Client implements municipality lookups using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: DefaultBaseURL,
		logger:  logger,
	}
}

// Locate returns the centre of a municipality. state is the two-letter UF
// and may be empty.
func (c *Client) Locate(ctx context.Context, municipality, state string) (Place, error) {
	query := strings.TrimSpace(municipality)
	if state != "" {
		query = fmt.Sprintf("%s, %s", query, strings.ToUpper(state))
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"country":      {"br"},
		"limit":        {"1"},
		"types":        {"place"},
		"language":     {"pt"},
	}

	p, err := c.doRequest(ctx, u+"?"+params.Encode())
	if err != nil {
		return Place{}, err
	}
	if p.Relevance < minRelevance {
		c.logger.Debug("mapbox match below relevance threshold",
			"query", query,
			"match", p.FullName,
			"relevance", p.Relevance,
		)
		return Place{}, fmt.Errorf("%w: %s", ErrNotFound, query)
	}
	return p, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Place{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Place{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return Place{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		return Place{}, nil
	}

	f := mapboxResp.Features[0]
	return Place{
		Lon:       f.Center[0],
		Lat:       f.Center[1],
		Name:      f.Text,
		FullName:  f.PlaceName,
		Relevance: f.Relevance,
	}, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
