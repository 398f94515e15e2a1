package nav

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type mapboxFeature struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	PlaceName string     `json:"place_name"`
	PlaceType []string   `json:"place_type"`
	Center    [2]float64 `json:"center"` // [lng, lat]
}

type mapboxGeocodeResponse struct {
	Features []mapboxFeature `json:"features"`
}

func (f mapboxFeature) place() Place {
	p := Place{
		ID:        f.ID,
		Text:      f.Text,
		PlaceName: f.PlaceName,
		Lng:       f.Center[0],
		Lat:       f.Center[1],
	}
	if len(f.PlaceType) > 0 {
		p.PlaceType = f.PlaceType[0]
	}
	return p
}

// Geocode performs forward geocoding using Mapbox. An empty query returns no places
// without a network call.
func (c *MapboxClient) Geocode(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if c.cfg.AccessToken == "" {
		return nil, ErrMissingConfiguration
	}

	params := url.Values{
		"country":      {c.cfg.Country},
		"bbox":         {c.cfg.BBox},
		"autocomplete": {"true"},
		"limit":        {strconv.Itoa(c.cfg.Limit)},
		"access_token": {c.cfg.AccessToken},
	}
	apiURL := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", c.cfg.BaseURL, url.PathEscape(query), params.Encode())

	var resp mapboxGeocodeResponse
	if err := getJSON(ctx, c.client, "geocode", apiURL, &resp); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(resp.Features))
	for _, f := range resp.Features {
		places = append(places, f.place())
	}

	c.logger.Debug("geocode results", "query", query, "count", len(places))
	return places, nil
}
