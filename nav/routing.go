package nav

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

type mapboxManeuver struct {
	Instruction  string  `json:"instruction"`
	Type         string  `json:"type"`
	Modifier     string  `json:"modifier"`
	BearingAfter float64 `json:"bearing_after"`
}

type mapboxStep struct {
	Distance float64        `json:"distance"`
	Duration float64        `json:"duration"`
	Name     string         `json:"name"`
	Maneuver mapboxManeuver `json:"maneuver"`
}

type mapboxLeg struct {
	Summary  string       `json:"summary"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Steps    []mapboxStep `json:"steps"`
}

type mapboxRoute struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Geometry LineString  `json:"geometry"`
	Legs     []mapboxLeg `json:"legs"`
}

type mapboxDirectionsResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Routes  []mapboxRoute `json:"routes"`
}

// directionsURL builds start;waypoints...;end for the configured profile
func (c *MapboxClient) directionsURL(start, end Coordinates, waypoints []Coordinates, params url.Values) string {
	coords := make([]Coordinates, 0, len(waypoints)+2)
	coords = append(coords, start)
	coords = append(coords, waypoints...)
	coords = append(coords, end)

	params.Set("geometries", "geojson")
	params.Set("overview", "full")
	params.Set("access_token", c.cfg.AccessToken)

	return fmt.Sprintf("%s/directions/v5/mapbox/%s/%s?%s",
		c.cfg.BaseURL, c.cfg.Profile, JoinCoordinates(coords), params.Encode())
}

func (c *MapboxClient) directions(ctx context.Context, op, apiURL string) ([]mapboxRoute, error) {
	if c.cfg.AccessToken == "" {
		return nil, ErrMissingConfiguration
	}

	var resp mapboxDirectionsResponse
	if err := getJSON(ctx, c.client, op, apiURL, &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		c.logger.Info("provider returned no routes", "op", op, "code", resp.Code, "message", resp.Message)
		return nil, ErrNoRouteFound
	}
	return resp.Routes, nil
}

// Route fetches route candidates. The provider does not support alternatives
// together with waypoints, so alternatives are only requested without them.
func (c *MapboxClient) Route(ctx context.Context, start, end Coordinates, waypoints []Coordinates) ([]RouteCandidate, error) {
	params := url.Values{
		"alternatives": {strconv.FormatBool(len(waypoints) == 0)},
	}
	routes, err := c.directions(ctx, "route", c.directionsURL(start, end, waypoints, params))
	if err != nil {
		return nil, err
	}

	out := make([]RouteCandidate, len(routes))
	for i, r := range routes {
		out[i] = RouteCandidate{
			Distance: r.Distance,
			Duration: r.Duration,
			Geometry: r.Geometry,
		}
	}

	c.logger.Debug("route candidates", "count", len(out), "waypoints", len(waypoints))
	return out, nil
}

// Navigation fetches the turn-by-turn variant of the first route
func (c *MapboxClient) Navigation(ctx context.Context, start, end Coordinates, waypoints []Coordinates) (*NavigationResponse, error) {
	params := url.Values{
		"steps":               {"true"},
		"voice_instructions":  {"true"},
		"banner_instructions": {"true"},
		"annotations":         {"duration,distance"},
	}
	routes, err := c.directions(ctx, "navigation", c.directionsURL(start, end, waypoints, params))
	if err != nil {
		return nil, err
	}

	best := routes[0]
	result := &NavigationResponse{
		Distance: best.Distance,
		Duration: best.Duration,
		Geometry: best.Geometry,
		Legs:     make([]NavigationLeg, len(best.Legs)),
	}
	for i, leg := range best.Legs {
		steps := make([]NavigationStep, len(leg.Steps))
		for j, s := range leg.Steps {
			steps[j] = NavigationStep{
				Distance:     s.Distance,
				Duration:     s.Duration,
				Name:         s.Name,
				Instruction:  s.Maneuver.Instruction,
				Type:         s.Maneuver.Type,
				Modifier:     s.Maneuver.Modifier,
				BearingAfter: s.Maneuver.BearingAfter,
			}
		}
		result.Legs[i] = NavigationLeg{
			Summary:  leg.Summary,
			Distance: leg.Distance,
			Duration: leg.Duration,
			Steps:    steps,
		}
	}
	return result, nil
}
