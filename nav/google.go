package nav

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	maps "googlemaps.github.io/maps"
)

// GoogleClient implements Provider against the Google Maps directions and geocoding APIs
type GoogleClient struct {
	cfg    NavConfig
	client *maps.Client
	logger *slog.Logger
}

// NewGoogleClient creates a Google Maps client
func NewGoogleClient(cfg NavConfig, logger *slog.Logger) (*GoogleClient, error) {
	cfg = cfg.WithDefaults()
	if cfg.GoogleAPIKey == "" {
		return nil, ErrMissingConfiguration
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.GoogleAPIKey),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("maps.NewClient: %w", err)
	}

	return &GoogleClient{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "google"),
	}, nil
}

// Name returns the provider name
func (g *GoogleClient) Name() ProviderName {
	return ProviderGoogle
}

// googleLatLng formats coordinates the way Google expects them: lat first
func googleLatLng(c Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

func googleTravelMode(p Profile) maps.Mode {
	switch p {
	case ProfileWalking:
		return maps.TravelModeWalking
	case ProfileCycling:
		return maps.TravelModeBicycling
	default:
		return maps.TravelModeDriving
	}
}

// wrapGoogleError maps library errors onto the collaborator taxonomy
func wrapGoogleError(op string, err error) error {
	if strings.Contains(err.Error(), "ZERO_RESULTS") || strings.Contains(err.Error(), "NOT_FOUND") {
		return ErrNoRouteFound
	}
	return &CollaboratorError{Op: op, Err: err}
}

func (g *GoogleClient) directions(ctx context.Context, op string, start, end Coordinates, waypoints []Coordinates) ([]maps.Route, error) {
	req := &maps.DirectionsRequest{
		Origin:       googleLatLng(start),
		Destination:  googleLatLng(end),
		Mode:         googleTravelMode(g.cfg.Profile),
		Alternatives: len(waypoints) == 0,
		Region:       strings.ToLower(g.cfg.Country),
	}
	for _, wp := range waypoints {
		req.Waypoints = append(req.Waypoints, googleLatLng(wp))
	}

	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return nil, wrapGoogleError(op, err)
	}
	if len(routes) == 0 {
		return nil, ErrNoRouteFound
	}
	return routes, nil
}

func decodeOverview(r maps.Route) (LineString, error) {
	points, err := r.OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("error decoding polyline: %w", err)
	}
	out := make(LineString, len(points))
	for i, p := range points {
		out[i] = Coordinates{Lng: p.Lng, Lat: p.Lat}
	}
	return out, nil
}

func routeTotals(r maps.Route) (distance, duration float64) {
	for _, leg := range r.Legs {
		distance += float64(leg.Distance.Meters)
		duration += leg.Duration.Seconds()
	}
	return distance, duration
}

// Route fetches route candidates from Google Directions
func (g *GoogleClient) Route(ctx context.Context, start, end Coordinates, waypoints []Coordinates) ([]RouteCandidate, error) {
	routes, err := g.directions(ctx, "route", start, end, waypoints)
	if err != nil {
		return nil, err
	}

	out := make([]RouteCandidate, 0, len(routes))
	for _, r := range routes {
		geometry, err := decodeOverview(r)
		if err != nil {
			return nil, &CollaboratorError{Op: "route", Err: err}
		}
		distance, duration := routeTotals(r)
		out = append(out, RouteCandidate{Distance: distance, Duration: duration, Geometry: geometry})
	}
	return out, nil
}

// Navigation fetches the first route with per-step maneuver metadata
func (g *GoogleClient) Navigation(ctx context.Context, start, end Coordinates, waypoints []Coordinates) (*NavigationResponse, error) {
	routes, err := g.directions(ctx, "navigation", start, end, waypoints)
	if err != nil {
		return nil, err
	}

	best := routes[0]
	geometry, err := decodeOverview(best)
	if err != nil {
		return nil, &CollaboratorError{Op: "navigation", Err: err}
	}
	distance, duration := routeTotals(best)

	result := &NavigationResponse{
		Distance: distance,
		Duration: duration,
		Geometry: geometry,
	}
	for li, leg := range best.Legs {
		nl := NavigationLeg{
			Summary:  best.Summary,
			Distance: float64(leg.Distance.Meters),
			Duration: leg.Duration.Seconds(),
		}
		for si, step := range leg.Steps {
			instruction := stripHTML(step.HTMLInstructions)
			maneuverType, modifier := maneuverFromInstruction(instruction)
			if li == 0 && si == 0 {
				maneuverType = ManeuverDepart
			}
			nl.Steps = append(nl.Steps, NavigationStep{
				Distance:     float64(step.Distance.Meters),
				Duration:     step.Duration.Seconds(),
				Instruction:  instruction,
				Type:         maneuverType,
				Modifier:     modifier,
				BearingAfter: initialBearing(step.StartLocation, step.EndLocation),
			})
		}
		if li == len(best.Legs)-1 {
			nl.Steps = append(nl.Steps, NavigationStep{
				Instruction: "You have arrived at your destination",
				Type:        ManeuverArrive,
			})
		}
		result.Legs = append(result.Legs, nl)
	}
	return result, nil
}

// Geocode performs forward geocoding biased to the configured region
func (g *GoogleClient) Geocode(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	req := &maps.GeocodingRequest{
		Address: query,
		Region:  strings.ToLower(g.cfg.Country),
	}
	if b, ok := parseBBox(g.cfg.BBox); ok {
		req.Bounds = b
	}

	results, err := g.client.Geocode(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, &CollaboratorError{Op: "geocode", Err: err}
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		if len(places) == g.cfg.Limit {
			break
		}
		p := Place{
			ID:        r.PlaceID,
			PlaceName: r.FormattedAddress,
			Lng:       r.Geometry.Location.Lng,
			Lat:       r.Geometry.Location.Lat,
		}
		if len(r.AddressComponents) > 0 {
			p.Text = r.AddressComponents[0].LongName
		}
		if len(r.Types) > 0 {
			p.PlaceType = r.Types[0]
		}
		places = append(places, p)
	}
	return places, nil
}

// parseBBox parses "minLng,minLat,maxLng,maxLat"
func parseBBox(s string) (*maps.LatLngBounds, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, false
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		v[i] = f
	}
	return &maps.LatLngBounds{
		SouthWest: maps.LatLng{Lat: v[1], Lng: v[0]},
		NorthEast: maps.LatLng{Lat: v[3], Lng: v[2]},
	}, true
}

// maneuverFromInstruction derives a maneuver type and modifier from the
// instruction text, since Google steps carry no structured maneuver.
func maneuverFromInstruction(text string) (string, string) {
	words := strings.Fields(strings.ToLower(text))
	side := ""
	for i, w := range words {
		w = strings.Trim(w, ".,;:")
		if w != "left" && w != "right" {
			continue
		}
		side = w
		if i > 0 {
			if prev := words[i-1]; prev == "slight" || prev == "sharp" {
				side = prev + " " + w
			}
		}
		break
	}

	lower := strings.Join(words, " ")
	switch {
	case strings.Contains(lower, "u-turn"):
		return ManeuverTurn, "uturn"
	case strings.Contains(lower, "roundabout"), strings.Contains(lower, "rotary"):
		return ManeuverRoundabout, side
	case strings.HasPrefix(lower, "merge"):
		return "merge", side
	case strings.HasPrefix(lower, "keep"):
		return "fork", side
	case strings.HasPrefix(lower, "continue"), side == "":
		return "continue", "straight"
	}
	return ManeuverTurn, side
}

// initialBearing returns the compass bearing in degrees from a to b
func initialBearing(a, b maps.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// stripHTML drops tags from Google instructions. Tags become spaces so block
// elements such as <div> do not run words together.
func stripHTML(s string) string {
	out := make([]rune, 0, len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			out = append(out, ' ')
		case r == '>':
			inTag = false
		case !inTag:
			out = append(out, r)
		}
	}
	return strings.Join(strings.Fields(string(out)), " ")
}
