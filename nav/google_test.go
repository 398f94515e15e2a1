package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	maps "googlemaps.github.io/maps"
)

func newTestGoogle(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGoogleClient(NavConfig{Provider: ProviderGoogle, GoogleAPIKey: "AIza-test", BaseURL: server.URL}, nil)
	require.NoError(t, err)
	return client
}

const googleDirectionsOK = `{"status":"OK","routes":[{
	"summary":"NH66",
	"overview_polyline":{"points":"_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"},
	"legs":[{
		"distance":{"value":5000,"text":"5 km"},
		"duration":{"value":600,"text":"10 mins"},
		"start_location":{"lat":38.5,"lng":-120.2},
		"end_location":{"lat":43.252,"lng":-126.453},
		"steps":[
			{"html_instructions":"Head <b>north</b> on NH66","distance":{"value":4000,"text":"4 km"},"duration":{"value":500,"text":"8 mins"},
			 "start_location":{"lat":38.5,"lng":-120.2},"end_location":{"lat":40.7,"lng":-120.2},"travel_mode":"DRIVING"},
			{"html_instructions":"Turn <b>left</b> onto MG Road<div style=\"font-size:0.9em\">Destination will be on the right</div>","distance":{"value":1000,"text":"1 km"},"duration":{"value":100,"text":"2 mins"},
			 "start_location":{"lat":40.7,"lng":-120.2},"end_location":{"lat":40.7,"lng":-121.2},"travel_mode":"DRIVING"}
		]
	}]
}]}`

func TestGoogleRoute(t *testing.T) {
	client := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/maps/api/directions/json", r.URL.Path)
		assert.Equal(t, "10,76.3", q.Get("origin"), "google takes lat,lng")
		assert.Equal(t, "9.93,76.27", q.Get("destination"))
		assert.Equal(t, "true", q.Get("alternatives"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(googleDirectionsOK))
	})

	routes, err := client.Route(context.Background(), Coordinates{Lng: 76.3, Lat: 10}, Coordinates{Lng: 76.27, Lat: 9.93}, nil)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, 5000.0, routes[0].Distance)
	assert.Equal(t, 600.0, routes[0].Duration)
	require.Len(t, routes[0].Geometry, 3)
	assert.InDelta(t, -120.2, routes[0].Geometry[0].Lng, 1e-6)
	assert.InDelta(t, 38.5, routes[0].Geometry[0].Lat, 1e-6)
}

func TestGoogleNavigation(t *testing.T) {
	client := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(googleDirectionsOK))
	})

	resp, err := client.Navigation(context.Background(), Coordinates{Lng: 76.3, Lat: 10}, Coordinates{Lng: 76.27, Lat: 9.93}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Legs, 1)
	assert.Equal(t, "NH66", resp.Legs[0].Summary)

	steps := resp.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, ManeuverDepart, steps[0].Type)
	assert.Equal(t, "Head north on NH66", steps[0].Instruction)
	assert.InDelta(t, 0, steps[0].BearingAfter, 0.01)
	assert.Equal(t, ManeuverTurn, steps[1].Type)
	assert.Equal(t, "left", steps[1].Modifier)
	assert.Equal(t, "Turn left onto MG Road Destination will be on the right", steps[1].Instruction)
	assert.Equal(t, ManeuverArrive, steps[2].Type)
}

func TestGoogleZeroResults(t *testing.T) {
	client := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ZERO_RESULTS","routes":[]}`))
	})

	_, err := client.Route(context.Background(), Coordinates{Lng: 76.3, Lat: 10}, Coordinates{Lng: 76.27, Lat: 9.93}, nil)
	assert.ErrorIs(t, err, ErrNoRouteFound)
}

func TestGoogleGeocode(t *testing.T) {
	client := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "Kochi", q.Get("address"))
		assert.Equal(t, "in", q.Get("region"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","results":[{
			"place_id":"ChIJ1","formatted_address":"Kochi, Kerala, India","types":["locality","political"],
			"address_components":[{"long_name":"Kochi","short_name":"Kochi","types":["locality"]}],
			"geometry":{"location":{"lat":9.93,"lng":76.27}}
		}]}`))
	})

	places, err := client.Geocode(context.Background(), "Kochi")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, Place{ID: "ChIJ1", Text: "Kochi", PlaceName: "Kochi, Kerala, India", PlaceType: "locality", Lng: 76.27, Lat: 9.93}, places[0])
}

func TestNewGoogleClientRequiresKey(t *testing.T) {
	_, err := NewGoogleClient(NavConfig{Provider: ProviderGoogle}, nil)
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestManeuverFromInstruction(t *testing.T) {
	tests := []struct {
		in           string
		wantType     string
		wantModifier string
	}{
		{"", "continue", "straight"},
		{"Head north on NH66", "continue", "straight"},
		{"Turn left onto MG Road Destination will be on the right", ManeuverTurn, "left"},
		{"Slight right toward Marine Drive", ManeuverTurn, "slight right"},
		{"Turn sharp left", ManeuverTurn, "sharp left"},
		{"Make a U-turn", ManeuverTurn, "uturn"},
		{"At the roundabout, take the 2nd exit onto NH544", ManeuverRoundabout, ""},
		{"Keep right at the fork", "fork", "right"},
		{"Merge onto NH66", "merge", ""},
		{"Continue onto Banerji Road", "continue", "straight"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, mod := maneuverFromInstruction(tt.in)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantModifier, mod)
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Head north on NH66", stripHTML("Head <b>north</b> on NH66"))
	assert.Equal(t, "Turn left Destination will be on the right",
		stripHTML(`Turn <b>left</b><div style="font-size:0.9em">Destination will be on the right</div>`))
}

func TestInitialBearing(t *testing.T) {
	origin := maps.LatLng{Lat: 10, Lng: 76}
	assert.InDelta(t, 0, initialBearing(origin, maps.LatLng{Lat: 11, Lng: 76}), 0.01)
	assert.InDelta(t, 180, initialBearing(origin, maps.LatLng{Lat: 9, Lng: 76}), 0.01)
	assert.InDelta(t, 90, initialBearing(origin, maps.LatLng{Lat: 10, Lng: 77}), 0.5)
}
