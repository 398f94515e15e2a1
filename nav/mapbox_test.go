package nav

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "pk.secret-token"

func newTestMapbox(t *testing.T, handler http.HandlerFunc) (*MapboxClient, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewMapboxClient(NavConfig{AccessToken: testToken, BaseURL: server.URL}, nil, nil)
	return client, &calls
}

func TestMapboxGeocode(t *testing.T) {
	client, calls := newTestMapbox(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoding/v5/mapbox.places/Kochi.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "IN", q.Get("country"))
		assert.Equal(t, "68,6,97,37", q.Get("bbox"))
		assert.Equal(t, "true", q.Get("autocomplete"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, testToken, q.Get("access_token"))

		w.Write([]byte(`{"features":[{"id":"p1","text":"Kochi","place_name":"Kochi, Kerala, India","place_type":["place","locality"],"center":[76.27,9.93]}]}`))
	})

	places, err := client.Geocode(context.Background(), "  Kochi ")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, Place{ID: "p1", Text: "Kochi", PlaceName: "Kochi, Kerala, India", PlaceType: "place", Lng: 76.27, Lat: 9.93}, places[0])
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestMapboxGeocodeEmptyQuery(t *testing.T) {
	client, calls := newTestMapbox(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected provider call")
	})

	for _, q := range []string{"", "   "} {
		places, err := client.Geocode(context.Background(), q)
		assert.NoError(t, err)
		assert.Empty(t, places)
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(calls))
}

func TestMapboxMissingToken(t *testing.T) {
	client := NewMapboxClient(NavConfig{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	start := Coordinates{Lng: 76.30, Lat: 10.00}
	end := Coordinates{Lng: 76.27, Lat: 9.93}

	_, err := client.Geocode(context.Background(), "Kochi")
	assert.ErrorIs(t, err, ErrMissingConfiguration)

	_, err = client.Route(context.Background(), start, end, nil)
	assert.ErrorIs(t, err, ErrMissingConfiguration)

	_, err = client.Navigation(context.Background(), start, end, nil)
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestMapboxRoute(t *testing.T) {
	start := Coordinates{Lng: 76.3, Lat: 10}
	end := Coordinates{Lng: 76.27, Lat: 9.93}
	stop := Coordinates{Lng: 76.28, Lat: 9.97}

	tests := []struct {
		name             string
		waypoints        []Coordinates
		wantPath         string
		wantAlternatives string
	}{
		{
			name:             "no waypoints requests alternatives",
			wantPath:         "/directions/v5/mapbox/driving/76.3,10;76.27,9.93",
			wantAlternatives: "true",
		},
		{
			name:             "waypoints disable alternatives",
			waypoints:        []Coordinates{stop},
			wantPath:         "/directions/v5/mapbox/driving/76.3,10;76.28,9.97;76.27,9.93",
			wantAlternatives: "false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestMapbox(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				q := r.URL.Query()
				assert.Equal(t, tt.wantAlternatives, q.Get("alternatives"))
				assert.Equal(t, "geojson", q.Get("geometries"))
				assert.Equal(t, "full", q.Get("overview"))

				w.Write([]byte(`{"code":"Ok","routes":[
					{"distance":5000,"duration":600,"geometry":{"type":"LineString","coordinates":[[76.3,10],[76.27,9.93]]}},
					{"distance":5200,"duration":540,"geometry":{"type":"LineString","coordinates":[[76.3,10],[76.29,9.95],[76.27,9.93]]}}
				]}`))
			})

			routes, err := client.Route(context.Background(), start, end, tt.waypoints)
			require.NoError(t, err)
			require.Len(t, routes, 2)
			assert.Equal(t, 5000.0, routes[0].Distance)
			assert.Equal(t, 600.0, routes[0].Duration)
			assert.Equal(t, LineString{{Lng: 76.3, Lat: 10}, {Lng: 76.27, Lat: 9.93}}, routes[0].Geometry)
			assert.Len(t, routes[1].Geometry, 3)
		})
	}
}

func TestMapboxRouteNoRoutes(t *testing.T) {
	client, _ := newTestMapbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","message":"No route found","routes":[]}`))
	})

	routes, err := client.Route(context.Background(), Coordinates{Lng: 76.3, Lat: 10}, Coordinates{Lng: 76.27, Lat: 9.93}, nil)
	assert.ErrorIs(t, err, ErrNoRouteFound)
	assert.Nil(t, routes)
}

func TestMapboxCollaboratorFailure(t *testing.T) {
	longBody := strings.Repeat("x", 2000)
	client, _ := newTestMapbox(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(longBody))
	})

	_, err := client.Route(context.Background(), Coordinates{Lng: 76.3, Lat: 10}, Coordinates{Lng: 76.27, Lat: 9.93}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.True(t, IsRetryable(err))

	var ce *CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusServiceUnavailable, ce.StatusCode)
	assert.Len(t, ce.Body, maxErrorBodySize+3)
	assert.NotContains(t, ce.URL, testToken)
	assert.NotContains(t, err.Error(), testToken)
}

func TestMapboxTransportFailureHidesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewMapboxClient(NavConfig{AccessToken: testToken, BaseURL: server.URL}, nil, nil)
	_, err := client.Geocode(context.Background(), "Kochi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.NotContains(t, err.Error(), testToken)
}

func TestMapboxNavigation(t *testing.T) {
	client, _ := newTestMapbox(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("steps"))
		assert.Equal(t, "true", q.Get("voice_instructions"))
		assert.Equal(t, "true", q.Get("banner_instructions"))
		assert.Equal(t, "duration,distance", q.Get("annotations"))

		w.Write([]byte(`{"code":"Ok","routes":[{"distance":5000,"duration":600,
			"geometry":{"type":"LineString","coordinates":[[76.3,10],[76.27,9.93]]},
			"legs":[{"summary":"MG Road","distance":5000,"duration":600,"steps":[
				{"distance":4000,"duration":500,"name":"MG Road","maneuver":{"instruction":"Head south on MG Road","type":"depart","bearing_after":180}},
				{"distance":1000,"duration":100,"name":"Marine Drive","maneuver":{"instruction":"Turn right onto Marine Drive","type":"turn","modifier":"right","bearing_after":270}},
				{"distance":0,"duration":0,"name":"","maneuver":{"instruction":"You have arrived","type":"arrive"}}
			]}]}]}`))
	})

	resp, err := client.Navigation(context.Background(), Coordinates{Lng: 76.3, Lat: 10}, Coordinates{Lng: 76.27, Lat: 9.93}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, resp.Distance)
	require.Len(t, resp.Legs, 1)
	assert.Equal(t, "MG Road", resp.Legs[0].Summary)

	steps := resp.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, NavigationStep{
		Distance:     1000,
		Duration:     100,
		Name:         "Marine Drive",
		Instruction:  "Turn right onto Marine Drive",
		Type:         "turn",
		Modifier:     "right",
		BearingAfter: 270,
	}, steps[1])
	assert.Equal(t, ManeuverArrive, steps[2].Type)
}
