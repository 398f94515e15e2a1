package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nwah/tripnav/location"
	"github.com/nwah/tripnav/mapsync"
	"github.com/nwah/tripnav/mode"
	"github.com/nwah/tripnav/nav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kochi = nav.Place{ID: "p1", Text: "Kochi", PlaceName: "Kochi, Kerala, India", Lng: 76.27, Lat: 9.93}
	gps   = nav.Coordinates{Lng: 76.30, Lat: 10.00}

	direct = nav.RouteCandidate{
		Distance: 5000,
		Duration: 600,
		Geometry: nav.LineString{{Lng: 76.30, Lat: 10.00}, {Lng: 76.27, Lat: 9.93}},
	}
	scenic = nav.RouteCandidate{
		Distance: 7000,
		Duration: 900,
		Geometry: nav.LineString{{Lng: 76.30, Lat: 10.00}, {Lng: 76.35, Lat: 9.95}, {Lng: 76.27, Lat: 9.93}},
	}
)

type fakeProvider struct {
	mu       sync.Mutex
	routeErr error
}

func (f *fakeProvider) Name() nav.ProviderName { return nav.ProviderMapbox }

func (f *fakeProvider) Geocode(ctx context.Context, query string) ([]nav.Place, error) {
	if query == "Kochi" {
		return []nav.Place{kochi}, nil
	}
	return nil, nil
}

func (f *fakeProvider) Route(ctx context.Context, start, end nav.Coordinates, waypoints []nav.Coordinates) ([]nav.RouteCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	return []nav.RouteCandidate{scenic, direct}, nil
}

func (f *fakeProvider) Navigation(ctx context.Context, start, end nav.Coordinates, waypoints []nav.Coordinates) (*nav.NavigationResponse, error) {
	return &nav.NavigationResponse{Distance: direct.Distance, Duration: direct.Duration, Geometry: direct.Geometry}, nil
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
	ctxs []map[string]any
}

func (f *fakeReporter) Report(err error, context map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	f.ctxs = append(f.ctxs, context)
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

type outbox struct {
	mu  sync.Mutex
	out []Outbound
}

func (o *outbox) send(msg Outbound) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.out = append(o.out, msg)
}

func (o *outbox) lastPanel() mode.Panel {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.out) - 1; i >= 0; i-- {
		if o.out[i].Panel != nil {
			return *o.out[i].Panel
		}
	}
	return mode.Panel{}
}

func (o *outbox) ops() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, msg := range o.out {
		if msg.Command != nil {
			out = append(out, msg.Command.Op+" "+msg.Command.ID)
		}
	}
	return out
}

func (o *outbox) errors() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, msg := range o.out {
		if msg.Type == TypeError {
			out = append(out, msg.Error)
		}
	}
	return out
}

func newTestSession(t *testing.T, provider nav.Provider, reporter Reporter) (*Session, *outbox) {
	t.Helper()
	box := &outbox{}
	s := New(Options{Provider: provider, Reporter: reporter, Debounce: 10 * time.Millisecond}, box.send)
	s.Start()
	t.Cleanup(s.Close)
	return s, box
}

func waitPanel(t *testing.T, box *outbox, want mode.Mode) {
	t.Helper()
	require.Eventually(t, func() bool { return box.lastPanel().Mode == want }, time.Second, 5*time.Millisecond)
}

func action(name string) Inbound {
	return Inbound{Type: TypeAction, Action: name}
}

func TestSessionTripFlow(t *testing.T) {
	s, box := newTestSession(t, &fakeProvider{}, nil)

	assert.Equal(t, mode.Idle, box.lastPanel().Mode)
	require.NoError(t, s.Handle(Inbound{Type: TypePosition, Position: &Position{Lng: gps.Lng, Lat: gps.Lat, Accuracy: 10}}))
	require.NotNil(t, s.store.Snapshot().LiveCoords)

	require.NoError(t, s.Handle(Inbound{Type: TypeAction, Action: "query", Query: "Kochi", Submit: true}))
	waitPanel(t, box, mode.PlaceSelected)
	assert.Contains(t, box.ops(), "add-marker selection-0")

	require.NoError(t, s.Handle(action("directions")))
	waitPanel(t, box, mode.Routing)

	ops := box.ops()
	assert.Contains(t, ops, "add-source route-0")
	assert.Contains(t, ops, "add-layer route-1")
	assert.Contains(t, ops, "fit-bounds ")

	p := box.lastPanel()
	require.Len(t, p.Routes, 2)
	assert.Equal(t, "10 min", p.Routes[0].Duration)
	assert.True(t, p.Routes[0].Active)

	// route clicks go through the engine and still refresh the panel
	require.NoError(t, s.Handle(Inbound{Type: TypeEvent, Event: &mapsync.MapEvent{Type: mapsync.EventClick, Layer: "route-1"}}))
	assert.True(t, box.lastPanel().Routes[1].Active)

	require.NoError(t, s.Handle(action("start")))
	waitPanel(t, box, mode.Navigating)
	require.Eventually(t, func() bool { return box.lastPanel().Navigation != nil }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Handle(action("cancel")))
	assert.Equal(t, mode.Idle, box.lastPanel().Mode)
	assert.Contains(t, box.ops(), "remove-layer route-1")
	assert.Empty(t, s.store.Snapshot().Routes)
}

func TestSessionReportsCollaboratorFailures(t *testing.T) {
	reporter := &fakeReporter{}
	provider := &fakeProvider{routeErr: &nav.CollaboratorError{Op: "route", StatusCode: 503}}
	s, box := newTestSession(t, provider, reporter)

	require.NoError(t, s.Handle(Inbound{Type: TypePosition, Position: &Position{Lng: gps.Lng, Lat: gps.Lat}}))
	require.NoError(t, s.Handle(Inbound{Type: TypeAction, Action: "query", Query: "Kochi", Submit: true}))
	waitPanel(t, box, mode.PlaceSelected)

	require.NoError(t, s.Handle(action("directions")))
	require.Eventually(t, func() bool { return reporter.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, s.ID, reporter.ctxs[0]["session"])
	assert.Equal(t, "directions", reporter.ctxs[0]["action"])
	assert.True(t, errors.Is(reporter.errs[0], nav.ErrCollaboratorUnavailable))

	require.Eventually(t, func() bool { return len(box.errors()) == 1 }, time.Second, 5*time.Millisecond)
	p := box.lastPanel()
	assert.Equal(t, mode.PlaceSelected, p.Mode)
	assert.True(t, p.Retryable)

	provider.mu.Lock()
	provider.routeErr = nil
	provider.mu.Unlock()
	require.NoError(t, s.Handle(action("retry")))
	waitPanel(t, box, mode.Routing)
}

func TestSessionRejectsUnknownMessages(t *testing.T) {
	s, _ := newTestSession(t, &fakeProvider{}, nil)

	tests := []Inbound{
		{Type: "hello"},
		{Type: TypeAction, Action: "teleport"},
		{Type: TypeEvent},
		{Type: TypePosition},
	}
	for _, msg := range tests {
		assert.ErrorIs(t, s.Handle(msg), ErrUnknownMessage)
	}

	assert.ErrorIs(t, s.Handle(action("end")), mode.ErrInvalidTransition)

	for _, p := range []Position{{}, {Lng: 76.3, Lat: 95}, {Lng: 200, Lat: 10}, {Lng: 76.3, Lat: 10, Accuracy: -1}} {
		assert.ErrorIs(t, s.Handle(Inbound{Type: TypePosition, Position: &p}), location.ErrInvalidFix)
	}
	assert.Nil(t, s.store.Snapshot().LiveCoords)
	_, ok := s.Feed().Last()
	assert.False(t, ok)
	assert.Error(t, s.Handle(Inbound{Type: TypeEvent, Event: &mapsync.MapEvent{Type: "dblclick"}}))
}

func TestSessionWithoutProvider(t *testing.T) {
	reporter := &fakeReporter{}
	s, box := newTestSession(t, nil, reporter)

	require.NoError(t, s.Handle(Inbound{Type: TypeAction, Action: "query", Query: "Kochi"}))
	require.Eventually(t, func() bool { return box.lastPanel().Error != "" }, time.Second, 5*time.Millisecond)
	assert.Contains(t, box.lastPanel().Error, nav.ErrMissingConfiguration.Error())
}

func TestServerWebsocket(t *testing.T) {
	srv := NewServer(ServerOptions{Provider: &fakeProvider{}, Debounce: 10 * time.Millisecond})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var first Outbound
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, TypePanel, first.Type)
	assert.Equal(t, mode.Idle, first.Panel.Mode)
	assert.Equal(t, 1, srv.Sessions())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nonsense`)))
	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeAction, Action: "query", Query: "Kochi", Submit: true}))

	var types []string
	var modes []mode.Mode
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !slices.Contains(modes, mode.PlaceSelected) {
		var msg Outbound
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Panel != nil {
			modes = append(modes, msg.Panel.Mode)
		}
	}
	assert.Contains(t, types, TypeError)
	assert.Contains(t, types, TypeCommand)
	assert.Contains(t, modes, mode.Searching)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, time.Second, 10*time.Millisecond)
}
