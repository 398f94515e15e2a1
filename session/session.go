package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nwah/tripnav/location"
	"github.com/nwah/tripnav/mapsync"
	"github.com/nwah/tripnav/mode"
	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/trip"
)

// Inbound message types
const (
	TypeAction   = "action"
	TypeEvent    = "event"
	TypePosition = "position"
)

// Outbound message types
const (
	TypeCommand = "command"
	TypePanel   = "panel"
	TypeError   = "error"
)

// ErrUnknownMessage is returned for messages that name no known type or action
var ErrUnknownMessage = errors.New("unknown message")

// Position is a browser geolocation sample
type Position struct {
	Lng       float64  `json:"lng"`
	Lat       float64  `json:"lat"`
	Accuracy  float64  `json:"accuracy"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // unix milliseconds
}

// Inbound is a message from the client
type Inbound struct {
	Type     string            `json:"type"`
	Action   string            `json:"action,omitempty"`
	Query    string            `json:"query,omitempty"`
	Submit   bool              `json:"submit,omitempty"`
	PlaceID  string            `json:"place_id,omitempty"`
	Target   string            `json:"target,omitempty"`
	Index    int               `json:"index,omitempty"`
	Event    *mapsync.MapEvent `json:"event,omitempty"`
	Position *Position         `json:"position,omitempty"`
}

// Outbound is a message to the client
type Outbound struct {
	Type    string           `json:"type"`
	Command *mapsync.Command `json:"command,omitempty"`
	Panel   *mode.Panel      `json:"panel,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Options configures a Session
type Options struct {
	Provider nav.Provider
	Reporter Reporter
	Logger   *slog.Logger
	Debounce time.Duration
}

// Session is one planning session. It owns the trip state and everything
// that reads or renders it.
type Session struct {
	ID string

	logger   *slog.Logger
	reporter Reporter
	send     func(Outbound)

	feed     *location.Feed
	resolver *trip.Resolver
	store    *trip.Store
	surface  *mapsync.RemoteSurface
	engine   *mapsync.Engine
	ctrl     *mode.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	unsubs    []func()
}

// New wires a session. Nothing runs until Start.
func New(opts Options, send func(Outbound)) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session", id)

	s := &Session{
		ID:       id,
		logger:   logger,
		reporter: opts.Reporter,
		send:     send,
		feed:     location.NewFeed(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.resolver = trip.NewResolver(s.feed, logger)

	var router nav.Router
	var geocoder nav.Geocoder
	var navigator nav.Navigator
	if opts.Provider != nil {
		router, geocoder, navigator = opts.Provider, opts.Provider, opts.Provider
	}
	s.store = trip.NewStore(trip.Options{Router: router, Resolver: s.resolver, Logger: logger})
	s.resolver.OnFix(s.store.SetLiveFix)

	s.surface = mapsync.NewRemoteSurface(func(cmd mapsync.Command) {
		s.send(Outbound{Type: TypeCommand, Command: &cmd})
	})
	s.engine = mapsync.NewEngine(s.surface, s.store, logger)

	s.ctrl = mode.NewController(mode.Options{
		Store:     s.store,
		Geocoder:  geocoder,
		Navigator: navigator,
		Debounce:  opts.Debounce,
		Logger:    logger,
	})
	return s
}

// Feed is the position feed of the session
func (s *Session) Feed() *location.Feed {
	return s.feed
}

// Start begins the position watch and map sync and sends the first panel
func (s *Session) Start() {
	s.resolver.Start()
	s.engine.Start()
	s.ctrl.OnChange(s.pushPanel)

	// changes that do not go through the controller
	for _, event := range []trip.Event{trip.EventActiveRoute, trip.EventLocationError} {
		s.unsubs = append(s.unsubs, s.store.Subscribe(event, func(trip.State) {
			s.pushPanel(s.ctrl.Panel())
		}))
	}

	s.pushPanel(s.ctrl.Panel())
	s.logger.Info("session started")
}

func (s *Session) pushPanel(p mode.Panel) {
	s.send(Outbound{Type: TypePanel, Panel: &p})
}

// Close stops everything the session started and waits for running actions
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.ctrl.OnChange(nil)
		s.ctrl.Close()
		for _, unsub := range s.unsubs {
			unsub()
		}
		s.engine.Close()
		s.resolver.Stop()
		s.wg.Wait()
		s.logger.Info("session closed")
	})
}

// Handle applies one client message. Actions that call a collaborator run in
// the background and report their errors through the error message.
func (s *Session) Handle(msg Inbound) error {
	switch msg.Type {
	case TypeAction:
		return s.handleAction(msg)
	case TypeEvent:
		if msg.Event == nil {
			return fmt.Errorf("%w: event without payload", ErrUnknownMessage)
		}
		return s.engine.HandleEvent(*msg.Event)
	case TypePosition:
		if msg.Position == nil {
			return fmt.Errorf("%w: position without payload", ErrUnknownMessage)
		}
		fix := fixFrom(*msg.Position)
		if err := location.ValidateFix(fix); err != nil {
			return err
		}
		s.feed.Publish(fix)
		return nil
	default:
		return fmt.Errorf("%w: type %q", ErrUnknownMessage, msg.Type)
	}
}

func fixFrom(p Position) trip.Fix {
	fix := trip.Fix{
		Coords:   nav.Coordinates{Lng: p.Lng, Lat: p.Lat},
		Accuracy: p.Accuracy,
		Heading:  p.Heading,
	}
	if p.Timestamp > 0 {
		fix.Timestamp = time.UnixMilli(p.Timestamp)
	}
	return fix
}

func (s *Session) handleAction(msg Inbound) error {
	switch msg.Action {
	case "query":
		return s.ctrl.SetQuery(msg.Query, msg.Submit)
	case "select":
		return s.ctrl.SelectPlace(msg.PlaceID)
	case "directions":
		s.background(msg.Action, s.ctrl.ShowDirections)
	case "start":
		s.background(msg.Action, s.ctrl.StartNavigation)
	case "end":
		return s.ctrl.EndNavigation()
	case "cancel":
		s.ctrl.Cancel()
	case "search-open":
		return s.ctrl.OpenSearch(mode.SearchTarget(msg.Target))
	case "search-query":
		return s.ctrl.SetSearchQuery(msg.Query)
	case "search-next":
		s.ctrl.NextResult()
	case "search-prev":
		s.ctrl.PrevResult()
	case "search-confirm":
		s.background(msg.Action, s.ctrl.ConfirmSearch)
	case "search-close":
		s.ctrl.CloseSearch()
	case "remove-stop":
		index := msg.Index
		s.background(msg.Action, func(ctx context.Context) error {
			return s.ctrl.RemoveStop(ctx, index)
		})
	case "clear-origin":
		s.background(msg.Action, s.ctrl.ClearOrigin)
	case "select-route":
		return s.ctrl.SelectRoute(msg.Index)
	case "retry":
		s.background(msg.Action, s.ctrl.Retry)
	default:
		return fmt.Errorf("%w: action %q", ErrUnknownMessage, msg.Action)
	}
	return nil
}

// background runs a collaborator action without blocking the reader
func (s *Session) background(action string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fail(action, fn(s.ctx))
	}()
}

func (s *Session) fail(action string, err error) {
	if err == nil || errors.Is(err, trip.ErrSuperseded) || s.ctx.Err() != nil {
		return
	}
	s.logger.Warn("action failed", "action", action, "error", err)
	if reportable(err) && s.reporter != nil {
		s.reporter.Report(err, map[string]any{"session": s.ID, "action": action})
	}
	s.send(Outbound{Type: TypeError, Error: err.Error()})
}
