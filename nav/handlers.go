package nav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Handler serves the geocode/route/navigation proxy endpoints
type Handler struct {
	provider Provider
	logger   *slog.Logger
}

// NewHandler wraps a provider. A nil provider makes every call fail with MissingConfiguration.
func NewHandler(provider Provider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{provider: provider, logger: logger.With("component", "proxy")}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// statusFor maps collaborator errors onto proxy status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, ErrNoRouteFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCollaboratorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	h.logger.Error("proxy call failed", "op", op, "status", status, "error", err)
	writeError(w, status, err.Error())
}

// tripQuery splits the raw query on '&' only. url.ParseQuery drops pairs
// holding a ';', which is the waypoints separator.
func tripQuery(raw string) (url.Values, error) {
	q := url.Values{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, err
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %q parameter: %w", k, err)
		}
		q.Add(k, v)
	}
	return q, nil
}

// parseTrip reads start, end and the optional waypoints list
func parseTrip(r *http.Request) (start, end Coordinates, waypoints []Coordinates, err error) {
	q, err := tripQuery(r.URL.RawQuery)
	if err != nil {
		return start, end, nil, err
	}
	startStr, endStr := q.Get("start"), q.Get("end")
	if startStr == "" || endStr == "" {
		return start, end, nil, fmt.Errorf("missing start or end coordinates")
	}

	if start, err = ParseCoordinates(startStr); err != nil {
		return start, end, nil, fmt.Errorf("invalid 'start' parameter: %w", err)
	}
	if end, err = ParseCoordinates(endStr); err != nil {
		return start, end, nil, fmt.Errorf("invalid 'end' parameter: %w", err)
	}
	if waypoints, err = ParseWaypoints(q.Get("waypoints")); err != nil {
		return start, end, nil, fmt.Errorf("invalid 'waypoints' parameter: %w", err)
	}
	return start, end, waypoints, nil
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.provider == nil {
		writeError(w, http.StatusInternalServerError, ErrMissingConfiguration.Error())
		return false
	}
	return true
}

// HandleGeocode handles the /api/geocode endpoint
func (h *Handler) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	h.logger.Debug("geocode request", "query", query)

	if query == "" {
		writeJSON(w, GeocodeResponse{Places: []Place{}})
		return
	}
	if !h.ready(w) {
		return
	}

	places, err := h.provider.Geocode(r.Context(), query)
	if err != nil {
		h.fail(w, "geocode", err)
		return
	}
	if places == nil {
		places = []Place{}
	}
	writeJSON(w, GeocodeResponse{Places: places})
}

// HandleRoute handles the /api/route endpoint
func (h *Handler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	h.handleTrip(w, r, "route", func(ctx context.Context, start, end Coordinates, waypoints []Coordinates) (any, error) {
		routes, err := h.provider.Route(ctx, start, end, waypoints)
		if err != nil {
			return nil, err
		}
		return RouteResponse{Routes: routes}, nil
	})
}

// HandleNavigation handles the /api/navigation endpoint
func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	h.handleTrip(w, r, "navigation", func(ctx context.Context, start, end Coordinates, waypoints []Coordinates) (any, error) {
		return h.provider.Navigation(ctx, start, end, waypoints)
	})
}

// handleTrip handles the common parsing and error mapping for route-shaped requests
func (h *Handler) handleTrip(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, Coordinates, Coordinates, []Coordinates) (any, error)) {
	start, end, waypoints, err := parseTrip(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Debug(op+" request", "start", start.String(), "end", end.String(), "waypoints", len(waypoints))

	if !h.ready(w) {
		return
	}

	result, err := call(r.Context(), start, end, waypoints)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, result)
}
