package nav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
)

// Geocoder performs forward geocoding
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]Place, error)
}

// Router returns full-geometry route candidates. Alternatives are only
// requested when no waypoints are supplied.
type Router interface {
	Route(ctx context.Context, start, end Coordinates, waypoints []Coordinates) ([]RouteCandidate, error)
}

// Navigator returns the turn-by-turn variant of a route
type Navigator interface {
	Navigation(ctx context.Context, start, end Coordinates, waypoints []Coordinates) (*NavigationResponse, error)
}

// Provider bundles the three collaborators
type Provider interface {
	Geocoder
	Router
	Navigator
	Name() ProviderName
}

// WithDefaults fills in unset configuration values
func (c NavConfig) WithDefaults() NavConfig {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Profile == "" {
		c.Profile = DefaultProfile
	}
	if c.Country == "" {
		c.Country = DefaultCountry
	}
	if c.BBox == "" {
		c.BBox = DefaultBBox
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Timeout.Duration <= 0 {
		c.Timeout.Duration = DefaultTimeout
	}
	return c
}

// Validate checks the configuration for the selected provider
func (c NavConfig) Validate() error {
	if !c.Provider.IsValid() {
		return fmt.Errorf("invalid provider %q: must be one of: %s, %s", c.Provider, ProviderMapbox, ProviderGoogle)
	}
	if !c.Profile.IsValid() {
		return fmt.Errorf("invalid profile %q", c.Profile)
	}
	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("nav.google_api_key: %w", ErrMissingConfiguration)
		}
	default:
		if c.AccessToken == "" {
			return fmt.Errorf("nav.access_token: %w", ErrMissingConfiguration)
		}
	}
	return nil
}

// NewProvider builds the configured provider client
func NewProvider(cfg NavConfig, logger *slog.Logger) (Provider, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Provider == ProviderGoogle {
		return NewGoogleClient(cfg, logger)
	}
	return NewMapboxClient(cfg, nil, logger), nil
}

var tokenPattern = regexp.MustCompile(`(access_token|key)=[^&]+`)

// redactToken hides credentials in URLs that end up in logs and errors
func redactToken(u string) string {
	return tokenPattern.ReplaceAllString(u, "$1=REDACTED")
}

// getJSON issues a GET and decodes a JSON body into out. Non-success statuses and
// transport failures become *CollaboratorError.
func getJSON(ctx context.Context, client *http.Client, op string, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, token included
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &CollaboratorError{Op: op, URL: redactToken(apiURL), Err: err}
	}
	defer resp.Body.Close()

	if err := parseErrorResponse(op, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &CollaboratorError{Op: op, StatusCode: resp.StatusCode, URL: redactToken(apiURL), Err: fmt.Errorf("error decoding response: %w", err)}
	}
	return nil
}
