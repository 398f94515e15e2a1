package nav

import (
	"log/slog"
	"net/http"
	"strings"
)

// MapboxClient implements Provider against the Mapbox geocoding and directions APIs
type MapboxClient struct {
	cfg    NavConfig
	client *http.Client
	logger *slog.Logger
}

// NewMapboxClient creates a Mapbox client. A nil httpClient gets one with the configured timeout.
func NewMapboxClient(cfg NavConfig, httpClient *http.Client, logger *slog.Logger) *MapboxClient {
	cfg = cfg.WithDefaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = mapboxBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout.Duration}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MapboxClient{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With("component", "mapbox"),
	}
}

// Name returns the provider name
func (c *MapboxClient) Name() ProviderName {
	return ProviderMapbox
}
