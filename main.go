package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nwah/tripnav/location"
	"github.com/nwah/tripnav/nav"
	"github.com/nwah/tripnav/session"
)

const serviceName = "tripnav"

// newRouter registers the collaborator proxy endpoints and the session websocket
func newRouter(proxy *nav.Handler, ws http.Handler) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/geocode", proxy.HandleGeocode).Methods(http.MethodGet)
	api.HandleFunc("/route", proxy.HandleRoute).Methods(http.MethodGet)
	api.HandleFunc("/navigation", proxy.HandleNavigation).Methods(http.MethodGet)

	r.Handle("/ws", ws)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

func main() {
	// Load configuration
	config, err := LoadConfig("config.toml", ".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := NewLogger(serviceName, config.LogLevel)
	slog.SetDefault(logger)

	if err := session.InitSentry(session.SentryConfig{DSN: config.SentryDSN, Environment: config.Environment}, logger); err != nil {
		logger.Error("error reporting unavailable", "error", err)
	}
	defer session.FlushSentry(2 * time.Second)

	provider, err := nav.NewProvider(config.Nav, logger)
	if err != nil {
		logger.Error("failed to create provider", "error", err)
		os.Exit(1)
	}

	var devices *location.MQTTSource
	if config.Location.Enabled() {
		devices = location.NewMQTTSource(config.Location, logger)
		if err := devices.Connect(); err != nil {
			logger.Error("device positions disabled", "error", err)
			devices = nil
		} else {
			defer devices.Close()
		}
	}

	ws := session.NewServer(session.ServerOptions{
		Provider: provider,
		Reporter: session.NewSentryReporter(logger),
		Devices:  devices,
		Debounce: config.Session.SearchDebounce.Duration,
		Logger:   logger,
	})
	defer ws.Close()

	router := newRouter(nav.NewHandler(provider, logger), ws)
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
	)
	srv := &http.Server{
		Addr:    config.Port,
		Handler: cors(handlers.LoggingHandler(os.Stdout, router)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "port", config.Port, "provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
