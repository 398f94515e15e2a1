package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/nwah/tripnav/nav"
)

// Reporter receives unexpected failures
type Reporter interface {
	Report(err error, context map[string]any)
}

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes the global Sentry client
func InitSentry(cfg SentryConfig, logger *slog.Logger) error {
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured - error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	logger.Info("Sentry initialized", "environment", cfg.Environment)
	return nil
}

// FlushSentry waits for queued events to be sent
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// SentryReporter reports to the global Sentry hub. Without an initialized
// client it only logs.
type SentryReporter struct {
	logger *slog.Logger
}

// NewSentryReporter creates a reporter
func NewSentryReporter(logger *slog.Logger) *SentryReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentryReporter{logger: logger.With("component", "reporter")}
}

func (r *SentryReporter) Report(err error, context map[string]any) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	if hub.Client() == nil {
		r.logger.Debug("error not reported, sentry disabled", "error", err)
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range context {
			scope.SetContext(key, sentry.Context{"value": value})
		}
		hub.CaptureException(err)
	})
	r.logger.Debug("exception captured in sentry", "error", err)
}

// reportable reports whether err is an unexpected collaborator failure, as
// opposed to user-facing outcomes like a missing route or location.
func reportable(err error) bool {
	return errors.Is(err, nav.ErrCollaboratorUnavailable) || errors.Is(err, nav.ErrMissingConfiguration)
}
