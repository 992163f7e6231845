package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ceroai/appointment-reminder-calls/internal/calls"
	httpmiddleware "github.com/ceroai/appointment-reminder-calls/internal/http/middleware"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	CallsHandler       *calls.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured. Every route is
// public: the provider callbacks authenticate by webhook signature inside the
// handler, not by middleware.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	h := cfg.CallsHandler

	r.Get("/health", h.HealthCheck)

	r.Post("/call", h.InitiateCall)
	r.Post("/cancel-call/{callSID}", h.CancelCall)
	r.Get("/call-status/{callSID}", h.CallStatus)

	// Provider callbacks. Twilio fetches TwiML with POST by default but GET
	// stays routable for manual inspection.
	r.Get("/twiml/{callID}", h.TwiML)
	r.Post("/twiml/{callID}", h.TwiML)
	r.Get("/audio/{callID}", h.Audio)
	r.Post("/handle-response/{callID}", h.HandleResponse)
	r.Post("/call-status-webhook", h.StatusWebhook)

	// Legacy endpoints with the fixed message, kept for the pilot deployment.
	r.Get("/audio", h.LegacyAudio)
	r.Get("/twiml", h.LegacyTwiML)
	r.Post("/twiml", h.LegacyTwiML)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
