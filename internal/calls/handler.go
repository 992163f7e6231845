package calls

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceroai/appointment-reminder-calls/internal/audio"
	"github.com/ceroai/appointment-reminder-calls/internal/observability/metrics"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

var handlerTracer = otel.Tracer("reminders.internal.calls.handler")

// AudioService produces and releases synthesized speech for calls.
type AudioService interface {
	Get(ctx context.Context, callID string) ([]byte, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Evict(callID string)
}

// Handler handles the HTTP surface of the reminder-call service: the call
// initiation API, the provider webhooks, and the polling endpoints.
type Handler struct {
	orchestrator *Orchestrator
	sessions     *SessionStore
	statuses     StatusStore
	audio        AudioService

	webhookSecret string
	serverHost    string

	logger  *logging.Logger
	metrics *metrics.CallMetrics
}

// NewHandler creates a new calls handler. The webhook secret is optional;
// when empty the provider webhooks are accepted unauthenticated.
func NewHandler(orchestrator *Orchestrator, sessions *SessionStore, statuses StatusStore, audioSvc AudioService, webhookSecret, serverHost string, logger *logging.Logger, m *metrics.CallMetrics) *Handler {
	if orchestrator == nil {
		panic("calls: orchestrator cannot be nil")
	}
	if sessions == nil {
		panic("calls: session store cannot be nil")
	}
	if statuses == nil {
		panic("calls: status store cannot be nil")
	}
	if audioSvc == nil {
		panic("calls: audio service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator:  orchestrator,
		sessions:      sessions,
		statuses:      statuses,
		audio:         audioSvc,
		webhookSecret: webhookSecret,
		serverHost:    serverHost,
		logger:        logger,
		metrics:       m,
	}
}

// InitiateCall handles POST /call requests.
func (h *Handler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode call request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.InitiateCall(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to initiate call", "error", err, "phone", req.Phone)
		http.Error(w, "Failed to initiate call", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TwiML handles GET/POST /twiml/{callID} requests from the provider once the
// patient answers.
func (h *Handler) TwiML(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if _, ok := h.sessions.Get(callID); !ok {
		http.Error(w, "Call not found", http.StatusNotFound)
		return
	}
	writeXML(w, GatherTwiML(h.serverHost, callID))
}

// Audio handles GET /audio/{callID} requests, serving the synthesized
// reminder message as MP3 bytes.
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	data, err := h.audio.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, audio.ErrNotFound) {
			http.Error(w, "Call not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to produce call audio", "error", err, "call_id", callID)
		http.Error(w, "Failed to generate audio", http.StatusBadGateway)
		return
	}

	writeAudio(w, data)
}

// HandleResponse handles POST /handle-response/{callID}: the digit the
// patient pressed, delivered by the provider's gather callback.
func (h *Handler) HandleResponse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	_, span := handlerTracer.Start(r.Context(), "calls.handle_response")
	defer span.End()

	if !h.verifyWebhook(w, r, span) {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse response form", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	callID := chi.URLParam(r, "callID")
	digits := r.FormValue("Digits")
	span.SetAttributes(
		attribute.String("reminders.call_id", callID),
		attribute.String("reminders.digits", digits),
	)

	response := ResponseUnknown
	switch digits {
	case "1":
		response = ResponseConfirmed
	case "2":
		response = ResponseReschedule
	}

	// The acknowledgment is spoken even when the session is gone; the
	// patient is still on the line.
	if !h.sessions.SetResponse(callID, response) {
		h.logger.Warn("response for unknown call session", "call_id", callID, "digits", digits)
	}

	h.metrics.ObserveResponseDigit(response)
	h.logger.Info("patient response recorded", "call_id", callID, "digits", digits, "response", response)

	writeXML(w, ResponseTwiML(response))
	h.metrics.ObserveWebhookLatency("handle-response", time.Since(start).Seconds())
}

// StatusWebhook handles POST /call-status-webhook updates from the provider.
func (h *Handler) StatusWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := handlerTracer.Start(r.Context(), "calls.status_webhook")
	defer span.End()

	if !h.verifyWebhook(w, r, span) {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse status webhook form", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	callSID := r.FormValue("CallSid")
	callStatus := r.FormValue("CallStatus")
	answeredBy := r.FormValue("AnsweredBy")
	if callSID == "" {
		http.Error(w, "CallSid required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("reminders.call_sid", callSID),
		attribute.String("reminders.call_status", callStatus),
	)

	rec, err := h.statuses.Update(ctx, callSID, callStatus)
	if err != nil {
		h.logger.Error("failed to update call status", "error", err, "call_sid", callSID)
		http.Error(w, "Failed to update status", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}
	h.metrics.ObserveStatusWebhook(callStatus)

	// Release the cached audio once the call reaches a terminal state. Only
	// the terminating call's entry is dropped; concurrent calls keep theirs.
	if IsTerminalStatus(callStatus) && rec.CallID != "" {
		h.audio.Evict(rec.CallID)
	}

	h.logger.Info("call status updated",
		"call_sid", callSID,
		"status", callStatus,
		"outcome", rec.Outcome,
		"answered_by", answeredBy,
	)

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	h.metrics.ObserveWebhookLatency("call-status-webhook", time.Since(start).Seconds())
}

// CallStatus handles GET /call-status/{callSID} polling requests.
func (h *Handler) CallStatus(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")

	rec, err := h.statuses.Get(r.Context(), callSID)
	if err != nil {
		if !errors.Is(err, ErrStatusNotFound) {
			h.logger.Warn("status lookup failed, reporting unknown", "error", err, "call_sid", callSID)
		}
		rec = StatusRecord{Status: "unknown", Outcome: OutcomePending}
	}

	writeJSON(w, http.StatusOK, rec)
}

// CancelCall handles POST /cancel-call/{callSID} requests. Failures are
// reported in the payload rather than the status code so callers always get
// a structured result.
func (h *Handler) CancelCall(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")

	if err := h.orchestrator.CancelCall(r.Context(), callSID); err != nil {
		h.logger.Error("failed to cancel call", "error", err, "call_sid", callSID)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "canceled",
	})
}

// LegacyAudio handles GET /audio requests: the fixed message synthesized per
// request, kept for callers predating per-call parameterization.
func (h *Handler) LegacyAudio(w http.ResponseWriter, r *http.Request) {
	data, err := h.audio.Synthesize(r.Context(), LegacyMessage)
	if err != nil {
		h.logger.Error("failed to synthesize legacy audio", "error", err)
		http.Error(w, "Failed to generate audio", http.StatusBadGateway)
		return
	}
	writeAudio(w, data)
}

// LegacyTwiML handles GET/POST /twiml requests.
func (h *Handler) LegacyTwiML(w http.ResponseWriter, r *http.Request) {
	writeXML(w, LegacyPlayTwiML(h.serverHost))
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifyWebhook enforces the provider signature when a secret is configured.
// It writes the error response itself and reports whether to continue.
func (h *Handler) verifyWebhook(w http.ResponseWriter, r *http.Request, span trace.Span) bool {
	if h.webhookSecret == "" {
		return true
	}
	if !ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r)) {
		h.logger.Warn("invalid twilio signature", "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		span.RecordError(errors.New("invalid twilio signature"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeXML(w http.ResponseWriter, twiml string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twiml))
}

func writeAudio(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
