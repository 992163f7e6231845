package calls

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceroai/appointment-reminder-calls/internal/observability/metrics"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

var orchestratorTracer = otel.Tracer("reminders.internal.calls.orchestrator")

// Dialer places and cancels calls with the telephony provider.
type Dialer interface {
	CreateCall(ctx context.Context, req DialRequest) (string, error)
	CancelCall(ctx context.Context, callSID string) error
}

// DialRequest carries the provider parameters for one outbound call.
type DialRequest struct {
	To             string
	From           string
	TwiMLURL       string
	StatusCallback string
}

// SynthesisQueue accepts background speech-synthesis jobs. Enqueue reports
// whether the job was accepted; rejected jobs fall back to on-demand
// synthesis when the audio is first requested.
type SynthesisQueue interface {
	Enqueue(callID, script string) bool
}

// InitiateRequest is the payload for starting a reminder call.
type InitiateRequest struct {
	Phone            string `json:"phone"`
	PatientName      string `json:"patient_name"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	ServiceType      string `json:"service_type,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
}

// Validate checks the required fields
func (r *InitiateRequest) Validate() error {
	if r.Phone == "" {
		return ErrMissingPhone
	}
	if r.PatientName == "" {
		return ErrMissingPatientName
	}
	if r.Date == "" {
		return ErrMissingDate
	}
	if r.Time == "" {
		return ErrMissingTime
	}
	return nil
}

// InitiateResult pairs the provider call SID with the internal call id.
type InitiateResult struct {
	CallSID string `json:"callSid"`
	CallID  string `json:"callId"`
}

// Orchestrator coordinates the pieces of one reminder call: session creation,
// background synthesis, the provider dial, and status tracking.
type Orchestrator struct {
	sessions *SessionStore
	statuses StatusStore
	dialer   Dialer
	synth    SynthesisQueue

	serverHost string
	fromNumber string

	logger  *logging.Logger
	metrics *metrics.CallMetrics
}

// NewOrchestrator wires a call orchestrator. The synthesis queue and metrics
// may be nil.
func NewOrchestrator(sessions *SessionStore, statuses StatusStore, dialer Dialer, synth SynthesisQueue, serverHost, fromNumber string, logger *logging.Logger, m *metrics.CallMetrics) *Orchestrator {
	if sessions == nil {
		panic("calls: session store cannot be nil")
	}
	if statuses == nil {
		panic("calls: status store cannot be nil")
	}
	if dialer == nil {
		panic("calls: dialer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		sessions:   sessions,
		statuses:   statuses,
		dialer:     dialer,
		synth:      synth,
		serverHost: serverHost,
		fromNumber: fromNumber,
		logger:     logger,
		metrics:    m,
	}
}

// InitiateCall creates the session, enqueues synthesis, and dials the patient.
// The session and any queued synthesis are not rolled back when the dial
// fails; they age out with the process.
func (o *Orchestrator) InitiateCall(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := orchestratorTracer.Start(ctx, "calls.initiate")
	defer span.End()

	callID := uuid.NewString()
	sess := Session{
		PatientName:      req.PatientName,
		Date:             req.Date,
		Time:             req.Time,
		ServiceType:      req.ServiceType,
		OrganizationName: req.OrganizationName,
	}
	o.sessions.Create(callID, sess)
	span.SetAttributes(attribute.String("reminders.call_id", callID))

	// Kick off synthesis now so the audio is usually cached by the time the
	// patient answers (~10-30 seconds of ringing).
	if o.synth != nil {
		if !o.synth.Enqueue(callID, GenerateMessage(sess)) {
			o.logger.Warn("synthesis queue full, audio will be generated on demand", "call_id", callID)
		}
	}

	sid, err := o.dialer.CreateCall(ctx, DialRequest{
		To:             req.Phone,
		From:           o.fromNumber,
		TwiMLURL:       fmt.Sprintf("%s/twiml/%s", o.serverHost, callID),
		StatusCallback: o.serverHost + "/call-status-webhook",
	})
	if err != nil {
		o.metrics.ObserveDialFailure()
		span.RecordError(err)
		return nil, err
	}

	if err := o.statuses.Track(ctx, sid, callID); err != nil {
		o.logger.Warn("failed to track call status", "error", err, "call_sid", sid)
	}

	o.metrics.ObserveCallInitiated()
	o.logger.Info("call initiated", "call_sid", sid, "call_id", callID)

	return &InitiateResult{CallSID: sid, CallID: callID}, nil
}

// CancelCall asks the provider to stop ringing or drop the call, then records
// the terminal status. In-flight synthesis for the call is left to finish.
func (o *Orchestrator) CancelCall(ctx context.Context, callSID string) error {
	ctx, span := orchestratorTracer.Start(ctx, "calls.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("reminders.call_sid", callSID))

	if err := o.dialer.CancelCall(ctx, callSID); err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := o.statuses.Update(ctx, callSID, "canceled"); err != nil {
		o.logger.Warn("failed to record canceled status", "error", err, "call_sid", callSID)
	}

	o.logger.Info("call canceled", "call_sid", callSID)
	return nil
}
