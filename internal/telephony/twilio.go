package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceroai/appointment-reminder-calls/internal/calls"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

var twilioTracer = otel.Tracer("reminders.internal.telephony.twilio")

// Dial policy applied to every outbound reminder call.
const (
	// ringTimeoutSeconds stops ringing if the patient has not answered.
	ringTimeoutSeconds = "20"
	// machineDetection flags voicemail pickups in the status callbacks.
	machineDetection = "Enable"
)

// Twilio places and cancels voice calls using Twilio's REST API.
type Twilio struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilio builds a voice client with sane defaults.
func NewTwilio(accountSID, authToken string, logger *logging.Logger) *Twilio {
	if logger == nil {
		logger = logging.Default()
	}
	return &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", accountSID),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ calls.Dialer = (*Twilio)(nil)

// CreateCall dials an outbound call that fetches its call flow from the
// TwiML URL and reports lifecycle events to the status callback. Returns
// the provider call SID.
func (t *Twilio) CreateCall(ctx context.Context, req calls.DialRequest) (string, error) {
	if t.accountSID == "" || t.authToken == "" {
		return "", errors.New("telephony: twilio credentials missing")
	}
	if req.To == "" {
		return "", errors.New("telephony: to required")
	}
	if req.From == "" {
		return "", errors.New("telephony: from required")
	}
	if req.TwiMLURL == "" {
		return "", errors.New("telephony: twiml url required")
	}

	ctx, span := twilioTracer.Start(ctx, "telephony.twilio.create_call")
	defer span.End()
	span.SetAttributes(attribute.String("reminders.to", req.To))

	payload := url.Values{
		"To":                  {req.To},
		"From":                {req.From},
		"Url":                 {req.TwiMLURL},
		"StatusCallback":      {req.StatusCallback},
		"StatusCallbackEvent": {"initiated", "ringing", "answered", "completed"},
		"Timeout":             {ringTimeoutSeconds},
		"MachineDetection":    {machineDetection},
	}

	body, err := t.apiRequest(ctx, "/Calls.json", payload)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("telephony: decode call response: %w", err)
	}
	if parsed.SID == "" {
		return "", errors.New("telephony: call response missing sid")
	}

	t.logger.Info("twilio call created", "call_sid", parsed.SID, "status", parsed.Status)
	return parsed.SID, nil
}

// CancelCall asks Twilio to drop a queued or ringing call.
func (t *Twilio) CancelCall(ctx context.Context, callSID string) error {
	if callSID == "" {
		return errors.New("telephony: call sid required")
	}

	ctx, span := twilioTracer.Start(ctx, "telephony.twilio.cancel_call")
	defer span.End()
	span.SetAttributes(attribute.String("reminders.call_sid", callSID))

	payload := url.Values{
		"Status": {"canceled"},
	}
	if _, err := t.apiRequest(ctx, fmt.Sprintf("/Calls/%s.json", callSID), payload); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// apiRequest posts a form-encoded request to the Twilio API.
func (t *Twilio) apiRequest(ctx context.Context, endpoint string, payload url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("telephony: build request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telephony: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telephony: twilio request failed: %s", formatTwilioError(resp.StatusCode, body))
	}

	return body, nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	// Fallback: return raw body (truncated by the read limit).
	return fmt.Sprintf("status %d: %s", status, string(body))
}
