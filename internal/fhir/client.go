package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

var tracer = otel.Tracer("reminders.internal.fhir.client")

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20

	// Tokens are refreshed this long before their reported expiry so a
	// request never goes out with a token about to lapse mid-flight.
	tokenExpiryLeeway = 30 * time.Second
)

// Config holds connection settings for the FHIR server and its Keycloak
// token endpoint.
type Config struct {
	AuthURL      string
	BaseURL      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Client talks to a MINSAL-profile FHIR server, authenticating against
// Keycloak with the resource-owner password grant. Safe for concurrent use.
type Client struct {
	authURL      string
	baseURL      string
	clientID     string
	clientSecret string
	username     string
	password     string
	httpClient   *http.Client
	logger       *logging.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a FHIR client. Authentication is lazy: the first request
// fetches a token and reuses it until shortly before expiry.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.AuthURL == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("fhir: auth url and base url are required")
	}
	if cfg.ClientID == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("fhir: client id, username and password are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		authURL:      cfg.AuthURL,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		username:     cfg.Username,
		password:     cfg.Password,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}, nil
}

// Authenticate forces a token fetch. Requests authenticate lazily, so calling
// this is only needed to fail fast on bad credentials.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticate(ctx)
}

// authenticate performs the password grant. Caller must hold c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "fhir.authenticate")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("scope", "openid profile")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("fhir: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fhir: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("fhir: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fhir: token request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("fhir: decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("fhir: token response missing access_token")
	}

	c.accessToken = token.AccessToken
	if token.ExpiresIn > 0 {
		c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	} else {
		c.tokenExpiry = expiryFromClaims(token.AccessToken)
	}
	c.logger.Debug("FHIR token refreshed", "expires_at", c.tokenExpiry.Format(time.RFC3339))
	return nil
}

// ensureAuthenticated refreshes the token when missing or close to expiry.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Add(tokenExpiryLeeway).Before(c.tokenExpiry) {
		return nil
	}
	return c.authenticate(ctx)
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// expiryFromClaims reads the exp claim without verifying the signature; the
// token came straight from the issuer over TLS. A zero time forces
// re-authentication on the next request.
func expiryFromClaims(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// GetAppointments fetches every appointment visible to the authenticated
// user.
func (c *Client) GetAppointments(ctx context.Context) (*Bundle, error) {
	var bundle Bundle
	if err := c.getJSON(ctx, "/Appointment", &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// GetPatient fetches a patient by resource id.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var patient Patient
	if err := c.getJSON(ctx, "/Patient/"+id, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// GetServiceRequest fetches a service request by resource id.
func (c *Client) GetServiceRequest(ctx context.Context, id string) (*ServiceRequest, error) {
	var sr ServiceRequest
	if err := c.getJSON(ctx, "/ServiceRequest/"+id, &sr); err != nil {
		return nil, err
	}
	return &sr, nil
}

// GetOrganization fetches an organization by resource id.
func (c *Client) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	if err := c.getJSON(ctx, "/Organization/"+id, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// GetLocation fetches a location by resource id.
func (c *Client) GetLocation(ctx context.Context, id string) (*Location, error) {
	var loc Location
	if err := c.getJSON(ctx, "/Location/"+id, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetPractitionerRole fetches a practitioner role by resource id.
func (c *Client) GetPractitionerRole(ctx context.Context, id string) (*PractitionerRole, error) {
	var role PractitionerRole
	if err := c.getJSON(ctx, "/PractitionerRole/"+id, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// CreatePatientParams describes a patient registration.
type CreatePatientParams struct {
	GivenName  string
	FamilyName string
	Phone      string

	// RUT is the Chilean national id; a synthetic TEST- value is generated
	// when empty.
	RUT string
	// ID is the resource id; a fresh UUID is generated when empty.
	ID string
}

// CreatePatient registers a patient via idempotent PUT. The resource id is
// chosen client-side so a retried create lands on the same resource.
func (c *Client) CreatePatient(ctx context.Context, params CreatePatientParams) (*Patient, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	rut := params.RUT
	if rut == "" {
		u := uuid.New()
		rut = fmt.Sprintf("TEST-%X", u[:4])
	}

	patient := Patient{
		ResourceType: "Patient",
		ID:           id,
		Meta:         &Meta{Profile: []string{profilePatient}},
		Identifier: []Identifier{{
			Type: &CodeableConcept{Coding: []Coding{{
				System:  systemIdentifierType,
				Code:    "01",
				Display: "RUN",
			}}},
			Value: rut,
		}},
		Name: []HumanName{{
			Use:    "official",
			Family: params.FamilyName,
			Given:  []string{params.GivenName},
		}},
		Telecom: []ContactPoint{{
			System: "phone",
			Value:  params.Phone,
		}},
		Gender:    "unknown",
		BirthDate: "1990-01-01",
	}

	var created Patient
	if err := c.putJSON(ctx, "/Patient/"+id, patient, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateServiceRequestParams describes a surgical service request.
type CreateServiceRequestParams struct {
	PatientID string

	// PractitionerRoleID defaults to the sandbox practitioner role.
	PractitionerRoleID string
	// ID is the resource id; a fresh UUID is generated when empty.
	ID string
	// CodeDisplay labels the requested service. Defaults to
	// "Consulta general".
	CodeDisplay string
}

// CreateServiceRequest files an elective-surgery service request for a
// patient via idempotent PUT.
func (c *Client) CreateServiceRequest(ctx context.Context, params CreateServiceRequestParams) (*ServiceRequest, error) {
	if params.PatientID == "" {
		return nil, fmt.Errorf("fhir: create service request: patient id is required")
	}
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	roleID := params.PractitionerRoleID
	if roleID == "" {
		roleID = DefaultPractitionerRoleID
	}
	display := params.CodeDisplay
	if display == "" {
		display = "Consulta general"
	}

	sr := ServiceRequest{
		ResourceType: "ServiceRequest",
		ID:           id,
		Meta:         &Meta{Profile: []string{profileServiceRequest}},
		Identifier:   []Identifier{{Value: newBusinessIdentifier("SR", time.Now())}},
		Status:       "active",
		Intent:       "order",
		Category: []CodeableConcept{{Coding: []Coding{{
			System:  systemSurgeryType,
			Code:    "1",
			Display: "Cirugía Mayor Electiva",
		}}}},
		Priority: "routine",
		Code: &CodeableConcept{Coding: []Coding{{
			System:  systemSNOMED,
			Code:    "183452005",
			Display: display,
		}}},
		Subject:    &Reference{Reference: "Patient/" + params.PatientID},
		AuthoredOn: formatDateTime(time.Now()),
		Requester:  &Reference{Reference: "PractitionerRole/" + roleID},
	}

	var created ServiceRequest
	if err := c.putJSON(ctx, "/ServiceRequest/"+id, sr, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateAppointmentParams describes an appointment booking.
type CreateAppointmentParams struct {
	PatientID        string
	ServiceRequestID string
	Start            time.Time

	// End defaults to Start plus 30 minutes.
	End time.Time
	// PractitionerRoleID defaults to the sandbox practitioner role.
	PractitionerRoleID string
	// ID is the resource id; a fresh UUID is generated when empty.
	ID string
	// Status defaults to "booked".
	Status string
}

// CreateAppointment books an appointment via idempotent PUT, stamping the
// contact-means (phone call) and not-yet-contacted extensions the scheduling
// profile requires.
func (c *Client) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (*Appointment, error) {
	if params.PatientID == "" || params.ServiceRequestID == "" {
		return nil, fmt.Errorf("fhir: create appointment: patient id and service request id are required")
	}
	if params.Start.IsZero() {
		return nil, fmt.Errorf("fhir: create appointment: start time is required")
	}
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	roleID := params.PractitionerRoleID
	if roleID == "" {
		roleID = DefaultPractitionerRoleID
	}
	end := params.End
	if end.IsZero() {
		end = params.Start.Add(30 * time.Minute)
	}
	status := params.Status
	if status == "" {
		status = "booked"
	}

	contacted := false
	appt := Appointment{
		ResourceType: "Appointment",
		ID:           id,
		Meta:         &Meta{Profile: []string{profileAppointment}},
		Extension: []Extension{
			{
				URL: extensionContactMeans,
				ValueCodeableConcept: &CodeableConcept{Coding: []Coding{{
					System:  systemContactMeans,
					Code:    "3",
					Display: "Llamada",
				}}},
			},
			{
				URL:       extensionContacted,
				Extension: []Extension{{URL: "Contactado", ValueBoolean: &contacted}},
			},
		},
		Identifier: []Identifier{{Value: newBusinessIdentifier("CITA", params.Start)}},
		Status:     status,
		ServiceType: []CodeableConcept{{Coding: []Coding{{
			System:  systemSchedulingType,
			Code:    "1",
			Display: "Entrevista Pre Quirúrgica",
		}}}},
		Start:   formatDateTime(params.Start),
		End:     formatDateTime(end),
		Created: formatDateTime(time.Now()),
		BasedOn: []Reference{{Reference: "ServiceRequest/" + params.ServiceRequestID}},
		Participant: []Participant{
			{
				Actor:  Reference{Reference: "Patient/" + params.PatientID, Type: "Patient"},
				Status: "accepted",
			},
			{
				Actor:  Reference{Reference: "PractitionerRole/" + roleID, Type: "PractitionerRole"},
				Status: "accepted",
			},
		},
	}

	var created Appointment
	if err := c.putJSON(ctx, "/Appointment/"+id, appt, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// TestAppointmentParams describes a full sandbox appointment chain.
type TestAppointmentParams struct {
	PatientName string
	Phone       string
	Start       time.Time

	// FamilyName defaults to "Test".
	FamilyName string
}

// TestAppointment bundles the resources created by CreateTestAppointment.
type TestAppointment struct {
	Patient        *Patient
	ServiceRequest *ServiceRequest
	Appointment    *Appointment
}

// CreateTestAppointment provisions a fresh patient, a service request for
// them, and a booked appointment at the given start time. Used to seed
// sandbox data for call rehearsals.
func (c *Client) CreateTestAppointment(ctx context.Context, params TestAppointmentParams) (*TestAppointment, error) {
	family := params.FamilyName
	if family == "" {
		family = "Test"
	}

	patient, err := c.CreatePatient(ctx, CreatePatientParams{
		GivenName:  params.PatientName,
		FamilyName: family,
		Phone:      params.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("fhir: create test patient: %w", err)
	}

	sr, err := c.CreateServiceRequest(ctx, CreateServiceRequestParams{PatientID: patient.ID})
	if err != nil {
		return nil, fmt.Errorf("fhir: create test service request: %w", err)
	}

	appt, err := c.CreateAppointment(ctx, CreateAppointmentParams{
		PatientID:        patient.ID,
		ServiceRequestID: sr.ID,
		Start:            params.Start,
	})
	if err != nil {
		return nil, fmt.Errorf("fhir: create test appointment: %w", err)
	}

	return &TestAppointment{Patient: patient, ServiceRequest: sr, Appointment: appt}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) putJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "fhir.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("fhir.path", path),
		))
	defer span.End()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("fhir: encode %s: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("fhir: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fhir: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("fhir: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fhir: API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("fhir: decode %s response: %w", path, err)
	}
	return nil
}

// newBusinessIdentifier builds identifiers like "SR-20260312-A3F2".
func newBusinessIdentifier(prefix string, t time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s-%s-%X", prefix, t.Format("20060102"), u[:2])
}

// formatDateTime renders wall-clock fields with the fixed continental-Chile
// offset the MINSAL server expects.
func formatDateTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05") + "-04:00"
}
