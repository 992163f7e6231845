package fhir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundleDecodesMixedEntries(t *testing.T) {
	raw := `{
		"resourceType": "Bundle",
		"type": "searchset",
		"total": 3,
		"entry": [
			{"resource": {"resourceType": "Appointment", "id": "appt-1", "status": "booked", "start": "2026-03-12T09:00:00-04:00"}},
			{"resource": {"resourceType": "OperationOutcome", "issue": [{"severity": "information"}]}},
			{"resource": {"resourceType": "Patient", "id": "pat-1"}},
			{"resource": {"resourceType": "Appointment", "id": "appt-2", "status": "proposed"}}
		]
	}`

	var bundle Bundle
	require.NoError(t, json.Unmarshal([]byte(raw), &bundle))
	assert.Equal(t, 3, bundle.Total)

	appointments := bundle.Appointments()
	require.Len(t, appointments, 2, "non-Appointment entries must be skipped")
	assert.Equal(t, "appt-1", appointments[0].ID)
	assert.Equal(t, "2026-03-12T09:00:00-04:00", appointments[0].Start)
	assert.Equal(t, "appt-2", appointments[1].ID)
}

func TestBundleEmpty(t *testing.T) {
	var bundle Bundle
	require.NoError(t, json.Unmarshal([]byte(`{"resourceType":"Bundle","total":0}`), &bundle))
	assert.Empty(t, bundle.Appointments())
}

func TestAppointmentReferenceLookups(t *testing.T) {
	appt := Appointment{
		BasedOn: []Reference{
			{Reference: "ServiceRequest/sr-55", Type: "ServiceRequest"},
		},
		Participant: []Participant{
			{Actor: Reference{Reference: "PractitionerRole/pr-9", Type: "PractitionerRole"}, Status: "accepted"},
			{Actor: Reference{Reference: "Patient/pat-7", Type: "Patient"}, Status: "accepted"},
		},
	}

	assert.Equal(t, "pat-7", appt.PatientID())
	assert.Equal(t, "sr-55", appt.ServiceRequestID())

	empty := Appointment{}
	assert.Empty(t, empty.PatientID())
	assert.Empty(t, empty.ServiceRequestID())
}

func TestAppointmentRoundTripsExtensions(t *testing.T) {
	contacted := false
	appt := Appointment{
		ResourceType: "Appointment",
		ID:           "appt-1",
		Extension: []Extension{
			{
				URL: extensionContactMeans,
				ValueCodeableConcept: &CodeableConcept{
					Coding: []Coding{{System: systemContactMeans, Code: "3", Display: "Llamada"}},
				},
			},
			{
				URL: extensionContacted,
				Extension: []Extension{
					{URL: "Contactado", ValueBoolean: &contacted},
				},
			},
		},
	}

	data, err := json.Marshal(appt)
	require.NoError(t, err)

	var decoded Appointment
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Extension, 2)

	means := decoded.Extension[0]
	require.NotNil(t, means.ValueCodeableConcept)
	assert.Equal(t, "3", means.ValueCodeableConcept.Coding[0].Code)

	nested := decoded.Extension[1]
	require.Len(t, nested.Extension, 1)
	assert.Equal(t, "Contactado", nested.Extension[0].URL)
	require.NotNil(t, nested.Extension[0].ValueBoolean)
	assert.False(t, *nested.Extension[0].ValueBoolean)
}

func TestExtensionOmitsEmptyValues(t *testing.T) {
	data, err := json.Marshal(Extension{URL: "https://example.com/ext"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com/ext"}`, string(data))
}
