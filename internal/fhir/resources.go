package fhir

import (
	"encoding/json"
	"strings"
)

// Resource models for the MINSAL surgical-pathway FHIR profiles (R4).

// Profile and code-system URLs required by the MINSAL implementation guide.
const (
	profilePatient        = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/StructureDefinition/PatientLE"
	profileServiceRequest = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/StructureDefinition/ServiceRequestCirugiaLE"
	profileAppointment    = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/StructureDefinition/AppointmentAgendarLE"

	systemIdentifierType = "https://hl7chile.cl/fhir/ig/clcore/CodeSystem/CSTipoIdentificador"
	systemSurgeryType    = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/CodeSystem/CSTipoCirugiaPropuesta"
	systemContactMeans   = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/CodeSystem/CSMediodeContacto"
	systemSchedulingType = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/CodeSystem/CSTipoServicioAgendamiento"
	systemSNOMED         = "http://snomed.info/sct"

	extensionContactMeans = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/StructureDefinition/ExtensionMediodeContacto"
	extensionContacted    = "https://interoperabilidad.minsal.cl/fhir/ig/quirurgico/StructureDefinition/Contactado"
)

// Default resource ids pre-existing on the shared MINSAL sandbox server.
const (
	DefaultOrganizationID     = "5491b8d5-e06c-4f89-beb7-75a1989cdc81"
	DefaultPractitionerID     = "2d5d9db4-6ade-43c9-b4f5-cc68b9c7f210"
	DefaultPractitionerRoleID = "0e5c9353-5f8e-4801-b7fc-59395f14344c"
)

// Bundle is the container returned by FHIR search interactions.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        int           `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleEntry keeps the resource raw so callers decode only the types they
// care about.
type BundleEntry struct {
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Appointments decodes every Appointment resource in the bundle, skipping
// entries of other types.
func (b *Bundle) Appointments() []Appointment {
	appointments := make([]Appointment, 0, len(b.Entry))
	for _, entry := range b.Entry {
		var appt Appointment
		if err := json.Unmarshal(entry.Resource, &appt); err != nil {
			continue
		}
		if appt.ResourceType != "Appointment" {
			continue
		}
		appointments = append(appointments, appt)
	}
	return appointments
}

// Patient is a FHIR Patient resource constrained by the PatientLE profile.
type Patient struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Gender       string         `json:"gender,omitempty"`
	BirthDate    string         `json:"birthDate,omitempty"`
}

// PhoneNumber returns the first phone contact point, or "".
func (p *Patient) PhoneNumber() string {
	for _, contact := range p.Telecom {
		if contact.System == "phone" {
			return contact.Value
		}
	}
	return ""
}

// FullName returns "given family" from the first recorded name.
func (p *Patient) FullName() string {
	if len(p.Name) == 0 {
		return ""
	}
	name := p.Name[0]
	parts := append([]string{}, name.Given...)
	if name.Family != "" {
		parts = append(parts, name.Family)
	}
	return strings.Join(parts, " ")
}

// ServiceRequest is a FHIR ServiceRequest constrained by the surgical-pathway
// profile.
type ServiceRequest struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Meta         *Meta             `json:"meta,omitempty"`
	Identifier   []Identifier      `json:"identifier,omitempty"`
	Status       string            `json:"status,omitempty"`
	Intent       string            `json:"intent,omitempty"`
	Category     []CodeableConcept `json:"category,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Code         *CodeableConcept  `json:"code,omitempty"`
	Subject      *Reference        `json:"subject,omitempty"`
	AuthoredOn   string            `json:"authoredOn,omitempty"`
	Requester    *Reference        `json:"requester,omitempty"`
}

// Appointment is a FHIR Appointment constrained by the AppointmentAgendarLE
// profile, including the contact-means and Contactado extensions.
type Appointment struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Meta         *Meta             `json:"meta,omitempty"`
	Extension    []Extension       `json:"extension,omitempty"`
	Identifier   []Identifier      `json:"identifier,omitempty"`
	Status       string            `json:"status,omitempty"`
	ServiceType  []CodeableConcept `json:"serviceType,omitempty"`
	Start        string            `json:"start,omitempty"`
	End          string            `json:"end,omitempty"`
	Created      string            `json:"created,omitempty"`
	BasedOn      []Reference       `json:"basedOn,omitempty"`
	Participant  []Participant     `json:"participant,omitempty"`
}

// PatientID returns the id of the Patient participant, or "".
func (a *Appointment) PatientID() string {
	for _, participant := range a.Participant {
		if participant.Actor.Type == "Patient" {
			return ExtractID(participant.Actor.Reference)
		}
	}
	return ""
}

// ServiceRequestID returns the id of the ServiceRequest the appointment is
// based on, or "".
func (a *Appointment) ServiceRequestID() string {
	for _, ref := range a.BasedOn {
		if strings.Contains(ref.Reference, "ServiceRequest") {
			return ExtractID(ref.Reference)
		}
	}
	return ""
}

// Organization is a FHIR Organization resource.
type Organization struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Name         string         `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
}

// Location is a FHIR Location resource.
type Location struct {
	ResourceType string     `json:"resourceType"`
	ID           string     `json:"id,omitempty"`
	Name         string     `json:"name,omitempty"`
	Description  string     `json:"description,omitempty"`
	ManagingOrg  *Reference `json:"managingOrganization,omitempty"`
}

// PractitionerRole is a FHIR PractitionerRole resource.
type PractitionerRole struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Practitioner *Reference        `json:"practitioner,omitempty"`
	Organization *Reference        `json:"organization,omitempty"`
	Code         []CodeableConcept `json:"code,omitempty"`
}

// Meta carries resource metadata, including the declared profiles.
type Meta struct {
	Profile     []string `json:"profile,omitempty"`
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
}

// Identifier is a business identifier for a resource.
type Identifier struct {
	Type  *CodeableConcept `json:"type,omitempty"`
	Value string           `json:"value,omitempty"`
}

// CodeableConcept is a coded value with optional text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Coding is a single code from a code system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Reference points at another resource, e.g. "Patient/123".
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// HumanName is a person's name.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// ContactPoint is a phone/email contact detail.
type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

// Participant links an appointment to an actor.
type Participant struct {
	Actor  Reference `json:"actor"`
	Status string    `json:"status,omitempty"`
}

// Extension is a FHIR extension; nested extensions carry sub-fields like the
// Contactado boolean.
type Extension struct {
	URL                  string           `json:"url"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	Extension            []Extension      `json:"extension,omitempty"`
}

// ExtractID returns the id portion of a reference like "Patient/123".
func ExtractID(reference string) string {
	if idx := strings.LastIndex(reference, "/"); idx >= 0 {
		return reference[idx+1:]
	}
	return reference
}
