package calls

import "fmt"

// Display defaults substituted when appointment fields are missing.
const (
	defaultPatientName  = "paciente"
	defaultServiceType  = "su cita médica"
	defaultOrganization = "el hospital"
)

// LegacyMessage is the fixed script served by the legacy /audio endpoint.
const LegacyMessage = "Hola. Llamo del hospital de Melipilla para informarle que tiene una cita asignada. Por favor, confirme su asistencia."

// GenerateMessage renders the Spanish reminder script spoken to the patient.
// Missing fields fall back to neutral wording so the call always sounds
// complete.
func GenerateMessage(sess Session) string {
	patientName := sess.PatientName
	if patientName == "" {
		patientName = defaultPatientName
	}
	serviceType := sess.ServiceType
	if serviceType == "" {
		serviceType = defaultServiceType
	}
	organizationName := sess.OrganizationName
	if organizationName == "" {
		organizationName = defaultOrganization
	}

	return fmt.Sprintf(
		"Hola %s. Llamo de %s para informarle que tiene una cita asignada para %s el día %s a las %s. Presione 1 para confirmar su asistencia, o presione 2 si necesita reagendar. Gracias.",
		patientName, organizationName, serviceType, sess.Date, sess.Time,
	)
}
