package calls

import (
	"fmt"
	"strings"
)

// Spoken lines returned as call-flow markup.
const (
	noInputMessage = "No recibimos ninguna respuesta. Hasta luego."

	ackConfirmed  = "Gracias por confirmar su cita. Hasta pronto."
	ackReschedule = "Entendido. Nos comunicaremos para reagendar su cita. Hasta pronto."
	ackUnknown    = "Opción no reconocida. Hasta luego."
)

// GatherTwiML returns the call-flow markup for an active reminder call: play
// the synthesized audio while gathering one keypad digit, then speak a
// fallback line if the patient never presses anything.
func GatherTwiML(serverHost, callID string) string {
	action := fmt.Sprintf("%s/handle-response/%s", serverHost, callID)
	audio := fmt.Sprintf("%s/audio/%s", serverHost, callID)

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Gather numDigits="1" action="%s" method="POST" timeout="10">
        <Play>%s</Play>
    </Gather>
    <Say language="es-MX">%s</Say>
</Response>`, escapeXML(action), escapeXML(audio), escapeXML(noInputMessage))
}

// SayTwiML returns markup that speaks a single Spanish line and hangs up.
func SayTwiML(message string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say language="es-MX">%s</Say>
</Response>`, escapeXML(message))
}

// ResponseTwiML returns the spoken acknowledgment for a recorded keypad
// response.
func ResponseTwiML(response string) string {
	switch response {
	case ResponseConfirmed:
		return SayTwiML(ackConfirmed)
	case ResponseReschedule:
		return SayTwiML(ackReschedule)
	default:
		return SayTwiML(ackUnknown)
	}
}

// LegacyPlayTwiML returns the legacy call-flow markup that plays the fixed
// message without gathering a response.
func LegacyPlayTwiML(serverHost string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Play>%s</Play>
</Response>`, escapeXML(serverHost+"/audio"))
}

// escapeXML escapes special characters for XML content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
