// Command seedappointments creates sample patients and booked appointments on
// the FHIR sandbox so the reminder-call flow has data to rehearse against.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/ceroai/appointment-reminder-calls/internal/config"
	"github.com/ceroai/appointment-reminder-calls/internal/fhir"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

type samplePatient struct {
	Name   string
	Family string
	Phone  string
}

var samplePatients = []samplePatient{
	{"Jorge", "Pérez", "+56991504487"},
	{"María", "González", "+56987654321"},
	{"Carlos", "Rodríguez", "+56976543210"},
	{"Ana", "Martínez", "+56965432109"},
	{"Pedro", "López", "+56954321098"},
	{"Sofía", "Hernández", "+56943210987"},
	{"Diego", "García", "+56932109876"},
	{"Valentina", "Muñoz", "+56921098765"},
	{"Matías", "Soto", "+56910987654"},
	{"Camila", "Díaz", "+56909876543"},
}

var appointmentTimes = []struct{ hour, minute int }{
	{9, 0},
	{9, 30},
	{10, 0},
	{10, 30},
	{11, 0},
	{14, 0},
	{14, 30},
	{15, 0},
	{15, 30},
	{16, 0},
}

type seedSlot struct {
	Patient samplePatient
	Start   time.Time
}

// buildSchedule allocates patients and slot times for the coming days,
// cycling through both lists so repeated runs stay deterministic.
func buildSchedule(now time.Time, daysAhead, perDay int) []seedSlot {
	var slots []seedSlot
	patientIndex, timeIndex := 0, 0
	for dayOffset := 1; dayOffset <= daysAhead; dayOffset++ {
		day := now.AddDate(0, 0, dayOffset)
		for i := 0; i < perDay; i++ {
			patient := samplePatients[patientIndex%len(samplePatients)]
			patientIndex++
			at := appointmentTimes[timeIndex%len(appointmentTimes)]
			timeIndex++

			slots = append(slots, seedSlot{
				Patient: patient,
				Start:   time.Date(day.Year(), day.Month(), day.Day(), at.hour, at.minute, 0, 0, day.Location()),
			})
		}
	}
	return slots
}

func main() {
	days := flag.Int("days", 5, "Number of days to create appointments for")
	perDay := flag.Int("per-day", 2, "Number of appointments per day")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	client, err := fhir.NewClient(fhir.Config{
		AuthURL:      cfg.FHIRAuthURL,
		BaseURL:      cfg.FHIRBaseURL,
		ClientID:     cfg.FHIRClientID,
		ClientSecret: cfg.FHIRClientSecret,
		Username:     cfg.FHIRUsername,
		Password:     cfg.FHIRPassword,
	}, logger)
	if err != nil {
		log.Fatalf("fhir client: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Authenticating with FHIR server...")
	if err := client.Authenticate(ctx); err != nil {
		log.Fatalf("authenticate: %v", err)
	}
	fmt.Println("Authenticated successfully!")

	created := 0
	for _, slot := range buildSchedule(time.Now(), *days, *perDay) {
		fmt.Printf("Creating appointment for %s %s at %s...\n",
			slot.Patient.Name, slot.Patient.Family, slot.Start.Format("Mon Jan 2 15:04"))

		result, err := client.CreateTestAppointment(ctx, fhir.TestAppointmentParams{
			PatientName: slot.Patient.Name,
			FamilyName:  slot.Patient.Family,
			Phone:       slot.Patient.Phone,
			Start:       slot.Start,
		})
		if err != nil {
			fmt.Printf("  error: %v\n", err)
			continue
		}
		created++
		fmt.Printf("  patient %s, appointment %s\n", result.Patient.ID, result.Appointment.ID)
	}

	fmt.Printf("Created %d appointments\n", created)
}
