// Package main implements a smoke checker for a deployed reminder-call
// service.
//
// Without flags it only probes the read-only endpoints. With -phone it runs a
// live call flow (initiate, TwiML, audio, status, cancel) against that number,
// and with -fhir it walks the FHIR directory the way the original pilot did:
// appointments, their patients and practitioner roles, then a disposable test
// appointment.
//
// Usage:
//
//	go run ./scripts/smoke [-api=URL] [-phone=+56...] [-keep] [-fhir]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/ceroai/appointment-reminder-calls/internal/config"
	"github.com/ceroai/appointment-reminder-calls/internal/fhir"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

var (
	flagAPI   string
	flagPhone string
	flagKeep  bool
	flagFHIR  bool

	httpClient = &http.Client{Timeout: 15 * time.Second}
)

func init() {
	flag.StringVar(&flagAPI, "api", "http://localhost:8000", "API base URL")
	flag.StringVar(&flagPhone, "phone", "", "Place a live test call to this number (omit to skip)")
	flag.BoolVar(&flagKeep, "keep", false, "Let the live test call ring instead of canceling it")
	flag.BoolVar(&flagFHIR, "fhir", false, "Also walk the FHIR server (needs FHIR_* env)")
}

// ---------------------------------------------------------------------------
// Check plumbing
// ---------------------------------------------------------------------------

type checkResult struct {
	Name   string
	Pass   bool
	Detail string
}

var results []checkResult

func record(name string, pass bool, detail string) {
	results = append(results, checkResult{Name: name, Pass: pass, Detail: detail})
	if pass {
		fmt.Printf("  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Printf("  ❌ %s: %s\n", name, detail)
	}
}

func getJSON(path string, out any) (int, error) {
	resp, err := httpClient.Get(flagAPI + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func postJSON(path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Post(flagAPI+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func getRaw(path string) (int, string, []byte, error) {
	resp, err := httpClient.Get(flagAPI + path)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

// ---------------------------------------------------------------------------
// Service checks
// ---------------------------------------------------------------------------

func checkHealth() {
	var health struct {
		Status string `json:"status"`
	}
	status, err := getJSON("/health", &health)
	if err != nil {
		record("health", false, err.Error())
		return
	}
	if status != http.StatusOK || health.Status != "ok" {
		record("health", false, fmt.Sprintf("status %d, body status %q", status, health.Status))
		return
	}
	record("health", true, "service is up")
}

func checkLegacyTwiML() {
	status, contentType, body, err := getRaw("/twiml")
	if err != nil {
		record("legacy twiml", false, err.Error())
		return
	}
	if status != http.StatusOK || !strings.Contains(string(body), "/audio") {
		record("legacy twiml", false, fmt.Sprintf("status %d, content-type %s", status, contentType))
		return
	}
	record("legacy twiml", true, "references /audio")
}

func runCallFlow() {
	fmt.Printf("  ⏳ Placing test call to %s...\n", flagPhone)

	var call struct {
		CallSID string `json:"callSid"`
		CallID  string `json:"callId"`
	}
	_, err := postJSON("/call", map[string]string{
		"phone":        flagPhone,
		"patient_name": "Prueba Smoke",
		"date":         time.Now().AddDate(0, 0, 1).Format("02-01-2006"),
		"time":         "10:00",
	}, &call)
	if err != nil {
		record("initiate call", false, err.Error())
		return
	}
	if call.CallSID == "" || call.CallID == "" {
		record("initiate call", false, fmt.Sprintf("missing ids in response: %+v", call))
		return
	}
	record("initiate call", true, fmt.Sprintf("sid %s, id %s", call.CallSID, call.CallID))

	status, contentType, body, err := getRaw("/twiml/" + call.CallID)
	switch {
	case err != nil:
		record("call twiml", false, err.Error())
	case status != http.StatusOK:
		record("call twiml", false, fmt.Sprintf("status %d", status))
	case !strings.Contains(string(body), "<Gather") || !strings.Contains(string(body), "/audio/"+call.CallID):
		record("call twiml", false, "response lacks Gather/audio reference")
	default:
		record("call twiml", true, fmt.Sprintf("content-type %s", contentType))
	}

	status, contentType, body, err = getRaw("/audio/" + call.CallID)
	switch {
	case err != nil:
		record("call audio", false, err.Error())
	case status != http.StatusOK || len(body) == 0:
		record("call audio", false, fmt.Sprintf("status %d, %d bytes", status, len(body)))
	default:
		record("call audio", true, fmt.Sprintf("%d bytes, content-type %s", len(body), contentType))
	}

	var rec struct {
		Status  string `json:"status"`
		Outcome string `json:"outcome"`
	}
	if _, err := getJSON("/call-status/"+call.CallSID, &rec); err != nil {
		record("call status", false, err.Error())
	} else if rec.Status == "" || rec.Outcome == "" {
		record("call status", false, "empty status record")
	} else {
		record("call status", true, fmt.Sprintf("status %s, outcome %s", rec.Status, rec.Outcome))
	}

	if flagKeep {
		fmt.Println("  ⏳ Leaving the call live (-keep); it will ring through.")
		return
	}

	var cancel struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if _, err := postJSON("/cancel-call/"+call.CallSID, struct{}{}, &cancel); err != nil {
		record("cancel call", false, err.Error())
	} else if !cancel.Success {
		record("cancel call", false, cancel.Error)
	} else {
		record("cancel call", true, "canceled")
	}
}

// ---------------------------------------------------------------------------
// FHIR walk
// ---------------------------------------------------------------------------

func runFHIRWalk() {
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
		record("fhir client", false, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := client.Authenticate(ctx); err != nil {
		record("fhir auth", false, err.Error())
		return
	}
	record("fhir auth", true, "token obtained")

	bundle, err := client.GetAppointments(ctx)
	if err != nil {
		record("fhir appointments", false, err.Error())
		return
	}
	appointments := bundle.Appointments()
	record("fhir appointments", true, fmt.Sprintf("%d total, %d in page", bundle.Total, len(appointments)))

	// Walk the first appointment's participants the way the pilot's directory
	// listing did.
	if len(appointments) > 0 {
		appt := appointments[0]
		fmt.Printf("  ⏳ Walking appointment %s (%s)...\n", appt.ID, appt.Start)

		if patientID := appt.PatientID(); patientID != "" {
			patient, err := client.GetPatient(ctx, patientID)
			if err != nil {
				record("fhir patient", false, err.Error())
			} else {
				record("fhir patient", true, fmt.Sprintf("%s, phone %s", patient.FullName(), patient.PhoneNumber()))
			}
		}

		for _, p := range appt.Participant {
			if p.Actor.Type != "PractitionerRole" {
				continue
			}
			roleID := fhir.ExtractID(p.Actor.Reference)
			role, err := client.GetPractitionerRole(ctx, roleID)
			if err != nil {
				record("fhir practitioner role", false, err.Error())
				break
			}
			if role.Organization == nil || role.Organization.Reference == "" {
				record("fhir practitioner role", true, "no organization reference")
				break
			}
			orgID := fhir.ExtractID(role.Organization.Reference)
			org, err := client.GetOrganization(ctx, orgID)
			if err != nil {
				record("fhir organization", false, err.Error())
			} else {
				record("fhir organization", true, org.Name)
			}
			break
		}
	}

	tomorrow := time.Now().AddDate(0, 0, 1)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, tomorrow.Location())
	created, err := client.CreateTestAppointment(ctx, fhir.TestAppointmentParams{
		PatientName: "TestPatient",
		FamilyName:  "Demo",
		Phone:       "+56912345678",
		Start:       start,
	})
	if err != nil {
		record("fhir create chain", false, err.Error())
		return
	}
	record("fhir create chain", true, fmt.Sprintf("patient %s, service request %s, appointment %s",
		created.Patient.ID, created.ServiceRequest.ID, created.Appointment.ID))
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && flagFHIR {
		fmt.Println("No .env file found, using environment variables")
	}

	fmt.Printf("Smoke checking %s\n", flagAPI)

	checkHealth()
	checkLegacyTwiML()

	if flagPhone != "" {
		runCallFlow()
	}
	if flagFHIR {
		runFHIRWalk()
	}

	passing := 0
	for _, r := range results {
		if r.Pass {
			passing++
		}
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("TOTAL: %d/%d passing\n", passing, len(results))

	if passing != len(results) {
		fmt.Fprintln(os.Stderr, "SMOKE CHECK FAILED")
		os.Exit(1)
	}
	fmt.Println("✅ ALL CHECKS PASSED")
}
