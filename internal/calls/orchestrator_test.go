package calls

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

type fakeDialer struct {
	sid       string
	err       error
	created   []DialRequest
	cancelErr error
	canceled  []string
}

func (f *fakeDialer) CreateCall(_ context.Context, req DialRequest) (string, error) {
	f.created = append(f.created, req)
	if f.err != nil {
		return "", f.err
	}
	return f.sid, nil
}

func (f *fakeDialer) CancelCall(_ context.Context, callSID string) error {
	f.canceled = append(f.canceled, callSID)
	return f.cancelErr
}

type fakeQueue struct {
	accept  bool
	callIDs []string
	scripts []string
}

func (f *fakeQueue) Enqueue(callID, script string) bool {
	f.callIDs = append(f.callIDs, callID)
	f.scripts = append(f.scripts, script)
	return f.accept
}

func newTestOrchestrator(dialer *fakeDialer, queue *fakeQueue) (*Orchestrator, *SessionStore, *MemoryStatusStore) {
	sessions := NewSessionStore()
	statuses := NewMemoryStatusStore()
	logger := logging.NewWithWriter("error", io.Discard)

	var synth SynthesisQueue
	if queue != nil {
		synth = queue
	}
	o := NewOrchestrator(sessions, statuses, dialer, synth, "http://localhost:8000", "+10000000000", logger, nil)
	return o, sessions, statuses
}

func TestInitiateCall(t *testing.T) {
	dialer := &fakeDialer{sid: "CA123"}
	queue := &fakeQueue{accept: true}
	o, sessions, statuses := newTestOrchestrator(dialer, queue)

	result, err := o.InitiateCall(context.Background(), InitiateRequest{
		Phone:       "+56991504487",
		PatientName: "Jorge Pérez",
		Date:        "15-07-2026",
		Time:        "10:30",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.CallSID != "CA123" {
		t.Errorf("unexpected sid %q", result.CallSID)
	}
	if result.CallID == "" {
		t.Fatal("expected a generated call id")
	}

	// Session created with display defaults applied.
	sess, ok := sessions.Get(result.CallID)
	if !ok {
		t.Fatal("expected session for new call")
	}
	if sess.PatientName != "Jorge Pérez" || sess.ServiceType == "" || sess.OrganizationName == "" {
		t.Errorf("unexpected session: %+v", sess)
	}

	// Synthesis enqueued with the rendered script.
	if len(queue.callIDs) != 1 || queue.callIDs[0] != result.CallID {
		t.Errorf("unexpected enqueued call ids: %v", queue.callIDs)
	}
	if len(queue.scripts) != 1 || !strings.Contains(queue.scripts[0], "Hola Jorge Pérez.") {
		t.Errorf("unexpected enqueued script: %v", queue.scripts)
	}

	// Dial request carries the parameterized callback URLs.
	if len(dialer.created) != 1 {
		t.Fatalf("expected one dial, got %d", len(dialer.created))
	}
	dial := dialer.created[0]
	if dial.To != "+56991504487" || dial.From != "+10000000000" {
		t.Errorf("unexpected dial numbers: %+v", dial)
	}
	if dial.TwiMLURL != "http://localhost:8000/twiml/"+result.CallID {
		t.Errorf("unexpected twiml url %q", dial.TwiMLURL)
	}
	if dial.StatusCallback != "http://localhost:8000/call-status-webhook" {
		t.Errorf("unexpected status callback %q", dial.StatusCallback)
	}

	// Status tracked as {initiated, pending} with the call id mapping.
	rec, err := statuses.Get(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("status get: %v", err)
	}
	if rec.Status != "initiated" || rec.Outcome != OutcomePending || rec.CallID != result.CallID {
		t.Errorf("unexpected status record: %+v", rec)
	}
}

func TestInitiateCallValidation(t *testing.T) {
	dialer := &fakeDialer{sid: "CA123"}
	o, _, _ := newTestOrchestrator(dialer, nil)

	cases := []struct {
		req  InitiateRequest
		want error
	}{
		{InitiateRequest{PatientName: "n", Date: "d", Time: "t"}, ErrMissingPhone},
		{InitiateRequest{Phone: "p", Date: "d", Time: "t"}, ErrMissingPatientName},
		{InitiateRequest{Phone: "p", PatientName: "n", Time: "t"}, ErrMissingDate},
		{InitiateRequest{Phone: "p", PatientName: "n", Date: "d"}, ErrMissingTime},
	}
	for _, tc := range cases {
		if _, err := o.InitiateCall(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Errorf("InitiateCall(%+v) = %v, want %v", tc.req, err, tc.want)
		}
	}
	if len(dialer.created) != 0 {
		t.Errorf("dialer called despite invalid requests: %d", len(dialer.created))
	}
}

func TestInitiateCallDialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("twilio down")}
	o, sessions, statuses := newTestOrchestrator(dialer, nil)

	_, err := o.InitiateCall(context.Background(), InitiateRequest{
		Phone: "p", PatientName: "n", Date: "d", Time: "t",
	})
	if err == nil || !strings.Contains(err.Error(), "twilio down") {
		t.Fatalf("expected dial error, got %v", err)
	}

	// The session is not rolled back; no status was tracked.
	if len(dialer.created) != 1 {
		t.Fatalf("expected one dial attempt")
	}
	callID := strings.TrimPrefix(dialer.created[0].TwiMLURL, "http://localhost:8000/twiml/")
	if _, ok := sessions.Get(callID); !ok {
		t.Error("expected session to survive the dial failure")
	}
	if _, err := statuses.Get(context.Background(), "CA123"); !errors.Is(err, ErrStatusNotFound) {
		t.Errorf("expected no tracked status, got %v", err)
	}
}

func TestInitiateCallQueueFull(t *testing.T) {
	dialer := &fakeDialer{sid: "CA123"}
	queue := &fakeQueue{accept: false}
	o, _, _ := newTestOrchestrator(dialer, queue)

	result, err := o.InitiateCall(context.Background(), InitiateRequest{
		Phone: "p", PatientName: "n", Date: "d", Time: "t",
	})
	if err != nil {
		t.Fatalf("initiate with full queue: %v", err)
	}
	if result.CallSID != "CA123" {
		t.Errorf("unexpected sid %q", result.CallSID)
	}
}

func TestCancelCall(t *testing.T) {
	dialer := &fakeDialer{sid: "CA123"}
	o, _, statuses := newTestOrchestrator(dialer, nil)

	if err := statuses.Track(context.Background(), "CA123", "call-1"); err != nil {
		t.Fatalf("track: %v", err)
	}

	if err := o.CancelCall(context.Background(), "CA123"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(dialer.canceled) != 1 || dialer.canceled[0] != "CA123" {
		t.Errorf("unexpected cancel calls: %v", dialer.canceled)
	}

	rec, err := statuses.Get(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("status get: %v", err)
	}
	if rec.Status != "canceled" || rec.Outcome != OutcomeFailed {
		t.Errorf("unexpected record after cancel: %+v", rec)
	}
	if rec.CallID != "call-1" {
		t.Errorf("cancel dropped the call id: %+v", rec)
	}
}

func TestCancelCallProviderError(t *testing.T) {
	dialer := &fakeDialer{cancelErr: errors.New("not cancellable")}
	o, _, statuses := newTestOrchestrator(dialer, nil)

	if err := statuses.Track(context.Background(), "CA123", "call-1"); err != nil {
		t.Fatalf("track: %v", err)
	}

	err := o.CancelCall(context.Background(), "CA123")
	if err == nil || !strings.Contains(err.Error(), "not cancellable") {
		t.Fatalf("expected provider error, got %v", err)
	}

	rec, _ := statuses.Get(context.Background(), "CA123")
	if rec.Status != "initiated" {
		t.Errorf("status should be untouched after failed cancel: %+v", rec)
	}
}
