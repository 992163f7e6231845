package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/ceroai/appointment-reminder-calls/internal/calls"
)

func newTestTwilio(t *testing.T, handler http.HandlerFunc) *Twilio {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewTwilio("AC-test", "token-test", nil)
	client.baseURL = server.URL
	return client
}

func TestCreateCall(t *testing.T) {
	client := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/Calls.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC-test" || pass != "token-test" {
			t.Errorf("unexpected basic auth %q/%q", user, pass)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}

		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "+56991504487" {
			t.Errorf("unexpected To %q", got)
		}
		if got := r.PostForm.Get("From"); got != "+10000000000" {
			t.Errorf("unexpected From %q", got)
		}
		if got := r.PostForm.Get("Url"); got != "http://localhost:8000/twiml/call-1" {
			t.Errorf("unexpected Url %q", got)
		}
		if got := r.PostForm.Get("StatusCallback"); got != "http://localhost:8000/call-status-webhook" {
			t.Errorf("unexpected StatusCallback %q", got)
		}
		wantEvents := []string{"initiated", "ringing", "answered", "completed"}
		if got := r.PostForm["StatusCallbackEvent"]; !reflect.DeepEqual(got, wantEvents) {
			t.Errorf("unexpected StatusCallbackEvent %v", got)
		}
		if got := r.PostForm.Get("Timeout"); got != "20" {
			t.Errorf("unexpected Timeout %q", got)
		}
		if got := r.PostForm.Get("MachineDetection"); got != "Enable" {
			t.Errorf("unexpected MachineDetection %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA789","status":"queued"}`))
	})

	sid, err := client.CreateCall(context.Background(), calls.DialRequest{
		To:             "+56991504487",
		From:           "+10000000000",
		TwiMLURL:       "http://localhost:8000/twiml/call-1",
		StatusCallback: "http://localhost:8000/call-status-webhook",
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	if sid != "CA789" {
		t.Errorf("unexpected sid %q", sid)
	}
}

func TestCreateCallValidation(t *testing.T) {
	client := NewTwilio("AC-test", "token-test", nil)

	base := calls.DialRequest{
		To:       "+56991504487",
		From:     "+10000000000",
		TwiMLURL: "http://localhost:8000/twiml/x",
	}

	cases := []struct {
		name    string
		mutate  func(*calls.DialRequest)
		missing string
	}{
		{"to", func(r *calls.DialRequest) { r.To = "" }, "to required"},
		{"from", func(r *calls.DialRequest) { r.From = "" }, "from required"},
		{"url", func(r *calls.DialRequest) { r.TwiMLURL = "" }, "twiml url required"},
	}
	for _, tc := range cases {
		req := base
		tc.mutate(&req)
		_, err := client.CreateCall(context.Background(), req)
		if err == nil || !strings.Contains(err.Error(), tc.missing) {
			t.Errorf("%s: expected %q error, got %v", tc.name, tc.missing, err)
		}
	}

	noCreds := NewTwilio("", "", nil)
	if _, err := noCreds.CreateCall(context.Background(), base); err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Errorf("expected credentials error, got %v", err)
	}
}

func TestCreateCallAPIError(t *testing.T) {
	client := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","more_info":"https://www.twilio.com/docs/errors/21211","status":400}`))
	})

	_, err := client.CreateCall(context.Background(), calls.DialRequest{
		To: "+1", From: "+2", TwiMLURL: "http://x/twiml",
	})
	if err == nil {
		t.Fatal("expected API error")
	}
	for _, fragment := range []string{"status 400", "code 21211", "Invalid 'To' Phone Number"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error missing %q: %v", fragment, err)
		}
	}
}

func TestCreateCallMissingSID(t *testing.T) {
	client := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"queued"}`))
	})

	_, err := client.CreateCall(context.Background(), calls.DialRequest{
		To: "+1", From: "+2", TwiMLURL: "http://x/twiml",
	})
	if err == nil || !strings.Contains(err.Error(), "missing sid") {
		t.Fatalf("expected missing sid error, got %v", err)
	}
}

func TestCancelCall(t *testing.T) {
	var gotPath, gotStatus string
	client := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotStatus = r.PostForm.Get("Status")
		w.Write([]byte(`{"sid":"CA789","status":"canceled"}`))
	})

	if err := client.CancelCall(context.Background(), "CA789"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gotPath != "/Calls/CA789.json" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotStatus != "canceled" {
		t.Errorf("unexpected status %q", gotStatus)
	}
}

func TestCancelCallValidation(t *testing.T) {
	client := NewTwilio("AC-test", "token-test", nil)
	if err := client.CancelCall(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty sid")
	}
}

func TestFormatTwilioError(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{500, "", "status 500"},
		{400, `{"message":"bad request"}`, "status 400: bad request"},
		{400, `{"code":20003,"message":"Authenticate"}`, "status 400 code 20003: Authenticate"},
		{502, "<html>gateway</html>", "status 502: <html>gateway</html>"},
	}
	for _, tc := range cases {
		if got := formatTwilioError(tc.status, []byte(tc.body)); got != tc.want {
			t.Errorf("formatTwilioError(%d, %q) = %q, want %q", tc.status, tc.body, got, tc.want)
		}
	}
}
