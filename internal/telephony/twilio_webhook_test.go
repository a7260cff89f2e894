package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"voiceagents/internal/calls"
)

func TestParseTwilioStatus(t *testing.T) {
	body := strings.NewReader("CallSid=CA1&CallStatus=no-answer&CallDuration=0")
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status?call_id=k1", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	f, err := ParseTwilioStatus(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallSID != "CA1" || f.CallID != "k1" {
		t.Fatalf("unexpected form %+v", f)
	}
	raw, ok := f.RawOutcome()
	if !ok || raw != calls.RawNoAnswer {
		t.Fatalf("expected no_answer, got %q %v", raw, ok)
	}
}

func TestTwilioStatusForm_RawOutcome(t *testing.T) {
	cases := []struct {
		status, answeredBy string
		want               calls.RawOutcome
		final              bool
	}{
		{"busy", "", calls.RawBusy, true},
		{"failed", "", calls.RawFailed, true},
		{"canceled", "", calls.RawFailed, true},
		{"completed", "machine_end_beep", calls.RawAnsweredMachine, true},
		{"completed", "human", "", false},
		{"in-progress", "", "", false},
		{"ringing", "", "", false},
	}
	for _, tc := range cases {
		got, final := TwilioStatusForm{CallStatus: tc.status, AnsweredBy: tc.answeredBy}.RawOutcome()
		if got != tc.want || final != tc.final {
			t.Fatalf("%s/%s: got %q %v, want %q %v", tc.status, tc.answeredBy, got, final, tc.want, tc.final)
		}
	}
}

func TestTwilioSignature(t *testing.T) {
	// Example from the Twilio security documentation.
	token := "12345"
	fullURL := "https://mycompany.com/myapp.php?foo=1&bar=2"
	params := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
	const want = "0/KCTR6DLpKmkAf8muzZqo1nDgQ="

	if got := SignTwilioRequest(token, fullURL, params); got != want {
		t.Fatalf("signature mismatch: got %s want %s", got, want)
	}
	if !ValidTwilioSignature(token, fullURL, params, want) {
		t.Fatalf("expected signature to validate")
	}
	if ValidTwilioSignature(token, fullURL, params, "bogus") {
		t.Fatalf("expected bogus signature to fail")
	}
	if ValidTwilioSignature("", fullURL, params, want) {
		t.Fatalf("expected empty token to fail")
	}
}
