package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"voiceagents/internal/calls"
)

// TwilioSignatureHeader carries the request signature on every Twilio webhook.
const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioStatusForm is the subset of the status callback we use.
type TwilioStatusForm struct {
	CallSID      string
	AccountSID   string
	CallStatus   string
	AnsweredBy   string
	CallDuration int
	// CallID is our id, echoed back from the callback query string.
	CallID string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	dur, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("CallDuration")))
	return TwilioStatusForm{
		CallSID:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSID:   strings.TrimSpace(r.PostFormValue("AccountSid")),
		CallStatus:   strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		AnsweredBy:   strings.ToLower(strings.TrimSpace(r.PostFormValue("AnsweredBy"))),
		CallDuration: dur,
		CallID:       strings.TrimSpace(r.URL.Query().Get("call_id")),
	}, nil
}

// RawOutcome maps the callback to a raw outcome. ok is false when the status
// is not final, or when a person answered: the assistant reports the
// disposition of answered calls itself.
func (f TwilioStatusForm) RawOutcome() (raw calls.RawOutcome, ok bool) {
	switch f.CallStatus {
	case "busy":
		return calls.RawBusy, true
	case "no-answer":
		return calls.RawNoAnswer, true
	case "failed", "canceled":
		return calls.RawFailed, true
	case "completed":
		if strings.HasPrefix(f.AnsweredBy, "machine") || f.AnsweredBy == "fax" {
			return calls.RawAnsweredMachine, true
		}
		return "", false
	default:
		return "", false
	}
}

// SignTwilioRequest computes the X-Twilio-Signature value: base64 of
// HMAC-SHA1 over the full URL followed by every POST parameter name and
// value, sorted by name.
func SignTwilioRequest(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidTwilioSignature reports whether signature matches the request.
func ValidTwilioSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	want := SignTwilioRequest(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}
