package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestTwilio(t *testing.T, h http.HandlerFunc) *TwilioGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewTwilioGateway(TwilioConfig{
		AccountSID:       "AC123",
		AuthToken:        "secret",
		FromNumber:       "+15550001111",
		BaseURL:          srv.URL,
		PublicBaseURL:    "https://dialer.example.com/",
		MachineDetection: true,
	}, srv.Client())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return g
}

func TestTwilioGateway_DispatchCreatesCall(t *testing.T) {
	var form url.Values
	g := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Calls.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC123" || pass != "secret" {
			t.Errorf("expected basic auth")
		}
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA42","status":"queued"}`))
	})

	h, err := g.Dispatch(context.Background(), DialRequest{CallID: "k1", To: "+15552223333"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if h.CallSID != "CA42" || h.RoomName != "call-k1" {
		t.Fatalf("unexpected handle %+v", h)
	}
	if form.Get("To") != "+15552223333" || form.Get("From") != "+15550001111" {
		t.Fatalf("unexpected numbers %v", form)
	}
	if got := form.Get("StatusCallback"); got != "https://dialer.example.com/webhooks/twilio/status?call_id=k1" {
		t.Fatalf("unexpected status callback %q", got)
	}
	if form.Get("MachineDetection") != "Enable" {
		t.Fatalf("expected machine detection")
	}
}

func TestTwilioGateway_DispatchErrorCarriesTwilioCode(t *testing.T) {
	g := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	})

	_, err := g.Dispatch(context.Background(), DialRequest{CallID: "k1", To: "+1"})
	var terr *TwilioError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TwilioError, got %v", err)
	}
	if terr.Code != 21211 || terr.HTTPStatus != http.StatusBadRequest || !strings.Contains(terr.Message, "Invalid") {
		t.Fatalf("unexpected error %+v", terr)
	}
}

func TestTwilioGateway_RejectsInvalidRequest(t *testing.T) {
	g := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	if _, err := g.Dispatch(context.Background(), DialRequest{To: "+1555"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNewTwilioGateway_RequiresCredentials(t *testing.T) {
	if _, err := NewTwilioGateway(TwilioConfig{FromNumber: "+1", PublicBaseURL: "https://x"}, nil); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
