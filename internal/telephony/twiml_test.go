package telephony

import (
	"strings"
	"testing"
)

func TestRenderConnectStream(t *testing.T) {
	doc, err := RenderConnectStream("wss://assistant.example.com/stream", map[string]string{
		"room_name": "call-k1",
		"call_id":   "k1",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		`<Connect>`,
		`<Stream url="wss://assistant.example.com/stream">`,
		`<Parameter name="call_id" value="k1"></Parameter>`,
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("expected %q in %s", want, doc)
		}
	}
	if strings.Index(doc, `name="call_id"`) > strings.Index(doc, `name="room_name"`) {
		t.Fatalf("expected parameters sorted by name")
	}
}

func TestRenderConnectStreamRequiresURL(t *testing.T) {
	if _, err := RenderConnectStream(" ", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderHangup(t *testing.T) {
	doc, err := RenderHangup()
	if err != nil || !strings.Contains(doc, "<Hangup></Hangup>") {
		t.Fatalf("unexpected hangup twiml %q %v", doc, err)
	}
}
