package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voiceagents/internal/auth"
	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"
	"voiceagents/internal/contacts"
	"voiceagents/internal/dialer"
	"voiceagents/internal/reporting"
	"voiceagents/internal/store"
	"voiceagents/internal/telephony"

	"github.com/gin-gonic/gin"
)

type env struct {
	router *gin.Engine
	repo   *store.MemoryRepo
	source *contacts.StaticSource
	gate   chan struct{}
}

// newEnv serves the campaign routes for a caller in workspace w1. Dispatched
// calls stay in flight until gate is closed.
func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{repo: store.NewMemoryRepo(), source: contacts.NewStaticSource(), gate: make(chan struct{})}
	outcomes := telephony.NewOutcomes()
	gw := telephony.GatewayFunc(func(ctx context.Context, req telephony.DialRequest) (telephony.Handle, error) {
		go func() {
			<-e.gate
			_, _ = outcomes.Deliver(context.Background(), telephony.Outcome{CallID: req.CallID, Raw: calls.RawNoAnswer})
		}()
		return telephony.Handle{CallSID: "CA" + req.CallID, RoomName: telephony.RoomName(req.CallID)}, nil
	})
	clock := func() time.Time { return time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC) }
	m, err := dialer.NewManager(e.repo, e.source, gw, outcomes, dialer.NewLocalSlots(2), dialer.Options{
		StopCompletesCampaign: true,
		IdleBackoff:           10 * time.Millisecond,
		Clock:                 clock,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	t.Cleanup(func() {
		select {
		case <-e.gate:
		default:
			close(e.gate)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	h := Handlers{Dialer: m, Reports: reporting.NewService(e.repo), PauseWait: 20 * time.Millisecond}
	r := gin.New()
	g := r.Group("/v1/campaigns", func(c *gin.Context) {
		id := auth.Identity{UserID: "u1", WorkspaceID: "w1", Role: "operator"}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	})
	g.POST("/:id/start", h.StartCampaign)
	g.POST("/:id/pause", h.PauseCampaign)
	g.POST("/:id/resume", h.ResumeCampaign)
	g.POST("/:id/stop", h.StopCampaign)
	g.GET("/:id/status", h.CampaignStatus)
	g.GET("/:id/calls", h.CampaignCalls)
	e.router = r
	return e
}

func (e *env) campaign(t *testing.T, id, workspace string, p campaigns.Policy, n int) {
	t.Helper()
	c := campaigns.Campaign{ID: id, WorkspaceID: workspace, ContactListID: "list-" + id, Policy: p, Status: campaigns.StatusDraft, ExecutionStatus: campaigns.ExecutionIdle}
	if err := e.repo.CreateCampaign(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
	list := make([]contacts.Contact, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, contacts.Contact{Name: "Contact", Phone: fmt.Sprintf("+1202456%04d", 1000+i)})
	}
	e.source.Put("list-"+id, list)
}

func (e *env) do(t *testing.T, method, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code, body
}

var weekdays = campaigns.Policy{DailyCap: 10, CallingDays: []string{"monday", "tuesday"}}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.campaign(t, "c1", "w1", weekdays, 2)

	code, body := e.do(t, http.MethodPost, "/v1/campaigns/c1/start")
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("start: %d %v", code, body)
	}
	camp, _ := body["campaign"].(map[string]any)
	if camp["execution_status"] != string(campaigns.ExecutionRunning) {
		t.Fatalf("expected running campaign, got %v", camp["execution_status"])
	}

	if code, _ := e.do(t, http.MethodPost, "/v1/campaigns/c1/start"); code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, st := e.do(t, http.MethodGet, "/v1/campaigns/c1/status")
		q, _ := st["queue_status"].(map[string]any)
		if q["processing"] == float64(1) {
			if q["queued"] != float64(1) {
				t.Fatalf("unexpected queue %v", q)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("call never went in flight: %v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	code, body = e.do(t, http.MethodPost, "/v1/campaigns/c1/pause")
	if code != http.StatusOK || body["acknowledged"] != false {
		t.Fatalf("pause with call in flight: %d %v", code, body)
	}

	code, body = e.do(t, http.MethodPost, "/v1/campaigns/c1/stop")
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("stop: %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodPost, "/v1/campaigns/c1/stop"); code != http.StatusOK {
		t.Fatalf("repeated stop: expected 200, got %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/v1/campaigns/c1/resume"); code != http.StatusConflict {
		t.Fatalf("resume completed: expected 409, got %d", code)
	}

	close(e.gate)
	deadline = time.Now().Add(2 * time.Second)
	for {
		_, st := e.do(t, http.MethodGet, "/v1/campaigns/c1/status")
		stats, _ := st["stats"].(map[string]any)
		if stats["no_answer"] == float64(1) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("in-flight outcome never recorded: %v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	code, body = e.do(t, http.MethodGet, "/v1/campaigns/c1/calls?limit=1")
	if code != http.StatusOK {
		t.Fatalf("calls: %d %v", code, body)
	}
	list, _ := body["calls"].([]any)
	if len(list) != 1 || body["limit"] != float64(1) {
		t.Fatalf("unexpected calls page: %v", body)
	}
	first, _ := list[0].(map[string]any)
	if first["status"] != string(calls.StatusNoAnswer) {
		t.Fatalf("most recent call should be the dialed one: %v", first)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	e.campaign(t, "empty", "w1", weekdays, 0)
	e.campaign(t, "nopolicy", "w1", campaigns.Policy{CallingDays: []string{"monday"}}, 1)
	e.campaign(t, "foreign", "w2", weekdays, 1)
	e.campaign(t, "idle", "w1", weekdays, 1)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/v1/campaigns/missing/start", http.StatusNotFound},
		{http.MethodPost, "/v1/campaigns/foreign/start", http.StatusNotFound},
		{http.MethodGet, "/v1/campaigns/foreign/status", http.StatusNotFound},
		{http.MethodPost, "/v1/campaigns/empty/start", http.StatusUnprocessableEntity},
		{http.MethodPost, "/v1/campaigns/nopolicy/start", http.StatusUnprocessableEntity},
		{http.MethodPost, "/v1/campaigns/idle/pause", http.StatusConflict},
		{http.MethodPost, "/v1/campaigns/idle/resume", http.StatusConflict},
		{http.MethodPost, "/v1/campaigns/idle/stop", http.StatusOK},
		{http.MethodPost, "/v1/campaigns/missing/stop", http.StatusNotFound},
		{http.MethodGet, "/v1/campaigns/idle/calls?limit=abc", http.StatusBadRequest},
		{http.MethodGet, "/v1/campaigns/idle/status", http.StatusOK},
	}
	for _, tc := range tests {
		if code, body := e.do(t, tc.method, tc.path); code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%v)", tc.method, tc.path, tc.want, code, body)
		}
	}
}
