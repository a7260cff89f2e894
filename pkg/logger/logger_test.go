package logger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewWithOptions_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialer.log")
	l, closer := NewWithOptions(Options{Env: "dev", File: path, MaxSizeMB: 1, MaxBackups: 1})
	l.Debug("dispatcher started", "campaign_id", "c1")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, data)
	}
	if line["msg"] != "dispatcher started" || line["campaign_id"] != "c1" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestFromFallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
	l := New("production")
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(New("production")))
	r.GET("/x", func(c *gin.Context) {
		if FromGin(c) == nil {
			t.Errorf("expected request logger")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected generated request id")
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}
