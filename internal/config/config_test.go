package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:       AppConfig{Env: "local", Port: 8080},
		DB:        DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagents"},
		Auth:      AuthConfig{JWTSecret: "secret"},
		Telephony: TelephonyConfig{Gateway: "simulated"},
		Dialer:    DialerConfig{MaxInFlight: 4},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "APP_PORT", "DB_HOST", "JWT_SECRET", "TWILIO_ACCOUNT_SID", "DIALER_MAX_INFLIGHT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.DB.Backend != "postgres" || c.Dialer.SlotsBackend != "local" {
		t.Fatalf("unexpected backends: %q %q", c.DB.Backend, c.Dialer.SlotsBackend)
	}
	if c.Dialer.ResetZone != "campaign" || c.Dialer.DefaultPhoneRegion != "US" {
		t.Fatalf("unexpected dialer defaults: %+v", c.Dialer)
	}
	if c.Dialer.SlotTTL != 2*time.Minute || c.Dialer.ShutdownGrace != 15*time.Second {
		t.Fatalf("unexpected durations: %+v", c.Dialer)
	}
}

func TestValidate_ProductionRejectsLocalShortcuts(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB.Backend = "memory"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected production errors")
	}
	for _, want := range []string{"STORE_BACKEND=memory", "TELEPHONY_GATEWAY=simulated", "JWT_ISSUER", "OUTCOME_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_TwilioRequiresCallbackSettings(t *testing.T) {
	c := validLocal()
	c.Telephony = TelephonyConfig{Gateway: "twilio", TwilioAccountSID: "AC1", TwilioAuthToken: "tok", TwilioFromNumber: "+15005550006"}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "PUBLIC_BASE_URL") || !strings.Contains(err.Error(), "ASSISTANT_STREAM_URL") {
		t.Fatalf("unexpected error: %v", err)
	}

	c.App.PublicBaseURL = "https://dialer.example.com"
	c.Telephony.AssistantStreamURL = "wss://assistant.example.com/stream"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid twilio config, got %v", err)
	}
}

func TestValidate_DialerSettings(t *testing.T) {
	c := validLocal()
	c.Dialer.SlotsBackend = "redis"
	c.Dialer.ResetZone = "Mars/Olympus"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "REDIS_HOST") || !strings.Contains(err.Error(), "DAILY_RESET_ZONE") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_ParsesEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TELEPHONY_GATEWAY", "simulated")
	t.Setenv("SIMULATED_CALL_DELAY", "250ms")
	t.Setenv("DIALER_MAX_INFLIGHT", "3")
	t.Setenv("STOP_COMPLETES_CAMPAIGN", "false")
	t.Setenv("DAILY_RESET_ZONE", "UTC")
	t.Setenv("DEFAULT_PHONE_REGION", "gb")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9090 || c.DB.Backend != "memory" || c.Telephony.SimulatedDelay != 250*time.Millisecond {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Dialer.MaxInFlight != 3 || c.Dialer.StopCompletesCampaign || c.Dialer.ResetZone != "UTC" || c.Dialer.DefaultPhoneRegion != "GB" {
		t.Fatalf("unexpected dialer config: %+v", c.Dialer)
	}
}

func TestLoad_CollectsParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DIALER_MAX_INFLIGHT", "many")
	t.Setenv("STOP_COMPLETES_CAMPAIGN", "sometimes")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, want := range []string{"APP_PORT", "DIALER_MAX_INFLIGHT", "STOP_COMPLETES_CAMPAIGN"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}
