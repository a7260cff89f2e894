package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig configures the Twilio Programmable Voice adapter.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// BaseURL overrides the REST endpoint, mostly for tests.
	BaseURL string
	// PublicBaseURL is where Twilio reaches our webhooks.
	PublicBaseURL string

	// RequestsPerSecond paces call creation across all campaigns. Zero disables pacing.
	RequestsPerSecond float64
	MachineDetection  bool
	Timeout           time.Duration
}

// TwilioGateway places calls through the Twilio REST API.
type TwilioGateway struct {
	cfg     TwilioConfig
	client  *http.Client
	limiter *rate.Limiter
}

// TwilioError is a non-2xx reply from the REST API.
type TwilioError struct {
	HTTPStatus int    `json:"status"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *TwilioError) Error() string {
	return fmt.Sprintf("twilio: http %d code %d: %s", e.HTTPStatus, e.Code, e.Message)
}

func NewTwilioGateway(cfg TwilioConfig, client *http.Client) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio credentials required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("telephony: twilio from number required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("telephony: public base url required for twilio callbacks")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	g := &TwilioGateway{cfg: cfg, client: client}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g, nil
}

type twilioCallResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

func (g *TwilioGateway) Dispatch(ctx context.Context, req DialRequest) (Handle, error) {
	if err := req.validate(); err != nil {
		return Handle{}, err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Handle{}, fmt.Errorf("twilio: pacing: %w", err)
		}
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", g.cfg.FromNumber)
	form.Set("Url", g.callbackURL("/webhooks/twilio/voice", req.CallID))
	form.Set("Method", http.MethodPost)
	form.Set("StatusCallback", g.callbackURL("/webhooks/twilio/status", req.CallID))
	form.Set("StatusCallbackMethod", http.MethodPost)
	form.Add("StatusCallbackEvent", "completed")
	if g.cfg.MachineDetection {
		form.Set("MachineDetection", "Enable")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json",
		strings.TrimRight(g.cfg.BaseURL, "/"), url.PathEscape(g.cfg.AccountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Handle{}, err
	}
	httpReq.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Handle{}, fmt.Errorf("twilio: create call: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Handle{}, fmt.Errorf("twilio: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &TwilioError{HTTPStatus: resp.StatusCode}
		if json.Unmarshal(body, terr) != nil || terr.Message == "" {
			terr.Message = strings.TrimSpace(string(body))
		}
		terr.HTTPStatus = resp.StatusCode
		return Handle{}, terr
	}

	var out twilioCallResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Handle{}, fmt.Errorf("twilio: decode response: %w", err)
	}
	if out.SID == "" {
		return Handle{}, errors.New("twilio: response missing call sid")
	}
	return Handle{CallSID: out.SID, RoomName: RoomName(req.CallID)}, nil
}

func (g *TwilioGateway) callbackURL(path, callID string) string {
	q := url.Values{}
	q.Set("call_id", callID)
	return strings.TrimRight(g.cfg.PublicBaseURL, "/") + path + "?" + q.Encode()
}
