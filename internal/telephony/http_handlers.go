package telephony

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"voiceagents/internal/calls"
	"voiceagents/internal/metrics"
	"voiceagents/internal/store"
	"voiceagents/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OutcomeSecretHeader authenticates disposition callbacks from the assistant.
const OutcomeSecretHeader = "X-Webhook-Secret"

// CallLookup resolves provider callbacks to queue rows.
type CallLookup interface {
	GetCall(ctx context.Context, id string) (calls.CampaignCall, error)
	FindCallBySID(ctx context.Context, callSID string) (calls.CampaignCall, error)
}

// WebhookHandler serves the provider and assistant callbacks.
//
// Handlers translate payloads into Outcome values and hand them to Outcomes.
// They never write campaign state themselves.
type WebhookHandler struct {
	Outcomes *Outcomes
	Calls    CallLookup

	// TwilioAuthToken validates X-Twilio-Signature. Empty skips validation
	// (local development only).
	TwilioAuthToken string
	// PublicBaseURL is the externally visible origin Twilio signed against.
	PublicBaseURL string
	// AssistantStreamURL is the media stream the assistant listens on.
	AssistantStreamURL string
	// OutcomeSecret guards the disposition endpoint. Empty disables the check.
	OutcomeSecret string

	Now func() time.Time
}

func (h *WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *WebhookHandler) verifyTwilio(c *gin.Context) bool {
	if h.TwilioAuthToken == "" {
		return true
	}
	if err := c.Request.ParseForm(); err != nil {
		return false
	}
	fullURL := strings.TrimRight(h.PublicBaseURL, "/") + c.Request.URL.RequestURI()
	return ValidTwilioSignature(h.TwilioAuthToken, fullURL, c.Request.PostForm, c.GetHeader(TwilioSignatureHeader))
}

// TwilioStatus handles the final status callback of an outbound call.
func (h *WebhookHandler) TwilioStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if !h.verifyTwilio(c) {
		metrics.WebhookRejected("twilio_status")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}
	form, err := ParseTwilioStatus(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	raw, final := form.RawOutcome()
	if !final {
		log.Debug("twilio status ignored", "call_sid", form.CallSID, "status", form.CallStatus, "answered_by", form.AnsweredBy)
		c.Status(http.StatusNoContent)
		return
	}

	callID := form.CallID
	if callID == "" {
		call, err := h.Calls.FindCallBySID(c.Request.Context(), form.CallSID)
		if err != nil {
			log.Warn("twilio status for unknown call", "call_sid", form.CallSID, "err", err)
			c.Status(http.StatusNoContent)
			return
		}
		callID = call.ID
	}

	h.deliver(c, "twilio_status", Outcome{
		CallID:          callID,
		CallSID:         form.CallSID,
		Raw:             raw,
		DurationSeconds: form.CallDuration,
		ReceivedAt:      h.now(),
	}, http.StatusNoContent)
}

// TwilioVoice answers an outbound call by connecting it to the assistant.
func (h *WebhookHandler) TwilioVoice(c *gin.Context) {
	log := logger.FromGin(c)
	if !h.verifyTwilio(c) {
		metrics.WebhookRejected("twilio_voice")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	callID := strings.TrimSpace(c.Query("call_id"))
	call, err := h.Calls.GetCall(c.Request.Context(), callID)
	if err != nil {
		log.Warn("voice webhook for unknown call", "call_id", callID, "err", err)
		h.writeTwiML(c, RenderHangup)
		return
	}

	params := map[string]string{
		"call_id":     call.ID,
		"campaign_id": call.CampaignID,
		"room_name":   RoomName(call.ID),
	}
	h.writeTwiML(c, func() (string, error) { return RenderConnectStream(h.AssistantStreamURL, params) })
}

func (h *WebhookHandler) writeTwiML(c *gin.Context, render func() (string, error)) {
	doc, err := render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}

type outcomeRequest struct {
	CallID   string `json:"call_id"`
	CallSID  string `json:"call_sid"`
	Outcome  string `json:"outcome" binding:"required"`
	Duration int    `json:"duration" binding:"gte=0"`
}

// CallOutcome receives the disposition of an answered call from the assistant.
func (h *WebhookHandler) CallOutcome(c *gin.Context) {
	if h.OutcomeSecret != "" {
		got := c.GetHeader(OutcomeSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.OutcomeSecret)) != 1 {
			metrics.WebhookRejected("call_outcome")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
			return
		}
	}

	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	raw := calls.ParseRawOutcome(req.Outcome)
	if !raw.Valid() {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown outcome"})
		return
	}

	callID := strings.TrimSpace(req.CallID)
	if callID == "" {
		call, err := h.Calls.FindCallBySID(c.Request.Context(), strings.TrimSpace(req.CallSID))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		callID = call.ID
	}

	h.deliver(c, "call_outcome", Outcome{
		CallID:          callID,
		CallSID:         req.CallSID,
		Raw:             raw,
		DurationSeconds: req.Duration,
		ReceivedAt:      h.now(),
	}, http.StatusOK)
}

func (h *WebhookHandler) deliver(c *gin.Context, source string, out Outcome, okStatus int) {
	log := logger.FromGin(c).With("call_id", out.CallID, "outcome", out.Raw)
	res, err := h.Outcomes.Deliver(c.Request.Context(), out)
	metrics.WebhookReceived(source, res.String())
	if err != nil {
		if errors.Is(err, store.ErrCallNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		log.Error("outcome apply failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}
	log.Info("outcome received", "source", source, "resolution", res.String())
	if okStatus == http.StatusNoContent {
		c.Status(okStatus)
		return
	}
	c.JSON(okStatus, gin.H{"resolution": res.String()})
}
