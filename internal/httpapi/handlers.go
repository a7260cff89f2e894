// Package httpapi exposes the campaign command and reporting surface.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"voiceagents/internal/auth"
	"voiceagents/internal/campaigns"
	"voiceagents/internal/contacts"
	"voiceagents/internal/reporting"
	"voiceagents/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Commander is the campaign command surface, implemented by dialer.Manager.
type Commander interface {
	Start(ctx context.Context, id string) (campaigns.Campaign, error)
	Pause(ctx context.Context, id string) (bool, error)
	Resume(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dialer  Commander
	Reports *reporting.Service

	// PauseWait bounds how long pause waits for the in-flight call.
	PauseWait time.Duration
}

// authorize resolves the campaign and checks it belongs to the caller's
// workspace. Campaigns of other workspaces are reported as not found.
func (h Handlers) authorize(c *gin.Context) (string, bool) {
	if h.Dialer == nil || h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return "", false
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return "", false
	}
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign id required"})
		return "", false
	}
	owner, err := h.Reports.Workspace(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	if owner != workspaceID {
		h.fail(c, campaigns.ErrNotFound)
		return "", false
	}
	return id, true
}

func (h Handlers) StartCampaign(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	camp, err := h.Dialer.Start(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "campaign": camp})
}

// PauseCampaign reports acknowledged=false when the in-flight call did not
// finish within PauseWait; the campaign still pauses once it does.
func (h Handlers) PauseCampaign(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	wait := h.PauseWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	ack, err := h.Dialer.Pause(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "acknowledged": ack})
}

func (h Handlers) ResumeCampaign(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Dialer.Resume(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) StopCampaign(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Dialer.Stop(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) CampaignStatus(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	out, err := h.Reports.Status(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CampaignCalls(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	page, err := h.Reports.Calls(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// fail maps domain errors to status codes.
func (h Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("campaign request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(status, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	var perr *campaigns.PolicyError
	switch {
	case errors.Is(err, campaigns.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &perr),
		errors.Is(err, campaigns.ErrEmptyQueue),
		errors.Is(err, contacts.ErrNoContactList):
		return http.StatusUnprocessableEntity
	case errors.Is(err, campaigns.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
