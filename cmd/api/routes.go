package main

import (
	"context"
	"net/http"

	"voiceagents/internal/auth"
	"voiceagents/internal/dialer"
	"voiceagents/internal/httpapi"
	"voiceagents/internal/metrics"
	"voiceagents/internal/rbac"
	"voiceagents/internal/reporting"
	"voiceagents/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	verifier *auth.Verifier
	manager  *dialer.Manager
	reports  *reporting.Service
	webhooks *telephony.WebhookHandler
	ready    func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.Use(metrics.Middleware())

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := d.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Provider and assistant callbacks authenticate by signature or shared secret.
	hooks := r.Group("/webhooks")
	{
		hooks.POST("/twilio/voice", d.webhooks.TwilioVoice)
		hooks.POST("/twilio/status", d.webhooks.TwilioStatus)
		hooks.POST("/calls/outcome", d.webhooks.CallOutcome)
	}

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.verifier))
	{
		h := httpapi.Handlers{Dialer: d.manager, Reports: d.reports}

		camps := v1.Group("/campaigns")
		camps.Use(rbac.RequireWorkspace())

		cmds := camps.Group("")
		cmds.Use(rbac.RequireAnyRole(rbac.CommandRoles...))
		{
			cmds.POST("/:id/start", h.StartCampaign)
			cmds.POST("/:id/pause", h.PauseCampaign)
			cmds.POST("/:id/resume", h.ResumeCampaign)
			cmds.POST("/:id/stop", h.StopCampaign)
		}

		reads := camps.Group("")
		reads.Use(rbac.RequireAnyRole(rbac.ReadRoles...))
		{
			reads.GET("/:id/status", h.CampaignStatus)
			reads.GET("/:id/calls", h.CampaignCalls)
		}
	}
}
