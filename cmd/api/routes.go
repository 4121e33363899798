package main

import (
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/httpapi"
	"voiceagent-platform/internal/media"
	"voiceagent-platform/internal/rbac"
	"voiceagent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// appDeps bundles the wired services routes need.
type appDeps struct {
	authManager *auth.Manager
	api         httpapi.Handlers
	webhooks    telephony.WebhookHandler
	media       *media.Handler

	// health names the configured collaborators for the health endpoint.
	health gin.H
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d appDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "collaborators": d.health})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by provider signature
	// validation in production.
	r.POST(telephony.PathAnswer, d.webhooks.HandleAnswer)
	r.POST(telephony.PathSpeech, d.webhooks.HandleSpeech)
	r.POST(telephony.PathPartial, d.webhooks.HandlePartial)
	r.POST(telephony.PathTimeout, d.webhooks.HandleTimeout)
	r.POST(telephony.PathStatus, d.webhooks.HandleStatus)

	// Synthesized audio served back to the provider for playback.
	r.GET("/audio/:name", d.webhooks.HandleAudio)

	// Bidirectional media stream (optional; requires a transcriber).
	if d.media != nil {
		r.GET("/media-stream", d.media.HandleStream)
	}

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", d.api.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.authManager))
	{
		// Identity echo for dashboard session checks.
		v1.GET("/me", func(c *gin.Context) {
			oid, _ := auth.OperatorID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"operator_id": oid, "role": role})
		})

		// CALLS routes
		calls := v1.Group("/calls")
		{
			// Supervisors observe; operators and admins drive.
			calls.GET("", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSupervisor), d.api.ListCalls)
			calls.GET("/:id", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSupervisor), d.api.GetCall)
			calls.GET("/:id/conversation", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSupervisor), d.api.GetConversation)

			calls.POST("", rbac.RequireAnyRole(rbac.RoleOperator), d.api.StartCall)
			calls.POST("/:id/terminate", rbac.RequireAnyRole(rbac.RoleOperator), d.api.TerminateCall)
		}

		// REPORTING routes
		v1.GET("/reports/summary", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSupervisor), d.api.GetReportSummary)

		// AUDIT routes (internal trail; admins only)
		v1.GET("/audit", rbac.RequireAnyRole(rbac.RoleAdmin), d.api.ListAuditEvents)
	}
}
