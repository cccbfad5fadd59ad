// Package netgin mounts the netpass HTTP surface on a gin router: the
// portal endpoints users hit, the gateway webhook and the admin routes.
package netgin

import (
	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/adapters/gin/handlers"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/ratelimit"
)

type RouterConfig struct {
	// CallbackToken authenticates the gateway webhook (shared secret in the
	// X-Callback-Token header). Empty disables the check; only do that
	// behind other transport auth.
	CallbackToken string
}

// Mount registers all routes under /api/v1. The auth gate applies to every
// route except the gateway webhook, which the provider calls directly.
func Mount(r gin.IRouter, svc *core.Service, v *Verifier, rl ratelimit.Limiter, cfg RouterConfig) {
	api := r.Group("/api/v1")

	api.POST("/gateway/callback", handlers.HandleGatewayCallbackPOST(svc, rl, cfg.CallbackToken))

	authed := api.Group("", v.AuthRequired())
	authed.GET("/plans", handlers.HandlePlansGET(svc, rl))
	authed.POST("/purchase", handlers.HandlePurchasePOST(svc, rl))
	authed.GET("/session", handlers.HandleSessionGET(svc, rl))

	adm := authed.Group("/admin", v.AdminRequired())
	adm.GET("/sessions", handlers.HandleAdminSessionsGET(svc, rl))
	adm.GET("/transactions", handlers.HandleAdminTransactionsGET(svc, rl))
	adm.GET("/events", handlers.HandleAdminEventsGET(svc))
	adm.POST("/sessions/:id/disconnect", handlers.HandleAdminDisconnectPOST(svc, rl))
}
