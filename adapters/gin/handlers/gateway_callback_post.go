package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/gateway"
	"github.com/open-rails/netpass/payment"
	"github.com/open-rails/netpass/ratelimit"
)

type callbackRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Outcome       string `json:"outcome" binding:"required"`
}

// HandleGatewayCallbackPOST is the provider's webhook. Replayed callbacks
// and callbacks for already-resolved transactions return 200: the provider
// only needs to know delivery succeeded.
func HandleGatewayCallbackPOST(svc *core.Service, rl ratelimit.Limiter, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" {
			got := c.GetHeader("X-Callback-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				ginutil.Unauthorized(c, "invalid_callback_token")
				return
			}
		}
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketGatewayCallback) {
			ginutil.TooMany(c)
			return
		}
		var req callbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}
		txID, err := uuid.Parse(req.TransactionID)
		if err != nil {
			ginutil.BadRequest(c, "invalid_transaction_id")
			return
		}
		var outcome gateway.Outcome
		switch req.Outcome {
		case string(gateway.OutcomeSuccess):
			outcome = gateway.OutcomeSuccess
		case string(gateway.OutcomeFailure):
			outcome = gateway.OutcomeFailure
		default:
			ginutil.BadRequest(c, "invalid_outcome")
			return
		}

		if err := svc.Payments.OnGatewayCallback(c.Request.Context(), txID, outcome); err != nil {
			if errors.Is(err, payment.ErrNotFound) {
				ginutil.NotFound(c, "unknown_transaction")
				return
			}
			ginutil.ServerErr(c, "failed_to_apply_callback")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
