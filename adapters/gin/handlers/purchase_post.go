package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/payment"
	"github.com/open-rails/netpass/ratelimit"
)

type purchaseRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	Phone  string `json:"phone_reference" binding:"required"`
}

// HandlePurchasePOST starts a payment for the authenticated user. It
// returns 202: the transaction is accepted, not resolved; the outcome
// arrives via the gateway callback or the timeout.
func HandlePurchasePOST(svc *core.Service, rl ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketPurchaseInitiate) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "missing_user")
			return
		}
		var req purchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}
		planID, err := uuid.Parse(req.PlanID)
		if err != nil {
			ginutil.BadRequest(c, "invalid_plan")
			return
		}

		tx, err := svc.Initiate(c.Request.Context(), userID, planID, req.Phone)
		switch {
		case errors.Is(err, payment.ErrInvalidPlan):
			ginutil.BadRequest(c, "invalid_plan")
			return
		case errors.Is(err, payment.ErrInvalidPhone):
			ginutil.BadRequest(c, "invalid_phone")
			return
		case errors.Is(err, payment.ErrGatewayUnavailable):
			ginutil.BadGateway(c, "gateway_unavailable")
			return
		case err != nil:
			ginutil.ServerErr(c, "failed_to_initiate")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"transaction": tx})
	}
}
