package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/grant"
	"github.com/open-rails/netpass/ratelimit"
)

func HandleAdminDisconnectPOST(svc *core.Service, rl ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketAdminDisconnect) {
			ginutil.TooMany(c)
			return
		}
		operator, ok := ginutil.Operator(c)
		if !ok {
			ginutil.Forbidden(c, "missing_operator")
			return
		}
		grantID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			ginutil.BadRequest(c, "invalid_grant_id")
			return
		}

		err = svc.Disconnect(c.Request.Context(), grantID, operator)
		switch {
		case errors.Is(err, grant.ErrNotFound):
			ginutil.NotFound(c, "unknown_grant")
			return
		case errors.Is(err, grant.ErrNotActive):
			// The caller's view was stale; the grant already expired or was
			// already terminated.
			ginutil.Conflict(c, "grant_not_active")
			return
		case err != nil:
			ginutil.ServerErr(c, "failed_to_disconnect")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
