package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/ratelimit"
)

// HandleSessionGET returns the caller's current session: the Active grant
// plus the derived countdown. The server clock is the authority here; any
// client-side ticker is cosmetic.
func HandleSessionGET(svc *core.Service, rl ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketSessionRead) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "missing_user")
			return
		}
		g, ok, err := svc.CurrentGrant(c.Request.Context(), userID)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_read_session")
			return
		}
		if !ok {
			ginutil.NotFound(c, "no_active_session")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"grant":             g,
			"remaining_seconds": int64(svc.Remaining(g).Seconds()),
			"ending_soon":       svc.Expiry.Warning(g),
		})
	}
}
