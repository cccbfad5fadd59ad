package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/ratelimit"
)

func HandleAdminSessionsGET(svc *core.Service, rl ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketDefault) {
			ginutil.TooMany(c)
			return
		}
		grants, err := svc.Grants.ActiveGrants(c.Request.Context())
		if err != nil {
			ginutil.ServerErr(c, "failed_to_list_sessions")
			return
		}
		type session struct {
			Grant            interface{} `json:"grant"`
			RemainingSeconds int64       `json:"remaining_seconds"`
		}
		out := make([]session, 0, len(grants))
		for _, g := range grants {
			out = append(out, session{Grant: g, RemainingSeconds: int64(svc.Remaining(g).Seconds())})
		}
		c.JSON(http.StatusOK, gin.H{"sessions": out})
	}
}
