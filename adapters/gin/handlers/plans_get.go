package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/ratelimit"
)

func HandlePlansGET(svc *core.Service, rl ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketDefault) {
			ginutil.TooMany(c)
			return
		}
		plans, err := svc.ListActivePlans(c.Request.Context())
		if err != nil {
			ginutil.ServerErr(c, "failed_to_list_plans")
			return
		}
		c.JSON(http.StatusOK, gin.H{"plans": plans})
	}
}
