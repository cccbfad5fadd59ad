package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/adapters/ginutil"
	"github.com/open-rails/netpass/core"
	"github.com/open-rails/netpass/ratelimit"
)

func HandleAdminTransactionsGET(svc *core.Service, rl ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ratelimit.BucketDefault) {
			ginutil.TooMany(c)
			return
		}
		limit := 20
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		txs, err := svc.Payments.RecentTransactions(c.Request.Context(), limit)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_list_transactions")
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}
