package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/core"
)

// HandleAdminEventsGET streams the lifecycle event feed as server-sent
// events until the client hangs up. Events published before the client
// connected are not replayed.
func HandleAdminEventsGET(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, cancel := svc.Bus.Subscribe(64)
		defer cancel()

		c.Stream(func(w io.Writer) bool {
			select {
			case e, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(string(e.Type), e)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
