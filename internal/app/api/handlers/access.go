package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/karteai/billing/internal/app/api/middleware"
	subsvc "github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/pkg/auth"
	"github.com/karteai/billing/pkg/logctx"
)

// @Summary      Subscription access check
// @Description  Returns whether the authenticated email currently has access. The flat shape is a wire contract with the clients: no envelope.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  types.SubscriptionInfo
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/billing/subscription [get]
func ApiSubscriptionAccess(store subsvc.Store, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := mw.SessionEmail(c)
		rec, err := store.Get(c.Request.Context(), email)
		if err != nil {
			logctx.FromGin(c, log).Errorw("access lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		// An unknown email answers inactive rather than 404; the clients only
		// care about the decision.
		c.JSON(http.StatusOK, subsvc.Info(rec, time.Now()))
	}
}

func RegisterBillingRoutes(r gin.IRouter, store subsvc.Store, maker *auth.Maker, log *zap.SugaredLogger) {
	r.GET("/subscription", mw.SessionAuthMiddleware(maker), ApiSubscriptionAccess(store, log))
}
