package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/pkg/logctx"
)

// EventHandler processes a verified webhook delivery.
type EventHandler interface {
	Handle(ctx context.Context, payload []byte, sigHeader string) error
}

const signatureHeader = "Stripe-Signature"

// @Summary      Payment processor webhook
// @Description  Receives signed billing events. The response shape is part of the processor contract: no envelope.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/billing/webhook [post]
func ApiProcessorWebhook(h EventHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
			return
		}

		err = h.Handle(c.Request.Context(), payload, c.GetHeader(signatureHeader))
		if err != nil {
			if errors.Is(err, processor.ErrInvalidSignature) {
				logctx.FromGin(c, log).Warnw("webhook signature rejected")
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
				return
			}
			logctx.FromGin(c, log).Errorw("webhook handling failed", "error", err)
			// The caller is the processor's retry machinery, not a browser;
			// surfacing the message aids its delivery logs.
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h EventHandler, log *zap.SugaredLogger) {
	r.POST("/webhook", ApiProcessorWebhook(h, log))
}
