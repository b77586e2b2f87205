package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karteai/billing/pkg/response"
)

// @Summary      Health check
// @Description  Returns service liveness; backing stores are not probed here
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(map[string]string{
		"service": "karte-billing",
		"status":  "ok",
	}))
}

func RegisterHealthRoutes(r gin.IRouter) {
	r.GET("/healthz", Healthz)
}
