package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/karteai/billing/internal/app/service/reconciler"
	"github.com/karteai/billing/internal/app/service/statistics"
	subsvc "github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/response"
)

// @Summary      Get a subscription record
// @Tags         Admin
// @Produce      json
// @Param        email  query  string  true  "subscriber email"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/subscription [get]
func ApiAdminGetRecord(sub *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Query("email")
		if email == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing email"))
			return
		}
		rec, err := sub.Get(c.Request.Context(), email)
		if err != nil {
			logctx.FromGin(c, log).Errorw("record lookup failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rec))
	}
}

// @Summary      List subscription records
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        payload body subscription.ScanRecordsRequest true "filters and pagination"
// @Success      200  {object}  handlers.RespScanRecords
// @Router       /api/v1/admin/subscription/list [post]
func ApiAdminListRecords(sub *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subsvc.ScanRecordsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := sub.ScanRecords(c.Request.Context(), &req)
		if err != nil {
			logctx.FromGin(c, log).Errorw("record listing failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Run reconciliation now
// @Description  Walks the processor's subscription list and overwrites local records. Also runs on a schedule.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespReconcileRun
// @Router       /api/v1/admin/reconcile/run [post]
func ApiAdminRunReconcile(svc *reconciler.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Run(c.Request.Context())
		if err != nil {
			logctx.FromGin(c, log).Errorw("manual reconciliation failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(stats))
	}
}

// @Summary      Subscription statistics
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        payload body statistics.StatisticRequest true "data items and filters"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/statistics [post]
func ApiAdminStatistics(stats *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if len(req.DataItems) == 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing data_items"))
			return
		}
		res, err := stats.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			logctx.FromGin(c, log).Errorw("statistics query failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, sub *subsvc.Service, rec *reconciler.Service, stats *statistics.Service, log *zap.SugaredLogger) {
	r.GET("/subscription", ApiAdminGetRecord(sub, log))
	r.POST("/subscription/list", ApiAdminListRecords(sub, log))
	r.POST("/reconcile/run", ApiAdminRunReconcile(rec, log))
	r.POST("/statistics", ApiAdminStatistics(stats, log))
}
