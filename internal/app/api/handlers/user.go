package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/karteai/billing/internal/app/api/middleware"
	"github.com/karteai/billing/internal/app/service/receipt"
	"github.com/karteai/billing/internal/app/service/userprofile"
	"github.com/karteai/billing/pkg/logctx"
	"github.com/karteai/billing/pkg/response"
)

type ProfileRequest struct {
	Name             *string `json:"name"`
	Facility         *string `json:"facility"`
	MarketingConsent *bool   `json:"marketing_consent"`
	AcceptTerms      bool    `json:"accept_terms"`
}

type ConfirmCancellationRequest struct {
	Code string `json:"code" binding:"required"`
}

// @Summary      Get profile
// @Tags         User
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/user/profile [get]
func ApiGetProfile(users userprofile.Store, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := users.Get(c.Request.Context(), mw.SessionEmail(c))
		if err != nil {
			logctx.FromGin(c, log).Errorw("profile lookup failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rec))
	}
}

// @Summary      Update profile
// @Description  Merge-upsert: only the fields present in the body are written.
// @Tags         User
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload body handlers.ProfileRequest true "profile fields"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/user/profile [put]
func ApiUpdateProfile(users userprofile.Store, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		upd := &userprofile.ProfileUpdate{
			Email:            mw.SessionEmail(c),
			Name:             req.Name,
			Facility:         req.Facility,
			MarketingConsent: req.MarketingConsent,
		}
		if req.AcceptTerms {
			now := time.Now()
			upd.TermsAcceptedAt = &now
		}
		rec, err := users.MergeUpsert(c.Request.Context(), upd)
		if err != nil {
			logctx.FromGin(c, log).Errorw("profile upsert failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rec))
	}
}

// @Summary      List receipts
// @Tags         User
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/user/receipts [get]
func ApiListReceipts(receipts *receipt.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := receipts.ListByEmail(c.Request.Context(), mw.SessionEmail(c))
		if err != nil {
			logctx.FromGin(c, log).Errorw("receipt listing failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

// @Summary      Request cancellation
// @Description  Mails a one-time code; nothing is cancelled until it is confirmed.
// @Tags         User
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/user/cancellation/request [post]
func ApiRequestCancellation(flow *userprofile.Cancellation, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := flow.Request(c.Request.Context(), mw.SessionEmail(c)); err != nil {
			logctx.FromGin(c, log).Errorw("cancellation request failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Confirm cancellation
// @Tags         User
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload body handlers.ConfirmCancellationRequest true "one-time code"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/user/cancellation/confirm [post]
func ApiConfirmCancellation(flow *userprofile.Cancellation, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmCancellationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := flow.Confirm(c.Request.Context(), mw.SessionEmail(c), req.Code); err != nil {
			logctx.FromGin(c, log).Warnw("cancellation confirm failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterUserRoutes(r gin.IRouter, users userprofile.Store, receipts *receipt.Service, flow *userprofile.Cancellation, log *zap.SugaredLogger) {
	r.GET("/profile", ApiGetProfile(users, log))
	r.PUT("/profile", ApiUpdateProfile(users, log))
	r.GET("/receipts", ApiListReceipts(receipts, log))
	r.POST("/cancellation/request", ApiRequestCancellation(flow, log))
	r.POST("/cancellation/confirm", ApiConfirmCancellation(flow, log))
}
