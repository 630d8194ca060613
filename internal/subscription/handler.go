package subscription

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makerspace/makeradmin-sub000/internal/api"
	"github.com/makerspace/makeradmin-sub000/internal/auth"
	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/span"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type startRequest struct {
	ExpectedNowCents       *int64 `json:"expected_now_cents"`
	ExpectedRecurringCents *int64 `json:"expected_recurring_cents"`
}

// @Summary      Start a subscription for the authenticated member
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        type path string true "Access type"
// @Param        request body startRequest false "Expected prices"
// @Success      200 {object} subscription.StartResult
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{type}/start [post]
func (h *Handler) Start(c *gin.Context) {
	memberID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	result, err := h.svc.Start(c.Request.Context(), memberID, span.AccessType(c.Param("type")), time.Now(), ExpectedPrices{
		NowCents:       req.ExpectedNowCents,
		RecurringCents: req.ExpectedRecurringCents,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      Cancel the authenticated member's subscription
// @Tags         subscriptions
// @Produce      json
// @Param        type path string true "Access type"
// @Success      200 {object} api.MessageResponse
// @Failure      400 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{type}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	memberID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), memberID, span.AccessType(c.Param("type"))); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "subscription cancelled"})
}

// @Summary      List the authenticated member's subscriptions
// @Tags         subscriptions
// @Produce      json
// @Success      200 {array} subscription.Status
// @Security     BearerAuth
// @Router       /subscriptions [get]
func (h *Handler) ListMy(c *gin.Context) {
	memberID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	statuses, err := h.svc.List(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load subscriptions"})
		return
	}

	c.JSON(http.StatusOK, statuses)
}

// @Summary      List any member's subscriptions
// @Tags         subscriptions
// @Produce      json
// @Param        memberID path int true "Member ID"
// @Success      200 {array} subscription.Status
// @Security     BearerAuth
// @Router       /admin/members/{memberID}/subscriptions [get]
func (h *Handler) ListMember(c *gin.Context) {
	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid member id"})
		return
	}

	statuses, err := h.svc.List(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load subscriptions"})
		return
	}

	c.JSON(http.StatusOK, statuses)
}

// @Summary      Pause collection on a member's live subscription
// @Tags         subscriptions
// @Produce      json
// @Param        memberID path int true "Member ID"
// @Param        type path string true "Access type"
// @Success      200 {object} api.MessageResponse
// @Failure      409 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /admin/members/{memberID}/subscriptions/{type}/pause [post]
func (h *Handler) Pause(c *gin.Context) {
	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid member id"})
		return
	}

	if err := h.svc.Pause(c.Request.Context(), memberID, span.AccessType(c.Param("type"))); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "subscription paused"})
}

// @Summary      Resume a member's paused subscription
// @Tags         subscriptions
// @Produce      json
// @Param        memberID path int true "Member ID"
// @Param        type path string true "Access type"
// @Success      200 {object} subscription.StartResult
// @Failure      409 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /admin/members/{memberID}/subscriptions/{type}/resume [post]
func (h *Handler) Resume(c *gin.Context) {
	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid member id"})
		return
	}

	result, err := h.svc.Resume(c.Request.Context(), memberID, span.AccessType(c.Param("type")), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidAccessType):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid access type"})
	case errors.Is(err, ErrPriceMismatch):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNoSubscription):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no subscription for this access type"})
	case errors.Is(err, ErrNotLive), errors.Is(err, ErrNotPaused):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, member.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "member not found"})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "subscription operation failed"})
	}
}
