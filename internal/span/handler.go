package span

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/makerspace/makeradmin-sub000/internal/api"
	"github.com/makerspace/makeradmin-sub000/internal/auth"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// @Summary      List a member's spans
// @Tags         spans
// @Produce      json
// @Param        memberID path int true "Member ID"
// @Success      200 {array} span.Span
// @Failure      400 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /admin/members/{memberID}/spans [get]
func (h *Handler) ListMemberSpans(c *gin.Context) {
	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid member id"})
		return
	}

	spans, err := h.svc.MemberSpans(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load spans"})
		return
	}

	c.JSON(http.StatusOK, spans)
}

// @Summary      Access summary for the authenticated member
// @Tags         spans
// @Produce      json
// @Success      200 {array} span.AccessStatus
// @Security     BearerAuth
// @Router       /access [get]
func (h *Handler) GetMyAccess(c *gin.Context) {
	memberID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	statuses, err := h.svc.AccessSummary(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load access summary"})
		return
	}

	c.JSON(http.StatusOK, statuses)
}

// @Summary      Access summary for any member
// @Tags         spans
// @Produce      json
// @Param        memberID path int true "Member ID"
// @Success      200 {array} span.AccessStatus
// @Security     BearerAuth
// @Router       /admin/members/{memberID}/access [get]
func (h *Handler) GetMemberAccess(c *gin.Context) {
	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid member id"})
		return
	}

	statuses, err := h.svc.AccessSummary(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load access summary"})
		return
	}

	c.JSON(http.StatusOK, statuses)
}

type deleteSpanRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary      Soft-delete a span
// @Tags         spans
// @Accept       json
// @Produce      json
// @Param        spanID path int true "Span ID"
// @Success      200 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /admin/spans/{spanID} [delete]
func (h *Handler) DeleteSpan(c *gin.Context) {
	spanID, err := strconv.Atoi(c.Param("spanID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid span id"})
		return
	}

	var req deleteSpanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "deletion reason is required"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), spanID, req.Reason); err != nil {
		if errors.Is(err, ErrSpanNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "span not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to delete span"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "span deleted"})
}
