package transaction

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

type PurchaseRequest struct {
	Cart                []CartItem `json:"cart" binding:"required" validate:"required,min=1,dive"`
	ExpectedAmountCents int64      `json:"expected_amount_cents" binding:"required" validate:"gt=0"`
	PaymentRef          string     `json:"payment_ref"`
}

// @Summary      Validate and commit a webshop purchase
// @Tags         webshop
// @Accept       json
// @Produce      json
// @Param        request body transaction.PurchaseRequest true "Cart"
// @Success      201 {object} transaction.Transaction
// @Failure      400 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /webshop/purchase [post]
func (h *Handler) Purchase(c *gin.Context) {
	memberID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	if errs := api.ValidateStruct(req); len(errs) > 0 {
		api.RespondWithValidationErrors(c, errs)
		return
	}

	trans, err := h.svc.Purchase(c.Request.Context(), memberID, req.Cart, req.ExpectedAmountCents, req.PaymentRef)
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "product not found"})
		case errors.Is(err, ErrInvalidItemCount):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid item count"})
		case errors.Is(err, ErrInvalidPrice):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "product has invalid price"})
		case errors.Is(err, ErrAmountMismatch):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "cart total does not match expected amount"})
		case errors.Is(err, ErrAmountOutOfRange):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "cart total out of allowed range"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create transaction"})
		}
		return
	}

	c.JSON(http.StatusCreated, trans)
}

// @Summary      List the authenticated member's transactions
// @Tags         webshop
// @Produce      json
// @Success      200 {array} transaction.Transaction
// @Security     BearerAuth
// @Router       /webshop/transactions [get]
func (h *Handler) ListMy(c *gin.Context) {
	memberID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	transactions, err := h.svc.MemberTransactions(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, transactions)
}

// @Summary      List a member's transactions
// @Tags         webshop
// @Produce      json
// @Param        memberID path int true "Member ID"
// @Success      200 {array} transaction.Transaction
// @Security     BearerAuth
// @Router       /admin/members/{memberID}/transactions [get]
func (h *Handler) ListMember(c *gin.Context) {
	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid member id"})
		return
	}

	transactions, err := h.svc.MemberTransactions(c.Request.Context(), memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, transactions)
}

// @Summary      Confirm a pending transaction as paid
// @Tags         webshop
// @Produce      json
// @Param        transactionID path int true "Transaction ID"
// @Success      200 {object} api.MessageResponse
// @Failure      409 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /webshop/transactions/{transactionID}/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	transactionID, err := strconv.Atoi(c.Param("transactionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid transaction id"})
		return
	}

	if err := h.svc.Confirm(c.Request.Context(), transactionID); err != nil {
		if errors.Is(err, ErrNotPending) {
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "transaction is not pending"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to confirm transaction"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "transaction completed"})
}

// @Summary      Mark a pending transaction as failed
// @Tags         webshop
// @Produce      json
// @Param        transactionID path int true "Transaction ID"
// @Success      200 {object} api.MessageResponse
// @Failure      409 {object} api.ErrorResponse
// @Security     BearerAuth
// @Router       /webshop/transactions/{transactionID}/fail [post]
func (h *Handler) Fail(c *gin.Context) {
	transactionID, err := strconv.Atoi(c.Param("transactionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid transaction id"})
		return
	}

	if err := h.svc.Fail(c.Request.Context(), transactionID); err != nil {
		if errors.Is(err, ErrNotPending) {
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "transaction is not pending"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to fail transaction"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "transaction failed"})
}

// @Summary      Ship pending fulfillment actions
// @Tags         webshop
// @Accept       json
// @Produce      json
// @Param        filter body transaction.Filter false "Optional member/transaction filter"
// @Success      200 {object} api.ShipReport
// @Security     BearerAuth
// @Router       /webshop/ship [post]
func (h *Handler) Ship(c *gin.Context) {
	var filter Filter
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&filter); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
	}

	shipped, skipped, err := h.svc.ShipPendingActions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to ship pending actions"})
		return
	}

	c.JSON(http.StatusOK, api.ShipReport{Shipped: shipped, Skipped: skipped})
}
