package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/middleware"
	"github.com/eaglebank/payments-service/internal/models"
	"github.com/eaglebank/payments-service/internal/query"
	"github.com/eaglebank/payments-service/internal/repository"
	"github.com/eaglebank/payments-service/internal/store"
	"github.com/eaglebank/payments-service/internal/utils"
)

// Sessions hands out the caller's TransactionStore.
type Sessions interface {
	Get(ctx context.Context, userID string, opts store.Options) (*store.TransactionStore, bool)
}

// PaymentQuerier defines the single payment read used by PaymentHandler.
type PaymentQuerier interface {
	GetPaymentForUser(ctx context.Context, q cqrs.GetPaymentQuery) (*models.PaymentRow, error)
}

type PaymentHandler struct {
	sessions Sessions
	queries  PaymentQuerier
	defaults store.Options
}

type ListPaymentsRequest struct {
	Type       string `form:"type" validate:"omitempty,max=40,excludesall=;%"`
	EscrowOnly bool   `form:"escrowOnly"`
	Limit      int    `form:"limit" validate:"omitempty,gte=1,lte=100"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// PaymentResponse is a Transaction with the actions currently offered on it.
type PaymentResponse struct {
	models.Transaction
	CanRequestRefund bool `json:"canRequestRefund"`
	CanReleaseEscrow bool `json:"canReleaseEscrow"`
}

type ListPaymentsResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Loading  bool              `json:"loading"`
	Limit    int               `json:"limit"`
}

type EligibilityResponse struct {
	PaymentID        string `json:"paymentId"`
	CanRequestRefund bool   `json:"canRequestRefund"`
	CanReleaseEscrow bool   `json:"canReleaseEscrow"`
}

// NewPaymentHandler builds the handler. defaults supplies the refund window,
// locale and limit used when a request does not override them.
func NewPaymentHandler(sessions Sessions, queries PaymentQuerier, defaults store.Options) *PaymentHandler {
	return &PaymentHandler{sessions: sessions, queries: queries, defaults: defaults}
}

func (h *PaymentHandler) options(c *gin.Context) store.Options {
	opts := h.defaults
	if tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language")); err == nil && len(tags) > 0 {
		opts.Locale = tags[0].String()
	}
	return opts
}

func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	opts := h.options(c)
	opts.RelatedType = req.Type
	opts.EscrowOnly = req.EscrowOnly
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}

	st, created := h.sessions.Get(c.Request.Context(), userID, opts)
	state := st.Snapshot()
	if !created {
		state = st.Refetch(c.Request.Context())
	}
	if state.Err != nil {
		middleware.RespondWithError(c, http.StatusBadGateway, "Failed to load payments")
		return
	}

	payments := make([]PaymentResponse, len(state.Transactions))
	for i, tx := range state.Transactions {
		payments[i] = PaymentResponse{
			Transaction:      tx,
			CanRequestRefund: st.CanRequestRefund(tx),
			CanReleaseEscrow: st.CanReleaseEscrow(tx, userID),
		}
	}
	c.JSON(http.StatusOK, ListPaymentsResponse{
		Payments: payments,
		Loading:  state.Loading,
		Limit:    st.Options().Limit,
	})
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	tx, ok := h.loadPayment(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *PaymentHandler) GetEligibility(c *gin.Context) {
	tx, ok := h.loadPayment(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)
	st, _ := h.sessions.Get(c.Request.Context(), userID, h.options(c))

	c.JSON(http.StatusOK, EligibilityResponse{
		PaymentID:        tx.ID,
		CanRequestRefund: st.CanRequestRefund(tx),
		CanReleaseEscrow: st.CanReleaseEscrow(tx, userID),
	})
}

func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	paymentID := c.Param("paymentId")
	userID, _ := middleware.GetUserID(c)
	if !utils.ValidatePaymentID(paymentID) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	var req RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	st, _ := h.sessions.Get(c.Request.Context(), userID, h.options(c))
	if !st.RequestRefundWithReason(c.Request.Context(), paymentID, req.Reason) {
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "Refund could not be requested")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"paymentId": paymentID, "status": models.PaymentStatusRefundRequested})
}

func (h *PaymentHandler) ReleaseEscrow(c *gin.Context) {
	paymentID := c.Param("paymentId")
	userID, _ := middleware.GetUserID(c)
	if !utils.ValidatePaymentID(paymentID) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	st, _ := h.sessions.Get(c.Request.Context(), userID, h.options(c))
	if !st.ReleaseEscrow(c.Request.Context(), paymentID) {
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "Escrow could not be released")
		return
	}
	c.JSON(http.StatusOK, gin.H{"paymentId": paymentID, "escrowStatus": models.EscrowStatusReleased})
}

func (h *PaymentHandler) loadPayment(c *gin.Context) (models.Transaction, bool) {
	paymentID := c.Param("paymentId")
	userID, _ := middleware.GetUserID(c)
	if !utils.ValidatePaymentID(paymentID) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid payment ID")
		return models.Transaction{}, false
	}

	row, err := h.queries.GetPaymentForUser(c.Request.Context(), cqrs.GetPaymentQuery{
		PaymentID: paymentID,
		UserID:    userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			middleware.RespondWithError(c, http.StatusNotFound, "Payment not found")
		case errors.Is(err, query.ErrForbidden):
			middleware.RespondWithError(c, http.StatusForbidden, "You can only view your own payments")
		default:
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get payment")
		}
		return models.Transaction{}, false
	}
	return models.FormatTransaction(*row), true
}
