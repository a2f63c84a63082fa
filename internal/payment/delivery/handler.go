package delivery

import (
	"errors"
	"net/http"

	paymentdomain "fileflow-backend/internal/payment/domain"
	"fileflow-backend/internal/payment/usecase"
	"fileflow-backend/pkg/mpesa"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type PaymentHandler struct {
	paymentUsecase usecase.PaymentUsecase
}

func NewPaymentHandler(paymentUsecase usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{paymentUsecase: paymentUsecase}
}

type STKPushRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// POST /api/payments/stk-push
func (h *PaymentHandler) STKPush(c *gin.Context) {
	var req STKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.paymentUsecase.Initiate(c.Request.Context(), c.GetString("userID"), req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, mpesa.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, paymentdomain.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checkout_request_id": tx.CheckoutRequestID,
		"status":              tx.Status,
		"message":             "Check your phone to complete the payment",
	})
}

// Callback is the public Daraja webhook. It always acknowledges so the gateway
// does not retry; failures are logged.
// POST /api/payments/callback
func (h *PaymentHandler) Callback(c *gin.Context) {
	ack := gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

	var cb mpesa.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		log.Warn().Err(err).Msg("[Payment] Malformed callback")
		c.JSON(http.StatusOK, ack)
		return
	}
	if err := h.paymentUsecase.HandleCallback(c.Request.Context(), &cb.Body.STKCallback); err != nil {
		log.Error().Err(err).Str("checkout_id", cb.Body.STKCallback.CheckoutRequestID).Msg("[Payment] Callback handling failed")
	}
	c.JSON(http.StatusOK, ack)
}

// GET /api/payments/status/:id
func (h *PaymentHandler) Status(c *gin.Context) {
	tx, err := h.paymentUsecase.Status(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tx)
}
