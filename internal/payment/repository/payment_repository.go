package repository

import (
	"context"
	"errors"
	"time"

	paymentdomain "fileflow-backend/internal/payment/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *paymentdomain.Transaction) error
	FindByCheckoutID(ctx context.Context, checkoutID string) (*paymentdomain.Transaction, error)
	// Complete moves a pending transaction to its final state. It reports false when
	// the transaction was already final, leaving it untouched.
	Complete(ctx context.Context, outcome paymentdomain.Outcome) (bool, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, tx *paymentdomain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Status == "" {
		tx.Status = paymentdomain.StatusPending
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *paymentRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (*paymentdomain.Transaction, error) {
	var tx paymentdomain.Transaction
	if err := r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutID).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *paymentRepository) Complete(ctx context.Context, outcome paymentdomain.Outcome) (bool, error) {
	updates := map[string]interface{}{
		"status":      outcome.Status,
		"result_code": outcome.ResultCode,
		"result_desc": outcome.ResultDesc,
		"updated_at":  time.Now(),
	}
	if outcome.Receipt != "" {
		updates["receipt"] = outcome.Receipt
	}
	res := r.db.WithContext(ctx).Model(&paymentdomain.Transaction{}).
		Where("checkout_request_id = ? AND status = ?", outcome.CheckoutRequestID, paymentdomain.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
