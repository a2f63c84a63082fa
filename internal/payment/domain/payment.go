package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("payment not found")
	ErrDisabled = errors.New("payments are not configured")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Final reports whether the status can no longer change.
func (s Status) Final() bool {
	return s != StatusPending
}

// Transaction is one STK push and its outcome.
type Transaction struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	UserID            string    `json:"user_id" gorm:"index;not null"`
	CheckoutRequestID string    `json:"checkout_request_id" gorm:"uniqueIndex;not null"`
	MerchantRequestID string    `json:"merchant_request_id"`
	Phone             string    `json:"phone"`
	Amount            int       `json:"amount"`
	Status            Status    `json:"status" gorm:"default:pending"`
	ResultCode        *int      `json:"result_code,omitempty"`
	ResultDesc        string    `json:"result_desc,omitempty"`
	Receipt           *string   `json:"receipt,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}

// Outcome is what a payment callback reports.
type Outcome struct {
	CheckoutRequestID string
	Status            Status
	ResultCode        int
	ResultDesc        string
	Receipt           string
}
