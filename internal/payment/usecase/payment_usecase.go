package usecase

import (
	"context"
	"fmt"

	paymentdomain "fileflow-backend/internal/payment/domain"
	"fileflow-backend/internal/payment/repository"
	"fileflow-backend/pkg/mpesa"

	"github.com/rs/zerolog/log"
)

// Gateway initiates mobile-money charges. *mpesa.Client implements it.
type Gateway interface {
	STKPush(ctx context.Context, in mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// Upgrader grants the paid tier.
type Upgrader interface {
	Upgrade(ctx context.Context, userID, purchaseRef string) error
}

type PaymentUsecase interface {
	Initiate(ctx context.Context, userID, phone string) (*paymentdomain.Transaction, error)
	HandleCallback(ctx context.Context, cb *mpesa.STKCallback) error
	Status(ctx context.Context, userID, checkoutID string) (*paymentdomain.Transaction, error)
}

type paymentUsecase struct {
	gateway  Gateway
	repo     repository.PaymentRepository
	upgrader Upgrader
	amount   int
}

// NewPaymentUsecase wires payments. A nil gateway disables STK push.
func NewPaymentUsecase(gateway Gateway, repo repository.PaymentRepository, upgrader Upgrader, amount int) PaymentUsecase {
	return &paymentUsecase{gateway: gateway, repo: repo, upgrader: upgrader, amount: amount}
}

func (u *paymentUsecase) Initiate(ctx context.Context, userID, phone string) (*paymentdomain.Transaction, error) {
	if u.gateway == nil {
		return nil, paymentdomain.ErrDisabled
	}
	normalized, err := mpesa.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	resp, err := u.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Phone:            normalized,
		Amount:           u.amount,
		AccountReference: "FileFlow Pro",
		Description:      "FileFlow Pro upgrade",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	tx := &paymentdomain.Transaction{
		UserID:            userID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Phone:             normalized,
		Amount:            u.amount,
		Status:            paymentdomain.StatusPending,
	}
	if err := u.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	log.Info().Str("user_id", userID).Str("checkout_id", tx.CheckoutRequestID).Msg("[Payment] STK push sent")
	return tx, nil
}

func outcomeStatus(code int) paymentdomain.Status {
	switch code {
	case mpesa.ResultSuccess:
		return paymentdomain.StatusSuccess
	case mpesa.ResultCancelled:
		return paymentdomain.StatusCancelled
	default:
		return paymentdomain.StatusFailed
	}
}

// HandleCallback records the outcome once. Repeated or late callbacks for a final
// transaction are ignored.
func (u *paymentUsecase) HandleCallback(ctx context.Context, cb *mpesa.STKCallback) error {
	tx, err := u.repo.FindByCheckoutID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return err
	}
	if tx == nil {
		log.Warn().Str("checkout_id", cb.CheckoutRequestID).Msg("[Payment] Callback for unknown transaction")
		return paymentdomain.ErrNotFound
	}
	if tx.Status.Final() {
		log.Info().Str("checkout_id", tx.CheckoutRequestID).Str("status", string(tx.Status)).Msg("[Payment] Duplicate callback ignored")
		return nil
	}

	outcome := paymentdomain.Outcome{
		CheckoutRequestID: cb.CheckoutRequestID,
		Status:            outcomeStatus(cb.ResultCode),
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Receipt:           cb.Receipt(),
	}
	updated, err := u.repo.Complete(ctx, outcome)
	if err != nil {
		return fmt.Errorf("failed to record payment outcome: %w", err)
	}
	if !updated {
		return nil
	}

	log.Info().Str("user_id", tx.UserID).Str("checkout_id", tx.CheckoutRequestID).
		Str("status", string(outcome.Status)).Msg("[Payment] Transaction completed")
	if outcome.Status != paymentdomain.StatusSuccess {
		return nil
	}

	ref := outcome.Receipt
	if ref == "" {
		ref = tx.CheckoutRequestID
	}
	if err := u.upgrader.Upgrade(ctx, tx.UserID, ref); err != nil {
		return fmt.Errorf("failed to upgrade user: %w", err)
	}
	return nil
}

func (u *paymentUsecase) Status(ctx context.Context, userID, checkoutID string) (*paymentdomain.Transaction, error) {
	tx, err := u.repo.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.UserID != userID {
		return nil, paymentdomain.ErrNotFound
	}
	return tx, nil
}
