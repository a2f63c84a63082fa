package usecase

import (
	"context"
	"testing"

	paymentdomain "fileflow-backend/internal/payment/domain"
	"fileflow-backend/internal/payment/repository"
	"fileflow-backend/pkg/database"
	"fileflow-backend/pkg/mpesa"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) STKPush(ctx context.Context, in mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	args := m.Called(ctx, in)
	resp, _ := args.Get(0).(*mpesa.STKPushResponse)
	return resp, args.Error(1)
}

type mockUpgrader struct {
	mock.Mock
}

func (m *mockUpgrader) Upgrade(ctx context.Context, userID, purchaseRef string) error {
	return m.Called(ctx, userID, purchaseRef).Error(0)
}

type PaymentUsecaseSuite struct {
	suite.Suite
	ctx      context.Context
	repo     repository.PaymentRepository
	gateway  *mockGateway
	upgrader *mockUpgrader
	uc       PaymentUsecase
}

func TestPaymentUsecaseSuite(t *testing.T) {
	suite.Run(t, new(PaymentUsecaseSuite))
}

func (s *PaymentUsecaseSuite) SetupTest() {
	db, err := database.NewSQLiteConnection(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&paymentdomain.Transaction{}))

	s.ctx = context.Background()
	s.repo = repository.NewPaymentRepository(db)
	s.gateway = new(mockGateway)
	s.upgrader = new(mockUpgrader)
	s.uc = NewPaymentUsecase(s.gateway, s.repo, s.upgrader, 500)
}

func (s *PaymentUsecaseSuite) initiate() *paymentdomain.Transaction {
	s.gateway.On("STKPush", mock.Anything, mock.MatchedBy(func(in mpesa.STKPushRequest) bool {
		return in.Phone == "254712345678" && in.Amount == 500
	})).Return(&mpesa.STKPushResponse{CheckoutRequestID: "ws_CO_1", MerchantRequestID: "mr1", ResponseCode: "0"}, nil).Once()

	tx, err := s.uc.Initiate(s.ctx, "u1", "0712 345 678")
	s.Require().NoError(err)
	return tx
}

func callback(code int, receipt string) *mpesa.STKCallback {
	cb := &mpesa.STKCallback{CheckoutRequestID: "ws_CO_1", ResultCode: code, ResultDesc: "done"}
	if receipt != "" {
		cb.CallbackMetadata.Item = []mpesa.MetadataItem{{Name: "MpesaReceiptNumber", Value: receipt}}
	}
	return cb
}

func (s *PaymentUsecaseSuite) TestInitiateRecordsPendingTransaction() {
	tx := s.initiate()

	s.Equal(paymentdomain.StatusPending, tx.Status)
	s.Equal("254712345678", tx.Phone)

	got, err := s.uc.Status(s.ctx, "u1", "ws_CO_1")
	s.Require().NoError(err)
	s.Equal(tx.ID, got.ID)
}

func (s *PaymentUsecaseSuite) TestInitiateRejectsBadPhone() {
	_, err := s.uc.Initiate(s.ctx, "u1", "12345")
	s.ErrorIs(err, mpesa.ErrInvalidPhone)
	s.gateway.AssertNotCalled(s.T(), "STKPush", mock.Anything, mock.Anything)
}

func (s *PaymentUsecaseSuite) TestInitiateWithoutGateway() {
	uc := NewPaymentUsecase(nil, s.repo, s.upgrader, 500)
	_, err := uc.Initiate(s.ctx, "u1", "0712345678")
	s.ErrorIs(err, paymentdomain.ErrDisabled)
}

func (s *PaymentUsecaseSuite) TestSuccessfulCallbackUpgradesOnce() {
	s.initiate()
	s.upgrader.On("Upgrade", mock.Anything, "u1", "QX12AB34CD").Return(nil).Once()

	s.Require().NoError(s.uc.HandleCallback(s.ctx, callback(0, "QX12AB34CD")))
	// Repeated delivery and a late failure must not rewrite the final state.
	s.Require().NoError(s.uc.HandleCallback(s.ctx, callback(0, "QX12AB34CD")))
	s.Require().NoError(s.uc.HandleCallback(s.ctx, callback(1, "")))

	tx, err := s.uc.Status(s.ctx, "u1", "ws_CO_1")
	s.Require().NoError(err)
	s.Equal(paymentdomain.StatusSuccess, tx.Status)
	s.Equal("QX12AB34CD", *tx.Receipt)
	s.upgrader.AssertExpectations(s.T())
}

func (s *PaymentUsecaseSuite) TestCancelledCallbackDoesNotUpgrade() {
	s.initiate()

	s.Require().NoError(s.uc.HandleCallback(s.ctx, callback(mpesa.ResultCancelled, "")))

	tx, err := s.uc.Status(s.ctx, "u1", "ws_CO_1")
	s.Require().NoError(err)
	s.Equal(paymentdomain.StatusCancelled, tx.Status)
	s.Equal(mpesa.ResultCancelled, *tx.ResultCode)
	s.upgrader.AssertNotCalled(s.T(), "Upgrade", mock.Anything, mock.Anything, mock.Anything)
}

func (s *PaymentUsecaseSuite) TestStatusIsOwnerOnly() {
	s.initiate()

	_, err := s.uc.Status(s.ctx, "u2", "ws_CO_1")
	s.ErrorIs(err, paymentdomain.ErrNotFound)
}

func (s *PaymentUsecaseSuite) TestUnknownCallback() {
	err := s.uc.HandleCallback(s.ctx, callback(0, "X"))
	s.ErrorIs(err, paymentdomain.ErrNotFound)
}
