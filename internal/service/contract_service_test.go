package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nurpe/agro-contracts/internal/config"
	"github.com/nurpe/agro-contracts/internal/model"
	"github.com/nurpe/agro-contracts/internal/payment"
	"github.com/nurpe/agro-contracts/internal/realtime"
	"github.com/nurpe/agro-contracts/internal/repository"
	"github.com/nurpe/agro-contracts/internal/repository/testutil"
)

const testKeySecret = "test-secret"

type pushed struct {
	userID uuid.UUID
	event  realtime.Event
}

type recordingDispatcher struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	pushed []pushed
}

func (d *recordingDispatcher) Dispatch(userID uuid.UUID, event realtime.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.online[userID] {
		return false
	}
	d.pushed = append(d.pushed, pushed{userID: userID, event: event})
	return true
}

func (d *recordingDispatcher) events() []pushed {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pushed(nil), d.pushed...)
}

type stubGateway struct {
	order *payment.Order
	err   error
	last  payment.OrderRequest
}

func (g *stubGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	return g.order, nil
}

type fixture struct {
	db         *gorm.DB
	svc        *ContractService
	ledger     *NotificationService
	dispatcher *recordingDispatcher
	gateway    *stubGateway
	buyer      model.User
	farmer     model.User
	listing    model.MarketItem
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.DB(t)
	contracts := repository.NewContractRepository(db)
	ledger := NewNotificationService(repository.NewNotificationRepository(db), contracts)
	dispatcher := &recordingDispatcher{online: map[uuid.UUID]bool{}}
	gateway := &stubGateway{order: &payment.Order{ID: "order_1", Amount: 100000, Currency: "INR"}}

	cfg := &config.Config{
		Payment:   config.PaymentConfig{KeyID: "key_1", KeySecret: testKeySecret, Currency: "INR", Timeout: time.Second},
		Contracts: config.ContractsConfig{NumberPrefix: "AGR", NumberAttempts: 5, PaymentWindow: 7 * 24 * time.Hour},
	}

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewContractService(ContractServiceDeps{
		DB:            db,
		Contracts:     contracts,
		Listings:      repository.NewListingRepository(db),
		Users:         repository.NewUserRepository(db),
		Notifications: ledger,
		Gateway:       gateway,
		Dispatcher:    dispatcher,
		Log:           zerolog.Nop(),
	}, cfg).WithClock(func() time.Time { return now })
	svc.retryDelay = 0

	buyer := testutil.CreateUser(t, db, "buyer1")
	farmer := testutil.CreateUser(t, db, "farmer1")
	listing := testutil.CreateListing(t, db, farmer.ID, "Wheat")

	return &fixture{
		db:         db,
		svc:        svc,
		ledger:     ledger,
		dispatcher: dispatcher,
		gateway:    gateway,
		buyer:      buyer,
		farmer:     farmer,
		listing:    listing,
		now:        now,
	}
}

func (f *fixture) input() CreateContractInput {
	return CreateContractInput{
		Principal:      model.Principal{UserID: f.buyer.ID},
		FarmerUsername: f.farmer.Username,
		MarketItemID:   f.listing.ID,
		Crop:           "Wheat",
		Price:          1000,
		AgreementDate:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DeliveryDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Terms:          "Delivered to warehouse",
		BuyerSignature: "B-SIG",
	}
}

func (f *fixture) create(t *testing.T) *CreateContractResult {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.input())
	require.NoError(t, err)
	return res
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *model.Contract {
	t.Helper()
	var c model.Contract
	require.NoError(t, f.db.Where("id = ?", id).Take(&c).Error)
	return &c
}

func (f *fixture) notifications(t *testing.T, userID uuid.UUID) []model.Notification {
	t.Helper()
	var out []model.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error)
	return out
}

func TestContractLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.online[f.farmer.ID] = true
	f.dispatcher.online[f.buyer.ID] = true
	ctx := context.Background()

	created := f.create(t)
	assert.Equal(t, model.ContractStatusPendingFarmer, created.Status)
	assert.Regexp(t, `^AGR\d+-[0-9a-z]{6}$`, created.ContractNumber)

	farmerInbox := f.notifications(t, f.farmer.ID)
	require.Len(t, farmerInbox, 1)
	assert.Equal(t, "New contract "+created.ContractNumber+" from buyer1", farmerInbox[0].Message)
	assert.Equal(t, model.PartyRoleFarmer, farmerInbox[0].Role)
	assert.False(t, farmerInbox[0].Read)

	accepted, err := f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusAwaitingPayment, accepted.Status)
	assert.Equal(t, f.now.Add(7*24*time.Hour), accepted.PaymentDeadline)

	contract := f.reload(t, created.ContractID)
	assert.Equal(t, model.ContractStatusAwaitingPayment, contract.Status)
	require.NotNil(t, contract.FarmerSignature)
	assert.Equal(t, "F-SIG", *contract.FarmerSignature)

	var listings int64
	require.NoError(t, f.db.Model(&model.MarketItem{}).Where("id = ?", f.listing.ID).Count(&listings).Error)
	assert.Zero(t, listings)

	farmerInbox = f.notifications(t, f.farmer.ID)
	require.Len(t, farmerInbox, 1)
	assert.True(t, farmerInbox[0].Read)

	buyerInbox := f.notifications(t, f.buyer.ID)
	require.Len(t, buyerInbox, 1)
	assert.Equal(t, "Contract "+created.ContractNumber+" accepted by farmer1. Please make payment.", buyerInbox[0].Message)
	assert.Equal(t, model.PartyRoleBuyer, buyerInbox[0].Role)

	order, err := f.svc.InitiatePayment(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID)
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, "key_1", order.Key)
	assert.Equal(t, int64(100000), f.gateway.last.AmountMinor)
	assert.Equal(t, "INR", f.gateway.last.Currency)
	assert.Equal(t, model.ContractStatusAwaitingPayment, f.reload(t, created.ContractID).Status)

	err = f.svc.VerifyPayment(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID, VerifyPaymentInput{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: payment.Sign(testKeySecret, "order_1", "pay_1"),
	})
	require.NoError(t, err)

	contract = f.reload(t, created.ContractID)
	assert.Equal(t, model.ContractStatusCompleted, contract.Status)
	require.NotNil(t, contract.PaymentID)
	assert.Equal(t, "pay_1", *contract.PaymentID)

	events := f.dispatcher.events()
	require.Len(t, events, 2)
	assert.Equal(t, f.farmer.ID, events[0].userID)
	assert.Equal(t, realtime.NewContract{
		ContractID: created.ContractID,
		Message:    farmerInbox[0].Message,
		Role:       model.PartyRoleFarmer,
	}, events[0].event)
	assert.Equal(t, f.buyer.ID, events[1].userID)
	assert.Equal(t, realtime.EventContractAccepted, events[1].event.Kind())
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := f.input()
	missing.Terms = "  "
	_, err := f.svc.Create(ctx, missing)
	assert.ErrorIs(t, err, ErrInvalidInput)

	noItem := f.input()
	noItem.MarketItemID = uuid.Nil
	_, err = f.svc.Create(ctx, noItem)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unknownItem := f.input()
	unknownItem.MarketItemID = uuid.New()
	_, err = f.svc.Create(ctx, unknownItem)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unknownFarmer := f.input()
	unknownFarmer.FarmerUsername = "nobody"
	_, err = f.svc.Create(ctx, unknownFarmer)
	assert.ErrorIs(t, err, ErrNotFound)

	self := f.input()
	self.Principal = model.Principal{UserID: f.farmer.ID}
	_, err = f.svc.Create(ctx, self)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// rounds to zero paise
	subCent := f.input()
	subCent.Price = 0.004
	_, err = f.svc.Create(ctx, subCent)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var count int64
	require.NoError(t, f.db.Model(&model.Contract{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.WithNumberGenerator(func(time.Time) string { return "AGR-fixed" })
	first := f.create(t)
	assert.Equal(t, "AGR-fixed", first.ContractNumber)

	calls := 0
	f.svc.WithNumberGenerator(func(time.Time) string {
		calls++
		if calls <= 2 {
			return "AGR-fixed"
		}
		return fmt.Sprintf("AGR-unique-%d", calls)
	})
	second, err := f.svc.Create(ctx, f.input())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "AGR-unique-3", second.ContractNumber)

	assert.Len(t, f.notifications(t, f.farmer.ID), 2)
}

func TestCreateFailsAfterExhaustingNumberAttempts(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.online[f.farmer.ID] = true

	f.svc.WithNumberGenerator(func(time.Time) string { return "AGR-fixed" })
	f.create(t)

	calls := 0
	f.svc.WithNumberGenerator(func(time.Time) string {
		calls++
		return "AGR-fixed"
	})
	_, err := f.svc.Create(context.Background(), f.input())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContractNumberExhausted)
	assert.Equal(t, 5, calls)

	var count int64
	require.NoError(t, f.db.Model(&model.Contract{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.notifications(t, f.farmer.ID), 1)
	assert.Len(t, f.dispatcher.events(), 1)
}

func TestCreateForOfflineFarmerStillRecordsNotification(t *testing.T) {
	f := newFixture(t)

	created := f.create(t)

	inbox := f.notifications(t, f.farmer.ID)
	require.Len(t, inbox, 1)
	require.NotNil(t, inbox[0].ContractID)
	assert.Equal(t, created.ContractID, *inbox[0].ContractID)
	assert.Empty(t, f.dispatcher.events())
}

func TestCreateToleratesMissingDispatcher(t *testing.T) {
	f := newFixture(t)
	f.svc.dispatcher = nil

	created := f.create(t)
	assert.NotEqual(t, uuid.Nil, created.ContractID)
	assert.Len(t, f.notifications(t, f.farmer.ID), 1)
}

func TestAcceptAuthorizationAndState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)

	_, err := f.svc.Accept(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID, "F-SIG")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, uuid.New(), "F-SIG")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG-2")
	assert.ErrorIs(t, err, ErrInvalidState)

	contract := f.reload(t, created.ContractID)
	assert.Equal(t, "F-SIG", *contract.FarmerSignature)
	assert.Len(t, f.notifications(t, f.buyer.ID), 1)
}

func TestAcceptWithoutListingStillSucceeds(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)
	require.NoError(t, f.db.Where("id = ?", f.listing.ID).Delete(&model.MarketItem{}).Error)

	res, err := f.svc.Accept(context.Background(), model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusAwaitingPayment, res.Status)
}

func TestConcurrentAcceptsTransitionOnce(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Accept(context.Background(), model.Principal{UserID: f.farmer.ID}, created.ContractID, fmt.Sprintf("F-SIG-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.notifications(t, f.buyer.ID), 1)
}

func TestInitiatePaymentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)

	_, err := f.svc.InitiatePayment(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)

	_, err = f.svc.InitiatePayment(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	f.gateway.err = errors.New("connection refused")
	_, err = f.svc.InitiatePayment(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, model.ContractStatusAwaitingPayment, f.reload(t, created.ContractID).Status)
}

func TestToMinorUnitsRounds(t *testing.T) {
	assert.Equal(t, int64(100000), toMinorUnits(1000))
	assert.Equal(t, int64(1999), toMinorUnits(19.99))
	assert.Equal(t, int64(1), toMinorUnits(0.005))
}

func TestVerifyPaymentRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)
	buyer := model.Principal{UserID: f.buyer.ID}
	_, err := f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)

	err = f.svc.VerifyPayment(ctx, buyer, created.ContractID, VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.svc.VerifyPayment(ctx, buyer, created.ContractID, VerifyPaymentInput{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: payment.Sign("other-secret", "order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = f.svc.VerifyPayment(ctx, buyer, created.ContractID, VerifyPaymentInput{
		OrderID:   "order_2",
		PaymentID: "pay_1",
		Signature: payment.Sign(testKeySecret, "order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = f.svc.VerifyPayment(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, VerifyPaymentInput{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: payment.Sign(testKeySecret, "order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	contract := f.reload(t, created.ContractID)
	assert.Equal(t, model.ContractStatusAwaitingPayment, contract.Status)
	assert.Nil(t, contract.PaymentID)
}

func TestVerifyPaymentRequiresAwaitingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)
	buyer := model.Principal{UserID: f.buyer.ID}
	valid := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: payment.Sign(testKeySecret, "order_1", "pay_1")}

	err := f.svc.VerifyPayment(ctx, buyer, created.ContractID, valid)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyPayment(ctx, buyer, created.ContractID, valid))

	// same verification again is a no-op
	require.NoError(t, f.svc.VerifyPayment(ctx, buyer, created.ContractID, valid))

	other := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_2", Signature: payment.Sign(testKeySecret, "order_1", "pay_2")}
	err = f.svc.VerifyPayment(ctx, buyer, created.ContractID, other)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "pay_1", *f.reload(t, created.ContractID).PaymentID)
}

func TestDismiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)

	err := f.svc.Dismiss(ctx, model.Principal{UserID: uuid.New()}, created.ContractID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, f.svc.Dismiss(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID))
	assert.Equal(t, model.ContractStatusDismissed, f.reload(t, created.ContractID).Status)

	err = f.svc.Dismiss(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorContains(t, err, "contract is closed")

	_, err = f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDissolveOnlyFromAwaitingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)

	assert.ErrorIs(t, f.svc.Dissolve(ctx, created.ContractID), ErrInvalidState)

	_, err := f.svc.Accept(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID, "F-SIG")
	require.NoError(t, err)

	require.NoError(t, f.svc.Dissolve(ctx, created.ContractID))
	assert.Equal(t, model.ContractStatusDissolved, f.reload(t, created.ContractID).Status)
	assert.ErrorIs(t, f.svc.Dissolve(ctx, created.ContractID), ErrInvalidState)

	valid := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: payment.Sign(testKeySecret, "order_1", "pay_1")}
	err = f.svc.VerifyPayment(ctx, model.Principal{UserID: f.buyer.ID}, created.ContractID, valid)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorContains(t, err, "contract is closed")
}

func TestGetAndListForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t)

	view, err := f.svc.Get(ctx, model.Principal{UserID: f.farmer.ID}, created.ContractID)
	require.NoError(t, err)
	assert.Equal(t, "buyer1", view.BuyerUsername)
	assert.Equal(t, "farmer1", view.FarmerUsername)
	assert.Equal(t, "2024-05-01", view.AgreementDate)
	assert.Equal(t, "2024-06-01", view.DeliveryDate)

	_, err = f.svc.Get(ctx, model.Principal{UserID: uuid.New()}, created.ContractID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Get(ctx, model.Principal{UserID: f.buyer.ID}, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.db.Where("id = ?", f.buyer.ID).Delete(&model.User{}).Error)
	views, err := f.svc.ListForUser(ctx, model.Principal{UserID: f.farmer.ID})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Unknown", views[0].BuyerUsername)

	views, err = f.svc.ListForUser(ctx, model.Principal{UserID: uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, views)
}
