package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/agro-contracts/internal/config"
	"github.com/nurpe/agro-contracts/internal/metrics"
	"github.com/nurpe/agro-contracts/internal/model"
	"github.com/nurpe/agro-contracts/internal/payment"
	"github.com/nurpe/agro-contracts/internal/realtime"
	"github.com/nurpe/agro-contracts/internal/repository"
)

const (
	numberRetryDelay = 10 * time.Millisecond
	dateLayout       = "2006-01-02"
)

type EventDispatcher interface {
	Dispatch(userID uuid.UUID, event realtime.Event) bool
}

type ContractServiceDeps struct {
	DB            *gorm.DB
	Contracts     *repository.ContractRepository
	Listings      *repository.ListingRepository
	Users         *repository.UserRepository
	Notifications *NotificationService
	Gateway       payment.Gateway
	Dispatcher    EventDispatcher
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

// ContractService owns the contract lifecycle. Every transition commits its durable
// writes in one transaction and only then attempts the best-effort push.
type ContractService struct {
	db            *gorm.DB
	contracts     *repository.ContractRepository
	listings      *repository.ListingRepository
	users         *repository.UserRepository
	notifications *NotificationService
	gateway       payment.Gateway
	dispatcher    EventDispatcher
	metrics       *metrics.Metrics
	log           zerolog.Logger

	numberAttempts int
	paymentWindow  time.Duration
	currency       string
	keyID          string
	keySecret      string
	gatewayTimeout time.Duration

	newNumber  NumberGenerator
	now        func() time.Time
	retryDelay time.Duration
}

func NewContractService(deps ContractServiceDeps, cfg *config.Config) *ContractService {
	return &ContractService{
		db:             deps.DB,
		contracts:      deps.Contracts,
		listings:       deps.Listings,
		users:          deps.Users,
		notifications:  deps.Notifications,
		gateway:        deps.Gateway,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		log:            deps.Log.With().Str("component", "contracts").Logger(),
		numberAttempts: cfg.Contracts.NumberAttempts,
		paymentWindow:  cfg.Contracts.PaymentWindow,
		currency:       cfg.Payment.Currency,
		keyID:          cfg.Payment.KeyID,
		keySecret:      cfg.Payment.KeySecret,
		gatewayTimeout: cfg.Payment.Timeout,
		newNumber:      NewNumberGenerator(cfg.Contracts.NumberPrefix),
		now:            func() time.Time { return time.Now().UTC() },
		retryDelay:     numberRetryDelay,
	}
}

// WithClock replaces the time source.
func (s *ContractService) WithClock(now func() time.Time) *ContractService {
	s.now = now
	return s
}

// WithNumberGenerator replaces the contract number source.
func (s *ContractService) WithNumberGenerator(gen NumberGenerator) *ContractService {
	s.newNumber = gen
	return s
}

type CreateContractInput struct {
	Principal      model.Principal
	FarmerUsername string
	MarketItemID   uuid.UUID
	Crop           string
	Price          float64
	AgreementDate  time.Time
	DeliveryDate   time.Time
	Terms          string
	BuyerSignature string
}

type CreateContractResult struct {
	ContractID     uuid.UUID            `json:"contractId"`
	ContractNumber string               `json:"contractNumber"`
	Status         model.ContractStatus `json:"status"`
}

func (s *ContractService) Create(ctx context.Context, input CreateContractInput) (result *CreateContractResult, err error) {
	defer func() { s.metrics.Transition("create", err) }()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

	farmer, err := s.users.FindByUsername(ctx, input.FarmerUsername)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: farmer not found", ErrNotFound)
		}
		return nil, err
	}
	if farmer.ID == input.Principal.UserID {
		return nil, fmt.Errorf("%w: buyer and farmer must differ", ErrInvalidInput)
	}

	if _, err := s.listings.GetByID(ctx, input.MarketItemID); err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: market item not found", ErrInvalidInput)
		}
		return nil, err
	}

	buyerName := s.username(ctx, s.users, input.Principal.UserID, "buyer")
	marketItemID := input.MarketItemID

	var contract *model.Contract
	var notification *model.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contracts := s.contracts.WithTx(tx)

		err := retryBounded(ctx, s.numberAttempts, s.retryDelay, repository.IsDuplicateKey, func(attempt int) error {
			now := s.now()
			candidate := &model.Contract{
				ID:             uuid.New(),
				ContractNumber: s.newNumber(now),
				BuyerID:        input.Principal.UserID,
				FarmerID:       farmer.ID,
				MarketItemID:   &marketItemID,
				Crop:           strings.TrimSpace(input.Crop),
				Price:          input.Price,
				Terms:          strings.TrimSpace(input.Terms),
				AgreementDate:  input.AgreementDate.UTC(),
				DeliveryDate:   input.DeliveryDate.UTC(),
				BuyerSignature: strings.TrimSpace(input.BuyerSignature),
				Status:         model.ContractStatusPendingFarmer,
				CreatedAt:      &now,
				UpdatedAt:      now,
			}
			if err := contracts.Create(ctx, candidate); err != nil {
				if repository.IsDuplicateKey(err) {
					s.log.Warn().Int("attempt", attempt).Str("contract_number", candidate.ContractNumber).Msg("contract number collision")
				}
				return err
			}
			contract = candidate
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				return fmt.Errorf("%w: %v", ErrContractNumberExhausted, err)
			}
			return err
		}

		message := fmt.Sprintf("New contract %s from %s", contract.ContractNumber, buyerName)
		notification, err = s.notifications.Record(ctx, tx, farmer.ID, message, &contract.ID, model.PartyRoleFarmer)
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("buyer_id", input.Principal.UserID.String()).Msg("create contract failed")
		return nil, err
	}

	s.push(farmer.ID, realtime.NewContract{
		ContractID: contract.ID,
		Message:    notification.Message,
		Role:       model.PartyRoleFarmer,
	})
	s.log.Info().Str("contract_number", contract.ContractNumber).Msg("contract created")

	return &CreateContractResult{
		ContractID:     contract.ID,
		ContractNumber: contract.ContractNumber,
		Status:         contract.Status,
	}, nil
}

func validateCreate(input CreateContractInput) error {
	if strings.TrimSpace(input.FarmerUsername) == "" ||
		strings.TrimSpace(input.Crop) == "" ||
		strings.TrimSpace(input.Terms) == "" ||
		strings.TrimSpace(input.BuyerSignature) == "" ||
		input.MarketItemID == uuid.Nil ||
		input.AgreementDate.IsZero() ||
		input.DeliveryDate.IsZero() ||
		input.Price == 0 {
		return fmt.Errorf("%w: all fields including marketItemId are required", ErrInvalidInput)
	}
	if input.Price < 0 || math.IsNaN(input.Price) || math.IsInf(input.Price, 0) {
		return fmt.Errorf("%w: price must be a positive number", ErrInvalidInput)
	}
	if toMinorUnits(input.Price) < 1 {
		return fmt.Errorf("%w: price must be at least 0.01", ErrInvalidInput)
	}
	return nil
}

// Get returns the denormalized contract to either party.
func (s *ContractService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.ContractView, error) {
	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: contract", ErrNotFound)
		}
		return nil, err
	}
	if !contract.IsParty(principal.UserID) {
		return nil, ErrPermissionDenied
	}

	names, err := s.users.UsernamesByIDs(ctx, []uuid.UUID{contract.BuyerID, contract.FarmerID})
	if err != nil {
		return nil, err
	}
	view := buildView(*contract, names)
	return &view, nil
}

// ListForUser returns every contract where the caller is a party, newest first.
func (s *ContractService) ListForUser(ctx context.Context, principal model.Principal) ([]model.ContractView, error) {
	contracts, err := s.contracts.ListForUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(contracts)*2)
	for _, c := range contracts {
		ids = append(ids, c.BuyerID, c.FarmerID)
	}
	names, err := s.users.UsernamesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]model.ContractView, 0, len(contracts))
	for _, c := range contracts {
		views = append(views, buildView(c, names))
	}
	return views, nil
}

func buildView(c model.Contract, names map[uuid.UUID]string) model.ContractView {
	return model.ContractView{
		ID:              c.ID,
		ContractNumber:  c.ContractNumber,
		BuyerID:         c.BuyerID,
		FarmerID:        c.FarmerID,
		BuyerUsername:   nameOr(names, c.BuyerID, "Unknown"),
		FarmerUsername:  nameOr(names, c.FarmerID, "Unknown"),
		MarketItemID:    c.MarketItemID,
		Crop:            c.Crop,
		Price:           c.Price,
		Terms:           c.Terms,
		AgreementDate:   c.AgreementDate.UTC().Format(dateLayout),
		DeliveryDate:    c.DeliveryDate.UTC().Format(dateLayout),
		BuyerSignature:  c.BuyerSignature,
		FarmerSignature: c.FarmerSignature,
		PaymentID:       c.PaymentID,
		PaymentDeadline: c.PaymentDeadline,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
	}
}

type AcceptResult struct {
	ContractID      uuid.UUID            `json:"contractId"`
	Status          model.ContractStatus `json:"status"`
	PaymentDeadline time.Time            `json:"paymentDeadline"`
}

// Accept moves PENDING_FARMER to AWAITING_PAYMENT on behalf of the named farmer.
func (s *ContractService) Accept(ctx context.Context, principal model.Principal, id uuid.UUID, farmerSignature string) (result *AcceptResult, err error) {
	defer func() { s.metrics.Transition("accept", err) }()

	farmerSignature = strings.TrimSpace(farmerSignature)
	if farmerSignature == "" {
		return nil, fmt.Errorf("%w: farmer signature is required", ErrInvalidInput)
	}

	var contract *model.Contract
	var notification *model.Notification
	var deadline time.Time
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contracts := s.contracts.WithTx(tx)

		locked, err := contracts.LockByID(ctx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("%w: contract", ErrNotFound)
			}
			return err
		}
		if locked.FarmerID != principal.UserID {
			return ErrPermissionDenied
		}
		if locked.Status != model.ContractStatusPendingFarmer {
			return fmt.Errorf("%w: contract is not in pending state", ErrInvalidState)
		}

		if locked.MarketItemID != nil {
			deleted, err := s.listings.WithTx(tx).DeleteOwned(ctx, *locked.MarketItemID, principal.UserID)
			if err != nil {
				return err
			}
			if !deleted {
				s.log.Warn().Str("market_item_id", locked.MarketItemID.String()).Msg("market item not found or not owned by farmer")
			}
		}

		if _, err := s.notifications.repo.WithTx(tx).MarkContractRead(ctx, locked.FarmerID, locked.ID); err != nil {
			return err
		}

		now := s.now()
		deadline = now.Add(s.paymentWindow)
		err = contracts.Transition(ctx, locked.ID, model.ContractStatusPendingFarmer, map[string]interface{}{
			"farmer_signature": farmerSignature,
			"status":           model.ContractStatusAwaitingPayment,
			"payment_deadline": deadline,
		})
		if err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return fmt.Errorf("%w: contract is not in pending state", ErrInvalidState)
			}
			return err
		}

		farmerName := s.username(ctx, s.users.WithTx(tx), principal.UserID, "farmer")
		message := fmt.Sprintf("Contract %s accepted by %s. Please make payment.", locked.ContractNumber, farmerName)
		notification, err = s.notifications.Record(ctx, tx, locked.BuyerID, message, &locked.ID, model.PartyRoleBuyer)
		if err != nil {
			return err
		}
		contract = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(contract.BuyerID, realtime.ContractAccepted{
		ContractID:     contract.ID,
		Message:        notification.Message,
		ContractStatus: model.ContractStatusAwaitingPayment,
		Role:           model.PartyRoleBuyer,
	})
	s.log.Info().Str("contract_number", contract.ContractNumber).Time("payment_deadline", deadline).Msg("contract accepted")

	return &AcceptResult{
		ContractID:      contract.ID,
		Status:          model.ContractStatusAwaitingPayment,
		PaymentDeadline: deadline,
	}, nil
}

type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// InitiatePayment asks the gateway for an order covering the contract price. It never changes state.
func (s *ContractService) InitiatePayment(ctx context.Context, principal model.Principal, id uuid.UUID) (order *PaymentOrder, err error) {
	defer func() { s.metrics.GatewayRequest(err) }()

	contract, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: contract", ErrNotFound)
		}
		return nil, err
	}
	if contract.BuyerID != principal.UserID {
		return nil, ErrPermissionDenied
	}
	if contract.Status != model.ContractStatusAwaitingPayment {
		return nil, fmt.Errorf("%w: contract not ready for payment", ErrInvalidState)
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: payment gateway not configured", ErrUpstream)
	}

	gatewayCtx := ctx
	if s.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		gatewayCtx, cancel = context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
	}

	created, err := s.gateway.CreateOrder(gatewayCtx, payment.OrderRequest{
		AmountMinor: toMinorUnits(contract.Price),
		Currency:    s.currency,
		Receipt:     "contract_" + contract.ContractNumber,
	})
	if err != nil {
		s.log.Error().Err(err).Str("contract_number", contract.ContractNumber).Msg("payment order creation failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return &PaymentOrder{
		ID:       created.ID,
		Amount:   created.Amount,
		Currency: created.Currency,
		Key:      s.keyID,
	}, nil
}

func toMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

type VerifyPaymentInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

// VerifyPayment completes the contract once the gateway signature checks out.
// Replaying the verification that already completed the contract succeeds without writing.
func (s *ContractService) VerifyPayment(ctx context.Context, principal model.Principal, id uuid.UUID, input VerifyPaymentInput) (err error) {
	defer func() { s.metrics.Transition("verify_payment", err) }()

	input.OrderID = strings.TrimSpace(input.OrderID)
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	input.Signature = strings.TrimSpace(input.Signature)
	if input.OrderID == "" || input.PaymentID == "" || input.Signature == "" {
		return fmt.Errorf("%w: order ID, payment ID, and signature are required", ErrInvalidInput)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contracts := s.contracts.WithTx(tx)

		contract, err := contracts.LockByID(ctx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("%w: contract", ErrNotFound)
			}
			return err
		}
		if contract.BuyerID != principal.UserID {
			return ErrPermissionDenied
		}
		valid := payment.VerifySignature(s.keySecret, input.OrderID, input.PaymentID, input.Signature)

		switch contract.Status {
		case model.ContractStatusAwaitingPayment:
		case model.ContractStatusCompleted:
			if valid && contract.PaymentID != nil && *contract.PaymentID == input.PaymentID {
				return nil
			}
			return fmt.Errorf("%w: contract already paid", ErrInvalidState)
		default:
			if contract.Status.IsTerminal() {
				return fmt.Errorf("%w: contract is closed", ErrInvalidState)
			}
			return fmt.Errorf("%w: contract not awaiting payment", ErrInvalidState)
		}

		if !valid {
			s.log.Warn().Str("contract_number", contract.ContractNumber).Msg("payment signature mismatch")
			return ErrInvalidSignature
		}

		err = contracts.Transition(ctx, contract.ID, model.ContractStatusAwaitingPayment, map[string]interface{}{
			"payment_id": input.PaymentID,
			"status":     model.ContractStatusCompleted,
		})
		if errors.Is(err, repository.ErrStaleState) {
			return fmt.Errorf("%w: contract not awaiting payment", ErrInvalidState)
		}
		if err == nil {
			s.log.Info().Str("contract_number", contract.ContractNumber).Msg("payment verified")
		}
		return err
	})
}

// Dismiss cancels a contract the farmer has not yet accepted. Either party may do it.
func (s *ContractService) Dismiss(ctx context.Context, principal model.Principal, id uuid.UUID) (err error) {
	defer func() { s.metrics.Transition("dismiss", err) }()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contracts := s.contracts.WithTx(tx)

		contract, err := contracts.LockByID(ctx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("%w: contract", ErrNotFound)
			}
			return err
		}
		if !contract.IsParty(principal.UserID) {
			return ErrPermissionDenied
		}
		if contract.Status.IsTerminal() {
			return fmt.Errorf("%w: contract is closed", ErrInvalidState)
		}
		if contract.Status != model.ContractStatusPendingFarmer {
			return fmt.Errorf("%w: only pending contracts can be dismissed", ErrInvalidState)
		}
		err = contracts.Transition(ctx, contract.ID, model.ContractStatusPendingFarmer, map[string]interface{}{
			"status": model.ContractStatusDismissed,
		})
		if errors.Is(err, repository.ErrStaleState) {
			return fmt.Errorf("%w: only pending contracts can be dismissed", ErrInvalidState)
		}
		return err
	})
}

// Dissolve force-terminates a contract still awaiting payment. It emits no notification.
func (s *ContractService) Dissolve(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.metrics.Transition("dissolve", err) }()

	err = s.contracts.Transition(ctx, id, model.ContractStatusAwaitingPayment, map[string]interface{}{
		"status": model.ContractStatusDissolved,
	})
	if errors.Is(err, repository.ErrStaleState) {
		return fmt.Errorf("%w: contract not awaiting payment", ErrInvalidState)
	}
	return err
}

// ListDissolutionCandidates returns AWAITING_PAYMENT contracts created at or before cutoff.
func (s *ContractService) ListDissolutionCandidates(ctx context.Context, cutoff time.Time) ([]model.Contract, error) {
	return s.contracts.ListAwaitingPaymentCreatedBefore(ctx, cutoff)
}

func (s *ContractService) username(ctx context.Context, users *repository.UserRepository, id uuid.UUID, fallback string) string {
	user, err := users.FindByID(ctx, id)
	if err != nil {
		if !repository.IsNotFound(err) {
			s.log.Warn().Err(err).Str("user_id", id.String()).Msg("user lookup failed")
		}
		return fallback
	}
	return user.Username
}

func nameOr(names map[uuid.UUID]string, id uuid.UUID, fallback string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fallback
}

func (s *ContractService) push(userID uuid.UUID, event realtime.Event) {
	if s.dispatcher == nil {
		s.log.Error().Str("event", string(event.Kind())).Msg("event dispatcher not configured; skipping push")
		return
	}
	s.dispatcher.Dispatch(userID, event)
}
