package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/agro-contracts/internal/model"
	"github.com/nurpe/agro-contracts/internal/repository"
)

// NotificationService is the durable per-user ledger of lifecycle events.
type NotificationService struct {
	repo      *repository.NotificationRepository
	contracts *repository.ContractRepository
}

func NewNotificationService(repo *repository.NotificationRepository, contracts *repository.ContractRepository) *NotificationService {
	return &NotificationService{repo: repo, contracts: contracts}
}

// Record appends an unread entry, inside tx when one is given.
func (s *NotificationService) Record(
	ctx context.Context,
	tx *gorm.DB,
	userID uuid.UUID,
	message string,
	contractID *uuid.UUID,
	role model.PartyRole,
) (*model.Notification, error) {
	if userID == uuid.Nil || message == "" {
		return nil, fmt.Errorf("%w: notification needs a user and a message", ErrInvalidInput)
	}
	if role != model.PartyRoleFarmer && role != model.PartyRoleBuyer {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	notification := &model.Notification{
		UserID:     userID,
		Message:    message,
		ContractID: contractID,
		Role:       role,
	}
	if err := repo.Create(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// List returns the caller's notifications newest first, each with a snapshot of its contract.
func (s *NotificationService) List(ctx context.Context, principal model.Principal) ([]model.NotificationView, error) {
	notifications, err := s.repo.ListByUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(notifications))
	seen := make(map[uuid.UUID]struct{}, len(notifications))
	for _, n := range notifications {
		if n.ContractID == nil {
			continue
		}
		if _, ok := seen[*n.ContractID]; ok {
			continue
		}
		seen[*n.ContractID] = struct{}{}
		ids = append(ids, *n.ContractID)
	}
	contracts, err := s.contracts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	snapshots := make(map[uuid.UUID]*model.ContractSnapshot, len(contracts))
	for i := range contracts {
		c := contracts[i]
		snapshots[c.ID] = &model.ContractSnapshot{
			ID:             c.ID,
			ContractNumber: c.ContractNumber,
			Status:         c.Status,
			Crop:           c.Crop,
			Price:          c.Price,
			BuyerID:        c.BuyerID,
			FarmerID:       c.FarmerID,
		}
	}

	views := make([]model.NotificationView, 0, len(notifications))
	for _, n := range notifications {
		view := model.NotificationView{
			ID:        n.ID,
			UserID:    n.UserID,
			Message:   n.Message,
			Role:      n.Role,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
		if n.ContractID != nil {
			view.Contract = snapshots[*n.ContractID]
		}
		views = append(views, view)
	}
	return views, nil
}

// MarkRead is idempotent for the owner and forbidden for anyone else.
func (s *NotificationService) MarkRead(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("%w: notification", ErrNotFound)
		}
		return err
	}
	if notification.UserID != principal.UserID {
		return ErrPermissionDenied
	}
	if notification.Read {
		return nil
	}
	return s.repo.MarkRead(ctx, id)
}
