package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nurpe/agro-contracts/internal/model"
	"github.com/nurpe/agro-contracts/internal/repository"
)

type ListingService struct {
	repo *repository.ListingRepository
}

func NewListingService(repo *repository.ListingRepository) *ListingService {
	return &ListingService{repo: repo}
}

type AddListingInput struct {
	Principal model.Principal
	Crop      string
	Quantity  int64
	Price     int64
}

func (s *ListingService) Add(ctx context.Context, input AddListingInput) (*model.MarketItem, error) {
	crop := strings.TrimSpace(input.Crop)
	if crop == "" || input.Quantity <= 0 || input.Price <= 0 {
		return nil, fmt.Errorf("%w: crop, quantity and price are required", ErrInvalidInput)
	}
	item := &model.MarketItem{
		UserID:   input.Principal.UserID,
		Crop:     crop,
		Quantity: input.Quantity,
		Price:    input.Price,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ListingService) ListMine(ctx context.Context, principal model.Principal) ([]model.MarketItem, error) {
	return s.repo.ListByUser(ctx, principal.UserID)
}

func (s *ListingService) ListAll(ctx context.Context) ([]model.MarketItemWithOwner, error) {
	return s.repo.ListAll(ctx)
}

func (s *ListingService) DeleteMine(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("%w: market item", ErrNotFound)
		}
		return err
	}
	if item.UserID != principal.UserID {
		return ErrPermissionDenied
	}
	deleted, err := s.repo.DeleteOwned(ctx, id, principal.UserID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: market item", ErrNotFound)
	}
	return nil
}
