package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/agro-contracts/internal/model"
)

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ContractRepository) WithTx(tx *gorm.DB) *ContractRepository {
	return &ContractRepository{db: tx}
}

// Create inserts the contract inside its own savepoint so a unique-key collision
// does not poison an enclosing transaction.
func (r *ContractRepository) Create(ctx context.Context, contract *model.Contract) error {
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(contract).Error
	})
}

func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// LockByID reads the contract holding a row lock until the enclosing transaction ends.
func (r *ContractRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// Transition applies updates only if the contract is still in status from.
func (r *ContractRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from model.ContractStatus,
	updates map[string]interface{},
) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&model.Contract{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *ContractRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Contract, error) {
	var contracts []model.Contract
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? OR farmer_id = ?", userID, userID).
		Order("created_at DESC NULLS LAST").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

// ListAwaitingPaymentCreatedBefore returns AWAITING_PAYMENT contracts created at or before cutoff.
func (r *ContractRepository) ListAwaitingPaymentCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Contract, error) {
	var contracts []model.Contract
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ContractStatusAwaitingPayment).
		Where("created_at IS NOT NULL AND created_at <= ?", cutoff).
		Order("created_at ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *ContractRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Contract, error) {
	if len(ids) == 0 {
		return []model.Contract{}, nil
	}
	var contracts []model.Contract
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}
