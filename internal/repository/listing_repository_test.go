package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/agro-contracts/internal/repository"
	"github.com/nurpe/agro-contracts/internal/repository/testutil"
)

func TestListingRepositoryDeleteOwned(t *testing.T) {
	db := testutil.DB(t)
	repo := repository.NewListingRepository(db)
	ctx := context.Background()

	farmer := testutil.CreateUser(t, db, "farmer")
	item := testutil.CreateListing(t, db, farmer.ID, "Wheat")

	deleted, err := repo.DeleteOwned(ctx, item.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteOwned(ctx, item.ID, farmer.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetByID(ctx, item.ID)
	assert.True(t, repository.IsNotFound(err))
}

func TestListingRepositoryListAllIncludesOwner(t *testing.T) {
	db := testutil.DB(t)
	repo := repository.NewListingRepository(db)

	farmer := testutil.CreateUser(t, db, "ravi")
	testutil.CreateListing(t, db, farmer.ID, "Rice")

	items, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ravi", items[0].Username)
	assert.Equal(t, "Rice", items[0].Crop)
}
