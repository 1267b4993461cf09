package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxly/internal/domain"
	"taxly/internal/testutil"
)

func TestSubscriptionRepository_FindDueForRenewal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewSubscriptionRepository(db)

	due := testutil.NewUser(t, db)
	dueSub := testutil.NewSubscription(t, db, due.ID,
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))

	// not yet due
	future := testutil.NewUser(t, db)
	testutil.NewSubscription(t, db, future.ID)

	// due date passed but cancelled
	cancelled := testutil.NewUser(t, db)
	testutil.NewSubscription(t, db, cancelled.ID,
		testutil.WithStatus(domain.SubscriptionCancelled),
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))

	found, err := repo.FindDueForRenewal(time.Now())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, dueSub.ID, found[0].ID)
}

func TestSubscriptionRepository_FindExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewSubscriptionRepository(db)
	past := testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour))

	cancelled := testutil.NewUser(t, db)
	cancelledSub := testutil.NewSubscription(t, db, cancelled.ID,
		testutil.WithStatus(domain.SubscriptionCancelled), past)

	suspended := testutil.NewUser(t, db)
	suspendedSub := testutil.NewSubscription(t, db, suspended.ID,
		testutil.WithStatus(domain.SubscriptionSuspended), past)

	// active subscriptions never expire through this path
	active := testutil.NewUser(t, db)
	testutil.NewSubscription(t, db, active.ID, past)

	// cancelled but still inside its cycle
	inCycle := testutil.NewUser(t, db)
	testutil.NewSubscription(t, db, inCycle.ID, testutil.WithStatus(domain.SubscriptionCancelled))

	found, err := repo.FindExpired(time.Now())
	require.NoError(t, err)
	require.Len(t, found, 2)
	ids := []uint{found[0].ID, found[1].ID}
	assert.Contains(t, ids, cancelledSub.ID)
	assert.Contains(t, ids, suspendedSub.ID)
}
