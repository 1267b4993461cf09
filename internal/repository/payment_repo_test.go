package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxly/internal/domain"
	"taxly/internal/testutil"
)

func TestPaymentRepository_MarkPaid_WinsOnlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPaymentRepository(db)
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID)

	won, err := repo.MarkPaid(pending.ID, PaidFields{TID: "tid-1", PayMethod: "card"})
	require.NoError(t, err)
	assert.True(t, won)

	// the second transition matches zero rows
	won, err = repo.MarkPaid(pending.ID, PaidFields{TID: "tid-2", PayMethod: "card"})
	require.NoError(t, err)
	assert.False(t, won)

	reloaded, err := repo.GetByID(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, reloaded.Status)
	assert.Equal(t, "tid-1", reloaded.TID)
	require.NotNil(t, reloaded.PaidAt)
}

func TestPaymentRepository_GetByOrderID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPaymentRepository(db)
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID)

	found, err := repo.GetByOrderID(pending.OrderID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)

	_, err = repo.GetByOrderID("CREDIT_0_missing")
	assert.Error(t, err)
}

func TestPaymentRepository_ListByUser_FiltersByStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPaymentRepository(db)
	user := testutil.NewUser(t, db)
	testutil.NewPayment(t, db, user.ID)
	testutil.NewPayment(t, db, user.ID, testutil.WithPaymentStatus(domain.PaymentPaid))

	rows, total, err := repo.ListByUser(user.ID, 20, 0, domain.PaymentPaid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.PaymentPaid, rows[0].Status)
}
