package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearlyPrice(t *testing.T) {
	// 12 months minus the 10% discount
	assert.Equal(t, 313200, YearlyPrice(29000))
	assert.Equal(t, 1069200, YearlyPrice(99000))
}

func TestTierByKey(t *testing.T) {
	pro, ok := TierByKey("pro")
	require.True(t, ok)
	assert.Equal(t, 99000, pro.PriceOrZero())
	assert.Equal(t, 500, pro.Quota())

	_, ok = TierByKey("platinum")
	assert.False(t, ok)
}

func TestEnterpriseTierIsCustomAndUnlimited(t *testing.T) {
	ent, ok := TierByKey("enterprise")
	require.True(t, ok)
	assert.True(t, ent.IsCustom)
	assert.Nil(t, ent.Price)
	assert.Nil(t, ent.MonthlyCredits)
	assert.Equal(t, 0, ent.PriceOrZero())
	assert.Equal(t, 0, ent.Quota())
}

func TestTiersCatalogExcludesOpsOnlyTier(t *testing.T) {
	for _, tier := range Tiers() {
		assert.NotEqual(t, "test_hourly", tier.Key)
	}
}

func TestCycleEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, start.AddDate(0, 1, 0), CycleEnd(start, CycleMonthly))
	assert.Equal(t, start.AddDate(1, 0, 0), CycleEnd(start, CycleYearly))
	assert.Equal(t, start.Add(time.Hour), CycleEnd(start, CycleHourly))
}

func TestCreditPackByID(t *testing.T) {
	pack, ok := CreditPackByID("pack_100")
	require.True(t, ok)
	assert.Equal(t, 100, pack.Credits)
	assert.Equal(t, 10, pack.Bonus)
	assert.Equal(t, 29000, pack.Price)

	_, ok = CreditPackByID("pack_nope")
	assert.False(t, ok)
}
