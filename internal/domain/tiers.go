package domain

import "time"

// Tier is a subscription plan. Price is KRW; nil means contact-sales.
// MonthlyCredits nil means unlimited.
type Tier struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Price          *int   `json:"price"`
	MonthlyCredits *int   `json:"monthly_credits"`
	BillingCycle   string `json:"billing_cycle"`
	Popular        bool   `json:"popular"`
	IsCustom       bool   `json:"is_custom"`
}

// Quota returns the monthly credit quota, 0 for free/unlimited plans.
func (t Tier) Quota() int {
	if t.MonthlyCredits == nil {
		return 0
	}
	return *t.MonthlyCredits
}

// PriceOrZero returns the plan price, 0 for contact-sales plans.
func (t Tier) PriceOrZero() int {
	if t.Price == nil {
		return 0
	}
	return *t.Price
}

// TierFree is the key of the default, zero-credit plan.
const TierFree = "free"

const (
	basicMonthlyPrice = 29000
	proMonthlyPrice   = 99000
)

// YearlyPrice derives the yearly plan price from the monthly one: 12 months
// with a 10% discount. Kept as a formula so the discount cannot drift.
func YearlyPrice(monthly int) int {
	return monthly * 12 * 9 / 10
}

func intp(v int) *int { return &v }

var tiers = map[string]Tier{
	"free": {
		Key: "free", Name: "Free",
		Price: intp(0), MonthlyCredits: intp(0),
		BillingCycle: CycleMonthly,
	},
	"basic": {
		Key: "basic", Name: "Basic",
		Price: intp(basicMonthlyPrice), MonthlyCredits: intp(100),
		BillingCycle: CycleMonthly,
	},
	"pro": {
		Key: "pro", Name: "Pro",
		Price: intp(proMonthlyPrice), MonthlyCredits: intp(500),
		BillingCycle: CycleMonthly, Popular: true,
	},
	"basic_yearly": {
		Key: "basic_yearly", Name: "Basic (Yearly)",
		Price: intp(YearlyPrice(basicMonthlyPrice)), MonthlyCredits: intp(100),
		BillingCycle: CycleYearly,
	},
	"pro_yearly": {
		Key: "pro_yearly", Name: "Pro (Yearly)",
		Price: intp(YearlyPrice(proMonthlyPrice)), MonthlyCredits: intp(500),
		BillingCycle: CycleYearly, Popular: true,
	},
	"enterprise": {
		Key: "enterprise", Name: "Enterprise",
		Price: nil, MonthlyCredits: nil,
		BillingCycle: CycleMonthly, IsCustom: true,
	},
	// Lets operators watch a full billing cycle in an hour instead of a month.
	"test_hourly": {
		Key: "test_hourly", Name: "Hourly Test",
		Price: intp(1000), MonthlyCredits: intp(10),
		BillingCycle: CycleHourly,
	},
}

// TierByKey looks up a tier definition.
func TierByKey(key string) (Tier, bool) {
	t, ok := tiers[key]
	return t, ok
}

// Tiers returns all plans in a stable order for the public catalog.
func Tiers() []Tier {
	keys := []string{"free", "basic", "pro", "basic_yearly", "pro_yearly", "enterprise"}
	out := make([]Tier, 0, len(keys))
	for _, k := range keys {
		out = append(out, tiers[k])
	}
	return out
}

// CycleEnd computes the end of a billing cycle that starts at start.
func CycleEnd(start time.Time, cycle string) time.Time {
	switch cycle {
	case CycleYearly:
		return start.AddDate(1, 0, 0)
	case CycleHourly:
		return start.Add(time.Hour)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// CreditPack is a one-time credit purchase option.
type CreditPack struct {
	ID      string `json:"id"`
	Credits int    `json:"credits"`
	Bonus   int    `json:"bonus"`
	Price   int    `json:"price"`
}

var creditPacks = []CreditPack{
	{ID: "pack_50", Credits: 50, Bonus: 0, Price: 15000},
	{ID: "pack_100", Credits: 100, Bonus: 10, Price: 29000},
	{ID: "pack_300", Credits: 300, Bonus: 50, Price: 79000},
	{ID: "pack_1000", Credits: 1000, Bonus: 200, Price: 249000},
}

// CreditPacks returns the purchasable packs.
func CreditPacks() []CreditPack {
	return creditPacks
}

// CreditPackByID looks up a pack.
func CreditPackByID(id string) (CreditPack, bool) {
	for _, p := range creditPacks {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPack{}, false
}
