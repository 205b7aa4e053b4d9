package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHourPackExpiringSoon(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	in3d := now.Add(3 * 24 * time.Hour)

	pack := HourPack{
		Hours:          TenthsFromHours(10),
		HoursRemaining: TenthsFromHours(10),
		ExpiresAt:      &in3d,
		NeverExpires:   false,
	}
	assert.True(t, pack.IsExpiringSoon(now))
	assert.False(t, pack.IsExpired(now))
	assert.True(t, pack.Usable(now))
}

func TestHourPackExpiryWindows(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	in10d := now.Add(10 * 24 * time.Hour)

	expired := HourPack{ExpiresAt: &past, HoursRemaining: 5}
	assert.True(t, expired.IsExpired(now))
	assert.False(t, expired.IsExpiringSoon(now))
	assert.False(t, expired.Usable(now))

	far := HourPack{ExpiresAt: &in10d, HoursRemaining: 5}
	assert.False(t, far.IsExpired(now))
	assert.False(t, far.IsExpiringSoon(now))

	eternal := HourPack{NeverExpires: true, HoursRemaining: 5}
	assert.False(t, eternal.IsExpired(now))
	assert.False(t, eternal.IsExpiringSoon(now))
	assert.True(t, eternal.Usable(now))
}

func TestPlanOverAllowance(t *testing.T) {
	plan := MaintenancePlan{HoursIncluded: TenthsFromHours(10), HoursUsed: TenthsFromHours(9.5)}
	assert.False(t, plan.OverAllowance())

	plan.HoursUsed = TenthsFromHours(10)
	assert.False(t, plan.OverAllowance())

	plan.HoursUsed = TenthsFromHours(10.1)
	assert.True(t, plan.OverAllowance())
}

func TestUsageRatioClamped(t *testing.T) {
	plan := MaintenancePlan{HoursIncluded: TenthsFromHours(10), HoursUsed: TenthsFromHours(25)}
	assert.Equal(t, 1.0, plan.UsageRatio())
	// The clamp is display-only; the stored value keeps the overage.
	assert.Equal(t, TenthsFromHours(25), plan.HoursUsed)

	plan = MaintenancePlan{HoursIncluded: 0, HoursUsed: 5}
	assert.Equal(t, 0.0, plan.UsageRatio())

	pack := HourPack{Hours: TenthsFromHours(10), HoursRemaining: TenthsFromHours(4)}
	assert.InDelta(t, 0.4, pack.UsageRatio(), 1e-9)
}

func TestTenthsRoundTrip(t *testing.T) {
	assert.Equal(t, Tenths(25), TenthsFromHours(2.5))
	assert.Equal(t, 2.5, Tenths(25).Hours())
	assert.Equal(t, Tenths(1), TenthsFromHours(0.1))
	// Repeated conversion stays exact; no drift across many small debits.
	total := Tenths(0)
	for i := 0; i < 1000; i++ {
		total += TenthsFromHours(0.1)
	}
	assert.Equal(t, TenthsFromHours(100), total)
}

func TestParsePlanTier(t *testing.T) {
	for input, want := range map[string]PlanTier{
		"essentials": PlanTierEssentials,
		"basic":      PlanTierEssentials,
		"Director":   PlanTierDirector,
		"standard":   PlanTierDirector,
		"COO":        PlanTierCOO,
		"premium":    PlanTierCOO,
	} {
		tier, ok := ParsePlanTier(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, tier)
	}

	_, ok := ParsePlanTier("platinum")
	assert.False(t, ok)
}
