package models

import (
	"math"
	"strings"
	"time"
)

// Tenths is a span of support hours in integer tenths of an hour. Hour
// accounting follows the same minor-unit discipline as invoice cents so that
// repeated debits never accumulate floating-point drift.
type Tenths int64

func (t Tenths) Hours() float64 { return float64(t) / 10 }

func TenthsFromHours(h float64) Tenths {
	return Tenths(math.Round(h * 10))
}

type PlanTier string

const (
	PlanTierEssentials PlanTier = "essentials"
	PlanTierDirector   PlanTier = "director"
	PlanTierCOO        PlanTier = "coo"
)

// ParsePlanTier accepts both the branded tier names and their generic
// aliases used by older clients.
func ParsePlanTier(s string) (PlanTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "essentials", "basic":
		return PlanTierEssentials, true
	case "director", "standard":
		return PlanTierDirector, true
	case "coo", "premium":
		return PlanTierCOO, true
	}
	return "", false
}

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "ACTIVE"
	PlanStatusPaused    PlanStatus = "PAUSED"
	PlanStatusCancelled PlanStatus = "CANCELLED"
)

type MaintenancePlan struct {
	ID                string     `json:"id" db:"id"`
	Tier              PlanTier   `json:"tier" db:"tier"`
	MonthlyPriceCents int64      `json:"monthly_price_cents" db:"monthly_price_cents"`
	Status            PlanStatus `json:"status" db:"status"`
	HoursIncluded     Tenths     `json:"-" db:"hours_included"`
	HoursUsed         Tenths     `json:"-" db:"hours_used"`
	ProjectID         string     `json:"project_id" db:"project_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// OverAllowance reports whether usage has exceeded the included hours.
// Overage is allowed; it is surfaced, never clamped away.
func (p MaintenancePlan) OverAllowance() bool {
	return p.HoursUsed > p.HoursIncluded
}

// UsageRatio is hoursUsed/hoursIncluded clamped to [0,1] for display. The
// clamp must never feed back into stored values.
func (p MaintenancePlan) UsageRatio() float64 {
	if p.HoursIncluded <= 0 {
		return 0
	}
	ratio := float64(p.HoursUsed) / float64(p.HoursIncluded)
	if ratio > 1 {
		return 1
	}
	return ratio
}

type HourPack struct {
	ID             string     `json:"id" db:"id"`
	PlanID         string     `json:"plan_id" db:"plan_id"`
	PackType       string     `json:"pack_type" db:"pack_type"`
	Hours          Tenths     `json:"-" db:"hours"`
	HoursRemaining Tenths     `json:"-" db:"hours_remaining"`
	CostCents      int64      `json:"cost_cents" db:"cost_cents"`
	PurchasedAt    time.Time  `json:"purchased_at" db:"purchased_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	NeverExpires   bool       `json:"never_expires" db:"never_expires"`
}

// ExpiringSoonWindow is the look-ahead inside which a pack counts as
// expiring soon.
const ExpiringSoonWindow = 7 * 24 * time.Hour

func (p HourPack) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

func (p HourPack) IsExpiringSoon(now time.Time) bool {
	if p.NeverExpires || p.ExpiresAt == nil || p.IsExpired(now) {
		return false
	}
	return p.ExpiresAt.Before(now.Add(ExpiringSoonWindow))
}

// Usable reports whether the pack can still be debited.
func (p HourPack) Usable(now time.Time) bool {
	return p.HoursRemaining > 0 && !p.IsExpired(now)
}

// UsageRatio is hoursRemaining/hours clamped to [0,1], display only.
func (p HourPack) UsageRatio() float64 {
	if p.Hours <= 0 {
		return 0
	}
	ratio := float64(p.HoursRemaining) / float64(p.Hours)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
