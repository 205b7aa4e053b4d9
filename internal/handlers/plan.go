package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type PlanHandler struct {
	repo   repository.PlanRepository
	logger zerolog.Logger
}

func NewPlanHandler(db *sql.DB, logger zerolog.Logger) *PlanHandler {
	return &PlanHandler{repo: repository.NewPlanRepository(db), logger: logger}
}

// tierDefaults holds the monthly allowance each tier carries. Price is set
// per plan at creation since legacy agreements vary.
var tierDefaults = map[models.PlanTier]models.Tenths{
	models.PlanTierEssentials: models.TenthsFromHours(4),
	models.PlanTierDirector:   models.TenthsFromHours(10),
	models.PlanTierCOO:        models.TenthsFromHours(25),
}

type createPlanBody struct {
	Tier              string   `json:"tier"`
	MonthlyPriceCents int64    `json:"monthly_price_cents"`
	HoursIncluded     *float64 `json:"hours_included"`
}

// Create provisions a maintenance plan for a project. One plan per project;
// a second create conflicts.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]

	var body createPlanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	tier, ok := models.ParsePlanTier(body.Tier)
	if !ok {
		writeError(w, h.logger, apperr.Validation("unknown plan tier %q", body.Tier))
		return
	}
	if body.MonthlyPriceCents < 0 {
		writeError(w, h.logger, apperr.Validation("monthly_price_cents must not be negative"))
		return
	}

	included := tierDefaults[tier]
	if body.HoursIncluded != nil {
		if *body.HoursIncluded < 0 {
			writeError(w, h.logger, apperr.Validation("hours_included must not be negative"))
			return
		}
		included = models.TenthsFromHours(*body.HoursIncluded)
	}

	plan, err := h.repo.CreatePlan(r.Context(), models.MaintenancePlan{
		Tier:              tier,
		MonthlyPriceCents: body.MonthlyPriceCents,
		Status:            models.PlanStatusActive,
		HoursIncluded:     included,
		ProjectID:         projectID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.planView(plan))
}

func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, err := h.repo.GetPlanByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.planView(plan))
}

func (h *PlanHandler) GetByProject(w http.ResponseWriter, r *http.Request) {
	plan, err := h.repo.GetPlanByProject(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.planView(plan))
}

func (h *PlanHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.PlanStatusActive, models.PlanStatusPaused)
}

func (h *PlanHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.PlanStatusPaused, models.PlanStatusActive)
}

type cancelPlanBody struct {
	From models.PlanStatus `json:"from"`
}

// Cancel ends the plan from either ACTIVE or PAUSED. CANCELLED is terminal,
// a cancelled plan never comes back.
func (h *PlanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelPlanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.From != models.PlanStatusActive && body.From != models.PlanStatusPaused {
		writeError(w, h.logger, apperr.Validation("from must be ACTIVE or PAUSED"))
		return
	}
	h.transition(w, r, body.From, models.PlanStatusCancelled)
}

func (h *PlanHandler) transition(w http.ResponseWriter, r *http.Request, from, to models.PlanStatus) {
	plan, err := h.repo.TransitionStatus(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.planView(plan))
}

type createPackBody struct {
	PackType     string     `json:"pack_type"`
	Hours        float64    `json:"hours"`
	CostCents    int64      `json:"cost_cents"`
	ExpiresAt    *time.Time `json:"expires_at"`
	NeverExpires bool       `json:"never_expires"`
}

// CreatePack attaches a purchased hour pack to a plan. A pack either
// carries an expiry date or is marked never-expiring, not both and not
// neither.
func (h *PlanHandler) CreatePack(w http.ResponseWriter, r *http.Request) {
	var body createPackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.Hours <= 0 {
		writeError(w, h.logger, apperr.Validation("hours must be positive"))
		return
	}
	if body.CostCents < 0 {
		writeError(w, h.logger, apperr.Validation("cost_cents must not be negative"))
		return
	}
	if body.NeverExpires == (body.ExpiresAt != nil) {
		writeError(w, h.logger, apperr.Validation("exactly one of expires_at or never_expires must be set"))
		return
	}

	planID := mux.Vars(r)["id"]
	if _, err := h.repo.GetPlanByID(r.Context(), planID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	pack, err := h.repo.CreatePack(r.Context(), models.HourPack{
		PlanID:       planID,
		PackType:     body.PackType,
		Hours:        models.TenthsFromHours(body.Hours),
		CostCents:    body.CostCents,
		ExpiresAt:    body.ExpiresAt,
		NeverExpires: body.NeverExpires,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.packView(pack, time.Now().UTC()))
}

func (h *PlanHandler) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.repo.ListPacksByPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	now := time.Now().UTC()
	out := make([]packView, 0, len(packs))
	for _, p := range packs {
		out = append(out, h.packView(p, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// Usage reports the plan's allowance consumption plus the state of every
// pack, all derived at read time.
func (h *PlanHandler) Usage(w http.ResponseWriter, r *http.Request) {
	plan, err := h.repo.GetPlanByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	packs, err := h.repo.ListPacksByPlan(r.Context(), plan.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := time.Now().UTC()
	packViews := make([]packView, 0, len(packs))
	var packHoursRemaining models.Tenths
	for _, p := range packs {
		if p.Usable(now) {
			packHoursRemaining += p.HoursRemaining
		}
		packViews = append(packViews, h.packView(p, now))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plan":                 h.planView(plan),
		"packs":                packViews,
		"pack_hours_remaining": packHoursRemaining.Hours(),
	})
}

// planView exposes hours as decimal hours while the store keeps tenths.
type planView struct {
	models.MaintenancePlan
	HoursIncluded float64 `json:"hours_included"`
	HoursUsed     float64 `json:"hours_used"`
	OverAllowance bool    `json:"over_allowance"`
	UsageRatio    float64 `json:"usage_ratio"`
}

func (h *PlanHandler) planView(plan models.MaintenancePlan) planView {
	return planView{
		MaintenancePlan: plan,
		HoursIncluded:   plan.HoursIncluded.Hours(),
		HoursUsed:       plan.HoursUsed.Hours(),
		OverAllowance:   plan.OverAllowance(),
		UsageRatio:      plan.UsageRatio(),
	}
}

type packView struct {
	models.HourPack
	Hours          float64 `json:"hours"`
	HoursRemaining float64 `json:"hours_remaining"`
	IsExpired      bool    `json:"is_expired"`
	IsExpiringSoon bool    `json:"is_expiring_soon"`
	UsageRatio     float64 `json:"usage_ratio"`
}

func (h *PlanHandler) packView(pack models.HourPack, now time.Time) packView {
	return packView{
		HourPack:       pack,
		Hours:          pack.Hours.Hours(),
		HoursRemaining: pack.HoursRemaining.Hours(),
		IsExpired:      pack.IsExpired(now),
		IsExpiringSoon: pack.IsExpiringSoon(now),
		UsageRatio:     pack.UsageRatio(),
	}
}
