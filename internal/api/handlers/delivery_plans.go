package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/tenant"
	"gorm.io/gorm"
)

const maxMilestones = 100

type DeliveryPlanHandler struct {
	db *gorm.DB
}

func NewDeliveryPlanHandler(db *gorm.DB) *DeliveryPlanHandler {
	return &DeliveryPlanHandler{db: db}
}

type MilestoneRequest struct {
	ID    string  `json:"id,omitempty"`
	Title string  `json:"title"`
	Date  *string `json:"date,omitempty"`
	Done  bool    `json:"done"`
}

type CreateDeliveryPlanRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	StartDate   *string            `json:"startDate,omitempty"`
	EndDate     *string            `json:"endDate,omitempty"`
	SprintIDs   []string           `json:"sprintIds,omitempty"`
	Milestones  []MilestoneRequest `json:"milestones,omitempty"`
}

func (r CreateDeliveryPlanRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 200 {
		errors["name"] = "Name must be at most 200 characters"
	}
	if len(r.Description) > 5000 {
		errors["description"] = "Description must be at most 5000 characters"
	}
	validateDateRange(errors, r.StartDate, r.EndDate)
	validateSprintIDs(errors, r.SprintIDs)
	validateMilestones(errors, r.Milestones)
	return errors
}

type UpdateDeliveryPlanRequest struct {
	Name        *string             `json:"name,omitempty"`
	Description *string             `json:"description,omitempty"`
	StartDate   Optional[string]    `json:"startDate"`
	EndDate     Optional[string]    `json:"endDate"`
	SprintIDs   *[]string           `json:"sprintIds,omitempty"`
	Milestones  *[]MilestoneRequest `json:"milestones,omitempty"`
}

func (r UpdateDeliveryPlanRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil {
		if strings.TrimSpace(*r.Name) == "" {
			errors["name"] = "Name cannot be empty"
		} else if len(*r.Name) > 200 {
			errors["name"] = "Name must be at most 200 characters"
		}
	}
	if r.Description != nil && len(*r.Description) > 5000 {
		errors["description"] = "Description must be at most 5000 characters"
	}
	if _, ok := parseOptionalDate(r.StartDate.Value); !ok {
		errors["startDate"] = "Invalid date"
	}
	if _, ok := parseOptionalDate(r.EndDate.Value); !ok {
		errors["endDate"] = "Invalid date"
	}
	if r.SprintIDs != nil {
		validateSprintIDs(errors, *r.SprintIDs)
	}
	if r.Milestones != nil {
		validateMilestones(errors, *r.Milestones)
	}
	return errors
}

func validateSprintIDs(errors map[string]string, ids []string) {
	for _, id := range ids {
		if !validation.IsValidUUID(id) {
			errors["sprintIds"] = "Sprint IDs must be valid IDs"
			return
		}
	}
}

func validateMilestones(errors map[string]string, milestones []MilestoneRequest) {
	if len(milestones) > maxMilestones {
		errors["milestones"] = "Too many milestones"
		return
	}
	for _, m := range milestones {
		if strings.TrimSpace(m.Title) == "" || len(m.Title) > 200 {
			errors["milestones"] = "Milestone titles must be 1-200 characters"
			return
		}
		if _, ok := parseOptionalDate(m.Date); !ok {
			errors["milestones"] = "Invalid milestone date"
			return
		}
	}
}

// buildMilestones keeps the ids of milestones that already exist.
func buildMilestones(req []MilestoneRequest, existing []models.Milestone) []models.Milestone {
	known := make(map[string]bool, len(existing))
	for _, m := range existing {
		known[m.ID] = true
	}

	out := make([]models.Milestone, 0, len(req))
	for _, m := range req {
		id := m.ID
		if !known[id] {
			id = uuid.NewString()
		}
		date, _ := parseOptionalDate(m.Date)
		out = append(out, models.Milestone{
			ID:    id,
			Title: validation.CleanText(m.Title, 200),
			Date:  date,
			Done:  m.Done,
		})
	}
	return out
}

// projectSprints parses ids and checks each names a sprint of the project.
func (h *DeliveryPlanHandler) projectSprints(ctx context.Context, scope *tenant.Scope, raw []string) ([]uuid.UUID, bool, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, s := range raw {
		id := uuid.MustParse(s)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ids, true, nil
	}

	var count int64
	if err := scope.Where(h.db.WithContext(ctx)).Model(&models.Sprint{}).
		Where("id IN ?", ids).
		Count(&count).Error; err != nil {
		return nil, false, err
	}
	return ids, count == int64(len(ids)), nil
}

func (h *DeliveryPlanHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	pagination := paginationFromQuery(r)

	query := scope.Where(h.db.WithContext(r.Context())).Model(&models.DeliveryPlan{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count delivery plans")
		return
	}

	var plans []models.DeliveryPlan
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&plans).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list delivery plans")
		return
	}
	for i := range plans {
		preparePlan(&plans[i])
	}

	writeJSON(w, http.StatusOK, dto.Paginate(plans, total, pagination))
}

func preparePlan(p *models.DeliveryPlan) *models.DeliveryPlan {
	if p.SprintIDs == nil {
		p.SprintIDs = []uuid.UUID{}
	}
	if p.Milestones == nil {
		p.Milestones = []models.Milestone{}
	}
	return p
}

func (h *DeliveryPlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req CreateDeliveryPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	sprintIDs, found, err := h.projectSprints(r.Context(), scope, req.SprintIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create delivery plan")
		return
	}
	if !found {
		writeValidation(w, map[string]string{"sprintIds": "Sprint not found"})
		return
	}

	plan := models.DeliveryPlan{
		ProjectID:   scope.ProjectID(),
		Name:        validation.CleanText(req.Name, 200),
		Description: req.Description,
		SprintIDs:   sprintIDs,
		Milestones:  buildMilestones(req.Milestones, nil),
		CreatedBy:   scope.CallerID(),
	}
	plan.StartDate, _ = parseOptionalDate(req.StartDate)
	plan.EndDate, _ = parseOptionalDate(req.EndDate)

	if err := h.db.WithContext(r.Context()).Create(&plan).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create delivery plan")
		return
	}

	writeJSON(w, http.StatusCreated, preparePlan(&plan))
}

func (h *DeliveryPlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "planId", "delivery plan")
	if !ok {
		return
	}

	var plan models.DeliveryPlan
	if err := findScoped(r.Context(), h.db, scope, &plan, id); err != nil {
		writeLookupError(w, err, "Delivery plan")
		return
	}

	writeJSON(w, http.StatusOK, preparePlan(&plan))
}

func (h *DeliveryPlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "planId", "delivery plan")
	if !ok {
		return
	}

	var req UpdateDeliveryPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	var plan models.DeliveryPlan
	if err := findScoped(r.Context(), h.db, scope, &plan, id); err != nil {
		writeLookupError(w, err, "Delivery plan")
		return
	}

	if req.Name != nil {
		plan.Name = validation.CleanText(*req.Name, 200)
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.StartDate.Set {
		plan.StartDate, _ = parseOptionalDate(req.StartDate.Value)
	}
	if req.EndDate.Set {
		plan.EndDate, _ = parseOptionalDate(req.EndDate.Value)
	}
	if plan.StartDate != nil && plan.EndDate != nil && plan.EndDate.Before(*plan.StartDate) {
		writeValidation(w, map[string]string{"endDate": "End date must not be before start date"})
		return
	}
	if req.SprintIDs != nil {
		ids, found, err := h.projectSprints(r.Context(), scope, *req.SprintIDs)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update delivery plan")
			return
		}
		if !found {
			writeValidation(w, map[string]string{"sprintIds": "Sprint not found"})
			return
		}
		plan.SprintIDs = ids
	}
	if req.Milestones != nil {
		plan.Milestones = buildMilestones(*req.Milestones, plan.Milestones)
	}

	if err := scope.Where(h.db.WithContext(r.Context())).Model(&plan).
		Select("name", "description", "start_date", "end_date", "sprint_ids", "milestones").
		Updates(&plan).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update delivery plan")
		return
	}

	writeJSON(w, http.StatusOK, preparePlan(&plan))
}

func (h *DeliveryPlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "planId", "delivery plan")
	if !ok {
		return
	}

	res := scope.Where(h.db.WithContext(r.Context())).Delete(&models.DeliveryPlan{}, "id = ?", id)
	if res.Error != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete delivery plan")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "Delivery plan not found")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Delivery plan deleted"})
}
