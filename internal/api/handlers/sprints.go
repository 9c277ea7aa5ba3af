package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/pkg/util"
	"gorm.io/gorm"
)

type SprintHandler struct {
	db *gorm.DB
}

func NewSprintHandler(db *gorm.DB) *SprintHandler {
	return &SprintHandler{db: db}
}

type CreateSprintRequest struct {
	Name      string  `json:"name"`
	Goal      string  `json:"goal,omitempty"`
	StartDate *string `json:"startDate,omitempty"`
	EndDate   *string `json:"endDate,omitempty"`
	State     string  `json:"state,omitempty"`
}

func (r CreateSprintRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 200 {
		errors["name"] = "Name must be at most 200 characters"
	}
	if len(r.Goal) > 2000 {
		errors["goal"] = "Goal must be at most 2000 characters"
	}
	if r.State != "" && !models.SprintState(r.State).Valid() {
		errors["state"] = "State must be planned, active or completed"
	}
	validateDateRange(errors, r.StartDate, r.EndDate)
	return errors
}

// UpdateSprintRequest allows any state change; only the value is checked.
type UpdateSprintRequest struct {
	Name      *string          `json:"name,omitempty"`
	Goal      *string          `json:"goal,omitempty"`
	StartDate Optional[string] `json:"startDate"`
	EndDate   Optional[string] `json:"endDate"`
	State     *string          `json:"state,omitempty"`
}

func (r UpdateSprintRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil {
		if strings.TrimSpace(*r.Name) == "" {
			errors["name"] = "Name cannot be empty"
		} else if len(*r.Name) > 200 {
			errors["name"] = "Name must be at most 200 characters"
		}
	}
	if r.Goal != nil && len(*r.Goal) > 2000 {
		errors["goal"] = "Goal must be at most 2000 characters"
	}
	if r.State != nil && !models.SprintState(*r.State).Valid() {
		errors["state"] = "State must be planned, active or completed"
	}
	if _, ok := parseOptionalDate(r.StartDate.Value); !ok {
		errors["startDate"] = "Invalid date"
	}
	if _, ok := parseOptionalDate(r.EndDate.Value); !ok {
		errors["endDate"] = "Invalid date"
	}
	return errors
}

// validateDateRange checks both dates parse and that end is not before
// start.
func validateDateRange(errors map[string]string, start, end *string) {
	s, ok := parseOptionalDate(start)
	if !ok {
		errors["startDate"] = "Invalid date"
	}
	e, ok := parseOptionalDate(end)
	if !ok {
		errors["endDate"] = "Invalid date"
	}
	if s != nil && e != nil && e.Before(*s) {
		errors["endDate"] = "End date must not be before start date"
	}
}

type SprintResponse struct {
	models.Sprint
	Week string `json:"week,omitempty"` // ISO week of the start date
}

func sprintToResponse(s models.Sprint) SprintResponse {
	resp := SprintResponse{Sprint: s}
	if s.StartDate != nil {
		resp.Week = util.ISOWeekLabel(*s.StartDate)
	}
	return resp
}

// List handles GET /projects/{projectId}/sprints. "state" filters by state,
// "week" (YYYY-Www) keeps sprints whose dates overlap that ISO week.
func (h *SprintHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	pagination := paginationFromQuery(r)
	q := r.URL.Query()

	query := scope.Where(h.db.WithContext(r.Context())).Model(&models.Sprint{})
	if state := q.Get("state"); state != "" {
		if !models.SprintState(state).Valid() {
			writeError(w, http.StatusBadRequest, "Invalid state")
			return
		}
		query = query.Where("state = ?", state)
	}
	query = query.Order("start_date ASC").Order("created_at ASC")

	week := q.Get("week")
	if week == "" {
		var total int64
		if err := query.Count(&total).Error; err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count sprints")
			return
		}
		var sprints []models.Sprint
		if err := query.Offset(pagination.Offset()).Limit(pagination.Limit).Find(&sprints).Error; err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sprints")
			return
		}
		writeJSON(w, http.StatusOK, dto.Paginate(sprintResponses(sprints), total, pagination))
		return
	}

	from, to, err := util.ParseISOWeek(week)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week, expected YYYY-Www")
		return
	}

	var all []models.Sprint
	if err := query.Find(&all).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sprints")
		return
	}
	matched := make([]models.Sprint, 0, len(all))
	for i := range all {
		if all[i].Overlaps(from, to) {
			matched = append(matched, all[i])
		}
	}

	total := int64(len(matched))
	start := min(pagination.Offset(), len(matched))
	end := min(start+pagination.Limit, len(matched))
	writeJSON(w, http.StatusOK, dto.Paginate(sprintResponses(matched[start:end]), total, pagination))
}

func sprintResponses(sprints []models.Sprint) []SprintResponse {
	out := make([]SprintResponse, len(sprints))
	for i, s := range sprints {
		out[i] = sprintToResponse(s)
	}
	return out
}

// Create handles POST /projects/{projectId}/sprints.
func (h *SprintHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req CreateSprintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	sprint := models.Sprint{
		ProjectID: scope.ProjectID(),
		Name:      validation.CleanText(req.Name, 200),
		Goal:      req.Goal,
		State:     models.SprintState(req.State),
	}
	if sprint.State == "" {
		sprint.State = models.SprintStatePlanned
	}
	sprint.StartDate, _ = parseOptionalDate(req.StartDate)
	sprint.EndDate, _ = parseOptionalDate(req.EndDate)

	if err := h.db.WithContext(r.Context()).Create(&sprint).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create sprint")
		return
	}

	writeJSON(w, http.StatusCreated, sprintToResponse(sprint))
}

// Get handles GET /projects/{projectId}/sprints/{sprintId}.
func (h *SprintHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "sprintId", "sprint")
	if !ok {
		return
	}

	var sprint models.Sprint
	if err := findScoped(r.Context(), h.db, scope, &sprint, id); err != nil {
		writeLookupError(w, err, "Sprint")
		return
	}

	writeJSON(w, http.StatusOK, sprintToResponse(sprint))
}

// Update handles PATCH /projects/{projectId}/sprints/{sprintId}.
func (h *SprintHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "sprintId", "sprint")
	if !ok {
		return
	}

	var req UpdateSprintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	var sprint models.Sprint
	if err := findScoped(r.Context(), h.db, scope, &sprint, id); err != nil {
		writeLookupError(w, err, "Sprint")
		return
	}

	if req.Name != nil {
		sprint.Name = validation.CleanText(*req.Name, 200)
	}
	if req.Goal != nil {
		sprint.Goal = *req.Goal
	}
	if req.State != nil {
		sprint.State = models.SprintState(*req.State)
	}
	if req.StartDate.Set {
		sprint.StartDate, _ = parseOptionalDate(req.StartDate.Value)
	}
	if req.EndDate.Set {
		sprint.EndDate, _ = parseOptionalDate(req.EndDate.Value)
	}
	if sprint.StartDate != nil && sprint.EndDate != nil && sprint.EndDate.Before(*sprint.StartDate) {
		writeValidation(w, map[string]string{"endDate": "End date must not be before start date"})
		return
	}

	if err := scope.Where(h.db.WithContext(r.Context())).Model(&sprint).
		Select("name", "goal", "state", "start_date", "end_date").
		Updates(&sprint).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update sprint")
		return
	}

	writeJSON(w, http.StatusOK, sprintToResponse(sprint))
}

// Delete handles DELETE /projects/{projectId}/sprints/{sprintId}. Items in
// the sprint go back to the backlog and delivery plans drop the reference.
func (h *SprintHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "sprintId", "sprint")
	if !ok {
		return
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		res := scope.Where(tx).Delete(&models.Sprint{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := scope.Where(tx).Model(&models.WorkItem{}).
			Where("sprint_id = ?", id).
			Update("sprint_id", nil).Error; err != nil {
			return err
		}

		var plans []models.DeliveryPlan
		if err := scope.Where(tx).Find(&plans).Error; err != nil {
			return err
		}
		for i := range plans {
			kept, changed := withoutID(plans[i].SprintIDs, id)
			if !changed {
				continue
			}
			plans[i].SprintIDs = kept
			if err := tx.Model(&plans[i]).Select("sprint_ids").Updates(&plans[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeLookupError(w, err, "Sprint")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Sprint deleted"})
}

func withoutID(ids []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out, len(out) != len(ids)
}

