package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/pkg/crypto"
	"gorm.io/gorm"
)

// SecretMask replaces secret variable values in every response.
const SecretMask = "********"

const (
	maxStages    = 50
	maxCommands  = 100
	maxVariables = 100
)

var variableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

type PipelineHandler struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewPipelineHandler(db *gorm.DB, encryptor *crypto.Encryptor) *PipelineHandler {
	return &PipelineHandler{
		db:        db,
		encryptor: encryptor,
	}
}

type StageRequest struct {
	Name     string   `json:"name"`
	Order    *int     `json:"order,omitempty"`
	Commands []string `json:"commands"`
}

type VariableRequest struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
}

type CreatePipelineRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Repository  string            `json:"repository,omitempty"`
	Branch      string            `json:"branch,omitempty"`
	Stages      []StageRequest    `json:"stages,omitempty"`
	Variables   []VariableRequest `json:"variables,omitempty"`
}

func (r CreatePipelineRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 200 {
		errors["name"] = "Name must be at most 200 characters"
	}
	if len(r.Description) > 5000 {
		errors["description"] = "Description must be at most 5000 characters"
	}
	if r.Repository != "" && !validation.IsValidRepository(r.Repository) {
		errors["repository"] = "Invalid repository URL"
	}
	if r.Branch != "" && !validation.IsValidBranch(r.Branch) {
		errors["branch"] = "Invalid branch name"
	}
	validateStages(errors, r.Stages)
	validateVariables(errors, r.Variables)
	return errors
}

// UpdatePipelineRequest replaces stages and variables when they are sent.
// A secret variable sent with an empty or masked value keeps its stored value.
type UpdatePipelineRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Repository  *string            `json:"repository,omitempty"`
	Branch      *string            `json:"branch,omitempty"`
	Status      *string            `json:"status,omitempty"`
	Stages      *[]StageRequest    `json:"stages,omitempty"`
	Variables   *[]VariableRequest `json:"variables,omitempty"`
}

func (r UpdatePipelineRequest) Validate() map[string]string {
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
	if r.Repository != nil && *r.Repository != "" && !validation.IsValidRepository(*r.Repository) {
		errors["repository"] = "Invalid repository URL"
	}
	if r.Branch != nil && !validation.IsValidBranch(*r.Branch) {
		errors["branch"] = "Invalid branch name"
	}
	if r.Status != nil && !models.PipelineStatus(*r.Status).Valid() {
		errors["status"] = "Status must be idle, running, succeeded or failed"
	}
	if r.Stages != nil {
		validateStages(errors, *r.Stages)
	}
	if r.Variables != nil {
		validateVariables(errors, *r.Variables)
	}
	return errors
}

func validateStages(errors map[string]string, stages []StageRequest) {
	if len(stages) > maxStages {
		errors["stages"] = "Too many stages"
		return
	}
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" || len(s.Name) > 100 {
			errors["stages"] = "Stage names must be 1-100 characters"
			return
		}
		if len(s.Commands) > maxCommands {
			errors["stages"] = "Too many commands in stage " + s.Name
			return
		}
	}
}

func validateVariables(errors map[string]string, variables []VariableRequest) {
	if len(variables) > maxVariables {
		errors["variables"] = "Too many variables"
		return
	}
	seen := make(map[string]bool, len(variables))
	for _, v := range variables {
		if !variableNameRegex.MatchString(v.Name) {
			errors["variables"] = "Variable names must be letters, digits and underscores"
			return
		}
		if seen[v.Name] {
			errors["variables"] = "Duplicate variable " + v.Name
			return
		}
		seen[v.Name] = true
		if len(v.Value) > 10000 {
			errors["variables"] = "Variable values must be at most 10000 characters"
			return
		}
	}
}

func buildStages(req []StageRequest) []models.PipelineStage {
	stages := make([]models.PipelineStage, len(req))
	for i, s := range req {
		order := i
		if s.Order != nil {
			order = *s.Order
		}
		commands := make([]string, 0, len(s.Commands))
		for _, c := range s.Commands {
			if c = strings.TrimSpace(c); c != "" {
				commands = append(commands, c)
			}
		}
		stages[i] = models.PipelineStage{
			Name:     validation.CleanText(s.Name, 100),
			Order:    order,
			Commands: commands,
		}
	}
	return stages
}

// buildVariables seals secret values. existing supplies the stored value for
// secrets sent back masked or empty.
func (h *PipelineHandler) buildVariables(req []VariableRequest, existing []models.PipelineVariable) ([]models.PipelineVariable, map[string]string, error) {
	stored := make(map[string]models.PipelineVariable, len(existing))
	for _, v := range existing {
		stored[v.Name] = v
	}

	variables := make([]models.PipelineVariable, 0, len(req))
	for _, v := range req {
		if !v.Secret {
			if v.Value == SecretMask && stored[v.Name].Secret {
				return nil, map[string]string{"variables": "Value required for " + v.Name}, nil
			}
			variables = append(variables, models.PipelineVariable{Name: v.Name, Value: v.Value})
			continue
		}

		if v.Value == "" || v.Value == SecretMask {
			prev, ok := stored[v.Name]
			if !ok || !prev.Secret {
				return nil, map[string]string{"variables": "Value required for " + v.Name}, nil
			}
			variables = append(variables, prev)
			continue
		}

		sealed, err := h.encryptor.Seal(v.Value)
		if err != nil {
			return nil, nil, err
		}
		variables = append(variables, models.PipelineVariable{Name: v.Name, Value: sealed, Secret: true})
	}
	return variables, nil, nil
}

// PipelineResponse is a pipeline with secret values masked.
type PipelineResponse struct {
	models.Pipeline
	Variables []models.PipelineVariable `json:"variables"`
}

func pipelineToResponse(p models.Pipeline) PipelineResponse {
	variables := make([]models.PipelineVariable, len(p.Variables))
	for i, v := range p.Variables {
		if v.Secret {
			v.Value = SecretMask
		}
		variables[i] = v
	}
	if p.Stages == nil {
		p.Stages = []models.PipelineStage{}
	}
	return PipelineResponse{Pipeline: p, Variables: variables}
}

// List handles GET /projects/{projectId}/pipelines. "status" filters.
func (h *PipelineHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	pagination := paginationFromQuery(r)

	query := scope.Where(h.db.WithContext(r.Context())).Model(&models.Pipeline{})
	if status := r.URL.Query().Get("status"); status != "" {
		if !models.PipelineStatus(status).Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count pipelines")
		return
	}

	var pipelines []models.Pipeline
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&pipelines).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pipelines")
		return
	}

	out := make([]PipelineResponse, len(pipelines))
	for i := range pipelines {
		out[i] = pipelineToResponse(pipelines[i])
	}

	writeJSON(w, http.StatusOK, dto.Paginate(out, total, pagination))
}

// Create handles POST /projects/{projectId}/pipelines.
func (h *PipelineHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req CreatePipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	variables, details, err := h.buildVariables(req.Variables, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encrypt variables")
		return
	}
	if details != nil {
		writeValidation(w, details)
		return
	}

	pipeline := models.Pipeline{
		ProjectID:   scope.ProjectID(),
		Name:        validation.CleanText(req.Name, 200),
		Description: req.Description,
		Repository:  strings.TrimSpace(req.Repository),
		Branch:      defaultString(req.Branch, "main"),
		Status:      models.PipelineStatusIdle,
		Stages:      buildStages(req.Stages),
		Variables:   variables,
		CreatedBy:   scope.CallerID(),
	}
	if err := h.db.WithContext(r.Context()).Create(&pipeline).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create pipeline")
		return
	}

	writeJSON(w, http.StatusCreated, pipelineToResponse(pipeline))
}

// Get handles GET /projects/{projectId}/pipelines/detail/{pipelineId}.
func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "pipelineId", "pipeline")
	if !ok {
		return
	}

	var pipeline models.Pipeline
	if err := findScoped(r.Context(), h.db, scope, &pipeline, id); err != nil {
		writeLookupError(w, err, "Pipeline")
		return
	}

	writeJSON(w, http.StatusOK, pipelineToResponse(pipeline))
}

// Update handles PUT /projects/{projectId}/pipelines/{pipelineId}. Moving to
// running stamps lastRunAt.
func (h *PipelineHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "pipelineId", "pipeline")
	if !ok {
		return
	}

	var req UpdatePipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	var pipeline models.Pipeline
	if err := findScoped(r.Context(), h.db, scope, &pipeline, id); err != nil {
		writeLookupError(w, err, "Pipeline")
		return
	}

	if req.Variables != nil {
		variables, details, err := h.buildVariables(*req.Variables, pipeline.Variables)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encrypt variables")
			return
		}
		if details != nil {
			writeValidation(w, details)
			return
		}
		pipeline.Variables = variables
	}
	if req.Name != nil {
		pipeline.Name = validation.CleanText(*req.Name, 200)
	}
	if req.Description != nil {
		pipeline.Description = *req.Description
	}
	if req.Repository != nil {
		pipeline.Repository = strings.TrimSpace(*req.Repository)
	}
	if req.Branch != nil {
		pipeline.Branch = *req.Branch
	}
	if req.Stages != nil {
		pipeline.Stages = buildStages(*req.Stages)
	}
	if req.Status != nil {
		status := models.PipelineStatus(*req.Status)
		if status == models.PipelineStatusRunning && pipeline.Status != models.PipelineStatusRunning {
			now := time.Now()
			pipeline.LastRunAt = &now
		}
		pipeline.Status = status
	}

	if err := scope.Where(h.db.WithContext(r.Context())).Model(&pipeline).
		Select("name", "description", "repository", "branch", "status", "stages", "variables", "last_run_at").
		Updates(&pipeline).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update pipeline")
		return
	}

	writeJSON(w, http.StatusOK, pipelineToResponse(pipeline))
}

// Delete handles DELETE /projects/{projectId}/pipelines/{pipelineId}.
func (h *PipelineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "pipelineId", "pipeline")
	if !ok {
		return
	}

	res := scope.Where(h.db.WithContext(r.Context())).Delete(&models.Pipeline{}, "id = ?", id)
	if res.Error != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete pipeline")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "Pipeline not found")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Pipeline deleted"})
}
