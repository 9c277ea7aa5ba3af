package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/middleware"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/auth"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/internal/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	roleOwner  = "owner"
	roleMember = "member"
)

type ProjectHandler struct {
	db        *gorm.DB
	users     auth.Authenticator
	store     storage.Store
	blobs     BlobRemover
	maxUpload int64
}

func NewProjectHandler(db *gorm.DB, users auth.Authenticator, store storage.Store, blobs BlobRemover, maxUpload int64) *ProjectHandler {
	return &ProjectHandler{
		db:        db,
		users:     users,
		store:     store,
		blobs:     blobs,
		maxUpload: maxUpload,
	}
}

type CreateProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (r CreateProjectRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 200 {
		errors["title"] = "Title must be at most 200 characters"
	}
	if len(r.Description) > 5000 {
		errors["description"] = "Description must be at most 5000 characters"
	}
	return errors
}

// UpdateProjectRequest is a PUT body. Members, when present, replaces the
// member list; the creator always stays a member.
type UpdateProjectRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Members     *[]string `json:"members,omitempty"`
}

func (r UpdateProjectRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			errors["title"] = "Title cannot be empty"
		} else if len(*r.Title) > 200 {
			errors["title"] = "Title must be at most 200 characters"
		}
	}
	if r.Description != nil && len(*r.Description) > 5000 {
		errors["description"] = "Description must be at most 5000 characters"
	}
	if r.Members != nil {
		for _, id := range *r.Members {
			if !validation.IsValidUUID(id) {
				errors["members"] = "Members must be user IDs"
				break
			}
		}
	}
	return errors
}

type AddMemberRequest struct {
	UserID string `json:"userId,omitempty"`
	Login  string `json:"login,omitempty"` // email or username
}

func (r AddMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.UserID == "" && strings.TrimSpace(r.Login) == "" {
		errors["userId"] = "userId or login is required"
	} else if r.UserID != "" && !validation.IsValidUUID(r.UserID) {
		errors["userId"] = "Invalid user ID"
	}
	return errors
}

type MemberResponse struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Role      string `json:"role"`
}

type ProjectResponse struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	LogoURL     string           `json:"logoUrl,omitempty"`
	CreatedBy   string           `json:"createdBy"`
	IsCreator   bool             `json:"isCreator"`
	Members     []MemberResponse `json:"members"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
}

func projectToResponse(p *models.Project, callerID uuid.UUID, users map[uuid.UUID]models.User) ProjectResponse {
	members := make([]MemberResponse, 0, len(p.Members))
	for _, m := range p.Members {
		mr := MemberResponse{UserID: m.UserID.String(), Role: m.Role}
		if u, ok := users[m.UserID]; ok {
			mr.Username = u.Username
			mr.Name = u.Name
			mr.AvatarURL = u.AvatarURL
		}
		members = append(members, mr)
	}
	return ProjectResponse{
		ID:          p.ID.String(),
		Title:       p.Title,
		Description: p.Description,
		LogoURL:     p.LogoURL,
		CreatedBy:   p.CreatedBy.String(),
		IsCreator:   p.IsCreator(callerID.String()),
		Members:     members,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// memberUsers loads the user records behind the members of projects.
func (h *ProjectHandler) memberUsers(ctx context.Context, projects ...*models.Project) (map[uuid.UUID]models.User, error) {
	var ids []uuid.UUID
	for _, p := range projects {
		ids = append(ids, p.MemberIDs()...)
	}
	users := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var found []models.User
	if err := h.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}

func (h *ProjectHandler) respond(w http.ResponseWriter, r *http.Request, status int, p *models.Project) {
	users, err := h.memberUsers(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}
	writeJSON(w, status, projectToResponse(p, middleware.GetUserID(r.Context()), users))
}

// reload re-reads a project with its members after a write.
func (h *ProjectHandler) reload(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := h.db.WithContext(ctx).Preload("Members").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// List handles GET /projects: every project the caller created or belongs to.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	pagination := paginationFromQuery(r)

	memberOf := h.db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", callerID)
	query := h.db.WithContext(r.Context()).Model(&models.Project{}).
		Where("created_by = ? OR id IN (?)", callerID, memberOf)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count projects")
		return
	}

	var projects []models.Project
	if err := query.
		Preload("Members").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&projects).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	refs := make([]*models.Project, len(projects))
	for i := range projects {
		refs[i] = &projects[i]
	}
	users, err := h.memberUsers(r.Context(), refs...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}

	response := make([]ProjectResponse, len(projects))
	for i := range projects {
		response[i] = projectToResponse(&projects[i], callerID, users)
	}

	writeJSON(w, http.StatusOK, dto.Paginate(response, total, pagination))
}

// Create handles POST /projects as JSON or as a multipart form with an
// optional "logo" image. The caller becomes creator and owner member.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())

	var req CreateProjectRequest
	multipartForm := isMultipart(r)
	if multipartForm {
		if !parseMultipart(w, r, h.maxUpload) {
			return
		}
		req.Title, _ = formValue(r, "title")
		req.Description, _ = formValue(r, "description")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	project := models.Project{
		Base:        models.Base{ID: uuid.New()},
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		CreatedBy:   callerID,
		Members: []models.ProjectMember{
			{UserID: callerID, Role: roleOwner},
		},
	}

	if multipartForm {
		if fh := formFile(r, "logo"); fh != nil {
			obj, ok := h.storeLogo(w, r, project.ID, fh)
			if !ok {
				return
			}
			project.LogoKey = obj.Key
			project.LogoURL = obj.URL
		}
	}

	if err := h.db.WithContext(r.Context()).Create(&project).Error; err != nil {
		if project.LogoKey != "" {
			h.blobs.Remove(r.Context(), "project create failed", []string{project.LogoKey})
		}
		writeError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	h.respond(w, r, http.StatusCreated, &project)
}

// Get handles GET /projects/{projectId}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, scope.Project())
}

// Update handles PUT /projects/{projectId}. Any member may edit the title,
// description and logo; only the creator may replace the member list.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	multipartForm := isMultipart(r)
	if multipartForm {
		if !parseMultipart(w, r, h.maxUpload) {
			return
		}
		if v, ok := formValue(r, "title"); ok {
			req.Title = &v
		}
		if v, ok := formValue(r, "description"); ok {
			req.Description = &v
		}
		if values, ok := r.MultipartForm.Value["members"]; ok {
			members := splitMembers(values)
			req.Members = &members
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	if req.Members != nil && !scope.IsCreator() {
		writeError(w, http.StatusForbidden, "Only the project creator can change members")
		return
	}

	project := scope.Project()
	updates := make(map[string]interface{})
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}

	var oldLogo string
	if multipartForm {
		if fh := formFile(r, "logo"); fh != nil {
			obj, ok := h.storeLogo(w, r, project.ID, fh)
			if !ok {
				return
			}
			oldLogo = project.LogoKey
			updates["logo_key"] = obj.Key
			updates["logo_url"] = obj.URL
		}
	}

	var memberIDs []uuid.UUID
	if req.Members != nil {
		ids, err := h.existingUsers(r.Context(), *req.Members)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update project")
			return
		}
		if len(ids) != len(uniqueStrings(*req.Members)) {
			writeValidation(w, map[string]string{"members": "Unknown user in members"})
			return
		}
		memberIDs = ids
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Members != nil {
			return replaceMembers(tx, project, memberIDs)
		}
		return nil
	})
	if err != nil {
		if key, ok := updates["logo_key"].(string); ok {
			h.blobs.Remove(r.Context(), "project update failed", []string{key})
		}
		writeError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	if oldLogo != "" {
		h.blobs.Remove(r.Context(), "project logo replaced", []string{oldLogo})
	}

	updated, err := h.reload(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

// Delete handles DELETE /projects/{projectId}. Every dependent record goes in
// the same transaction as the project; blobs are cleaned up afterwards.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	project := scope.Project()

	keys, err := h.projectBlobs(ctx, scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range models.TenantModels() {
			if err := tx.Where("project_id = ?", project.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Project{}, "id = ?", project.ID).Error
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	h.blobs.Remove(ctx, "project deleted", keys)

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Project deleted"})
}

// AddMember handles POST /projects/{projectId}/members. Any member may invite
// another user by id, email or username.
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req AddMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	var (
		user *models.User
		err  error
	)
	if req.UserID != "" {
		user, err = h.users.GetUserByID(r.Context(), uuid.MustParse(req.UserID))
	} else {
		user, err = h.users.FindByLogin(r.Context(), req.Login)
	}
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to add member")
		return
	}

	member := models.ProjectMember{ProjectID: scope.ProjectID(), UserID: user.ID, Role: roleMember}
	if err := h.db.WithContext(r.Context()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add member")
		return
	}

	updated, err := h.reload(r.Context(), scope.ProjectID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

// RemoveMember handles DELETE /projects/{projectId}/members/{userId}. The
// creator cannot be removed.
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	userID, ok := pathUUID(w, r, "userId", "user")
	if !ok {
		return
	}
	if scope.Project().IsCreator(userID.String()) {
		writeError(w, http.StatusBadRequest, "The project creator cannot be removed")
		return
	}

	res := h.db.WithContext(r.Context()).
		Where("project_id = ? AND user_id = ?", scope.ProjectID(), userID).
		Delete(&models.ProjectMember{})
	if res.Error != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove member")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}

	updated, err := h.reload(r.Context(), scope.ProjectID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

func (h *ProjectHandler) storeLogo(w http.ResponseWriter, r *http.Request, projectID uuid.UUID, fh *multipart.FileHeader) (storage.Object, bool) {
	obj, err := storeUpload(r.Context(), h.store, "logos/"+projectID.String(), fh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store logo")
		return storage.Object{}, false
	}
	if !isImage(obj.ContentType) {
		h.blobs.Remove(r.Context(), "logo rejected", []string{obj.Key})
		writeValidation(w, map[string]string{"logo": "Logo must be an image"})
		return storage.Object{}, false
	}
	return obj, true
}

// projectBlobs collects every blob key a project's records reference.
func (h *ProjectHandler) projectBlobs(ctx context.Context, scope *tenant.Scope) ([]string, error) {
	var keys []string
	if key := scope.Project().LogoKey; key != "" {
		keys = append(keys, key)
	}

	var items []models.WorkItem
	if err := scope.Where(h.db.WithContext(ctx)).Select("id", "attachments").Find(&items).Error; err != nil {
		return nil, err
	}
	for i := range items {
		keys = append(keys, items[i].AttachmentKeys()...)
	}

	var pages []models.WikiPage
	if err := scope.Where(h.db.WithContext(ctx)).Select("id", "html_key").Find(&pages).Error; err != nil {
		return nil, err
	}
	for _, p := range pages {
		if p.HTMLKey != "" {
			keys = append(keys, p.HTMLKey)
		}
	}
	return keys, nil
}

// existingUsers returns the ids in raw that name real users.
func (h *ProjectHandler) existingUsers(ctx context.Context, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range uniqueStrings(raw) {
		ids = append(ids, uuid.MustParse(s))
	}
	if len(ids) == 0 {
		return ids, nil
	}

	var found []uuid.UUID
	err := h.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", ids).Pluck("id", &found).Error
	return found, err
}

// replaceMembers makes ids the member list of project, keeping the creator.
func replaceMembers(tx *gorm.DB, project *models.Project, ids []uuid.UUID) error {
	keep := []uuid.UUID{project.CreatedBy}
	for _, id := range ids {
		if id != project.CreatedBy {
			keep = append(keep, id)
		}
	}

	if err := tx.Where("project_id = ? AND user_id NOT IN ?", project.ID, keep).
		Delete(&models.ProjectMember{}).Error; err != nil {
		return err
	}

	rows := make([]models.ProjectMember, 0, len(keep))
	for _, id := range keep {
		role := roleMember
		if id == project.CreatedBy {
			role = roleOwner
		}
		rows = append(rows, models.ProjectMember{ProjectID: project.ID, UserID: id, Role: role})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// splitMembers accepts repeated form fields and comma separated lists.
func splitMembers(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
