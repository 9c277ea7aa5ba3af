package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/internal/tenant"
	"github.com/hugh/taskeasy/internal/wiki"
	"gorm.io/gorm"
)

const (
	maxWikiContent = 1 << 20
	maxWikiDepth   = 32

	// WikiBlobPrefix is the key prefix of published wiki documents.
	WikiBlobPrefix = "wiki/"
)

var errParentCycle = errors.New("page cannot be its own ancestor")

// WikiHandler stores pages as markdown and publishes each revision as a
// static HTML file in the blob store.
type WikiHandler struct {
	db    *gorm.DB
	store storage.Store
	blobs BlobRemover
}

func NewWikiHandler(db *gorm.DB, store storage.Store, blobs BlobRemover) *WikiHandler {
	return &WikiHandler{
		db:    db,
		store: store,
		blobs: blobs,
	}
}

type CreateWikiPageRequest struct {
	Title    string  `json:"title"`
	Slug     string  `json:"slug,omitempty"`
	Content  string  `json:"content"`
	ParentID *string `json:"parentId,omitempty"`
}

func (r CreateWikiPageRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 200 {
		errors["title"] = "Title must be at most 200 characters"
	}
	if len(r.Slug) > 200 {
		errors["slug"] = "Slug must be at most 200 characters"
	}
	if len(r.Content) > maxWikiContent {
		errors["content"] = "Content is too large"
	}
	validateID(errors, "parentId", r.ParentID)
	return errors
}

type UpdateWikiPageRequest struct {
	Title    *string          `json:"title,omitempty"`
	Slug     *string          `json:"slug,omitempty"`
	Content  *string          `json:"content,omitempty"`
	ParentID Optional[string] `json:"parentId"`
}

func (r UpdateWikiPageRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			errors["title"] = "Title cannot be empty"
		} else if len(*r.Title) > 200 {
			errors["title"] = "Title must be at most 200 characters"
		}
	}
	if r.Slug != nil && len(*r.Slug) > 200 {
		errors["slug"] = "Slug must be at most 200 characters"
	}
	if r.Content != nil && len(*r.Content) > maxWikiContent {
		errors["content"] = "Content is too large"
	}
	validateID(errors, "parentId", r.ParentID.Value)
	return errors
}

// publish renders the page and writes it under a fresh key.
func (h *WikiHandler) publish(ctx context.Context, page *models.WikiPage) (storage.Object, error) {
	body, err := wiki.Render(page.Content)
	if err != nil {
		return storage.Object{}, err
	}
	doc, err := wiki.Document(page.Title, body)
	if err != nil {
		return storage.Object{}, fmt.Errorf("building document: %w", err)
	}

	prefix := fmt.Sprintf("%s%s/%s", WikiBlobPrefix, page.ProjectID, page.ID)
	return h.store.Put(ctx, storage.NewKey(prefix, page.Slug+".html"), bytes.NewReader(doc), int64(len(doc)), "text/html; charset=utf-8")
}

// uniqueSlug returns base, or base-N when another page of the project
// already uses it.
func (h *WikiHandler) uniqueSlug(ctx context.Context, scope *tenant.Scope, base string, self uuid.UUID) (string, error) {
	slug := base
	for n := 2; ; n++ {
		var count int64
		if err := scope.Where(h.db.WithContext(ctx)).Model(&models.WikiPage{}).
			Where("slug = ? AND id <> ?", slug, self).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

// checkParent verifies the parent belongs to the project and that page is
// not among its ancestors.
func (h *WikiHandler) checkParent(ctx context.Context, scope *tenant.Scope, parentID *uuid.UUID, page uuid.UUID) error {
	next := parentID
	for depth := 0; next != nil; depth++ {
		if *next == page || depth >= maxWikiDepth {
			return errParentCycle
		}
		var parent models.WikiPage
		if err := findScoped(ctx, h.db, scope, &parent, *next); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fieldErrors{"parentId": "Parent page not found"}
			}
			return err
		}
		next = parent.ParentID
	}
	return nil
}

func writeParentError(w http.ResponseWriter, err error, action string) {
	var fe fieldErrors
	switch {
	case errors.Is(err, errParentCycle):
		writeValidation(w, map[string]string{"parentId": err.Error()})
	case errors.As(err, &fe):
		writeValidation(w, fe)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// List handles GET /projects/{projectId}/wiki. "parentId" filters children
// ("none" for top-level pages), "slug" finds one page, "search" matches
// titles.
func (h *WikiHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	pagination := paginationFromQuery(r)
	q := r.URL.Query()

	query := scope.Where(h.db.WithContext(r.Context())).Model(&models.WikiPage{})
	if parent := q.Get("parentId"); parent != "" {
		if parent == "none" {
			query = query.Where("parent_id IS NULL")
		} else {
			id, err := uuid.Parse(parent)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid parentId")
				return
			}
			query = query.Where("parent_id = ?", id)
		}
	}
	if slug := q.Get("slug"); slug != "" {
		query = query.Where("slug = ?", slug)
	}
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		query = query.Where("LOWER(title) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(search))+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count wiki pages")
		return
	}

	var pages []models.WikiPage
	if err := query.
		Order("title ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&pages).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list wiki pages")
		return
	}

	writeJSON(w, http.StatusOK, dto.Paginate(pages, total, pagination))
}

// Create handles POST /projects/{projectId}/wiki.
func (h *WikiHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req CreateWikiPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	page := models.WikiPage{
		Base:      models.Base{ID: uuid.New()},
		ProjectID: scope.ProjectID(),
		Title:     validation.CleanText(req.Title, 200),
		Content:   req.Content,
		CreatedBy: scope.CallerID(),
		UpdatedBy: scope.CallerID(),
	}
	page.ParentID, _ = parseOptionalID(req.ParentID)

	ctx := r.Context()
	if err := h.checkParent(ctx, scope, page.ParentID, page.ID); err != nil {
		writeParentError(w, err, "create wiki page")
		return
	}

	slug, err := h.uniqueSlug(ctx, scope, wiki.Slugify(defaultString(req.Slug, page.Title)), page.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create wiki page")
		return
	}
	page.Slug = slug

	obj, err := h.publish(ctx, &page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render wiki page")
		return
	}
	page.HTMLKey = obj.Key
	page.HTMLURL = obj.URL

	if err := h.db.WithContext(ctx).Create(&page).Error; err != nil {
		h.blobs.Remove(ctx, "wiki page create failed", []string{obj.Key})
		writeError(w, http.StatusInternalServerError, "Failed to create wiki page")
		return
	}

	writeJSON(w, http.StatusCreated, page)
}

// Get handles GET /projects/{projectId}/wiki/{pageId}.
func (h *WikiHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "pageId", "page")
	if !ok {
		return
	}

	var page models.WikiPage
	if err := findScoped(r.Context(), h.db, scope, &page, id); err != nil {
		writeLookupError(w, err, "Page")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Update handles PUT /projects/{projectId}/wiki/{pageId}. Every update
// republishes the HTML; the previous file is removed once the record points
// at the new one.
func (h *WikiHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "pageId", "page")
	if !ok {
		return
	}

	var req UpdateWikiPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	ctx := r.Context()
	var page models.WikiPage
	if err := findScoped(ctx, h.db, scope, &page, id); err != nil {
		writeLookupError(w, err, "Page")
		return
	}

	if req.ParentID.Set {
		page.ParentID, _ = parseOptionalID(req.ParentID.Value)
		if err := h.checkParent(ctx, scope, page.ParentID, page.ID); err != nil {
			writeParentError(w, err, "update wiki page")
			return
		}
	}
	if req.Title != nil {
		page.Title = validation.CleanText(*req.Title, 200)
	}
	if req.Content != nil {
		page.Content = *req.Content
	}
	if req.Slug != nil {
		slug, err := h.uniqueSlug(ctx, scope, wiki.Slugify(defaultString(*req.Slug, page.Title)), page.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update wiki page")
			return
		}
		page.Slug = slug
	}
	page.UpdatedBy = scope.CallerID()

	oldKey := page.HTMLKey
	obj, err := h.publish(ctx, &page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render wiki page")
		return
	}
	page.HTMLKey = obj.Key
	page.HTMLURL = obj.URL

	if err := scope.Where(h.db.WithContext(ctx)).Model(&page).
		Select("title", "slug", "content", "parent_id", "html_key", "html_url", "updated_by").
		Updates(&page).Error; err != nil {
		h.blobs.Remove(ctx, "wiki page update failed", []string{obj.Key})
		writeError(w, http.StatusInternalServerError, "Failed to update wiki page")
		return
	}
	if oldKey != "" && oldKey != obj.Key {
		h.blobs.Remove(ctx, "wiki page republished", []string{oldKey})
	}

	writeJSON(w, http.StatusOK, page)
}

// Delete handles DELETE /projects/{projectId}/wiki/{pageId}. Child pages
// move to the top level.
func (h *WikiHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "pageId", "page")
	if !ok {
		return
	}

	ctx := r.Context()
	var page models.WikiPage
	if err := findScoped(ctx, h.db, scope, &page, id); err != nil {
		writeLookupError(w, err, "Page")
		return
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scope.Where(tx).Delete(&models.WikiPage{}, "id = ?", page.ID).Error; err != nil {
			return err
		}
		return scope.Where(tx).Model(&models.WikiPage{}).
			Where("parent_id = ?", page.ID).
			Update("parent_id", nil).Error
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete wiki page")
		return
	}

	if page.HTMLKey != "" {
		h.blobs.Remove(ctx, "wiki page deleted", []string{page.HTMLKey})
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Page deleted"})
}
