package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/internal/tenant"
	"gorm.io/gorm"
)

const (
	unassignedBucket = "Unassigned"
	maxBulkUpdates   = 500
	maxAttachments   = 50
)

// fieldErrors carries per-field validation messages out of shared update
// code.
type fieldErrors map[string]string

func (f fieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for field, msg := range f {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

type WorkItemHandler struct {
	db        *gorm.DB
	store     storage.Store
	blobs     BlobRemover
	maxUpload int64
}

func NewWorkItemHandler(db *gorm.DB, store storage.Store, blobs BlobRemover, maxUpload int64) *WorkItemHandler {
	return &WorkItemHandler{
		db:        db,
		store:     store,
		blobs:     blobs,
		maxUpload: maxUpload,
	}
}

type TimelineDates struct {
	StartDate Optional[string] `json:"startDate"`
	DueDate   Optional[string] `json:"dueDate"`
}

func (t *TimelineDates) validate(errors map[string]string) {
	if t == nil {
		return
	}
	if _, ok := parseOptionalDate(t.StartDate.Value); !ok {
		errors["timeline.startDate"] = "Invalid date"
	}
	if _, ok := parseOptionalDate(t.DueDate.Value); !ok {
		errors["timeline.dueDate"] = "Invalid date"
	}
}

type CreateWorkItemRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	State       string         `json:"state,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	AssigneeID  *string        `json:"assigneeId,omitempty"`
	BoardID     *string        `json:"boardId,omitempty"`
	ColumnID    string         `json:"columnId,omitempty"`
	Order       *int           `json:"order,omitempty"`
	SprintID    *string        `json:"sprintId,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Timeline    *TimelineDates `json:"timeline,omitempty"`
	TimeSpent   *float64       `json:"timeSpent,omitempty"`
}

func (r CreateWorkItemRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 500 {
		errors["title"] = "Title must be at most 500 characters"
	}
	if len(r.Description) > 20000 {
		errors["description"] = "Description must be at most 20000 characters"
	}
	validateLabel(errors, "type", r.Type)
	validateLabel(errors, "state", r.State)
	validateLabel(errors, "priority", r.Priority)
	validateID(errors, "assigneeId", r.AssigneeID)
	validateID(errors, "boardId", r.BoardID)
	validateID(errors, "sprintId", r.SprintID)
	if len(r.ColumnID) > 100 {
		errors["columnId"] = "Invalid column ID"
	}
	if r.Order != nil && *r.Order < 0 {
		errors["order"] = "Order cannot be negative"
	}
	validateTags(errors, r.Tags)
	r.Timeline.validate(errors)
	if r.TimeSpent != nil && *r.TimeSpent < 0 {
		errors["timeSpent"] = "Time spent cannot be negative"
	}

	return errors
}

// UpdateWorkItemRequest lists every field a PATCH may change. Nullable
// references use Optional so that null clears them.
type UpdateWorkItemRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Type        *string          `json:"type,omitempty"`
	State       *string          `json:"state,omitempty"`
	Priority    *string          `json:"priority,omitempty"`
	AssigneeID  Optional[string] `json:"assigneeId"`
	BoardID     Optional[string] `json:"boardId"`
	ColumnID    *string          `json:"columnId,omitempty"`
	Order       *int             `json:"order,omitempty"`
	SprintID    Optional[string] `json:"sprintId"`
	Tags        *[]string        `json:"tags,omitempty"`
	Timeline    *TimelineDates   `json:"timeline,omitempty"`
	TimeSpent   *float64         `json:"timeSpent,omitempty"`
}

func (r UpdateWorkItemRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			errors["title"] = "Title cannot be empty"
		} else if len(*r.Title) > 500 {
			errors["title"] = "Title must be at most 500 characters"
		}
	}
	if r.Description != nil && len(*r.Description) > 20000 {
		errors["description"] = "Description must be at most 20000 characters"
	}
	for field, v := range map[string]*string{"type": r.Type, "state": r.State, "priority": r.Priority} {
		if v == nil {
			continue
		}
		if strings.TrimSpace(*v) == "" {
			errors[field] = "Cannot be empty"
		} else {
			validateLabel(errors, field, *v)
		}
	}
	validateID(errors, "assigneeId", r.AssigneeID.Value)
	validateID(errors, "boardId", r.BoardID.Value)
	validateID(errors, "sprintId", r.SprintID.Value)
	if r.ColumnID != nil && len(*r.ColumnID) > 100 {
		errors["columnId"] = "Invalid column ID"
	}
	if r.Order != nil && *r.Order < 0 {
		errors["order"] = "Order cannot be negative"
	}
	if r.Tags != nil {
		validateTags(errors, *r.Tags)
	}
	r.Timeline.validate(errors)
	if r.TimeSpent != nil && *r.TimeSpent < 0 {
		errors["timeSpent"] = "Time spent cannot be negative"
	}

	return errors
}

// BulkUpdateEntry is one element of a bulk update: an id plus the same
// fields a PATCH accepts.
type BulkUpdateEntry struct {
	ID string `json:"id"`
	UpdateWorkItemRequest
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BulkUpdateResponse struct {
	Updated []string      `json:"updated"`
	Failed  []BulkFailure `json:"failed"`
}

type LogTimeRequest struct {
	Hours float64 `json:"hours"`
	Note  string  `json:"note,omitempty"`
}

func (r LogTimeRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Hours <= 0 {
		errors["hours"] = "Hours must be positive"
	} else if r.Hours > 1000 {
		errors["hours"] = "Hours must be at most 1000"
	}
	if len(r.Note) > 1000 {
		errors["note"] = "Note must be at most 1000 characters"
	}
	return errors
}

type TimeLogEntry struct {
	AssigneeID string  `json:"assigneeId,omitempty"`
	Assignee   string  `json:"assignee"`
	Date       string  `json:"date"`
	Hours      float64 `json:"hours"`
	Items      int     `json:"items"`
}

type TimeLogTotal struct {
	AssigneeID string  `json:"assigneeId,omitempty"`
	Assignee   string  `json:"assignee"`
	Hours      float64 `json:"hours"`
}

type TimeLogSummary struct {
	Entries    []TimeLogEntry `json:"entries"`
	Totals     []TimeLogTotal `json:"totals"`
	TotalHours float64        `json:"totalHours"`
}

func validateLabel(errors map[string]string, field, v string) {
	if len(v) > 50 {
		errors[field] = "Must be at most 50 characters"
	}
}

func validateID(errors map[string]string, field string, v *string) {
	if v != nil && *v != "" && !validation.IsValidUUID(*v) {
		errors[field] = "Invalid ID"
	}
}

func validateTags(errors map[string]string, tags []string) {
	if len(tags) > 50 {
		errors["tags"] = "At most 50 tags are allowed"
		return
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" || len(tag) > 50 {
			errors["tags"] = "Tags must be 1-50 characters"
			return
		}
	}
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = validation.CleanText(tag, 50)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// isDoneState reports whether a free-text state counts as finished.
func isDoneState(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "done", "closed", "completed", "resolved":
		return true
	}
	return false
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func refString(id *uuid.UUID) string {
	if id == nil {
		return "none"
	}
	return id.String()
}

// prepareItem fills the slices that must serialize as arrays.
func prepareItem(item *models.WorkItem) *models.WorkItem {
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.Attachments == nil {
		item.Attachments = []models.Attachment{}
	}
	if item.Timeline.Events == nil {
		item.Timeline.Events = []models.TimelineEvent{}
	}
	return item
}

// nextOrder returns max(order)+1 within the (project, board, column) bucket.
// Concurrent creates may read the same maximum; duplicates are tolerated.
func (h *WorkItemHandler) nextOrder(ctx context.Context, db *gorm.DB, scope *tenant.Scope, boardID *uuid.UUID, columnID string) (int, error) {
	query := scope.Where(db.WithContext(ctx)).Model(&models.WorkItem{}).Where("column_id = ?", columnID)
	if boardID == nil {
		query = query.Where("board_id IS NULL")
	} else {
		query = query.Where("board_id = ?", *boardID)
	}

	var highest int
	if err := query.Select("COALESCE(MAX(position), 0)").Row().Scan(&highest); err != nil {
		return 0, fmt.Errorf("computing order: %w", err)
	}
	return highest + 1, nil
}

// placement is a validated (board, column) target.
type placement struct {
	board    *models.Board
	boardID  *uuid.UUID
	columnID string
}

// resolvePlacement checks that boardID belongs to the project and that
// columnID is one of its columns. A board without a column lands in the
// board's first column.
func (h *WorkItemHandler) resolvePlacement(ctx context.Context, scope *tenant.Scope, boardID *uuid.UUID, columnID string, columnGiven bool) (placement, error) {
	p := placement{boardID: boardID, columnID: columnID}
	if boardID == nil {
		return p, nil
	}

	var board models.Board
	if err := findScoped(ctx, h.db, scope, &board, *boardID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, fieldErrors{"boardId": "Board not found"}
		}
		return p, err
	}
	p.board = &board

	if !columnGiven && columnID == "" {
		if first := firstColumn(&board); first != "" {
			p.columnID = first
		}
		return p, nil
	}
	if columnID != "" && !board.HasColumn(columnID) {
		return p, fieldErrors{"columnId": "Column not found on board"}
	}
	return p, nil
}

func firstColumn(b *models.Board) string {
	first := ""
	lowest := 0
	for _, c := range b.Columns {
		if first == "" || c.Order < lowest {
			first, lowest = c.ID, c.Order
		}
	}
	return first
}

func (h *WorkItemHandler) checkSprint(ctx context.Context, scope *tenant.Scope, sprintID *uuid.UUID) error {
	if sprintID == nil {
		return nil
	}
	var sprint models.Sprint
	if err := findScoped(ctx, h.db, scope, &sprint, *sprintID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fieldErrors{"sprintId": "Sprint not found"}
		}
		return err
	}
	return nil
}

func checkAssignee(scope *tenant.Scope, assigneeID *uuid.UUID) error {
	if assigneeID != nil && !scope.Project().HasAccess(assigneeID.String()) {
		return fieldErrors{"assigneeId": "Assignee is not a member of this project"}
	}
	return nil
}

// writeApplyError answers validation failures with 400 and anything else
// with 500.
func writeApplyError(w http.ResponseWriter, err error, action string) {
	var fe fieldErrors
	if errors.As(err, &fe) {
		writeValidation(w, fe)
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to "+action+" work item")
}

// List handles GET /projects/{projectId}/workitems.
func (h *WorkItemHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	pagination := paginationFromQuery(r)
	q := r.URL.Query()

	query := scope.Where(h.db.WithContext(r.Context())).Model(&models.WorkItem{})

	for param, column := range map[string]string{"state": "state", "type": "type", "priority": "priority", "columnId": "column_id"} {
		if v := q.Get(param); v != "" {
			query = query.Where(column+" = ?", v)
		}
	}
	for param, column := range map[string]string{"assigneeId": "assignee_id", "boardId": "board_id", "sprintId": "sprint_id"} {
		v := q.Get(param)
		switch {
		case v == "":
		case v == "none":
			query = query.Where(column + " IS NULL")
		default:
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid "+param)
				return
			}
			query = query.Where(column+" = ?", id)
		}
	}
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		query = query.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count work items")
		return
	}

	var items []models.WorkItem
	if err := query.
		Order("position ASC").
		Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&items).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list work items")
		return
	}
	for i := range items {
		prepareItem(&items[i])
	}

	writeJSON(w, http.StatusOK, dto.Paginate(items, total, pagination))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Get handles GET /projects/{projectId}/workitems/{itemId}.
func (h *WorkItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, prepareItem(item))
}

// load resolves the scope and the work item named by the path.
func (h *WorkItemHandler) load(w http.ResponseWriter, r *http.Request) (*models.WorkItem, *tenant.Scope, bool) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return nil, nil, false
	}
	id, ok := pathUUID(w, r, "itemId", "work item")
	if !ok {
		return nil, nil, false
	}

	var item models.WorkItem
	if err := findScoped(r.Context(), h.db, scope, &item, id); err != nil {
		writeLookupError(w, err, "Work item")
		return nil, nil, false
	}
	return &item, scope, true
}

// Create handles POST /projects/{projectId}/workitems. The project id always
// comes from the verified scope.
func (h *WorkItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req CreateWorkItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	boardID, _ := parseOptionalID(req.BoardID)
	sprintID, _ := parseOptionalID(req.SprintID)
	assigneeID, _ := parseOptionalID(req.AssigneeID)

	place, err := h.resolvePlacement(ctx, scope, boardID, req.ColumnID, req.ColumnID != "")
	if err == nil {
		err = h.checkSprint(ctx, scope, sprintID)
	}
	if err == nil {
		err = checkAssignee(scope, assigneeID)
	}
	if err != nil {
		writeApplyError(w, err, "create")
		return
	}

	now := time.Now().UTC()
	item := models.WorkItem{
		ProjectID:   scope.ProjectID(),
		Title:       validation.CleanText(req.Title, 500),
		Description: req.Description,
		Type:        defaultString(validation.CleanText(req.Type, 50), "Task"),
		State:       defaultString(validation.CleanText(req.State, 50), "New"),
		Priority:    defaultString(validation.CleanText(req.Priority, 50), "Medium"),
		AssigneeID:  assigneeID,
		CreatedBy:   scope.CallerID(),
		BoardID:     place.boardID,
		ColumnID:    place.columnID,
		SprintID:    sprintID,
		Tags:        cleanTags(req.Tags),
		Attachments: []models.Attachment{},
	}
	if req.TimeSpent != nil {
		item.TimeSpent = *req.TimeSpent
	}
	if req.Timeline != nil {
		item.Timeline.StartDate, _ = parseOptionalDate(req.Timeline.StartDate.Value)
		item.Timeline.DueDate, _ = parseOptionalDate(req.Timeline.DueDate.Value)
	}
	if isDoneState(item.State) {
		item.Timeline.CompletedDate = &now
	}

	if req.Order != nil {
		item.Order = *req.Order
	} else {
		if item.Order, err = h.nextOrder(ctx, h.db, scope, item.BoardID, item.ColumnID); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create work item")
			return
		}
	}

	item.Timeline.Record("created", "Work item created", scope.CallerID(), now)

	if err := h.db.WithContext(ctx).Create(&item).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create work item")
		return
	}

	writeJSON(w, http.StatusCreated, prepareItem(&item))
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Update handles PATCH /projects/{projectId}/workitems/{itemId}.
func (h *WorkItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	item, scope, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateWorkItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.apply(r.Context(), scope, item, req); err != nil {
		writeApplyError(w, err, "update")
		return
	}

	writeJSON(w, http.StatusOK, prepareItem(item))
}

// apply validates req against item, mutates item, records timeline events
// and saves it.
func (h *WorkItemHandler) apply(ctx context.Context, scope *tenant.Scope, item *models.WorkItem, req UpdateWorkItemRequest) error {
	if errs := req.Validate(); len(errs) > 0 {
		return fieldErrors(errs)
	}

	caller := scope.CallerID()
	now := time.Now().UTC()

	boardID := item.BoardID
	if req.BoardID.Set {
		boardID, _ = parseOptionalID(req.BoardID.Value)
	}
	columnID := item.ColumnID
	columnGiven := req.ColumnID != nil
	if columnGiven {
		columnID = *req.ColumnID
	} else if !sameRef(boardID, item.BoardID) {
		columnID = ""
	}

	place := placement{boardID: boardID, columnID: columnID}
	if req.BoardID.Set || columnGiven {
		var err error
		if place, err = h.resolvePlacement(ctx, scope, boardID, columnID, columnGiven); err != nil {
			return err
		}
	}

	sprintID := item.SprintID
	if req.SprintID.Set {
		sprintID, _ = parseOptionalID(req.SprintID.Value)
		if err := h.checkSprint(ctx, scope, sprintID); err != nil {
			return err
		}
	}

	if req.AssigneeID.Set {
		assigneeID, _ := parseOptionalID(req.AssigneeID.Value)
		if err := checkAssignee(scope, assigneeID); err != nil {
			return err
		}
		if !sameRef(assigneeID, item.AssigneeID) {
			item.Timeline.Record("assignee", "Assignee changed to "+refString(assigneeID), caller, now)
		}
		item.AssigneeID = assigneeID
	}

	if req.Title != nil {
		item.Title = validation.CleanText(*req.Title, 500)
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Type != nil {
		item.Type = validation.CleanText(*req.Type, 50)
	}
	if req.Priority != nil {
		item.Priority = validation.CleanText(*req.Priority, 50)
	}
	if req.Tags != nil {
		item.Tags = cleanTags(*req.Tags)
	}
	if req.TimeSpent != nil {
		item.TimeSpent = *req.TimeSpent
	}
	if req.Timeline != nil {
		if req.Timeline.StartDate.Set {
			item.Timeline.StartDate, _ = parseOptionalDate(req.Timeline.StartDate.Value)
		}
		if req.Timeline.DueDate.Set {
			item.Timeline.DueDate, _ = parseOptionalDate(req.Timeline.DueDate.Value)
		}
	}

	if req.State != nil {
		state := validation.CleanText(*req.State, 50)
		if state != item.State {
			item.Timeline.Record("state", fmt.Sprintf("State changed from %s to %s", item.State, state), caller, now)
			switch {
			case isDoneState(state) && !isDoneState(item.State):
				item.Timeline.CompletedDate = &now
			case !isDoneState(state):
				item.Timeline.CompletedDate = nil
			}
			item.State = state
		}
	}

	moved := !sameRef(place.boardID, item.BoardID) || place.columnID != item.ColumnID
	if moved {
		item.Timeline.Record("moved", fmt.Sprintf("Moved to board %s column %s", refString(place.boardID), place.columnID), caller, now)
		item.BoardID = place.boardID
		item.ColumnID = place.columnID
	}
	switch {
	case req.Order != nil:
		item.Order = *req.Order
	case moved:
		next, err := h.nextOrder(ctx, h.db, scope, item.BoardID, item.ColumnID)
		if err != nil {
			return err
		}
		item.Order = next
	}

	if !sameRef(sprintID, item.SprintID) {
		item.Timeline.Record("sprint", "Sprint changed to "+refString(sprintID), caller, now)
		item.SprintID = sprintID
	}

	return h.save(ctx, scope, item)
}

// save writes every column of item, still constrained to the scope.
func (h *WorkItemHandler) save(ctx context.Context, scope *tenant.Scope, item *models.WorkItem) error {
	res := scope.Where(h.db.WithContext(ctx)).Model(item).Select("*").Omit("id", "project_id", "created_at").Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete handles DELETE /projects/{projectId}/workitems/{itemId}. Attachment
// blobs are removed after the record; their failure is only logged.
func (h *WorkItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, scope, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := scope.Where(h.db.WithContext(r.Context())).Delete(&models.WorkItem{}, "id = ?", item.ID).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete work item")
		return
	}

	h.blobs.Remove(r.Context(), "work item deleted", item.AttachmentKeys())

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Work item deleted"})
}

// BulkUpdate handles POST /projects/{projectId}/workitems/bulk-update. Each
// entry is applied on its own; a failure never undoes earlier successes.
// The body is either {"updates": [...]} or a bare array.
func (h *WorkItemHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var raw json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return
	}
	var entries []BulkUpdateEntry
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		var wrapped struct {
			Updates []BulkUpdateEntry `json:"updates"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		entries = wrapped.Updates
	}

	if len(entries) == 0 {
		writeValidation(w, map[string]string{"updates": "At least one update is required"})
		return
	}
	if len(entries) > maxBulkUpdates {
		writeValidation(w, map[string]string{"updates": fmt.Sprintf("At most %d updates are allowed", maxBulkUpdates)})
		return
	}

	resp := BulkUpdateResponse{Updated: []string{}, Failed: []BulkFailure{}}
	for _, entry := range entries {
		if err := h.bulkOne(r.Context(), scope, entry); err != nil {
			resp.Failed = append(resp.Failed, BulkFailure{ID: entry.ID, Error: err.Error()})
			continue
		}
		resp.Updated = append(resp.Updated, entry.ID)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *WorkItemHandler) bulkOne(ctx context.Context, scope *tenant.Scope, entry BulkUpdateEntry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return errors.New("invalid id")
	}

	var item models.WorkItem
	if err := findScoped(ctx, h.db, scope, &item, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("not found")
		}
		return errors.New("lookup failed")
	}

	if err := h.apply(ctx, scope, &item, entry.UpdateWorkItemRequest); err != nil {
		var fe fieldErrors
		if errors.As(err, &fe) {
			return fe
		}
		return errors.New("update failed")
	}
	return nil
}

// LogTime handles POST /projects/{projectId}/workitems/{itemId}/time.
func (h *WorkItemHandler) LogTime(w http.ResponseWriter, r *http.Request) {
	item, scope, ok := h.load(w, r)
	if !ok {
		return
	}

	var req LogTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	item.TimeSpent += req.Hours
	msg := fmt.Sprintf("Logged %.2fh", req.Hours)
	if note := validation.CleanText(req.Note, 1000); note != "" {
		msg += ": " + note
	}
	item.Timeline.Record("time", msg, scope.CallerID(), time.Now())

	if err := h.save(r.Context(), scope, item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to log time")
		return
	}

	writeJSON(w, http.StatusOK, prepareItem(item))
}

// AddAttachment handles POST .../workitems/{itemId}/attachments with a
// multipart "file" field.
func (h *WorkItemHandler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	item, scope, ok := h.load(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}
	if !parseMultipart(w, r, h.maxUpload) {
		return
	}
	fh := formFile(r, "file")
	if fh == nil {
		writeValidation(w, map[string]string{"file": "File is required"})
		return
	}
	if len(item.Attachments) >= maxAttachments {
		writeValidation(w, map[string]string{"file": fmt.Sprintf("At most %d attachments per work item", maxAttachments)})
		return
	}

	ctx := r.Context()
	obj, err := storeUpload(ctx, h.store, fmt.Sprintf("attachments/%s/%s", scope.ProjectID(), item.ID), fh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store attachment")
		return
	}

	now := time.Now().UTC()
	filename := validation.CleanText(fh.Filename, 255)
	item.Attachments = append(item.Attachments, models.Attachment{
		ID:         uuid.NewString(),
		Filename:   filename,
		Key:        obj.Key,
		URL:        obj.URL,
		MimeType:   obj.ContentType,
		Size:       obj.Size,
		UploadedBy: scope.CallerID(),
		UploadedAt: now,
	})
	item.Timeline.Record("attachment", "Attached "+filename, scope.CallerID(), now)

	if err := h.save(ctx, scope, item); err != nil {
		h.blobs.Remove(ctx, "attachment save failed", []string{obj.Key})
		writeError(w, http.StatusInternalServerError, "Failed to save attachment")
		return
	}

	writeJSON(w, http.StatusCreated, prepareItem(item))
}

// DeleteAttachment handles DELETE .../workitems/{itemId}/attachments/{attachmentId}.
func (h *WorkItemHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	item, scope, ok := h.load(w, r)
	if !ok {
		return
	}
	attachmentID := chi.URLParam(r, "attachmentId")

	idx := -1
	for i, a := range item.Attachments {
		if a.ID == attachmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Attachment not found")
		return
	}

	removed := item.Attachments[idx]
	item.Attachments = append(item.Attachments[:idx], item.Attachments[idx+1:]...)
	item.Timeline.Record("attachment", "Removed "+removed.Filename, scope.CallerID(), time.Now())

	if err := h.save(r.Context(), scope, item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove attachment")
		return
	}

	h.blobs.Remove(r.Context(), "attachment removed", []string{removed.Key})

	writeJSON(w, http.StatusOK, prepareItem(item))
}

// TimeLogSummary handles GET /projects/{projectId}/time-log-summary: hours
// per assignee per day, bucketed by timeline start date or, failing that,
// by creation date. Optional from/to bound the day (inclusive).
func (h *WorkItemHandler) TimeLogSummary(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	from, to := "", ""
	for param, dst := range map[string]*string{"from": &from, "to": &to} {
		if v := r.URL.Query().Get(param); v != "" {
			t, ok := validation.ParseDate(v)
			if !ok {
				writeError(w, http.StatusBadRequest, "Invalid "+param+" date")
				return
			}
			*dst = t.Format(validation.DateLayout)
		}
	}

	var items []models.WorkItem
	if err := scope.Where(h.db.WithContext(r.Context())).
		Select("id", "assignee_id", "timeline", "time_spent", "created_at").
		Find(&items).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load work items")
		return
	}

	summary, assignees := summarizeTime(items, from, to)

	names, err := h.usernames(r.Context(), assignees)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load assignees")
		return
	}
	for i := range summary.Entries {
		if n, ok := names[summary.Entries[i].AssigneeID]; ok {
			summary.Entries[i].Assignee = n
		}
	}
	for i := range summary.Totals {
		if n, ok := names[summary.Totals[i].AssigneeID]; ok {
			summary.Totals[i].Assignee = n
		}
	}

	writeJSON(w, http.StatusOK, summary)
}

// summarizeTime groups items by (assignee, day). Assignee names are left as
// ids for the caller to resolve; items without one use the Unassigned
// bucket.
func summarizeTime(items []models.WorkItem, from, to string) (TimeLogSummary, []uuid.UUID) {
	type key struct{ assignee, date string }
	entries := make(map[key]*TimeLogEntry)
	totals := make(map[string]*TimeLogTotal)
	var assignees []uuid.UUID
	summary := TimeLogSummary{Entries: []TimeLogEntry{}, Totals: []TimeLogTotal{}}

	for _, item := range items {
		day := item.CreatedAt.UTC()
		if item.Timeline.StartDate != nil {
			day = item.Timeline.StartDate.UTC()
		}
		date := day.Format(validation.DateLayout)
		if (from != "" && date < from) || (to != "" && date > to) {
			continue
		}

		assigneeID, label := "", unassignedBucket
		if item.AssigneeID != nil {
			assigneeID = item.AssigneeID.String()
			label = assigneeID
		}

		k := key{assigneeID, date}
		e, ok := entries[k]
		if !ok {
			e = &TimeLogEntry{AssigneeID: assigneeID, Assignee: label, Date: date}
			entries[k] = e
		}
		e.Hours += item.TimeSpent
		e.Items++

		t, ok := totals[assigneeID]
		if !ok {
			t = &TimeLogTotal{AssigneeID: assigneeID, Assignee: label}
			totals[assigneeID] = t
			if item.AssigneeID != nil {
				assignees = append(assignees, *item.AssigneeID)
			}
		}
		t.Hours += item.TimeSpent
		summary.TotalHours += item.TimeSpent
	}

	for _, e := range entries {
		summary.Entries = append(summary.Entries, *e)
	}
	sort.Slice(summary.Entries, func(i, j int) bool {
		a, b := summary.Entries[i], summary.Entries[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.AssigneeID < b.AssigneeID
	})
	for _, t := range totals {
		summary.Totals = append(summary.Totals, *t)
	}
	sort.Slice(summary.Totals, func(i, j int) bool {
		return summary.Totals[i].AssigneeID < summary.Totals[j].AssigneeID
	})

	return summary, assignees
}

func (h *WorkItemHandler) usernames(ctx context.Context, ids []uuid.UUID) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := h.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID.String()] = u.Username
	}
	return names, nil
}
