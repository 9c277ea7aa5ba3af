package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/tenant"
	"gorm.io/gorm"
)

const maxColumns = 50

var defaultColumns = []string{"New", "Active", "Done"}

type BoardHandler struct {
	db *gorm.DB
}

func NewBoardHandler(db *gorm.DB) *BoardHandler {
	return &BoardHandler{db: db}
}

// ColumnRequest describes one column. ID is kept when it names an existing
// column, otherwise a new one is generated.
type ColumnRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Order    *int   `json:"order,omitempty"`
	WIPLimit *int   `json:"wipLimit,omitempty"`
}

type CreateBoardRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Columns     []ColumnRequest `json:"columns,omitempty"`
}

func (r CreateBoardRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 200 {
		errors["name"] = "Name must be at most 200 characters"
	}
	if len(r.Description) > 5000 {
		errors["description"] = "Description must be at most 5000 characters"
	}
	validateColumns(errors, r.Columns)
	return errors
}

type UpdateBoardRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Columns     *[]ColumnRequest `json:"columns,omitempty"`
}

func (r UpdateBoardRequest) Validate() map[string]string {
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
	if r.Columns != nil {
		if len(*r.Columns) == 0 {
			errors["columns"] = "A board needs at least one column"
		} else {
			validateColumns(errors, *r.Columns)
		}
	}
	return errors
}

func validateColumns(errors map[string]string, columns []ColumnRequest) {
	if len(columns) > maxColumns {
		errors["columns"] = "Too many columns"
		return
	}
	for _, c := range columns {
		if strings.TrimSpace(c.Name) == "" || len(c.Name) > 100 {
			errors["columns"] = "Column names must be 1-100 characters"
			return
		}
		if c.WIPLimit != nil && *c.WIPLimit < 0 {
			errors["columns"] = "WIP limits cannot be negative"
			return
		}
	}
}

// BoardResponse is a board plus the number of work items in each column.
type BoardResponse struct {
	models.Board
	ItemCounts map[string]int64 `json:"itemCounts,omitempty"`
}

// buildColumns turns requested columns into board columns, keeping ids that
// already exist on the board. Missing orders follow list position.
func buildColumns(req []ColumnRequest, existing []models.BoardColumn) []models.BoardColumn {
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.ID] = true
	}

	columns := make([]models.BoardColumn, 0, len(req))
	seen := make(map[string]bool, len(req))
	for i, c := range req {
		id := c.ID
		if !known[id] || seen[id] {
			id = uuid.NewString()
		}
		seen[id] = true

		order := i
		if c.Order != nil {
			order = *c.Order
		}
		columns = append(columns, models.BoardColumn{
			ID:       id,
			Name:     validation.CleanText(c.Name, 100),
			Order:    order,
			WIPLimit: c.WIPLimit,
		})
	}
	return columns
}

// rehomeItems moves items whose column was dropped from the board into its
// first column by order.
func rehomeItems(tx *gorm.DB, scope *tenant.Scope, board models.Board) error {
	if len(board.Columns) == 0 {
		return nil
	}
	first := board.Columns[0]
	ids := make([]string, 0, len(board.Columns))
	for _, c := range board.Columns {
		ids = append(ids, c.ID)
		if c.Order < first.Order {
			first = c
		}
	}
	return scope.Where(tx).Model(&models.WorkItem{}).
		Where("board_id = ? AND column_id <> '' AND column_id NOT IN ?", board.ID, ids).
		Update("column_id", first.ID).Error
}

func defaultBoardColumns() []models.BoardColumn {
	columns := make([]models.BoardColumn, len(defaultColumns))
	for i, name := range defaultColumns {
		columns[i] = models.BoardColumn{ID: uuid.NewString(), Name: name, Order: i}
	}
	return columns
}

// List handles GET /projects/{projectId}/boards.
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	pagination := paginationFromQuery(r)

	query := scope.Where(h.db.WithContext(r.Context())).Model(&models.Board{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count boards")
		return
	}

	var boards []models.Board
	if err := query.
		Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit).
		Find(&boards).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list boards")
		return
	}

	writeJSON(w, http.StatusOK, dto.Paginate(boards, total, pagination))
}

// Create handles POST /projects/{projectId}/boards. Boards created without
// columns get New, Active and Done.
func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}

	var req CreateBoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	columns := buildColumns(req.Columns, nil)
	if len(columns) == 0 {
		columns = defaultBoardColumns()
	}

	board := models.Board{
		ProjectID:   scope.ProjectID(),
		Name:        validation.CleanText(req.Name, 200),
		Description: req.Description,
		Columns:     columns,
		CreatedBy:   scope.CallerID(),
	}
	if err := h.db.WithContext(r.Context()).Create(&board).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create board")
		return
	}

	writeJSON(w, http.StatusCreated, BoardResponse{Board: board})
}

// Get handles GET /projects/{projectId}/boards/{boardId}.
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "boardId", "board")
	if !ok {
		return
	}

	var board models.Board
	if err := findScoped(r.Context(), h.db, scope, &board, id); err != nil {
		writeLookupError(w, err, "Board")
		return
	}

	var rows []struct {
		ColumnID string
		Count    int64
	}
	if err := scope.Where(h.db.WithContext(r.Context())).Model(&models.WorkItem{}).
		Select("column_id, COUNT(*) AS count").
		Where("board_id = ?", board.ID).
		Group("column_id").
		Scan(&rows).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count work items")
		return
	}

	counts := make(map[string]int64, len(board.Columns))
	for _, c := range board.Columns {
		counts[c.ID] = 0
	}
	for _, row := range rows {
		counts[row.ColumnID] = row.Count
	}

	writeJSON(w, http.StatusOK, BoardResponse{Board: board, ItemCounts: counts})
}

// Update handles PATCH /projects/{projectId}/boards/{boardId}. A columns
// list replaces the board's columns; ids of kept columns are preserved.
func (h *BoardHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "boardId", "board")
	if !ok {
		return
	}

	var req UpdateBoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	var board models.Board
	if err := findScoped(r.Context(), h.db, scope, &board, id); err != nil {
		writeLookupError(w, err, "Board")
		return
	}

	if req.Name != nil {
		board.Name = validation.CleanText(*req.Name, 200)
	}
	if req.Description != nil {
		board.Description = *req.Description
	}
	if req.Columns != nil {
		board.Columns = buildColumns(*req.Columns, board.Columns)
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := scope.Where(tx).Model(&board).
			Select("name", "description", "columns").
			Updates(&board).Error; err != nil {
			return err
		}
		if req.Columns == nil {
			return nil
		}
		return rehomeItems(tx, scope, board)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update board")
		return
	}

	writeJSON(w, http.StatusOK, BoardResponse{Board: board})
}

// Delete handles DELETE /projects/{projectId}/boards/{boardId}. Work items
// on the board stay in the project without a board or column.
func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "boardId", "board")
	if !ok {
		return
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		res := scope.Where(tx).Delete(&models.Board{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return scope.Where(tx).Model(&models.WorkItem{}).
			Where("board_id = ?", id).
			Updates(map[string]interface{}{"board_id": nil, "column_id": ""}).Error
	})
	if err != nil {
		writeLookupError(w, err, "Board")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Board deleted"})
}
