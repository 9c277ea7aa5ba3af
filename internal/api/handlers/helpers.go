package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/tenant"
	"gorm.io/gorm"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message})
}

func writeValidation(w http.ResponseWriter, details map[string]string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
}

// decodeJSON reads a size-limited JSON body into v and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func paginationFromQuery(r *http.Request) dto.PaginationParams {
	q := r.URL.Query()
	p := dto.PaginationParams{}
	p.Page, _ = strconv.Atoi(q.Get("page"))
	p.Limit, _ = strconv.Atoi(q.Get("limit"))
	p.Normalize()
	return p
}

// scopeFrom returns the verified tenant scope installed by the Tenant
// middleware. A missing scope is a routing bug.
func scopeFrom(w http.ResponseWriter, r *http.Request) (*tenant.Scope, bool) {
	scope := tenant.FromContext(r.Context())
	if scope == nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return scope, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// findScoped loads one project-scoped record by id. Records of other
// projects are reported as gorm.ErrRecordNotFound.
func findScoped(ctx context.Context, db *gorm.DB, scope *tenant.Scope, out interface{}, id uuid.UUID) error {
	return scope.Where(db.WithContext(ctx)).First(out, "id = ?", id).Error
}

// writeLookupError answers 404 for a missing record and 500 otherwise.
func writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to load "+strings.ToLower(what))
}

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// parseOptionalID parses a nullable id field from a request.
func parseOptionalID(raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// parseOptionalDate parses a nullable YYYY-MM-DD or RFC 3339 field.
func parseOptionalDate(raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, ok := validation.ParseDate(*raw)
	if !ok {
		return nil, false
	}
	return &t, true
}
