package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
	store  storage.Store
}

func NewHandler(db *gorm.DB, logger *slog.Logger, store storage.Store) *Handler {
	return &Handler{
		db:     db,
		logger: logger,
		store:  store,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeBlobsDelete, h.HandleBlobsDelete)
	mux.HandleFunc(TypeOrphanSweep, h.HandleOrphanSweep)
}

func (h *Handler) HandleBlobsDelete(ctx context.Context, t *asynq.Task) error {
	var payload BlobsDeletePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	h.logger.Info("deleting blobs", "count", len(payload.Keys), "reason", payload.Reason)

	// Failed keys make asynq retry the whole task; deletes are idempotent.
	return storage.DeleteAll(ctx, h.store, payload.Keys, h.logger)
}

func (h *Handler) HandleOrphanSweep(ctx context.Context, t *asynq.Task) error {
	result, err := h.Sweep(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("orphan sweep finished", "removed", result.Removed, "blobs", result.Blobs)
	return nil
}

// SweepResult counts what an orphan sweep removed, per table.
type SweepResult struct {
	Removed map[string]int64
	Blobs   int
}

// Sweep removes project-scoped records whose project no longer exists,
// together with the blobs they reference.
func (h *Handler) Sweep(ctx context.Context) (*SweepResult, error) {
	db := h.db.WithContext(ctx)
	live := db.Model(&models.Project{}).Select("id")

	var keys []string

	var items []models.WorkItem
	if err := db.Select("id", "attachments").Where("project_id NOT IN (?)", live).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("finding orphaned work items: %w", err)
	}
	for i := range items {
		keys = append(keys, items[i].AttachmentKeys()...)
	}

	var pages []models.WikiPage
	if err := db.Select("id", "html_key").Where("project_id NOT IN (?)", live).Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("finding orphaned wiki pages: %w", err)
	}
	for _, p := range pages {
		if p.HTMLKey != "" {
			keys = append(keys, p.HTMLKey)
		}
	}

	result := &SweepResult{Removed: make(map[string]int64)}
	for _, model := range models.TenantModels() {
		res := db.Where("project_id NOT IN (?)", live).Delete(model)
		if res.Error != nil {
			return nil, fmt.Errorf("sweeping %T: %w", model, res.Error)
		}
		if res.RowsAffected > 0 {
			result.Removed[tableName(model)] = res.RowsAffected
		}
	}

	if len(keys) > 0 {
		_ = storage.DeleteAll(ctx, h.store, keys, h.logger)
		result.Blobs = len(keys)
	}

	return result, nil
}

func tableName(model interface{}) string {
	if t, ok := model.(schema.Tabler); ok {
		return t.TableName()
	}
	return fmt.Sprintf("%T", model)
}
