package models

import (
	"time"

	"github.com/google/uuid"
)

type WorkItem struct {
	Base
	ProjectID   uuid.UUID `gorm:"type:uuid;index;not null" json:"projectId"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `gorm:"index;default:'Task'" json:"type"`   // Task, Bug, Epic, User Story...
	State       string    `gorm:"index;default:'New'" json:"state"`   // free text, e.g. New, Active, Done
	Priority    string    `gorm:"default:'Medium'" json:"priority"`

	AssigneeID *uuid.UUID `gorm:"type:uuid;index" json:"assigneeId,omitempty"`
	CreatedBy  uuid.UUID  `gorm:"type:uuid" json:"createdBy"`

	// Kanban placement. Order is scoped to (ProjectID, BoardID, ColumnID).
	BoardID  *uuid.UUID `gorm:"type:uuid;index" json:"boardId,omitempty"`
	ColumnID string     `gorm:"index" json:"columnId,omitempty"`
	Order    int        `gorm:"column:position;not null;default:0" json:"order"`

	SprintID *uuid.UUID `gorm:"type:uuid;index" json:"sprintId,omitempty"`

	Tags        []string     `gorm:"type:text;serializer:json" json:"tags"`
	Timeline    Timeline     `gorm:"type:text;serializer:json" json:"timeline"`
	Attachments []Attachment `gorm:"type:text;serializer:json" json:"attachments"`
	TimeSpent   float64      `gorm:"not null;default:0" json:"timeSpent"` // hours
}

func (WorkItem) TableName() string {
	return "work_items"
}

type Timeline struct {
	StartDate     *time.Time      `json:"startDate,omitempty"`
	DueDate       *time.Time      `json:"dueDate,omitempty"`
	CompletedDate *time.Time      `json:"completedDate,omitempty"`
	Events        []TimelineEvent `json:"events"`
}

// TimelineEvent is an entry in the append-only work item history.
type TimelineEvent struct {
	Type    string    `json:"type"` // created, state, moved, sprint, time, comment, attachment
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"userId"`
	At      time.Time `json:"at"`
}

// Record appends an event to the timeline.
func (t *Timeline) Record(eventType, message string, userID uuid.UUID, at time.Time) {
	t.Events = append(t.Events, TimelineEvent{
		Type:    eventType,
		Message: message,
		UserID:  userID,
		At:      at.UTC(),
	})
}

// Attachment references a file held in the blob store.
type Attachment struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	UploadedBy uuid.UUID `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// AttachmentKeys returns the blob keys referenced by the item.
func (w *WorkItem) AttachmentKeys() []string {
	keys := make([]string, 0, len(w.Attachments))
	for _, a := range w.Attachments {
		if a.Key != "" {
			keys = append(keys, a.Key)
		}
	}
	return keys
}
