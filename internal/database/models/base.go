package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with UUID primary key and timestamps
type Base struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// SameID compares two identifiers by their canonical string form. Ids reach
// the API as path params, headers, JSON strings and token claims, so every
// membership comparison goes through here.
func SameID(a, b string) bool {
	return a != "" && normalizeID(a) == normalizeID(b)
}

func normalizeID(s string) string {
	if id, err := uuid.Parse(s); err == nil {
		return id.String()
	}
	return s
}

// TenantModels lists the records that carry a project_id, in the order they
// are removed when their project goes away.
func TenantModels() []interface{} {
	return []interface{}{
		&WorkItem{},
		&Board{},
		&Sprint{},
		&DeliveryPlan{},
		&Pipeline{},
		&WikiPage{},
		&ProjectMember{},
	}
}

// All returns every model, for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&ProjectMember{},
		&WorkItem{},
		&Board{},
		&Sprint{},
		&DeliveryPlan{},
		&Pipeline{},
		&WikiPage{},
	}
}
