package models

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	Base
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description,omitempty"`
	LogoKey     string    `json:"-"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	CreatedBy   uuid.UUID `gorm:"type:uuid;index;not null" json:"createdBy"`

	Members []ProjectMember `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Project) TableName() string {
	return "projects"
}

// IsCreator reports whether userID owns the project.
func (p *Project) IsCreator(userID string) bool {
	return SameID(p.CreatedBy.String(), userID)
}

// HasAccess is the tenant membership invariant: a user may act on a project
// iff they created it or are listed as a member.
func (p *Project) HasAccess(userID string) bool {
	if p.IsCreator(userID) {
		return true
	}
	for _, m := range p.Members {
		if SameID(m.UserID.String(), userID) {
			return true
		}
	}
	return false
}

// MemberIDs returns the member user ids in insertion order.
func (p *Project) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

type ProjectMember struct {
	ProjectID uuid.UUID `gorm:"type:uuid;primaryKey" json:"projectId"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"userId"`
	Role      string    `gorm:"not null;default:'member'" json:"role"` // owner, member
	CreatedAt time.Time `json:"createdAt"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}
