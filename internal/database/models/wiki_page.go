package models

import "github.com/google/uuid"

type WikiPage struct {
	Base
	ProjectID uuid.UUID  `gorm:"type:uuid;index;not null" json:"projectId"`
	Title     string     `gorm:"not null" json:"title"`
	Slug      string     `gorm:"index" json:"slug"`
	Content   string     `gorm:"type:text" json:"content"` // markdown
	HTMLKey   string     `json:"-"`
	HTMLURL   string     `json:"htmlUrl,omitempty"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parentId,omitempty"`
	CreatedBy uuid.UUID  `gorm:"type:uuid" json:"createdBy"`
	UpdatedBy uuid.UUID  `gorm:"type:uuid" json:"updatedBy"`
}

func (WikiPage) TableName() string {
	return "wiki_pages"
}
