package models

import "github.com/google/uuid"

type Board struct {
	Base
	ProjectID   uuid.UUID     `gorm:"type:uuid;index;not null" json:"projectId"`
	Name        string        `gorm:"not null" json:"name"`
	Description string        `json:"description,omitempty"`
	Columns     []BoardColumn `gorm:"type:text;serializer:json" json:"columns"`
	CreatedBy   uuid.UUID     `gorm:"type:uuid" json:"createdBy"`
}

func (Board) TableName() string {
	return "boards"
}

type BoardColumn struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Order    int    `json:"order"`
	WIPLimit *int   `json:"wipLimit,omitempty"`
}

// HasColumn reports whether columnID names one of the board's columns.
func (b *Board) HasColumn(columnID string) bool {
	for _, c := range b.Columns {
		if c.ID == columnID {
			return true
		}
	}
	return false
}
