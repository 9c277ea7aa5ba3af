package models

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryPlan struct {
	Base
	ProjectID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"projectId"`
	Name        string      `gorm:"not null" json:"name"`
	Description string      `json:"description,omitempty"`
	StartDate   *time.Time  `json:"startDate,omitempty"`
	EndDate     *time.Time  `json:"endDate,omitempty"`
	SprintIDs   []uuid.UUID `gorm:"type:text;serializer:json" json:"sprintIds"`
	Milestones  []Milestone `gorm:"type:text;serializer:json" json:"milestones"`
	CreatedBy   uuid.UUID   `gorm:"type:uuid" json:"createdBy"`
}

func (DeliveryPlan) TableName() string {
	return "delivery_plans"
}

type Milestone struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Date  *time.Time `json:"date,omitempty"`
	Done  bool       `json:"done"`
}
