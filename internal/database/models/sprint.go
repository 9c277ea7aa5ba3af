package models

import (
	"time"

	"github.com/google/uuid"
)

type SprintState string

const (
	SprintStatePlanned   SprintState = "planned"
	SprintStateActive    SprintState = "active"
	SprintStateCompleted SprintState = "completed"
)

func (s SprintState) Valid() bool {
	switch s {
	case SprintStatePlanned, SprintStateActive, SprintStateCompleted:
		return true
	}
	return false
}

type Sprint struct {
	Base
	ProjectID uuid.UUID   `gorm:"type:uuid;index;not null" json:"projectId"`
	Name      string      `gorm:"not null" json:"name"`
	Goal      string      `json:"goal,omitempty"`
	StartDate *time.Time  `json:"startDate,omitempty"`
	EndDate   *time.Time  `json:"endDate,omitempty"`
	State     SprintState `gorm:"not null;index;default:'planned'" json:"state"`
}

func (Sprint) TableName() string {
	return "sprints"
}

// Overlaps reports whether the sprint's date range intersects [from, to).
// Sprints without dates never match.
func (s *Sprint) Overlaps(from, to time.Time) bool {
	if s.StartDate == nil && s.EndDate == nil {
		return false
	}
	start, end := s.StartDate, s.EndDate
	if start == nil {
		start = end
	}
	if end == nil {
		end = start
	}
	return start.Before(to) && !end.Before(from)
}
