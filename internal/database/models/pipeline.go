package models

import (
	"time"

	"github.com/google/uuid"
)

type PipelineStatus string

const (
	PipelineStatusIdle      PipelineStatus = "idle"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusSucceeded PipelineStatus = "succeeded"
	PipelineStatusFailed    PipelineStatus = "failed"
)

func (s PipelineStatus) Valid() bool {
	switch s {
	case PipelineStatusIdle, PipelineStatusRunning, PipelineStatusSucceeded, PipelineStatusFailed:
		return true
	}
	return false
}

type Pipeline struct {
	Base
	ProjectID   uuid.UUID          `gorm:"type:uuid;index;not null" json:"projectId"`
	Name        string             `gorm:"not null" json:"name"`
	Description string             `json:"description,omitempty"`
	Repository  string             `json:"repository,omitempty"`
	Branch      string             `gorm:"default:'main'" json:"branch"`
	Status      PipelineStatus     `gorm:"not null;default:'idle'" json:"status"`
	Stages      []PipelineStage    `gorm:"type:text;serializer:json" json:"stages"`
	Variables   []PipelineVariable `gorm:"type:text;serializer:json" json:"variables"`
	LastRunAt   *time.Time         `json:"lastRunAt,omitempty"`
	CreatedBy   uuid.UUID          `gorm:"type:uuid" json:"createdBy"`
}

func (Pipeline) TableName() string {
	return "pipelines"
}

type PipelineStage struct {
	Name     string   `json:"name"`
	Order    int      `json:"order"`
	Commands []string `json:"commands"`
}

// PipelineVariable values marked Secret are stored sealed and never returned.
type PipelineVariable struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
}
