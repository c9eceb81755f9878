package model

import "time"

type Milestone struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Date      time.Time   `json:"date"`
	Completed bool        `json:"completed"`
	ProjectID string      `json:"projectId"`
	CreatedAt time.Time   `json:"createdAt"`
	Project   *ProjectRef `json:"project,omitempty"`
}
