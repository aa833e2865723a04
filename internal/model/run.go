package model

import "time"

// RunStatus represents the current state of an imputation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the income imputation.
type Run struct {
	ID          string     `json:"id"`
	Seed        uint64     `json:"seed"`
	Attribute   string     `json:"attribute"`
	Status      RunStatus  `json:"status"`
	Households  int        `json:"households"`
	Communes    int        `json:"communes"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
