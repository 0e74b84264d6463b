package audit

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id has no record
var ErrRunNotFound = errors.New("build run not found")

// Status is the lifecycle stage of one build attempt
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run records one attempt at building a user's knowledge graph from a chat
type Run struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	ChatID     string     `json:"chat_id"`
	Attempt    int        `json:"attempt"`
	RetryOf    string     `json:"retry_of,omitempty"`
	Status     Status     `json:"status"`
	Mode       string     `json:"mode,omitempty"` // "direct" or "merged"
	Statements int        `json:"statements"`
	Error      string     `json:"error,omitempty"`
	Retryable  bool       `json:"retryable"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a terminal status
func (r *Run) Finished() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
