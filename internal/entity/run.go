package entity

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// Run is one hidden-state extraction recorded in the ledger.
type Run struct {
	ID           uuid.UUID `json:"id"`
	Mode         string    `json:"mode"`
	RivletsDir   string    `json:"rivlets_dir"`
	OutputPath   string    `json:"output_path"`
	ModelPath    string    `json:"model_path,omitempty"`
	Rows         int       `json:"rows"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}
