package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a read-mostly mirror of the external user directory. Credentials
// and password hashes live in the identity service, never here.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`

	// Running exam totals, folded in as submissions are graded.
	TotalExams   int     `json:"total_exams"`
	TotalMarks   float64 `json:"total_marks"`
	AverageScore float64 `json:"average_score"`

	LastActive *time.Time `json:"last_active,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
