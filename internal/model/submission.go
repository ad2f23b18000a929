package model

import "time"

// SubmissionStatus records how a submit attempt ended.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission is the server-side record of one submit attempt.
type Submission struct {
	ID           string            `json:"id"`
	FormID       string            `json:"form_id"`
	Kind         FormKind          `json:"kind"`
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	RedirectPath string            `json:"redirect_path,omitempty"`
	Company      *CompanyProfile   `json:"company,omitempty"`
	Stage        Stage             `json:"stage,omitempty"`
	Status       SubmissionStatus  `json:"status"`
	Error        string            `json:"error,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Enriched reports whether the submission carried a company profile.
func (s Submission) Enriched() bool {
	return !s.Company.Empty()
}
