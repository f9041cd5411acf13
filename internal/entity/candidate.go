package entity

import (
	"strings"
	"time"
)

// Candidate represents a recruitment-platform candidate. Immutable once fetched.
type Candidate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CVReference string    `json:"cv_reference,omitempty"`
}

// DisplayName prefers the platform name, falling back to first/last.
func (c Candidate) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Document is a downloaded CV.
type Document struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Size returns the document length in bytes.
func (d Document) Size() int { return len(d.Data) }
