package models

import "time"

// Resource is an entry in a client-facing ordered list (downloads, guides,
// onboarding steps). Display order is the position column, maintained by the
// collection repository's swap discipline.
type Resource struct {
	ID         string    `json:"id" db:"id"`
	Collection string    `json:"collection" db:"collection"`
	Title      string    `json:"title" db:"title"`
	URL        string    `json:"url,omitempty" db:"url"`
	Position   int64     `json:"position" db:"position"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
