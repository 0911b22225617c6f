package domain

import (
	"strings"
	"time"
)

type Thread struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (t Thread) Deleted() bool {
	return t.DeletedAt != nil
}

// DisplayTitle devuelve el título del thread o un placeholder mientras
// el título generado todavía no existe.
func (t Thread) DisplayTitle() string {
	if strings.TrimSpace(t.Title) == "" {
		return "New conversation"
	}
	return t.Title
}
