package models

import (
	"time"

	"github.com/google/uuid"
)

// Idea statuses. StatusArchived doubles as the logical-delete marker.
const (
	StatusIdea     = "idea"
	StatusResearch = "research"
	StatusProgress = "progress"
	StatusLaunched = "launched"
	StatusArchived = "archived"
)

// DefaultColor is assigned to ideas created without a color.
const DefaultColor = "#6366f1"

// Statuses lists every valid idea status in display order.
var Statuses = []string{StatusIdea, StatusResearch, StatusProgress, StatusLaunched, StatusArchived}

// ValidStatus reports whether s is one of Statuses.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Idea is a single idea record. OwnerID and CreatedAt never change after insert.
type Idea struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	OwnerID     uuid.UUID `db:"owner_id"    json:"owner_id"`
	Title       string    `db:"title"       json:"title"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status"      json:"status"`
	Tags        []string  `db:"tags"        json:"tags"`
	Color       string    `db:"color"       json:"color"`
	ImageURL    *string   `db:"image_url"   json:"image_url"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}

// IdeaPatch carries the fields of a partial update. Nil fields are left untouched.
type IdeaPatch struct {
	Title       *string
	Description *string
	Status      *string
	Tags        *[]string
	Color       *string
	ImageURL    *string

	// ClearImageURL sets image_url to NULL. It wins over ImageURL.
	ClearImageURL bool
}
