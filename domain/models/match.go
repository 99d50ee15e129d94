package models

import (
	"time"

	"github.com/google/uuid"
)

// Match is one candidate photo judged to contain the reference face.
// Confidence is the maximum across all contributing hits; Rank is a dense
// 1-based ordering by descending confidence.
type Match struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_match_session_photo"`

	AlbumPhotoIndex int `gorm:"not null;uniqueIndex:idx_match_session_photo"`
	Filename        string
	Confidence      float64
	TokenCount      int
	Rank            int

	PreviewURL string
	FileURL    string

	CreatedAt time.Time
}

func (Match) TableName() string {
	return "findme_search_matches"
}
