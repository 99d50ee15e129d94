package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// CacheStatus is the detection-cache axis of a session, independent of its
// lifecycle status
type CacheStatus string

const (
	CacheStatusNone     CacheStatus = "none"
	CacheStatusBuilding CacheStatus = "building"
	CacheStatusReady    CacheStatus = "ready"
	CacheStatusReuse    CacheStatus = "reuse"
)

// FaceSetDescriptor locates one remote faceset chunk within the logical
// token list of a session
type FaceSetDescriptor struct {
	OuterID     string `json:"outerId"`
	StartOffset int    `json:"startOffset"`
	TokenCount  int    `json:"tokenCount"`
}

// SessionMetadata is stored as jsonb on the session row
type SessionMetadata struct {
	UseLocalAlbum   bool                `json:"useLocalAlbum"`
	SelfieName      string              `json:"selfieName,omitempty"`
	FaceSets        []FaceSetDescriptor `json:"faceSets,omitempty"`
	TokenCount      int                 `json:"tokenCount,omitempty"`
	DetectionSource string              `json:"detectionSource,omitempty"` // "live" or "cache"
	CacheSessionID  string              `json:"cacheSessionId,omitempty"`  // ready session whose entries were reused
}

// SearchSession is one face-match request and its resulting state
type SearchSession struct {
	ID            uuid.UUID  `gorm:"primaryKey;type:uuid"`
	UserID        *uuid.UUID `gorm:"type:uuid;index"`
	EventURL      string
	ShareKey      string `gorm:"index"` // normalized collection identity, empty for local uploads
	UseLocalAlbum bool

	Status      SessionStatus `gorm:"default:'processing';index"`
	CacheStatus CacheStatus   `gorm:"default:'none';index"`

	AlbumCount int `gorm:"default:0"`
	MatchCount int `gorm:"default:0"`

	Metadata string `gorm:"type:jsonb"`
	Error    string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SearchSession) TableName() string {
	return "findme_search_sessions"
}

// ParseMetadata decodes the metadata column, returning a zero value when the
// column is empty or malformed
func (s *SearchSession) ParseMetadata() SessionMetadata {
	var meta SessionMetadata
	if s.Metadata == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(s.Metadata), &meta); err != nil {
		return SessionMetadata{}
	}
	return meta
}

// SetMetadata encodes meta into the metadata column
func (s *SearchSession) SetMetadata(meta SessionMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	s.Metadata = string(data)
	return nil
}
