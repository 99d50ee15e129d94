package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CompressionInfo records how the photo was normalized before upload
type CompressionInfo struct {
	Status       string `json:"status,omitempty"`
	UsedOriginal bool   `json:"usedOriginal,omitempty"`
	SizeKB       int    `json:"sizeKB,omitempty"`
}

// SourceInfo records where a remote photo came from
type SourceInfo struct {
	Type       string `json:"type,omitempty"`
	FileURL    string `json:"fileUrl,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// AlbumEntryMetadata is stored as jsonb on the album entry row. FaceTokens
// is the cache payload: the tokens detected in this photo, in detection
// order.
type AlbumEntryMetadata struct {
	FaceTokens  []string         `json:"faceTokens"`
	Compression *CompressionInfo `json:"compression,omitempty"`
	Source      *SourceInfo      `json:"source,omitempty"`
}

// AlbumEntry is one candidate photo within a session. Entries are written
// once when detection for the photo completes and never mutated; PhotoIndex
// is the only cross-reference key back to the photo.
type AlbumEntry struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_album_session_photo"`

	PhotoIndex  int `gorm:"not null;uniqueIndex:idx_album_session_photo"`
	Filename    string
	ContentType string
	SizeBytes   int64
	FaceCount   int `gorm:"default:0"`

	Metadata string `gorm:"type:jsonb"`

	CreatedAt time.Time
}

func (AlbumEntry) TableName() string {
	return "findme_search_albums"
}

// ParseMetadata decodes the metadata column. Malformed metadata, or metadata
// whose faceTokens field is not an array, degrades to an empty token list so
// a broken cache row is never reused as detection results.
func (e *AlbumEntry) ParseMetadata() AlbumEntryMetadata {
	if e.Metadata == "" {
		return AlbumEntryMetadata{FaceTokens: []string{}}
	}

	var meta AlbumEntryMetadata
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil {
		return AlbumEntryMetadata{FaceTokens: []string{}}
	}
	if meta.FaceTokens == nil {
		meta.FaceTokens = []string{}
	}
	return meta
}

// SetMetadata encodes meta into the metadata column
func (e *AlbumEntry) SetMetadata(meta AlbumEntryMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	e.Metadata = string(data)
	return nil
}
