package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"findme-api/domain/models"
)

// Validation-style failures. These fail the session but are user errors,
// not boundary faults.
var (
	ErrSelfieRequired  = errors.New("a selfie photo is required")
	ErrAlbumRequired   = errors.New("at least one album photo is required")
	ErrEventURLQuery   = errors.New("an album share URL is required")
	ErrInvalidShareURL = errors.New("the album share URL is not recognized")
	ErrNoAlbumFaces    = errors.New("no faces were detected in the album photos")
	ErrNoSelfieFace    = errors.New("no face was detected in the selfie")
)

// IsValidationError reports whether err is a user-facing validation failure
// rather than a boundary or internal fault
func IsValidationError(err error) bool {
	return errors.Is(err, ErrSelfieRequired) ||
		errors.Is(err, ErrAlbumRequired) ||
		errors.Is(err, ErrEventURLQuery) ||
		errors.Is(err, ErrInvalidShareURL) ||
		errors.Is(err, ErrNoAlbumFaces) ||
		errors.Is(err, ErrNoSelfieFace)
}

// FaceSearchHit is one raw hit from a faceset search
type FaceSearchHit struct {
	Token      string
	Confidence float64
}

// FaceSearchResponse is the result of searching one faceset with a query
// face. Thresholds maps a target false-positive rate (e.g. "1e-5") to the
// confidence value the boundary recommends for it.
type FaceSearchResponse struct {
	Hits       []FaceSearchHit
	Thresholds map[string]float64
}

// RecognitionClient is the recognition boundary: face detection plus
// capacity-bounded, searchable remote face indexes
type RecognitionClient interface {
	Detect(ctx context.Context, image []byte, filename string) ([]string, error)
	CreateFaceSet(ctx context.Context, outerID, seedToken string) error
	AddFaces(ctx context.Context, outerID string, tokens []string) error
	Search(ctx context.Context, outerID, faceToken string, returnCount int) (*FaceSearchResponse, error)
}

// AlbumPhoto is one candidate photo, either uploaded or downloaded from a
// remote collection
type AlbumPhoto struct {
	Filename    string
	ContentType string
	Data        []byte
	FileURL     string
	PreviewURL  string
}

// AlbumFetchResult is a resolved remote collection
type AlbumFetchResult struct {
	ShareKey  string
	ProjectID int
	Photos    []AlbumPhoto
}

// AlbumFetcher is the remote album-fetch boundary
type AlbumFetcher interface {
	// ExtractShareKey normalizes a share URL into a collection identity;
	// ok is false when the URL is not a supported share link
	ExtractShareKey(rawURL string) (shareKey string, ok bool)
	FetchAlbum(ctx context.Context, shareKey string) (*AlbumFetchResult, error)
}

// UploadedPhoto is a photo received in the run request
type UploadedPhoto struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RunSessionInput is the single externally observable operation's input
type RunSessionInput struct {
	UserID        *uuid.UUID
	Selfie        UploadedPhoto
	AlbumPhotos   []UploadedPhoto
	UseLocalAlbum bool
	EventURL      string
}

// MatchResult is one ranked match in the response
type MatchResult struct {
	PhotoIndex int     `json:"photoIndex"`
	Filename   string  `json:"filename"`
	Confidence float64 `json:"confidence"`
	TokenCount int     `json:"tokenCount"`
	Rank       int     `json:"rank"`
	PreviewURL string  `json:"previewUrl,omitempty"`
	FileURL    string  `json:"fileUrl,omitempty"`
}

// RunSessionResult is the single externally observable operation's output
type RunSessionResult struct {
	SessionID   uuid.UUID          `json:"sessionId"`
	Matches     []MatchResult      `json:"matches"`
	EventURL    string             `json:"eventUrl,omitempty"`
	ShareKey    string             `json:"shareKey,omitempty"`
	CacheStatus models.CacheStatus `json:"cacheStatus"`
}

// SessionDetail is a persisted session with its matches
type SessionDetail struct {
	Session models.SearchSession `json:"session"`
	Matches []MatchResult        `json:"matches"`
}

// SearchService runs face-match sessions
type SearchService interface {
	RunSession(ctx context.Context, input RunSessionInput) (*RunSessionResult, error)
	GetSession(ctx context.Context, id uuid.UUID) (*SessionDetail, error)
}
