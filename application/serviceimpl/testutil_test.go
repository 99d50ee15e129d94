package serviceimpl

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"findme-api/domain/models"
	"findme-api/domain/services"
)

// fakeRecognition is an in-memory recognition boundary. Detection results
// are keyed by filename; searches return a canned response.
type fakeRecognition struct {
	mu sync.Mutex

	detectTokens map[string][]string
	searchResp   *services.FaceSearchResponse
	searchErr    error
	detectErr    error

	detectCalls int
	searchCalls int
	faceSets    map[string][]string
}

func newFakeRecognition() *fakeRecognition {
	return &fakeRecognition{
		detectTokens: make(map[string][]string),
		faceSets:     make(map[string][]string),
	}
}

func (f *fakeRecognition) Detect(ctx context.Context, image []byte, filename string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectCalls++
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.detectTokens[filename], nil
}

func (f *fakeRecognition) CreateFaceSet(ctx context.Context, outerID, seedToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faceSets[outerID] = []string{seedToken}
	return nil
}

func (f *fakeRecognition) AddFaces(ctx context.Context, outerID string, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faceSets[outerID] = append(f.faceSets[outerID], tokens...)
	return nil
}

func (f *fakeRecognition) Search(ctx context.Context, outerID, faceToken string, returnCount int) (*services.FaceSearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResp == nil {
		return &services.FaceSearchResponse{}, nil
	}
	return f.searchResp, nil
}

// fakeFetcher resolves share URLs with a fixed prefix and returns a canned
// album
type fakeFetcher struct {
	album    *services.AlbumFetchResult
	fetchErr error

	fetchCalls int
}

func (f *fakeFetcher) ExtractShareKey(rawURL string) (string, bool) {
	const prefix = "https://v.pixcheese.com/s/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(rawURL, prefix), true
}

func (f *fakeFetcher) FetchAlbum(ctx context.Context, shareKey string) (*services.AlbumFetchResult, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.album, nil
}

// fakeSessionRepo is an in-memory SessionRepository
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.SearchSession
	seq      int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*models.SearchSession)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.SearchSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	session.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *models.SearchSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SearchSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	session.Status = models.SessionStatusFailed
	session.Error = errMsg
	if session.CacheStatus == models.CacheStatusBuilding {
		session.CacheStatus = models.CacheStatusNone
	}
	return nil
}

func (r *fakeSessionRepo) CountByShareKey(ctx context.Context, shareKey string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, session := range r.sessions {
		if session.ShareKey == shareKey {
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) GetLatestReadyByShareKey(ctx context.Context, shareKey string) (*models.SearchSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	candidates := make([]*models.SearchSession, 0)
	for _, session := range r.sessions {
		if session.ShareKey == shareKey && session.CacheStatus == models.CacheStatusReady {
			candidates = append(candidates, session)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	copied := *candidates[0]
	return &copied, nil
}

func (r *fakeSessionRepo) ExpireReadyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired int64
	for _, session := range r.sessions {
		if session.CacheStatus == models.CacheStatusReady && session.CreatedAt.Before(cutoff) {
			session.CacheStatus = models.CacheStatusNone
			expired++
		}
	}
	return expired, nil
}

// fakeAlbumRepo is an in-memory AlbumEntryRepository
type fakeAlbumRepo struct {
	mu      sync.Mutex
	entries []models.AlbumEntry
}

func newFakeAlbumRepo() *fakeAlbumRepo {
	return &fakeAlbumRepo{}
}

func (r *fakeAlbumRepo) Create(ctx context.Context, entry *models.AlbumEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAlbumRepo) CreateBatch(ctx context.Context, entries []*models.AlbumEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range entries {
		r.entries = append(r.entries, *entry)
	}
	return nil
}

func (r *fakeAlbumRepo) GetBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AlbumEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.AlbumEntry, 0)
	for _, entry := range r.entries {
		if entry.SessionID == sessionID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PhotoIndex < result[j].PhotoIndex
	})
	return result, nil
}

func (r *fakeAlbumRepo) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	entries, _ := r.GetBySession(ctx, sessionID)
	return int64(len(entries)), nil
}

// fakeMatchRepo is an in-memory MatchRepository
type fakeMatchRepo struct {
	mu      sync.Mutex
	matches []models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{}
}

func (r *fakeMatchRepo) CreateBatch(ctx context.Context, matches []*models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, match := range matches {
		r.matches = append(r.matches, *match)
	}
	return nil
}

func (r *fakeMatchRepo) GetBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.Match, 0)
	for _, match := range r.matches {
		if match.SessionID == sessionID {
			result = append(result, match)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].AlbumPhotoIndex < result[j].AlbumPhotoIndex
	})
	return result, nil
}
