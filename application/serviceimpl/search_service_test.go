package serviceimpl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findme-api/domain/models"
	"findme-api/domain/services"
	"findme-api/pkg/config"
)

type serviceFixture struct {
	recognition *fakeRecognition
	fetcher     *fakeFetcher
	sessions    *fakeSessionRepo
	albums      *fakeAlbumRepo
	matches     *fakeMatchRepo
	service     services.SearchService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		recognition: newFakeRecognition(),
		fetcher:     &fakeFetcher{},
		sessions:    newFakeSessionRepo(),
		albums:      newFakeAlbumRepo(),
		matches:     newFakeMatchRepo(),
	}
	f.service = NewSearchService(f.sessions, f.albums, f.matches, f.recognition, f.fetcher, nil, config.FindMeConfig{
		DetectionConcurrency:   3,
		DetectionRPS:           100,
		DetectionMaxRetries:    3,
		DetectionRetryDelayMs:  1,
		FaceSetTokenCapacity:   1000,
		SearchReturnCount:      5,
		MatchThresholdTarget:   "1e-5",
		MatchThresholdFallback: 70,
	})
	return f
}

func selfieUpload() services.UploadedPhoto {
	return services.UploadedPhoto{Filename: "selfie.jpg", ContentType: "image/jpeg", Data: []byte("selfie")}
}

func (f *serviceFixture) stubSelfie() {
	f.recognition.detectTokens["selfie.jpg"] = []string{"selfie-tok"}
}

func TestRunSession_Validation(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	_, err := f.service.RunSession(ctx, services.RunSessionInput{UseLocalAlbum: true})
	assert.ErrorIs(t, err, services.ErrSelfieRequired)

	_, err = f.service.RunSession(ctx, services.RunSessionInput{Selfie: selfieUpload(), UseLocalAlbum: true})
	assert.ErrorIs(t, err, services.ErrAlbumRequired)

	_, err = f.service.RunSession(ctx, services.RunSessionInput{Selfie: selfieUpload()})
	assert.ErrorIs(t, err, services.ErrEventURLQuery)

	_, err = f.service.RunSession(ctx, services.RunSessionInput{Selfie: selfieUpload(), EventURL: "https://example.com/nope"})
	assert.ErrorIs(t, err, services.ErrInvalidShareURL)

	// Validation failures happen before any session row exists
	assert.Empty(t, f.sessions.sessions)
}

func TestRunSession_LocalAlbum(t *testing.T) {
	f := newServiceFixture()
	f.stubSelfie()
	f.recognition.detectTokens["a.jpg"] = []string{"tokA"}
	f.recognition.detectTokens["b.jpg"] = []string{"tokB"}
	f.recognition.detectTokens["c.jpg"] = nil
	f.recognition.searchResp = &services.FaceSearchResponse{
		Hits: []services.FaceSearchHit{
			{Token: "tokB", Confidence: 88},
			{Token: "tokA", Confidence: 65},
		},
		Thresholds: map[string]float64{"1e-5": 80},
	}

	result, err := f.service.RunSession(context.Background(), services.RunSessionInput{
		Selfie:        selfieUpload(),
		UseLocalAlbum: true,
		AlbumPhotos: []services.UploadedPhoto{
			{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
			{Filename: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
			{Filename: "c.jpg", ContentType: "image/jpeg", Data: []byte("c")},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, 1, result.Matches[0].PhotoIndex)
	assert.Equal(t, "b.jpg", result.Matches[0].Filename)
	assert.Equal(t, float64(88), result.Matches[0].Confidence)
	assert.Equal(t, 1, result.Matches[0].Rank)
	assert.Equal(t, models.CacheStatusNone, result.CacheStatus)

	session, err := f.sessions.GetByID(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, 3, session.AlbumCount)
	assert.Equal(t, 1, session.MatchCount)

	entries, err := f.albums.GetBySession(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 1, entries[0].FaceCount)
	assert.Equal(t, 0, entries[2].FaceCount)
	assert.Equal(t, []string{"tokB"}, entries[1].ParseMetadata().FaceTokens)
}

func TestRunSession_NoSelfieFace(t *testing.T) {
	f := newServiceFixture()
	f.recognition.detectTokens["a.jpg"] = []string{"tokA"}

	_, err := f.service.RunSession(context.Background(), services.RunSessionInput{
		Selfie:        selfieUpload(),
		UseLocalAlbum: true,
		AlbumPhotos:   []services.UploadedPhoto{{Filename: "a.jpg", Data: []byte("a")}},
	})
	require.ErrorIs(t, err, services.ErrNoSelfieFace)

	// The session exists and is failed; only the selfie was detected
	require.Len(t, f.sessions.sessions, 1)
	for _, session := range f.sessions.sessions {
		assert.Equal(t, models.SessionStatusFailed, session.Status)
		assert.NotEmpty(t, session.Error)
	}
	assert.Equal(t, 1, f.recognition.detectCalls)
}

func TestRunSession_NoAlbumFaces(t *testing.T) {
	f := newServiceFixture()
	f.stubSelfie()
	f.recognition.detectTokens["a.jpg"] = nil

	_, err := f.service.RunSession(context.Background(), services.RunSessionInput{
		Selfie:        selfieUpload(),
		UseLocalAlbum: true,
		AlbumPhotos:   []services.UploadedPhoto{{Filename: "a.jpg", Data: []byte("a")}},
	})
	require.ErrorIs(t, err, services.ErrNoAlbumFaces)
}

func remoteFixture() *serviceFixture {
	f := newServiceFixture()
	f.stubSelfie()
	f.recognition.detectTokens["p0.jpg"] = []string{"alb-0"}
	f.recognition.detectTokens["p1.jpg"] = []string{"alb-1"}
	f.recognition.searchResp = &services.FaceSearchResponse{
		Hits:       []services.FaceSearchHit{{Token: "alb-1", Confidence: 88}},
		Thresholds: map[string]float64{"1e-5": 80},
	}
	f.fetcher.album = &services.AlbumFetchResult{
		ShareKey:  "evt123",
		ProjectID: 42,
		Photos: []services.AlbumPhoto{
			{Filename: "p0.jpg", ContentType: "image/jpeg", Data: []byte("p0"), FileURL: "https://cdn/p0", PreviewURL: "https://cdn/p0.thumb"},
			{Filename: "p1.jpg", ContentType: "image/jpeg", Data: []byte("p1"), FileURL: "https://cdn/p1", PreviewURL: "https://cdn/p1.thumb"},
		},
	}
	return f
}

func remoteInput() services.RunSessionInput {
	return services.RunSessionInput{
		Selfie:   selfieUpload(),
		EventURL: "https://v.pixcheese.com/s/evt123",
	}
}

func TestRunSession_CacheLifecycle(t *testing.T) {
	f := remoteFixture()
	ctx := context.Background()

	// First run: never builds a cache
	first, err := f.service.RunSession(ctx, remoteInput())
	require.NoError(t, err)
	assert.Equal(t, models.CacheStatusNone, first.CacheStatus)
	assert.Equal(t, "evt123", first.ShareKey)
	assert.Equal(t, 3, f.recognition.detectCalls)
	assert.Equal(t, 1, f.fetcher.fetchCalls)

	// Second run: builds the cache and finishes ready
	second, err := f.service.RunSession(ctx, remoteInput())
	require.NoError(t, err)
	assert.Equal(t, models.CacheStatusReady, second.CacheStatus)
	assert.Equal(t, 6, f.recognition.detectCalls)
	assert.Equal(t, 2, f.fetcher.fetchCalls)

	secondSession, err := f.sessions.GetByID(ctx, second.SessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, secondSession.ParseMetadata().FaceSets)

	// Third run: reuses cached detections, only the selfie hits the boundary
	third, err := f.service.RunSession(ctx, remoteInput())
	require.NoError(t, err)
	assert.Equal(t, models.CacheStatusReuse, third.CacheStatus)
	assert.Equal(t, 7, f.recognition.detectCalls, "cached runs must not re-detect album photos")
	assert.Equal(t, 2, f.fetcher.fetchCalls, "cached runs must not re-fetch the album")

	require.Len(t, third.Matches, 1)
	assert.Equal(t, 1, third.Matches[0].PhotoIndex)
	assert.Equal(t, "p1.jpg", third.Matches[0].Filename)
	assert.Equal(t, "https://cdn/p1.thumb", third.Matches[0].PreviewURL)

	thirdSession, err := f.sessions.GetByID(ctx, third.SessionID)
	require.NoError(t, err)
	assert.Equal(t, secondSession.ID.String(), thirdSession.ParseMetadata().CacheSessionID)
	assert.Equal(t, "cache", thirdSession.ParseMetadata().DetectionSource)
}

func TestRunSession_BuildFailureRevertsToNone(t *testing.T) {
	f := remoteFixture()
	ctx := context.Background()

	_, err := f.service.RunSession(ctx, remoteInput())
	require.NoError(t, err)

	// Second run would build the cache, but the search layer fails
	f.recognition.searchErr = errors.New("search exploded")
	_, err = f.service.RunSession(ctx, remoteInput())
	require.Error(t, err)

	for _, session := range f.sessions.sessions {
		if session.Status == models.SessionStatusFailed {
			assert.Equal(t, models.CacheStatusNone, session.CacheStatus, "a failed build must not leave a building cache behind")
		}
	}

	// Next run still works and attempts the build again
	f.recognition.searchErr = nil
	result, err := f.service.RunSession(ctx, remoteInput())
	require.NoError(t, err)
	assert.Equal(t, models.CacheStatusReady, result.CacheStatus)
}

func TestGetSession(t *testing.T) {
	f := remoteFixture()
	ctx := context.Background()

	run, err := f.service.RunSession(ctx, remoteInput())
	require.NoError(t, err)

	detail, err := f.service.GetSession(ctx, run.SessionID)
	require.NoError(t, err)
	assert.Equal(t, run.SessionID, detail.Session.ID)
	require.Len(t, detail.Matches, 1)
	assert.Equal(t, run.Matches[0], detail.Matches[0])
}
