package serviceimpl

import (
	"context"
	"time"

	"github.com/google/uuid"

	"findme-api/domain/models"
	"findme-api/domain/repositories"
	"findme-api/domain/services"
	"findme-api/infrastructure/redis"
	"findme-api/pkg/concurrency"
	"findme-api/pkg/config"
	"findme-api/pkg/logger"
)

type SearchServiceImpl struct {
	sessions    repositories.SessionRepository
	albums      repositories.AlbumEntryRepository
	matches     repositories.MatchRepository
	recognition services.RecognitionClient
	fetcher     services.AlbumFetcher

	resolver *cacheResolver
	builder  *faceSetBuilder
	retrier  *retrier
	cfg      config.FindMeConfig
}

func NewSearchService(
	sessions repositories.SessionRepository,
	albums repositories.AlbumEntryRepository,
	matches repositories.MatchRepository,
	recognition services.RecognitionClient,
	fetcher services.AlbumFetcher,
	locks *redis.Client,
	cfg config.FindMeConfig,
) services.SearchService {
	limiter := concurrency.NewSlidingWindowRateLimiter(cfg.DetectionRPS, time.Second)
	retrier := newRetrier(limiter, cfg.DetectionMaxRetries, time.Duration(cfg.DetectionRetryDelayMs)*time.Millisecond)
	builder := newFaceSetBuilder(recognition, limiter, cfg.FaceSetTokenCapacity, retrier)

	return &SearchServiceImpl{
		sessions:    sessions,
		albums:      albums,
		matches:     matches,
		recognition: recognition,
		fetcher:     fetcher,
		resolver:    newCacheResolver(sessions, albums, locks),
		builder:     builder,
		retrier:     retrier,
		cfg:         cfg,
	}
}

// albumPhotoRecord is the per-photo working state of a session: identity,
// provenance, and the face tokens detected (or reused) for the photo
type albumPhotoRecord struct {
	Index       int
	Filename    string
	ContentType string
	SizeBytes   int64
	FaceTokens  []string
	PreviewURL  string
	FileURL     string
}

func (s *SearchServiceImpl) RunSession(ctx context.Context, input services.RunSessionInput) (*services.RunSessionResult, error) {
	if len(input.Selfie.Data) == 0 {
		return nil, services.ErrSelfieRequired
	}

	var shareKey string
	if input.UseLocalAlbum {
		if len(input.AlbumPhotos) == 0 {
			return nil, services.ErrAlbumRequired
		}
	} else {
		if input.EventURL == "" {
			return nil, services.ErrEventURLQuery
		}
		var ok bool
		shareKey, ok = s.fetcher.ExtractShareKey(input.EventURL)
		if !ok {
			return nil, services.ErrInvalidShareURL
		}
	}

	session := &models.SearchSession{
		ID:            uuid.New(),
		UserID:        input.UserID,
		EventURL:      input.EventURL,
		ShareKey:      shareKey,
		UseLocalAlbum: input.UseLocalAlbum,
		Status:        models.SessionStatusProcessing,
		CacheStatus:   models.CacheStatusNone,
	}
	if err := session.SetMetadata(models.SessionMetadata{
		UseLocalAlbum: input.UseLocalAlbum,
		SelfieName:    input.Selfie.Filename,
	}); err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	logger.Session("session_started", "Face-match session started", map[string]interface{}{
		"session_id":      session.ID.String(),
		"use_local_album": input.UseLocalAlbum,
		"share_key":       shareKey,
	})

	result, err := s.run(ctx, session, input, shareKey)
	if err != nil {
		s.fail(ctx, session.ID, err)
		return nil, err
	}
	return result, nil
}

func (s *SearchServiceImpl) run(ctx context.Context, session *models.SearchSession, input services.RunSessionInput, shareKey string) (*services.RunSessionResult, error) {
	// The selfie is validated before any album work so a faceless selfie
	// fails fast without fetching or detecting the whole collection.
	selfieTokens, err := s.detect(ctx, input.Selfie.Data, input.Selfie.Filename)
	if err != nil {
		return nil, err
	}
	if len(selfieTokens) == 0 {
		return nil, services.ErrNoSelfieFace
	}
	selfieToken := selfieTokens[0]

	cc := &cacheContext{Status: models.CacheStatusNone}
	if !input.UseLocalAlbum {
		cc = s.resolver.resolve(ctx, shareKey)
		defer s.resolver.release(ctx, cc)
	}
	session.CacheStatus = cc.Status

	var records []albumPhotoRecord
	var faceSets []models.FaceSetDescriptor
	detectionSource := "live"
	cacheSessionID := ""

	if cc.Status == models.CacheStatusReuse {
		detectionSource = "cache"
		cacheSessionID = cc.ReadySession.ID.String()
		records = recordsFromEntries(cc.Entries)

		tokens, _ := flattenTokens(records)
		if len(tokens) == 0 {
			return nil, services.ErrNoAlbumFaces
		}
		faceSets, err = s.resolver.ensureFaceSets(ctx, cc.ReadySession, tokens, s.builder)
		if err != nil {
			return nil, err
		}
	} else {
		photos, err := s.acquirePhotos(ctx, input, shareKey)
		if err != nil {
			return nil, err
		}
		records, err = s.detectAlbum(ctx, photos)
		if err != nil {
			return nil, err
		}
		if err := s.persistEntries(ctx, session.ID, records); err != nil {
			return nil, err
		}

		tokens, _ := flattenTokens(records)
		if len(tokens) == 0 {
			return nil, services.ErrNoAlbumFaces
		}
		faceSets, err = s.builder.Build(ctx, tokens)
		if err != nil {
			return nil, err
		}
	}

	tokens, tokenOwner := flattenTokens(records)

	responses, err := s.searchFaceSets(ctx, faceSets, selfieToken)
	if err != nil {
		return nil, err
	}

	threshold := resolveThreshold(responses, s.cfg.MatchThresholdTarget, s.cfg.MatchThresholdFallback)
	aggregated := aggregateMatches(responses, tokenOwner, threshold)

	results, err := s.persistMatches(ctx, session.ID, aggregated, records)
	if err != nil {
		return nil, err
	}

	if err := s.finalize(ctx, session, records, faceSets, len(tokens), len(results), detectionSource, cacheSessionID); err != nil {
		return nil, err
	}

	logger.Session("session_completed", "Face-match session completed", map[string]interface{}{
		"session_id": session.ID.String(),
		"album":      len(records),
		"tokens":     len(tokens),
		"matches":    len(results),
		"threshold":  threshold,
		"source":     detectionSource,
	})

	return &services.RunSessionResult{
		SessionID:   session.ID,
		Matches:     results,
		EventURL:    session.EventURL,
		ShareKey:    shareKey,
		CacheStatus: session.CacheStatus,
	}, nil
}

// acquirePhotos materializes the candidate photos, either from the request
// upload or by fetching the shared collection
func (s *SearchServiceImpl) acquirePhotos(ctx context.Context, input services.RunSessionInput, shareKey string) ([]services.AlbumPhoto, error) {
	if input.UseLocalAlbum {
		photos := make([]services.AlbumPhoto, 0, len(input.AlbumPhotos))
		for _, uploaded := range input.AlbumPhotos {
			photos = append(photos, services.AlbumPhoto{
				Filename:    uploaded.Filename,
				ContentType: uploaded.ContentType,
				Data:        uploaded.Data,
			})
		}
		return photos, nil
	}

	result, err := s.fetcher.FetchAlbum(ctx, shareKey)
	if err != nil {
		return nil, err
	}
	return result.Photos, nil
}

// detectAlbum runs face detection over every photo with bounded concurrency.
// A single detection failure fails the whole album.
func (s *SearchServiceImpl) detectAlbum(ctx context.Context, photos []services.AlbumPhoto) ([]albumPhotoRecord, error) {
	return concurrency.MapWithConcurrency(ctx, photos, s.cfg.DetectionConcurrency,
		func(ctx context.Context, photo services.AlbumPhoto, index int) (albumPhotoRecord, error) {
			tokens, err := s.detect(ctx, photo.Data, photo.Filename)
			if err != nil {
				return albumPhotoRecord{}, err
			}
			return albumPhotoRecord{
				Index:       index,
				Filename:    photo.Filename,
				ContentType: photo.ContentType,
				SizeBytes:   int64(len(photo.Data)),
				FaceTokens:  tokens,
				PreviewURL:  photo.PreviewURL,
				FileURL:     photo.FileURL,
			}, nil
		})
}

func (s *SearchServiceImpl) detect(ctx context.Context, image []byte, filename string) ([]string, error) {
	var tokens []string
	err := s.retrier.do(ctx, func(ctx context.Context) error {
		detected, err := s.recognition.Detect(ctx, image, filename)
		if err != nil {
			return err
		}
		tokens = detected
		return nil
	})
	return tokens, err
}

func (s *SearchServiceImpl) persistEntries(ctx context.Context, sessionID uuid.UUID, records []albumPhotoRecord) error {
	entries := make([]*models.AlbumEntry, 0, len(records))
	for _, record := range records {
		entry := &models.AlbumEntry{
			ID:          uuid.New(),
			SessionID:   sessionID,
			PhotoIndex:  record.Index,
			Filename:    record.Filename,
			ContentType: record.ContentType,
			SizeBytes:   record.SizeBytes,
			FaceCount:   len(record.FaceTokens),
		}

		meta := models.AlbumEntryMetadata{FaceTokens: record.FaceTokens}
		if record.FileURL != "" || record.PreviewURL != "" {
			meta.Source = &models.SourceInfo{
				Type:       "pixcheese",
				FileURL:    record.FileURL,
				PreviewURL: record.PreviewURL,
			}
		}
		if err := entry.SetMetadata(meta); err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	return s.albums.CreateBatch(ctx, entries)
}

// searchFaceSets queries every faceset with the selfie token in parallel
func (s *SearchServiceImpl) searchFaceSets(ctx context.Context, faceSets []models.FaceSetDescriptor, selfieToken string) ([]*services.FaceSearchResponse, error) {
	return concurrency.MapWithConcurrency(ctx, faceSets, len(faceSets),
		func(ctx context.Context, descriptor models.FaceSetDescriptor, index int) (*services.FaceSearchResponse, error) {
			var response *services.FaceSearchResponse
			err := s.retrier.do(ctx, func(ctx context.Context) error {
				resp, err := s.recognition.Search(ctx, descriptor.OuterID, selfieToken, s.cfg.SearchReturnCount)
				if err != nil {
					return err
				}
				response = resp
				return nil
			})
			return response, err
		})
}

func (s *SearchServiceImpl) persistMatches(ctx context.Context, sessionID uuid.UUID, aggregated []photoMatch, records []albumPhotoRecord) ([]services.MatchResult, error) {
	byIndex := make(map[int]albumPhotoRecord, len(records))
	for _, record := range records {
		byIndex[record.Index] = record
	}

	rows := make([]*models.Match, 0, len(aggregated))
	results := make([]services.MatchResult, 0, len(aggregated))
	for _, match := range aggregated {
		record := byIndex[match.PhotoIndex]
		rows = append(rows, &models.Match{
			ID:              uuid.New(),
			SessionID:       sessionID,
			AlbumPhotoIndex: match.PhotoIndex,
			Filename:        record.Filename,
			Confidence:      match.Confidence,
			TokenCount:      match.Hits,
			Rank:            match.Rank,
			PreviewURL:      record.PreviewURL,
			FileURL:         record.FileURL,
		})
		results = append(results, services.MatchResult{
			PhotoIndex: match.PhotoIndex,
			Filename:   record.Filename,
			Confidence: match.Confidence,
			TokenCount: match.Hits,
			Rank:       match.Rank,
			PreviewURL: record.PreviewURL,
			FileURL:    record.FileURL,
		})
	}

	if err := s.matches.CreateBatch(ctx, rows); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SearchServiceImpl) finalize(ctx context.Context, session *models.SearchSession, records []albumPhotoRecord, faceSets []models.FaceSetDescriptor, tokenCount, matchCount int, detectionSource, cacheSessionID string) error {
	if session.CacheStatus == models.CacheStatusBuilding {
		session.CacheStatus = models.CacheStatusReady
	}
	session.Status = models.SessionStatusCompleted
	session.AlbumCount = len(records)
	session.MatchCount = matchCount

	meta := session.ParseMetadata()
	meta.FaceSets = faceSets
	meta.TokenCount = tokenCount
	meta.DetectionSource = detectionSource
	meta.CacheSessionID = cacheSessionID
	if err := session.SetMetadata(meta); err != nil {
		return err
	}

	return s.sessions.Update(ctx, session)
}

func (s *SearchServiceImpl) fail(ctx context.Context, sessionID uuid.UUID, cause error) {
	logger.SessionError("session_failed", "Face-match session failed", cause, map[string]interface{}{
		"session_id": sessionID.String(),
	})
	if err := s.sessions.MarkFailed(ctx, sessionID, cause.Error()); err != nil {
		logger.SessionError("session_fail_update", "Failed to persist session failure", err, map[string]interface{}{
			"session_id": sessionID.String(),
		})
	}
}

func (s *SearchServiceImpl) GetSession(ctx context.Context, id uuid.UUID) (*services.SessionDetail, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	matches, err := s.matches.GetBySession(ctx, id)
	if err != nil {
		return nil, err
	}

	results := make([]services.MatchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, services.MatchResult{
			PhotoIndex: match.AlbumPhotoIndex,
			Filename:   match.Filename,
			Confidence: match.Confidence,
			TokenCount: match.TokenCount,
			Rank:       match.Rank,
			PreviewURL: match.PreviewURL,
			FileURL:    match.FileURL,
		})
	}

	return &services.SessionDetail{
		Session: *session,
		Matches: results,
	}, nil
}

// recordsFromEntries rebuilds per-photo working state from a cached session
func recordsFromEntries(entries []models.AlbumEntry) []albumPhotoRecord {
	records := make([]albumPhotoRecord, 0, len(entries))
	for _, entry := range entries {
		meta := entry.ParseMetadata()
		record := albumPhotoRecord{
			Index:       entry.PhotoIndex,
			Filename:    entry.Filename,
			ContentType: entry.ContentType,
			SizeBytes:   entry.SizeBytes,
			FaceTokens:  meta.FaceTokens,
		}
		if meta.Source != nil {
			record.PreviewURL = meta.Source.PreviewURL
			record.FileURL = meta.Source.FileURL
		}
		records = append(records, record)
	}
	return records
}

// flattenTokens concatenates every record's tokens in photo order and maps
// each token back to the photo it was detected in
func flattenTokens(records []albumPhotoRecord) ([]string, map[string]int) {
	tokens := make([]string, 0)
	owner := make(map[string]int)
	for _, record := range records {
		for _, token := range record.FaceTokens {
			tokens = append(tokens, token)
			if _, exists := owner[token]; !exists {
				owner[token] = record.Index
			}
		}
	}
	return tokens, owner
}
