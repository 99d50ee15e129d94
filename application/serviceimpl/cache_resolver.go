package serviceimpl

import (
	"context"
	"fmt"
	"time"

	"findme-api/domain/models"
	"findme-api/domain/repositories"
	"findme-api/infrastructure/redis"
	"findme-api/pkg/logger"
)

const cacheBuildLockTTL = 15 * time.Minute

// cacheContext is the cache decision for one remote-album session. Status
// here is never ready: a session observes none (run uncached), building
// (run live and persist a reusable cache), or reuse (skip detection using a
// prior ready session's entries).
type cacheContext struct {
	Status       models.CacheStatus
	ReadySession *models.SearchSession
	Entries      []models.AlbumEntry

	lockKey string
}

// cacheResolver decides whether a session for a shared collection can reuse
// cached detection results, should build a cache, or runs uncached. The
// first session for a collection never builds a cache; from the second run
// onward a build is attempted, coordinated across instances with a Redis
// lock. Resolution failures degrade to an uncached run instead of failing
// the session.
type cacheResolver struct {
	sessions repositories.SessionRepository
	albums   repositories.AlbumEntryRepository
	locks    *redis.Client
}

func newCacheResolver(sessions repositories.SessionRepository, albums repositories.AlbumEntryRepository, locks *redis.Client) *cacheResolver {
	return &cacheResolver{sessions: sessions, albums: albums, locks: locks}
}

func (r *cacheResolver) resolve(ctx context.Context, shareKey string) *cacheContext {
	ready, err := r.sessions.GetLatestReadyByShareKey(ctx, shareKey)
	if err != nil {
		logger.CacheError("cache_lookup_failed", "Cache lookup failed, running uncached", err, map[string]interface{}{
			"share_key": shareKey,
		})
		return &cacheContext{Status: models.CacheStatusNone}
	}

	if ready != nil {
		entries, err := r.albums.GetBySession(ctx, ready.ID)
		if err != nil {
			logger.CacheError("cache_entries_failed", "Failed to load cached entries, running uncached", err, map[string]interface{}{
				"share_key":        shareKey,
				"cache_session_id": ready.ID.String(),
			})
			return &cacheContext{Status: models.CacheStatusNone}
		}
		if len(entries) > 0 {
			logger.Cache("cache_hit", "Reusing cached detection results", map[string]interface{}{
				"share_key":        shareKey,
				"cache_session_id": ready.ID.String(),
				"entries":          len(entries),
			})
			return &cacheContext{
				Status:       models.CacheStatusReuse,
				ReadySession: ready,
				Entries:      entries,
			}
		}
		logger.Warn(logger.CategoryCache, "cache_empty", "Ready cache has no entries, ignoring it", map[string]interface{}{
			"share_key":        shareKey,
			"cache_session_id": ready.ID.String(),
		})
	}

	count, err := r.sessions.CountByShareKey(ctx, shareKey)
	if err != nil {
		logger.CacheError("cache_count_failed", "Session count failed, running uncached", err, map[string]interface{}{
			"share_key": shareKey,
		})
		return &cacheContext{Status: models.CacheStatusNone}
	}

	// The session being resolved is already persisted, so a count of one
	// means this is the collection's first session. The first session skips
	// cache building so a cold collection is never penalized with the extra
	// persistence work.
	if count <= 1 {
		return &cacheContext{Status: models.CacheStatusNone}
	}

	return r.tryAcquireBuild(ctx, shareKey)
}

// tryAcquireBuild claims the per-collection build lock. Losing the race, or
// Redis being unavailable when coordination is configured, degrades to an
// uncached run.
func (r *cacheResolver) tryAcquireBuild(ctx context.Context, shareKey string) *cacheContext {
	if r.locks == nil {
		return &cacheContext{Status: models.CacheStatusBuilding}
	}

	lockKey := fmt.Sprintf("findme:cache:build:%s", shareKey)
	acquired, err := r.locks.AcquireLock(ctx, lockKey, cacheBuildLockTTL)
	if err != nil {
		logger.Warn(logger.CategoryCache, "cache_lock_failed", "Build lock unavailable, running uncached", map[string]interface{}{
			"share_key": shareKey,
			"error":     err.Error(),
		})
		return &cacheContext{Status: models.CacheStatusNone}
	}
	if !acquired {
		logger.Cache("cache_build_in_progress", "Another session is building this cache, running uncached", map[string]interface{}{
			"share_key": shareKey,
		})
		return &cacheContext{Status: models.CacheStatusNone}
	}

	return &cacheContext{Status: models.CacheStatusBuilding, lockKey: lockKey}
}

func (r *cacheResolver) release(ctx context.Context, cc *cacheContext) {
	if cc == nil || cc.lockKey == "" || r.locks == nil {
		return
	}
	if err := r.locks.ReleaseLock(ctx, cc.lockKey); err != nil {
		logger.Warn(logger.CategoryCache, "cache_unlock_failed", "Failed to release build lock, it will expire", map[string]interface{}{
			"lock_key": cc.lockKey,
			"error":    err.Error(),
		})
	}
}

// ensureFaceSets returns the ready session's faceset descriptors, rebuilding
// them from the cached tokens when the metadata lost them. The rebuilt
// descriptors are written back so later sessions reuse them directly.
func (r *cacheResolver) ensureFaceSets(ctx context.Context, session *models.SearchSession, tokens []string, builder *faceSetBuilder) ([]models.FaceSetDescriptor, error) {
	meta := session.ParseMetadata()
	if len(meta.FaceSets) > 0 {
		return meta.FaceSets, nil
	}

	logger.Cache("cache_facesets_rebuild", "Cached session has no facesets, rebuilding", map[string]interface{}{
		"cache_session_id": session.ID.String(),
		"tokens":           len(tokens),
	})

	descriptors, err := builder.Build(ctx, tokens)
	if err != nil {
		return nil, err
	}

	meta.FaceSets = descriptors
	meta.TokenCount = len(tokens)
	if err := session.SetMetadata(meta); err != nil {
		return nil, err
	}
	if err := r.sessions.Update(ctx, session); err != nil {
		logger.CacheError("cache_facesets_save_failed", "Failed to persist rebuilt facesets", err, map[string]interface{}{
			"cache_session_id": session.ID.String(),
		})
	}

	return descriptors, nil
}
