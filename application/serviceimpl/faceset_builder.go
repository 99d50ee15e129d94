package serviceimpl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"findme-api/domain/models"
	"findme-api/domain/services"
	"findme-api/infrastructure/facepp"
	"findme-api/pkg/concurrency"
	"findme-api/pkg/logger"
)

// faceSetBuilder partitions a logical token list into remote facesets, each
// bounded by the provider's token capacity. Chunks are built in parallel;
// within a chunk the add calls run sequentially because the remote index is
// a single mutable resource.
type faceSetBuilder struct {
	client   services.RecognitionClient
	limiter  *concurrency.SlidingWindowRateLimiter
	capacity int
	retrier  *retrier
}

func newFaceSetBuilder(client services.RecognitionClient, limiter *concurrency.SlidingWindowRateLimiter, capacity int, retrier *retrier) *faceSetBuilder {
	if capacity < 1 {
		capacity = 1000
	}
	return &faceSetBuilder{
		client:   client,
		limiter:  limiter,
		capacity: capacity,
		retrier:  retrier,
	}
}

// Build creates one faceset per capacity-sized chunk of tokens and returns
// descriptors mapping each faceset back to its offset in the token list
func (b *faceSetBuilder) Build(ctx context.Context, tokens []string) ([]models.FaceSetDescriptor, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot build facesets from an empty token list")
	}

	type chunk struct {
		offset int
		tokens []string
	}

	chunks := make([]chunk, 0, (len(tokens)+b.capacity-1)/b.capacity)
	for offset := 0; offset < len(tokens); offset += b.capacity {
		end := offset + b.capacity
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, chunk{offset: offset, tokens: tokens[offset:end]})
	}

	descriptors, err := concurrency.MapWithConcurrency(ctx, chunks, len(chunks),
		func(ctx context.Context, c chunk, index int) (models.FaceSetDescriptor, error) {
			outerID := fmt.Sprintf("findme_%s", uuid.NewString())
			if err := b.buildChunk(ctx, outerID, c.tokens); err != nil {
				return models.FaceSetDescriptor{}, err
			}
			return models.FaceSetDescriptor{
				OuterID:     outerID,
				StartOffset: c.offset,
				TokenCount:  len(c.tokens),
			}, nil
		})
	if err != nil {
		return nil, err
	}

	logger.Face("facesets_built", "Built remote facesets", map[string]interface{}{
		"facesets": len(descriptors),
		"tokens":   len(tokens),
	})
	return descriptors, nil
}

// buildChunk creates the faceset seeded with the first token, then adds the
// rest in provider-sized batches
func (b *faceSetBuilder) buildChunk(ctx context.Context, outerID string, tokens []string) error {
	err := b.retrier.do(ctx, func(ctx context.Context) error {
		return b.client.CreateFaceSet(ctx, outerID, tokens[0])
	})
	if err != nil {
		return fmt.Errorf("failed to create faceset %s: %w", outerID, err)
	}

	remaining := tokens[1:]
	for start := 0; start < len(remaining); start += facepp.MaxAddFaceTokens {
		end := start + facepp.MaxAddFaceTokens
		if end > len(remaining) {
			end = len(remaining)
		}
		batch := remaining[start:end]

		err := b.retrier.do(ctx, func(ctx context.Context) error {
			return b.client.AddFaces(ctx, outerID, batch)
		})
		if err != nil {
			return fmt.Errorf("failed to add faces to faceset %s: %w", outerID, err)
		}
	}

	return nil
}
