package serviceimpl

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findme-api/pkg/concurrency"
)

func testBuilder(recognition *fakeRecognition, capacity int) *faceSetBuilder {
	limiter := concurrency.NewSlidingWindowRateLimiter(100, time.Second)
	return newFaceSetBuilder(recognition, limiter, capacity, newRetrier(limiter, 3, time.Millisecond))
}

func tokenList(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%03d", i)
	}
	return tokens
}

func TestFaceSetBuilder_SingleChunk(t *testing.T) {
	recognition := newFakeRecognition()
	builder := testBuilder(recognition, 1000)

	tokens := tokenList(12)
	descriptors, err := builder.Build(context.Background(), tokens)
	require.NoError(t, err)

	require.Len(t, descriptors, 1)
	assert.Equal(t, 0, descriptors[0].StartOffset)
	assert.Equal(t, 12, descriptors[0].TokenCount)
	assert.True(t, strings.HasPrefix(descriptors[0].OuterID, "findme_"))

	// Every token ends up in the remote faceset, seed included
	assert.Equal(t, tokens, recognition.faceSets[descriptors[0].OuterID])
}

func TestFaceSetBuilder_SplitsAtCapacity(t *testing.T) {
	recognition := newFakeRecognition()
	builder := testBuilder(recognition, 5)

	tokens := tokenList(12)
	descriptors, err := builder.Build(context.Background(), tokens)
	require.NoError(t, err)

	require.Len(t, descriptors, 3)

	total := 0
	seen := make(map[string]bool)
	for _, descriptor := range descriptors {
		assert.LessOrEqual(t, descriptor.TokenCount, 5)
		total += descriptor.TokenCount

		chunk := tokens[descriptor.StartOffset : descriptor.StartOffset+descriptor.TokenCount]
		assert.Equal(t, chunk, recognition.faceSets[descriptor.OuterID])

		require.False(t, seen[descriptor.OuterID], "outer IDs must be unique")
		seen[descriptor.OuterID] = true
	}
	assert.Equal(t, len(tokens), total)
}

func TestFaceSetBuilder_EmptyTokens(t *testing.T) {
	builder := testBuilder(newFakeRecognition(), 1000)

	_, err := builder.Build(context.Background(), nil)
	require.Error(t, err)
}
