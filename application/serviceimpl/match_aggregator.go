package serviceimpl

import (
	"sort"

	"findme-api/domain/services"
)

// photoMatch is the aggregated outcome for one album photo
type photoMatch struct {
	PhotoIndex int
	Confidence float64
	Hits       int
	Rank       int
}

// resolveThreshold picks the acceptance confidence from the boundary's
// recommended thresholds, keyed by target false-positive rate. The first
// response carrying the target key wins; the fallback applies when no
// response recommends one.
func resolveThreshold(responses []*services.FaceSearchResponse, target string, fallback float64) float64 {
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		if value, ok := resp.Thresholds[target]; ok && value > 0 {
			return value
		}
	}
	return fallback
}

// aggregateMatches folds raw hits from every faceset search into per-photo
// results. tokenOwner maps a face token to the index of the photo it was
// detected in. A hit below threshold or with an unknown token is dropped;
// a photo's confidence is the maximum over its qualifying hits and its hit
// count is how many of its tokens qualified. Results are ordered by
// confidence descending, insertion order breaking ties, with dense 1-based
// ranks so equal confidences share a rank.
func aggregateMatches(responses []*services.FaceSearchResponse, tokenOwner map[string]int, threshold float64) []photoMatch {
	byPhoto := make(map[int]*photoMatch)
	order := make([]int, 0)

	for _, resp := range responses {
		if resp == nil {
			continue
		}
		for _, hit := range resp.Hits {
			if hit.Confidence < threshold {
				continue
			}
			photoIndex, ok := tokenOwner[hit.Token]
			if !ok {
				continue
			}

			match, exists := byPhoto[photoIndex]
			if !exists {
				match = &photoMatch{PhotoIndex: photoIndex}
				byPhoto[photoIndex] = match
				order = append(order, photoIndex)
			}
			match.Hits++
			if hit.Confidence > match.Confidence {
				match.Confidence = hit.Confidence
			}
		}
	}

	matches := make([]photoMatch, 0, len(order))
	for _, photoIndex := range order {
		matches = append(matches, *byPhoto[photoIndex])
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	rank := 0
	var lastConfidence float64
	for i := range matches {
		if i == 0 || matches[i].Confidence != lastConfidence {
			rank++
			lastConfidence = matches[i].Confidence
		}
		matches[i].Rank = rank
	}

	return matches
}
