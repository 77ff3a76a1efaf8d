// Package similarity compares embedding vectors. It backs the cross-execution
// duplicate check, within-batch unit dedup and semantic unit search.
package similarity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

const (
	// DuplicateThreshold flags an execution summary as already reported.
	DuplicateThreshold = 0.85
	// UnitDedupThreshold drops near-identical units within one batch.
	UnitDedupThreshold = 0.75
	// SearchMinSimilarity is the default cut-off for semantic search.
	SearchMinSimilarity = 0.3
)

// ErrDimensionMismatch is returned for vectors of unequal length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Cosine returns the cosine similarity of a and b in [-1, 1]. It is exactly 0
// when either vector has zero magnitude.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), nil
}

// UniqueIndices greedily keeps vectors whose similarity to every previously
// kept vector is below threshold. Input order is preserved and the first
// occurrence wins.
func UniqueIndices(vectors [][]float32, threshold float64) ([]int, error) {
	kept := make([]int, 0, len(vectors))

	for i, v := range vectors {
		duplicate := false
		for _, k := range kept {
			sim, err := Cosine(v, vectors[k])
			if err != nil {
				return nil, fmt.Errorf("compare %d with %d: %w", i, k, err)
			}
			if sim >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, i)
		}
	}

	return kept, nil
}

// BatchEmbedder embeds texts in one remote call, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Deduplicate embeds texts in a single batch and returns the indices of the
// unique ones together with all embeddings.
func Deduplicate(ctx context.Context, embedder BatchEmbedder, texts []string, threshold float64) ([]int, [][]float32, error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(texts))
	}

	kept, err := UniqueIndices(vectors, threshold)
	if err != nil {
		return nil, nil, err
	}
	return kept, vectors, nil
}

// Match is a candidate scored against a query.
type Match struct {
	Index      int
	Similarity float64
}

// Rank scores every candidate against query and returns those at or above
// minSimilarity, most similar first. Ties keep input order.
func Rank(query []float32, candidates [][]float32, minSimilarity float64) []Match {
	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		sim, err := Cosine(query, c)
		if err != nil || sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return matches
}

// MaxSimilarity returns the highest similarity of query against candidates
// and whether it reaches threshold. ok is false when nothing was comparable.
func MaxSimilarity(query []float32, candidates [][]float32, threshold float64) (maxSim float64, exceeds, ok bool) {
	for _, c := range candidates {
		sim, err := Cosine(query, c)
		if err != nil {
			continue
		}
		if !ok || sim > maxSim {
			maxSim = sim
			ok = true
		}
	}
	return maxSim, ok && maxSim >= threshold, ok
}
