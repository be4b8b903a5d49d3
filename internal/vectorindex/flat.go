package vectorindex

import (
	"fmt"
	"sort"
)

// FlatIndex is a brute-force inner-product index over dense vectors.
//
// Scores are raw inner products: ranking is equivalent to cosine similarity
// only when the embedding model emits unit-norm vectors. No normalization is
// applied here, matching the behavior callers are calibrated against.
type FlatIndex struct {
	Dimension int
	Vectors   [][]float32
}

// Hit is one search result position: the vector's insertion index and its
// inner-product score against the query.
type Hit struct {
	Index int
	Score float32
}

func NewFlatIndex(dimension int) *FlatIndex {
	return &FlatIndex{Dimension: dimension}
}

func (idx *FlatIndex) Len() int {
	return len(idx.Vectors)
}

func (idx *FlatIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != idx.Dimension {
			return fmt.Errorf("vector dimension mismatch: want %d got %d", idx.Dimension, len(v))
		}
	}
	idx.Vectors = append(idx.Vectors, vectors...)
	return nil
}

// Search returns up to topK hits ordered by descending score. A topK beyond
// the corpus size returns every vector; topK <= 0 returns nothing.
func (idx *FlatIndex) Search(query []float32, topK int) ([]Hit, error) {
	if len(query) != idx.Dimension {
		return nil, fmt.Errorf("query dimension mismatch: want %d got %d", idx.Dimension, len(query))
	}
	if topK <= 0 || len(idx.Vectors) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(idx.Vectors))
	for i, v := range idx.Vectors {
		hits[i] = Hit{Index: i, Score: dot(v, query)}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
