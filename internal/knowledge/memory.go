package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine-similarity index held in process
// memory. It backs tests and deployments without a Pinecone API key; contents
// do not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]VectorRecord
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]VectorRecord),
	}
}

func (s *MemoryStore) EnsureIndex(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", s.dimension)
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, records []VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if len(r.Values) != s.dimension {
			return fmt.Errorf("record %s has dimension %d, index requires %d", r.ID, len(r.Values), s.dimension)
		}
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    cosine(vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{TotalVectorCount: len(s.records), Dimension: s.dimension}, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]VectorRecord)
	return nil
}

func (s *MemoryStore) UploadedFilesApprox(ctx context.Context) (map[string]int, error) {
	stats, _ := s.Stats(ctx)
	if stats.TotalVectorCount == 0 {
		return map[string]int{}, nil
	}
	topK := stats.TotalVectorCount
	if topK > ListCap {
		topK = ListCap
	}
	matches, err := s.Search(ctx, make([]float32, s.dimension), topK)
	if err != nil {
		return nil, err
	}
	files := make(map[string]int)
	for _, m := range matches {
		name := m.Metadata.Filename
		if name == "" {
			name = "Unknown"
		}
		files[name]++
	}
	return files, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
