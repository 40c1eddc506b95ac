package vector

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
)

type memoryPoint struct {
	vector []float32
	tags   []string
}

// Memory is an in-process RetrievalIndex using brute-force cosine similarity.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryPoint
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]memoryPoint)}
}

func (m *Memory) Search(_ context.Context, req SearchRequest) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	points, ok := m.collections[req.Collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}

	matches := make([]Match, 0, len(points))
	for id, p := range points {
		if len(req.Tags) > 0 && !anyTag(p.tags, req.Tags) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: cosine(req.Vector, p.vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (m *Memory) Upsert(_ context.Context, collection, id string, vector []float32, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	points, ok := m.collections[collection]
	if !ok {
		points = make(map[string]memoryPoint)
		m.collections[collection] = points
	}
	points[id] = memoryPoint{vector: slices.Clone(vector), tags: payloadTags(payload)}
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
