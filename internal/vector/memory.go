package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory Index using brute-force cosine distance. Safe for
// concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	vec   []float32
	entry Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Store(ctx context.Context, vec []float32, entry Entry) error {
	cp := make([]float32, len(vec))
	copy(cp, vec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.IncidentID]; ok {
		return fmt.Errorf("vector: incident %q already indexed", entry.IncidentID)
	}
	m.entries[entry.IncidentID] = memoryEntry{vec: cp, entry: entry}
	return nil
}

func (m *Memory) Search(ctx context.Context, vec []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || k <= 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		matches = append(matches, Match{
			Entry:      e.entry,
			Similarity: Similarity(cosineDistance(vec, e.vec)),
		})
	}

	// Equal scores break ties by incident id so results are stable across
	// runs, unlike backends that return insertion order.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].IncidentID < matches[j].IncidentID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Similarity converts a distance into the [0, 1] similarity score the
// engine thresholds on.
func Similarity(distance float64) float64 {
	return math.Max(0, 1-distance)
}

// cosineDistance returns 1 - cosine(a, b), in [0, 2]. Mismatched
// dimensions or zero-norm vectors score as maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
