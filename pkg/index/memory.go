package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
)

// entry is one stored chunk vector. Vectors are normalized on insert so
// queries reduce to an inner product.
type entry struct {
	chunk        models.Chunk
	companyID    string
	modelVersion string
	vector       []float32
}

// FlushRecord is the unit handed to the persistent store at the flush
// boundary and read back at startup.
type FlushRecord struct {
	Chunk        models.Chunk
	CompanyID    string
	ModelVersion string
	Vector       []float32
}

// Memory is the process-owned embedding index. It is passed explicitly to
// every component that needs it; there is no ambient global. Inserts are
// keyed by (chunk id, model version) and idempotent, so concurrent workflow
// runs may insert the same chunk safely. Queries only ever see the
// embedder's active model version.
type Memory struct {
	embedder types.EmbeddingClient

	mu      sync.RWMutex
	entries map[string]*entry
}

func NewMemory(embedder types.EmbeddingClient) *Memory {
	return &Memory{
		embedder: embedder,
		entries:  make(map[string]*entry),
	}
}

func key(chunkID, modelVersion string) string {
	return chunkID + "@" + modelVersion
}

// Insert embeds the chunk and stores the record. Re-inserting a chunk under
// the same model version is a no-op returning the existing record; a new
// model version creates a second record rather than overwriting, so an index
// rollback stays possible.
func (m *Memory) Insert(ctx context.Context, chunk models.Chunk, companyID string) (models.EmbeddingRecord, error) {
	version := m.embedder.ModelVersion()
	k := key(chunk.ID, version)

	m.mu.RLock()
	existing, ok := m.entries[k]
	m.mu.RUnlock()
	if ok {
		return models.EmbeddingRecord{ChunkID: chunk.ID, ModelVersion: version, Vector: existing.vector}, nil
	}

	vectors, err := m.embedder.Embed(ctx, []string{chunk.Text})
	if err != nil {
		return models.EmbeddingRecord{}, err
	}
	if len(vectors) != 1 {
		return models.EmbeddingRecord{}, fmt.Errorf("%w: embedder returned %d vectors for chunk %s", faults.ErrChunkMismatch, len(vectors), chunk.ID)
	}
	vector := normalize(vectors[0])

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another run may have inserted the same chunk while we were embedding;
	// first write wins and both see the same record.
	if existing, ok := m.entries[k]; ok {
		return models.EmbeddingRecord{ChunkID: chunk.ID, ModelVersion: version, Vector: existing.vector}, nil
	}
	m.entries[k] = &entry{
		chunk:        chunk,
		companyID:    companyID,
		modelVersion: version,
		vector:       vector,
	}

	return models.EmbeddingRecord{ChunkID: chunk.ID, ModelVersion: version, Vector: vector}, nil
}

// Query returns up to k hits ranked by cosine similarity, ties broken by
// lower chunk ordinal. Only records under the active model version are
// visible. Query never mutates the index.
func (m *Memory) Query(vector []float32, k int, filter types.IndexFilter) ([]types.IndexHit, error) {
	if k <= 0 {
		return nil, nil
	}

	version := m.embedder.ModelVersion()
	query := normalize(vector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []types.IndexHit
	for _, e := range m.entries {
		if e.modelVersion != version {
			continue
		}
		if filter.DocumentID != "" && e.chunk.DocumentID != filter.DocumentID {
			continue
		}
		if filter.CompanyID != "" && e.companyID != filter.CompanyID {
			continue
		}
		if len(e.vector) != len(query) {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, query has %d",
				faults.ErrChunkMismatch, e.chunk.ID, len(e.vector), len(query))
		}
		hits = append(hits, types.IndexHit{Chunk: e.chunk, Similarity: dot(e.vector, query)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].Chunk.DocumentID != hits[j].Chunk.DocumentID {
			return hits[i].Chunk.DocumentID < hits[j].Chunk.DocumentID
		}
		return hits[i].Chunk.Ordinal < hits[j].Chunk.Ordinal
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Records snapshots the index contents for the flush-to-storage boundary,
// ordered deterministically.
func (m *Memory) Records() []FlushRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]FlushRecord, 0, len(m.entries))
	for _, e := range m.entries {
		records = append(records, FlushRecord{
			Chunk:        e.chunk,
			CompanyID:    e.companyID,
			ModelVersion: e.modelVersion,
			Vector:       e.vector,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Chunk.ID != records[j].Chunk.ID {
			return records[i].Chunk.ID < records[j].Chunk.ID
		}
		return records[i].ModelVersion < records[j].ModelVersion
	})
	return records
}

// Seed loads persisted records back into the index at startup. Existing
// entries win, matching Insert's idempotency.
func (m *Memory) Seed(records []FlushRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		k := key(r.Chunk.ID, r.ModelVersion)
		if _, ok := m.entries[k]; ok {
			continue
		}
		m.entries[k] = &entry{
			chunk:        r.Chunk,
			companyID:    r.CompanyID,
			modelVersion: r.ModelVersion,
			vector:       normalize(r.Vector),
		}
	}
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
