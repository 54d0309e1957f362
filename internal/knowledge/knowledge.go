package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// UpsertBatchSize caps how many records a single upsert call sends to the
// backing index, protecting against request-size limits.
const UpsertBatchSize = 100

// ListCap bounds the broad query used to approximate the uploaded-file list.
const ListCap = 1000

// Metadata is the payload stored alongside each vector.
type Metadata struct {
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// VectorRecord is the persisted unit of the knowledge store.
type VectorRecord struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is a retrieval result, ordered descending by similarity score.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Stats describes the index.
type Stats struct {
	TotalVectorCount int `json:"total_vector_count"`
	Dimension        int `json:"dimension"`
}

// Store is a vector index keyed by content-derived IDs. Implementations
// return errors; callers decide whether a failure degrades to an empty
// result, so "legitimately empty" and "failed" stay distinguishable.
type Store interface {
	// EnsureIndex creates the index if absent and recreates it when the
	// existing dimension disagrees with the configured one. Idempotent.
	EnsureIndex(ctx context.Context) error
	// Upsert inserts or replaces records by ID, batching internally.
	Upsert(ctx context.Context, records []VectorRecord) error
	// Search returns at most topK matches ordered descending by score.
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Stats(ctx context.Context) (Stats, error)
	// Clear destroys and recreates the index; all vectors are lost.
	Clear(ctx context.Context) error
	// UploadedFilesApprox tallies filename -> chunk count from a broad
	// zero-vector query capped at min(ListCap, total). Files beyond the cap
	// are missed; this is a documented approximation, not an inventory.
	UploadedFilesApprox(ctx context.Context) (map[string]int, error)
}

// RecordID derives the stable vector ID for a document chunk. Re-processing
// the same file with the same chunking parameters yields the same IDs, which
// makes re-upserts idempotent.
func RecordID(filename string, chunkIndex int) string {
	sum := md5.Sum([]byte(filename))
	return fmt.Sprintf("%s_%d", hex.EncodeToString(sum[:]), chunkIndex)
}
