package domain

// DocumentStatus is the lifecycle status of a source document.
type DocumentStatus string

const (
	DocumentStatusDraft    DocumentStatus = "draft"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusArchived DocumentStatus = "archived"
)

// Chunk is a retrieved span of an approved document together with the
// nearest-neighbor distance it was found at. Chunks live for one request.
type Chunk struct {
	ID                string
	Text              string
	DocumentID        string
	DocumentTitle     string
	DocumentStatus    DocumentStatus
	DocumentVersionID string
	DocumentVersion   string
	SourceURI         string
	PageStart         *int
	PageEnd           *int
	OffsetStart       *int
	OffsetEnd         *int
	Section           string
	// Distance is the raw dissimilarity reported by the vector store (lower is
	// closer). It is not guaranteed to lie in [0, 1].
	Distance *float64
}

// Similarity returns 1 - distance clamped to [0, 1]. ok is false when the
// chunk carries no distance.
func (c Chunk) Similarity() (sim float64, ok bool) {
	if c.Distance == nil {
		return 0, false
	}
	sim = 1 - *c.Distance
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim, true
}

// ChunkIDs returns the ids of chunks in order.
func ChunkIDs(chunks []Chunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	return ids
}
