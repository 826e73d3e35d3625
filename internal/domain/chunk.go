package domain

// ChunkMetadata carries the provenance of a parsed chunk. It is built once
// per chunk and never mutated afterwards. None of these fields participate in
// the embedding-cache key: two chunks with identical prose but different
// provenance must share one cache entry and one remote embedding call.
type ChunkMetadata struct {
	DocumentID  string  `json:"document_id"`
	NotebookID  string  `json:"notebook_id"`
	Filename    string  `json:"filename"`
	Parser      string  `json:"parser"`
	PageNumber  int     `json:"page_number"`
	ChunkIndex  int     `json:"chunk_index"`
	UsedOCR     bool    `json:"used_ocr"`
	UsedVision  bool    `json:"used_vision"`
	ImageRatio  float64 `json:"image_ratio"`
	VectorRatio float64 `json:"vector_ratio"`
}

// Chunk is an ephemeral unit of parsed text plus provenance metadata. Chunks
// are never persisted standalone; they become index nodes and, separately,
// content-keyed cache entries.
type Chunk struct {
	Text      string
	Metadata  ChunkMetadata
	Embedding []float32
}

// EmbedText returns the text that participates in embedding and cache-key
// computation. Provenance metadata is deliberately excluded.
func (c *Chunk) EmbedText() string {
	return c.Text
}
