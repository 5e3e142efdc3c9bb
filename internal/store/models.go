package store

// SermonChunk is one indexed entry of the vectorstore: a bounded slice of a
// sermon transcript plus the metadata needed to attribute it back to its
// source. Immutable once created.
type SermonChunk struct {
	ID          string
	SermonID    string
	Title       string
	Author      string
	VideoID     string
	Content     string
	Index       int // chunk ordinal within its sermon
	StartOffset int // rune offset of the chunk within the transcript
}

// SearchResult pairs a chunk with its similarity score for a query vector.
type SearchResult struct {
	Chunk SermonChunk
	Score float32
}
