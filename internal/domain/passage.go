package domain

// Passage is one retrieved chunk with its similarity score, the unit of
// evidence behind an answer. Score is normalized to [0,1].
type Passage struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Version      string
	Section      string
	Seq          int64 // ingestion sequence number, tie-break key
	Score        float64
	Text         string
}
