package domain

// RefusalText is the single, literal "no trustworthy answer" response.
// Callers and tests match on it exactly; every refusal path returns this
// string regardless of which stage triggered it.
const RefusalText = "No confirmed information on this question in the knowledge base."

// Answer is the final output of one ask request. Never persisted by the core.
type Answer struct {
	Text          string
	Confidence    float64
	UsedDocuments []string // ordered by first citation appearance, duplicate-free
	Refusal       bool
}

// Refuse builds the canonical refusal answer: exact literal text, zero
// confidence, empty used-document set.
func Refuse() Answer {
	return Answer{Text: RefusalText, Confidence: 0, UsedDocuments: []string{}, Refusal: true}
}
