package answer

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/citedex/internal/domain"
)

// buildSystemPrompt assembles the closed-context instruction. The constraint
// never changes with mode or query type; those only adjust presentation.
func buildSystemPrompt(q domain.Query) string {
	var b strings.Builder

	switch q.Type {
	case domain.QueryTechnical:
		b.WriteString("You are a technical product expert answering questions from internal documentation.\n")
	default:
		b.WriteString("You are a sales engineering assistant answering questions from internal documentation.\n")
	}

	b.WriteString("Answer ONLY from the numbered sources below. ")
	b.WriteString("Every factual statement must carry a citation marker like [S1] referring to the source it came from. ")
	b.WriteString("Never cite a source number that is not in the list. ")
	b.WriteString("If the sources do not contain the answer, reply with exactly: ")
	b.WriteString(domain.RefusalText)
	b.WriteString("\n")

	switch q.Mode {
	case domain.ModeBrief:
		b.WriteString("Answer in two or three short sentences.\n")
	case domain.ModeDeep:
		b.WriteString("Give a thorough answer: cover configuration context, limits and caveats found in the sources.\n")
	default:
		b.WriteString("Answer concisely but completely.\n")
	}

	if profile := questionProfile(q.Question); profile != "" {
		b.WriteString(profile)
		b.WriteString("\n")
	}

	return b.String()
}

// buildUserPrompt enumerates the passages with their citation markers and
// appends the question. The marker index is the validation contract: [S<n>]
// is the n-th passage in this exact list.
func buildUserPrompt(q domain.Query, passages []domain.Passage) string {
	var b strings.Builder

	b.WriteString("Sources:\n")
	for i, p := range passages {
		b.WriteString(fmt.Sprintf("[S%d] (%s", i+1, p.DocumentName))
		if p.Section != "" {
			b.WriteString(", " + p.Section)
		}
		b.WriteString(")\n")
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(q.Question)
	b.WriteString("\n")

	return b.String()
}

// questionProfile derives presentation hints from the question shape.
func questionProfile(question string) string {
	lower := strings.ToLower(question)

	switch {
	case strings.Contains(lower, " vs ") || strings.Contains(lower, "compare") || strings.Contains(lower, "difference"):
		return "This is a comparison question: contrast the options point by point."
	case strings.HasPrefix(lower, "how ") || strings.Contains(lower, "how do") || strings.Contains(lower, "how to"):
		return "This is a how-to question: answer as ordered steps."
	case strings.ContainsAny(lower, "0123456789") || strings.Contains(lower, "maximum") || strings.Contains(lower, "limit"):
		return "This is a specification lookup: state exact figures from the sources."
	}
	return ""
}
