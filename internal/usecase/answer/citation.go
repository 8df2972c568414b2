package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/citedex/internal/domain"
)

// Citation markers are a mini protocol: [S<n>] where n is a 1-based index
// into the ordered passage list supplied to the generator. Validation is a
// bounds check, not fuzzy text matching, so citation text drift cannot fool
// it.
var markerRe = regexp.MustCompile(`\[S(\d+)\]`)

// Validation is the outcome of citation validation over a raw model answer.
type Validation struct {
	Text          string
	UsedDocuments []string
	Confidence    float64
	OK            bool
}

// Validate extracts every citation marker from the raw answer and checks it
// against the exact passage list given to the generator. Out-of-range markers
// are confabulated and get stripped. Confidence is the minimum score among
// passages with surviving citations, scaled by the share of markers that were
// valid; zero valid citations means confidence 0 and a refusal.
//
// Validate is a fixed point: running it on an already-clean pair changes
// nothing.
func Validate(raw string, passages []domain.Passage) Validation {
	total := 0
	valid := 0
	minScore := 1.0
	var usedDocs []string
	seenDocs := map[string]struct{}{}
	citedIdx := map[int]struct{}{}

	clean := markerRe.ReplaceAllStringFunc(raw, func(marker string) string {
		total++
		n, err := strconv.Atoi(markerRe.FindStringSubmatch(marker)[1])
		if err != nil || n < 1 || n > len(passages) {
			return ""
		}
		valid++
		p := passages[n-1]
		if _, ok := citedIdx[n]; !ok {
			citedIdx[n] = struct{}{}
			if p.Score < minScore {
				minScore = p.Score
			}
		}
		if _, ok := seenDocs[p.DocumentName]; !ok {
			seenDocs[p.DocumentName] = struct{}{}
			usedDocs = append(usedDocs, p.DocumentName)
		}
		return marker
	})

	clean = tidyWhitespace(clean)

	if valid == 0 {
		return Validation{Text: clean, UsedDocuments: []string{}, Confidence: 0, OK: false}
	}

	confidence := minScore * (float64(valid) / float64(total))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Validation{
		Text:          clean,
		UsedDocuments: usedDocs,
		Confidence:    confidence,
		OK:            true,
	}
}

var spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)

// tidyWhitespace collapses space runs left behind by stripped markers and
// spaces orphaned before punctuation. Clean text passes through unchanged.
func tidyWhitespace(text string) string {
	text = spaceRunRe.ReplaceAllString(text, " ")
	for _, p := range []string{" .", " ,", " ;", " :"} {
		text = strings.ReplaceAll(text, p, p[1:])
	}
	return strings.TrimSpace(text)
}
