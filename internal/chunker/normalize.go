package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs into single spaces and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// NormalizeTableRows converts table rows into retrieval-friendly
// "header: cell; ..." lines. The first row is treated as the header. Rows are
// atomic spans: the chunker never splits inside one.
func NormalizeTableRows(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = CleanText(cell)
	}

	var lines []string
	for _, row := range rows[1:] {
		var pairs []string
		for i, cell := range row {
			cell = CleanText(cell)
			column := fmt.Sprintf("column_%d", i)
			if i < len(header) && header[i] != "" {
				column = header[i]
			}
			pairs = append(pairs, column+": "+cell)
		}
		line := strings.Trim(strings.Join(pairs, "; "), "; ")
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
