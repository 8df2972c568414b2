package domain

import (
	"fmt"
	"regexp"
)

// QueryType selects the domain profile fed into the generation prompt.
type QueryType string

// Supported query types.
const (
	QuerySales     QueryType = "sales"
	QueryTechnical QueryType = "technical"
)

// AnswerMode controls answer verbosity. It never weakens the closed-context
// constraint, only the presentation.
type AnswerMode string

// Supported answer modes.
const (
	ModeBrief    AnswerMode = "brief"
	ModeStandard AnswerMode = "standard"
	ModeDeep     AnswerMode = "deep"
)

// Query is one ask request. Transient: it exists only for the duration of the
// request and is never persisted.
type Query struct {
	Question string
	Type     QueryType
	Version  string // optional version filter, "" means all versions
	Mode     AnswerMode
}

var versionRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidateVersion checks a version label against the allowed alphabet. The
// same rule applies on ingest and on query, so a stored label is always
// reachable by a filter.
func ValidateVersion(v string) error {
	if !versionRe.MatchString(v) {
		return fmt.Errorf("%w: %q", ErrInvalidVersionFilter, v)
	}
	return nil
}

// Normalize applies defaults and validates enum fields and the version filter.
func (q *Query) Normalize() error {
	if q.Type == "" {
		q.Type = QuerySales
	}
	if q.Mode == "" {
		q.Mode = ModeStandard
	}
	switch q.Type {
	case QuerySales, QueryTechnical:
	default:
		return fmt.Errorf("unknown query type %q", q.Type)
	}
	switch q.Mode {
	case ModeBrief, ModeStandard, ModeDeep:
	default:
		return fmt.Errorf("unknown answer mode %q", q.Mode)
	}
	if q.Version != "" && !versionRe.MatchString(q.Version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersionFilter, q.Version)
	}
	return nil
}
