// Package query translates list-endpoint query strings into SQL.
//
// A request such as
//
//	GET /api/v1/tours?duration[gte]=5&difficulty=easy&sort=-price&fields=name,price&page=2&limit=10
//
// is applied to a collection Schema in four fixed steps: Filter, Sort,
// LimitFields and Paginate.  Only column names declared in the Schema ever
// reach the SQL text; every value is bound as a parameter.
package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/tour-booking/internal/apperr"
)

// Kind tells the builder how to coerce a raw query value.
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Time
)

// Field maps an API field name onto a SQL column.
type Field struct {
	Column string
	Kind   Kind
	// Multi allows the parameter to repeat (?difficulty=easy&difficulty=medium),
	// which filters with IN.  Other repeated parameters keep the last value.
	Multi bool
}

// Schema describes a filterable, sortable collection.
type Schema struct {
	Fields map[string]Field
	// IDColumn is the identity column used as the default order and as
	// the pagination tiebreaker.
	IDColumn string
	// Hidden lists API fields excluded from responses unless requested.
	Hidden []string
}

func (s *Schema) field(name string) (Field, bool) {
	f, ok := s.Fields[name]
	return f, ok
}

// coerce converts a raw string according to the field kind.
func coerce(name string, f Field, raw string) (any, error) {
	switch f.Kind {
	case Number:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidReference, "Invalid %s: %s", name, raw)
		}
		return n, nil
	case Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidReference, "Invalid %s: %s", name, raw)
		}
		return b, nil
	case Time:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, apperr.Newf(apperr.InvalidReference, "Invalid %s: %s", name, raw)
	default:
		return raw, nil
	}
}
