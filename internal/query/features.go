package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
)

var reserved = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true}

var operators = map[string]string{
	"gte": ">=",
	"gt":  ">",
	"lte": "<=",
	"lt":  "<",
}

// Features accumulates the WHERE, ORDER BY, projection and LIMIT parts of a
// list query.  Methods return the receiver so calls chain in the fixed
// order Filter, Sort, LimitFields, Paginate.  The first error stops further
// processing and is returned by Build.
type Features struct {
	schema *Schema
	params url.Values

	conds   []string
	args    []any
	order   []string
	include []string
	exclude []string

	limit     int
	skip      int
	paginated bool

	err error
}

// New starts a query over schema using the raw request parameters.  Until a
// step runs its default applies: identity order, hidden fields excluded and
// no LIMIT.
func New(schema *Schema, params url.Values) *Features {
	if params == nil {
		params = url.Values{}
	}
	f := &Features{
		schema: schema,
		params: params,
		limit:  DefaultLimit,
	}
	f.exclude = append(f.exclude, schema.Hidden...)
	return f
}

// Where adds a pre-scope condition with its bound arguments.
func (f *Features) Where(cond string, args ...any) *Features {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, args...)
	return f
}

// Filter turns the non-reserved parameters into conditions.  field=value is
// equality; field[gte|gt|lte|lt]=value becomes the matching comparison and
// any other bracket operator falls back to equality.  Fields missing from
// the schema are ignored.
func (f *Features) Filter() *Features {
	if f.err != nil {
		return f
	}
	keys := make([]string, 0, len(f.params))
	for k := range f.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reserved[key] {
			continue
		}
		name, op := splitKey(key)
		fd, ok := f.schema.field(name)
		if !ok {
			continue
		}
		values := f.params[key]
		if len(values) == 0 {
			continue
		}
		sqlOp, known := operators[op]
		if !known {
			sqlOp = "="
		}

		if sqlOp == "=" && fd.Multi && len(values) > 1 {
			holders := make([]string, 0, len(values))
			for _, raw := range values {
				v, err := coerce(name, fd, raw)
				if err != nil {
					f.err = err
					return f
				}
				holders = append(holders, "?")
				f.args = append(f.args, v)
			}
			f.conds = append(f.conds, fmt.Sprintf("%s IN (%s)", fd.Column, strings.Join(holders, ",")))
			continue
		}

		v, err := coerce(name, fd, values[len(values)-1])
		if err != nil {
			f.err = err
			return f
		}
		f.conds = append(f.conds, fmt.Sprintf("%s %s ?", fd.Column, sqlOp))
		f.args = append(f.args, v)
	}
	return f
}

// Sort applies sort=a,-b.  A leading '-' sorts descending.  Without a sort
// parameter the identity column orders the results.
func (f *Features) Sort() *Features {
	if f.err != nil {
		return f
	}
	f.order = f.order[:0]
	raw := strings.TrimSpace(f.params.Get("sort"))
	if raw == "" {
		return f
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		dir := "ASC"
		if strings.HasPrefix(part, "-") {
			dir = "DESC"
			part = strings.TrimPrefix(part, "-")
		}
		fd, ok := f.schema.field(part)
		if !ok {
			continue
		}
		f.order = append(f.order, fd.Column+" "+dir)
	}
	return f
}

// LimitFields applies fields=a,b (include) or fields=-a (exclude).  Without
// the parameter the schema's hidden fields are excluded.
func (f *Features) LimitFields() *Features {
	if f.err != nil {
		return f
	}
	raw := strings.TrimSpace(f.params.Get("fields"))
	if raw == "" {
		return f
	}
	f.include = nil
	f.exclude = nil
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.HasPrefix(part, "-"):
			f.exclude = append(f.exclude, strings.TrimPrefix(part, "-"))
		default:
			f.include = append(f.include, part)
		}
	}
	return f
}

// Paginate reads page and limit, falling back to 1 and 100 for missing,
// non-numeric or non-positive values.
func (f *Features) Paginate() *Features {
	if f.err != nil {
		return f
	}
	page := positiveInt(f.params.Get("page"), DefaultPage)
	f.limit = positiveInt(f.params.Get("limit"), DefaultLimit)
	f.skip = (page - 1) * f.limit
	f.paginated = true
	return f
}

// Err returns the first error raised by a step.
func (f *Features) Err() error { return f.err }

// Skip is the number of rows skipped by pagination.
func (f *Features) Skip() int { return f.skip }

// Limit is the page size.  It is only applied once Paginate ran.
func (f *Features) Limit() int { return f.limit }

// Paginated reports whether Paginate ran.
func (f *Features) Paginated() bool { return f.paginated }

// Conditions returns the WHERE conditions and their arguments.
func (f *Features) Conditions() ([]string, []any) { return f.conds, f.args }

// OrderBy returns the ORDER BY clause body, always ending with the identity
// column so that pages are stable.
func (f *Features) OrderBy() string {
	id := f.schema.IDColumn
	if id == "" {
		id = "id"
	}
	parts := append([]string{}, f.order...)
	tie := true
	for _, p := range parts {
		if strings.HasPrefix(p, id+" ") {
			tie = false
		}
	}
	if tie {
		parts = append(parts, id+" ASC")
	}
	return strings.Join(parts, ", ")
}

// Build appends WHERE, ORDER BY and LIMIT/OFFSET to selectFrom.
func (f *Features) Build(selectFrom string) (string, []any, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	var b strings.Builder
	b.WriteString(selectFrom)
	if len(f.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(f.conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(f.OrderBy())
	args := append([]any{}, f.args...)
	if f.paginated {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, f.limit, f.skip)
	}
	return b.String(), args, nil
}

// Project serializes v and keeps only the selected fields.  v is a single
// entity or a slice of entities.  The id field is always kept.
func (f *Features) Project(v any) (any, error) {
	if len(f.include) == 0 && len(f.exclude) == 0 {
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	switch t := generic.(type) {
	case []any:
		for i, item := range t {
			if m, ok := item.(map[string]any); ok {
				t[i] = f.projectMap(m)
			}
		}
		return t, nil
	case map[string]any:
		return f.projectMap(t), nil
	default:
		return generic, nil
	}
}

func (f *Features) projectMap(m map[string]any) map[string]any {
	if len(f.include) > 0 {
		keep := map[string]bool{"id": true}
		for _, k := range f.include {
			keep[k] = true
		}
		for k := range m {
			if !keep[k] {
				delete(m, k)
			}
		}
	}
	for _, k := range f.exclude {
		if k != "id" {
			delete(m, k)
		}
	}
	return m
}

func splitKey(key string) (name, op string) {
	name, rest, found := strings.Cut(key, "[")
	if !found {
		return key, ""
	}
	return name, strings.TrimSuffix(rest, "]")
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}
