package retrieval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/upb/context-retrieval/services/search"
)

// BuildQuery compiles a validated request into the provider query. The
// provider is asked for more than k hits so the quality gate can still fill k.
func BuildQuery(req Request, boosts *BoostTable, opts Options) search.Query {
	overfetch := opts.Overfetch
	if overfetch < 1 {
		overfetch = 1
	}
	limit := req.K * overfetch
	if opts.MaxLimit > 0 && limit > opts.MaxLimit {
		limit = opts.MaxLimit
	}
	if limit < req.K {
		limit = req.K
	}

	return search.Query{
		Text:     req.Query,
		Fields:   boosts.Fields(req.Namespaces),
		Limit:    limit,
		Offset:   0,
		Filter:   CompileFilter(req.Filters),
		MinScore: req.MinScore,
	}
}

// CompileFilter renders filter criteria as a provider filter expression:
// AND across dimensions, OR within a multi-valued dimension. Dimensions are
// emitted in a fixed order so equal criteria always compile identically.
func CompileFilter(f Filters) string {
	var clauses []string

	if c := anyOf("type", f.PostTypes, bare); c != "" {
		clauses = append(clauses, c)
	}
	if c := anyOf("status", f.PostStatus, bare); c != "" {
		clauses = append(clauses, c)
	}
	if c := anyOf("license", f.Licenses, strconv.Quote); c != "" {
		clauses = append(clauses, c)
	}
	if f.Language != "" {
		clauses = append(clauses, "language:"+f.Language)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, fmt.Sprintf("date>=%q", f.DateFrom))
	}
	if f.DateTo != "" {
		clauses = append(clauses, fmt.Sprintf("date<=%q", f.DateTo))
	}
	if c := anyOf("author", idStrings(f.Authors), bare); c != "" {
		clauses = append(clauses, c)
	}
	if f.MinWordCount != nil && *f.MinWordCount > 0 {
		clauses = append(clauses, fmt.Sprintf("word_count>=%d", *f.MinWordCount))
	}
	if ids := idStrings(f.ExcludeIDs); len(ids) == 1 {
		clauses = append(clauses, "NOT id:"+ids[0])
	} else if len(ids) > 1 {
		clauses = append(clauses, "NOT id:("+strings.Join(ids, " OR ")+")")
	}

	return strings.Join(clauses, " AND ")
}

func bare(s string) string { return s }

// anyOf renders field:v for one value and (field:a OR field:b) for several.
func anyOf(field string, values []string, quote func(string) string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return field + ":" + quote(values[0])
	}
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = field + ":" + quote(v)
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

func idStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
