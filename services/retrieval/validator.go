package retrieval

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/upb/context-retrieval/services"
	"github.com/upb/context-retrieval/utils"
)

// ValidateRequest turns an untyped decoded JSON body into a Request. Every
// violated constraint is reported in a single validation error.
func ValidateRequest(raw map[string]any, opts Options) (Request, error) {
	var violations []services.Violation
	mistyped := make(map[string]bool)
	violate := func(field, msg string) {
		mistyped[field] = true
		violations = append(violations, services.Violation{Field: field, Message: field + " " + msg})
	}

	req := Request{
		K:        opts.DefaultK,
		MinScore: opts.DefaultMinScore,
	}

	if v, ok := present(raw, "sectionId"); ok {
		if s, isStr := v.(string); isStr {
			req.SectionID = strings.TrimSpace(s)
		} else {
			violate("sectionId", "must be a string")
		}
	}

	if v, ok := present(raw, "query"); ok {
		if s, isStr := v.(string); isStr {
			req.Query = strings.TrimSpace(s)
		} else {
			violate("query", "must be a string")
		}
	}

	if v, ok := present(raw, "k"); ok {
		if n, isInt := asInteger(v); isInt {
			req.K = clampToInt(n)
		} else {
			violate("k", "must be an integer")
		}
	}

	if v, ok := present(raw, "min_score"); ok {
		if f, isNum := asNumber(v); isNum {
			req.MinScore = f
		} else {
			violate("min_score", "must be a number")
		}
	}

	req.Namespaces = normalizeNamespaces(raw["namespaces"], opts.DefaultNamespace)
	req.Filters = NormalizeFilters(raw["filters"])

	if err := utils.ValidateStruct(&req); err != nil {
		fields := utils.GetValidationFields(err)
		if fields == nil {
			return Request{}, services.WrapInternal("request validation", err)
		}
		for field, msg := range fields {
			if mistyped[field] {
				continue
			}
			violations = append(violations, services.Violation{Field: field, Message: msg})
		}
	}

	if len(violations) > 0 {
		return Request{}, services.NewValidationError(violations)
	}
	return req, nil
}

// normalizeNamespaces drops unknown values element-wise and falls back to the
// default when nothing usable remains.
func normalizeNamespaces(v any, def Namespace) []Namespace {
	var candidates []string
	switch t := v.(type) {
	case string:
		candidates = []string{t}
	case []string:
		candidates = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	seen := make(map[Namespace]bool, len(candidates))
	out := make([]Namespace, 0, len(candidates))
	for _, c := range candidates {
		ns, ok := ParseNamespace(c)
		if !ok || seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	if len(out) == 0 {
		return []Namespace{def}
	}
	return out
}

// present returns the value for key when it exists and is not JSON null.
func present(raw map[string]any, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// asNumber accepts the numeric shapes produced by encoding/json and by Go callers.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// asInteger accepts numbers with no fractional part.
func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := asNumber(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func clampToInt(n int64) int {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return int(n)
}
