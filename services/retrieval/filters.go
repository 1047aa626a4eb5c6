package retrieval

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/upb/context-retrieval/utils"
	"golang.org/x/text/language"
)

// MaxMinWordCount caps the min_word_count filter.
const MaxMinWordCount = 10000

// Licenses is the closed license allow-list in canonical spelling.
var Licenses = []string{
	"CC0", "CC-BY", "CC-BY-SA", "CC-BY-NC", "CC-BY-NC-SA", "CC-BY-ND", "CC-BY-NC-ND",
	"GPL-2.0", "GPL-3.0", "MIT", "Apache-2.0", "proprietary",
}

// PostStatuses is the closed publication-status enum.
var PostStatuses = []string{"publish", "private", "draft", "pending", "future"}

var licenseLookup = func() map[string]string {
	m := make(map[string]string, len(Licenses))
	for _, l := range Licenses {
		m[strings.ToLower(l)] = l
	}
	return m
}()

// CanonicalLicense maps a license tag onto its canonical spelling.
func CanonicalLicense(s string) (string, bool) {
	l, ok := licenseLookup[strings.ToLower(strings.TrimSpace(s))]
	return l, ok
}

// NormalizeLanguage reduces a language tag such as "en-US" or "PT_br" to its
// ISO-639-1 code. Unknown or three-letter-only languages are rejected.
func NormalizeLanguage(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if i := strings.IndexAny(s, "-_"); i >= 0 {
		s = s[:i]
	}
	if len(s) != 2 {
		return "", false
	}
	base, err := language.ParseBase(s)
	if err != nil || base.String() != s {
		return "", false
	}
	return s, true
}

// NormalizeFilters sanitizes raw filter input. It never fails: unknown keys
// and malformed values are dropped, and nothing is invented.
func NormalizeFilters(raw any) Filters {
	m, ok := raw.(map[string]any)
	if !ok {
		return Filters{}
	}

	var f Filters

	for _, v := range stringList(m["post_types"]) {
		v = strings.ToLower(strings.TrimSpace(v))
		if utils.ValidateVar(v, "slug") {
			f.PostTypes = append(f.PostTypes, v)
		}
	}
	f.PostTypes = sortedUnique(f.PostTypes)

	for _, v := range stringList(m["post_status"]) {
		v = strings.ToLower(strings.TrimSpace(v))
		if utils.ValidateOneOf(v, "post_status", PostStatuses) == nil {
			f.PostStatus = append(f.PostStatus, v)
		}
	}
	f.PostStatus = sortedUnique(f.PostStatus)

	for _, v := range stringList(m["license"]) {
		if l, ok := CanonicalLicense(v); ok {
			f.Licenses = append(f.Licenses, l)
		}
	}
	f.Licenses = sortedUnique(f.Licenses)

	if s, ok := m["language"].(string); ok {
		if lang, ok := NormalizeLanguage(s); ok {
			f.Language = lang
		}
	}

	from, fromOK := parseDate(m["date_from"])
	to, toOK := parseDate(m["date_to"])
	switch {
	case fromOK && toOK:
		if !from.After(to) {
			f.DateFrom = from.Format(dateLayout)
			f.DateTo = to.Format(dateLayout)
		}
	case fromOK:
		f.DateFrom = from.Format(dateLayout)
	case toOK:
		f.DateTo = to.Format(dateLayout)
	}

	f.Authors = positiveIDs(m["authors"])
	f.ExcludeIDs = positiveIDs(m["exclude_ids"])

	if v, ok := present(m, "min_word_count"); ok {
		if n, ok := asInteger(v); ok && n >= 0 && n <= MaxMinWordCount {
			wc := int(n)
			f.MinWordCount = &wc
		}
	}

	return f
}

const dateLayout = "2006-01-02"

func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// stringList accepts a single string or a list; non-string elements are skipped.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// positiveIDs accepts a single id or a list of ids as numbers or digit strings.
func positiveIDs(v any) []int64 {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		items = t
	case []int64:
		for _, id := range t {
			items = append(items, id)
		}
	case []int:
		for _, id := range t {
			items = append(items, id)
		}
	default:
		items = []any{t}
	}

	seen := make(map[int64]bool, len(items))
	var out []int64
	for _, item := range items {
		var id int64
		var ok bool
		if s, isStr := item.(string); isStr {
			id, ok = parseID(s)
		} else {
			id, ok = asInteger(item)
		}
		if !ok || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func parseID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}
