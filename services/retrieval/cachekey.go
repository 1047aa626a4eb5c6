package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// cacheKeyVersion is bumped whenever the canonical form or the result shape changes.
const cacheKeyVersion = "retrieval:v1:"

type canonicalFilters struct {
	Authors      []int64  `json:"authors,omitempty"`
	DateFrom     string   `json:"date_from,omitempty"`
	DateTo       string   `json:"date_to,omitempty"`
	ExcludeIDs   []int64  `json:"exclude_ids,omitempty"`
	Language     string   `json:"language,omitempty"`
	Licenses     []string `json:"license,omitempty"`
	MinWordCount *int     `json:"min_word_count,omitempty"`
	PostStatus   []string `json:"post_status,omitempty"`
	PostTypes    []string `json:"post_types,omitempty"`
}

// canonicalRequest holds only the fields that affect retrieval output, with
// keys in lexical order and every collection sorted.
type canonicalRequest struct {
	Filters    canonicalFilters `json:"filters"`
	K          int              `json:"k"`
	MinScore   float64          `json:"min_score"`
	Namespaces []string         `json:"namespaces"`
	Query      string           `json:"query"`
}

// DeriveQueryHash returns the hex SHA-256 of the request's canonical form.
// Requests that differ only in collection ordering hash identically;
// sectionId is a correlation token and does not participate.
func DeriveQueryHash(req Request) string {
	namespaces := make([]string, 0, len(req.Namespaces))
	seen := make(map[Namespace]bool, len(req.Namespaces))
	for _, ns := range req.Namespaces {
		if !seen[ns] {
			seen[ns] = true
			namespaces = append(namespaces, string(ns))
		}
	}
	sort.Strings(namespaces)

	c := canonicalRequest{
		Filters: canonicalFilters{
			Authors:      sortedIDs(req.Filters.Authors),
			DateFrom:     req.Filters.DateFrom,
			DateTo:       req.Filters.DateTo,
			ExcludeIDs:   sortedIDs(req.Filters.ExcludeIDs),
			Language:     req.Filters.Language,
			Licenses:     sortedUnique(req.Filters.Licenses),
			MinWordCount: req.Filters.MinWordCount,
			PostStatus:   sortedUnique(req.Filters.PostStatus),
			PostTypes:    sortedUnique(req.Filters.PostTypes),
		},
		K:          req.K,
		MinScore:   req.MinScore,
		Namespaces: namespaces,
		Query:      req.Query,
	}

	// Marshal cannot fail: the struct holds only strings, numbers and slices of them.
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CacheKey namespaces a query hash for the cache store.
func CacheKey(prefix, queryHash string) string {
	return prefix + cacheKeyVersion + queryHash
}

func sortedIDs(in []int64) []int64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int64, 0, len(in))
	seen := make(map[int64]bool, len(in))
	for _, id := range in {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
