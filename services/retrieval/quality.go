package retrieval

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// ExclusionReason names the first quality rule a chunk failed.
type ExclusionReason string

const (
	ReasonBelowMinScore     ExclusionReason = "below_min_score"
	ReasonLicenseNotAllowed ExclusionReason = "license_not_allowed"
	ReasonLanguageMismatch  ExclusionReason = "language_mismatch"
	ReasonBelowMinWordCount ExclusionReason = "below_min_word_count"
	ReasonPlaceholder       ExclusionReason = "placeholder_content"
	ReasonExcludedID        ExclusionReason = "excluded_id"
)

// Exclusion records why a chunk was dropped.
type Exclusion struct {
	ChunkID string
	Reason  ExclusionReason
}

// QualityResult is the output of the quality gate.
type QualityResult struct {
	Chunks    []Chunk
	Excluded  []Exclusion
	Truncated int
}

var (
	// repeatedRun matches ten or more of the same visible character. Common
	// rule and underline characters are allowed.
	repeatedRun = mustCompile(`([^\s\-=_*.~#])\1{9,}`, regexp2.None)

	// templateText matches theme and CMS filler wherever it appears.
	templateText = mustCompile(`\b(?:lorem ipsum|dolor sit amet|this is an example page`+
		`|this is your first post|welcome to wordpress|your content goes here`+
		`|insert (?:your )?(?:text|content) here|placeholder text)\b`,
		regexp2.IgnoreCase)

	// placeholderLead matches short generic phrases only when they open a
	// passage. Articles may mention them mid-sentence.
	placeholderLead = mustCompile(`^\W*(?:coming soon|under construction|sample page|hello world|placeholder)\b`,
		regexp2.IgnoreCase)
)

func mustCompile(pattern string, opts regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, opts)
	re.MatchTimeout = 250 * time.Millisecond
	return re
}

// ApplyQualityFilter keeps the chunks that pass every rule, in input order,
// truncated to req.K. Rules run in a fixed order, cheapest first, and the
// first failed rule is the recorded exclusion reason.
func ApplyQualityFilter(chunks []Chunk, req Request, opts Options) QualityResult {
	allowedLicenses := make(map[string]bool, len(req.Filters.Licenses))
	for _, l := range req.Filters.Licenses {
		allowedLicenses[l] = true
	}
	excluded := make(map[int64]bool, len(req.Filters.ExcludeIDs))
	for _, id := range req.Filters.ExcludeIDs {
		excluded[id] = true
	}
	minWords := opts.MinWordCount
	if req.Filters.MinWordCount != nil {
		minWords = *req.Filters.MinWordCount
	}

	res := QualityResult{Chunks: make([]Chunk, 0, len(chunks))}
	for _, c := range chunks {
		reason, ok := checkChunk(c, req, allowedLicenses, excluded, minWords, opts.MinTextChars)
		if !ok {
			res.Excluded = append(res.Excluded, Exclusion{ChunkID: c.ID, Reason: reason})
			continue
		}
		res.Chunks = append(res.Chunks, c)
	}

	if len(res.Chunks) > req.K {
		res.Truncated = len(res.Chunks) - req.K
		res.Chunks = res.Chunks[:req.K]
	}
	return res
}

func checkChunk(c Chunk, req Request, licenses map[string]bool, excluded map[int64]bool, minWords, minChars int) (ExclusionReason, bool) {
	if c.Score < req.MinScore {
		return ReasonBelowMinScore, false
	}
	if len(licenses) > 0 && !licenses[c.Metadata.License] {
		return ReasonLicenseNotAllowed, false
	}
	if req.Filters.Language != "" && c.Metadata.Language != req.Filters.Language {
		return ReasonLanguageMismatch, false
	}
	if c.Metadata.WordCount < minWords {
		return ReasonBelowMinWordCount, false
	}
	if IsPlaceholder(c.Text, minChars) {
		return ReasonPlaceholder, false
	}
	if len(excluded) > 0 && isExcluded(c, excluded) {
		return ReasonExcludedID, false
	}
	return "", true
}

// IsPlaceholder reports boilerplate: blank or too-short text, long runs of a
// repeated character, or known placeholder phrases.
func IsPlaceholder(text string, minChars int) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if utf8.RuneCountInString(trimmed) < minChars {
		return true
	}
	for _, re := range []*regexp2.Regexp{repeatedRun, templateText, placeholderLead} {
		// A match timeout counts as no match: heuristics never fail a request.
		if ok, err := re.MatchString(trimmed); err == nil && ok {
			return true
		}
	}
	return false
}

func isExcluded(c Chunk, excluded map[int64]bool) bool {
	if c.Metadata.ContentID > 0 && excluded[c.Metadata.ContentID] {
		return true
	}
	if id, err := strconv.ParseInt(c.ID, 10, 64); err == nil && excluded[id] {
		return true
	}
	return false
}
