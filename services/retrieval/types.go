package retrieval

import (
	"strings"
	"time"
)

// Namespace selects a boost profile. The set is closed.
type Namespace string

const (
	NamespaceContent  Namespace = "content"
	NamespaceDocs     Namespace = "docs"
	NamespaceProducts Namespace = "products"
)

// AllNamespaces lists every accepted namespace in declaration order.
var AllNamespaces = []Namespace{NamespaceContent, NamespaceDocs, NamespaceProducts}

// ParseNamespace resolves a case-insensitive namespace name.
func ParseNamespace(s string) (Namespace, bool) {
	ns := Namespace(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllNamespaces {
		if ns == known {
			return ns, true
		}
	}
	return "", false
}

// Request is a validated retrieval request. Construct it with ValidateRequest.
type Request struct {
	SectionID  string      `json:"sectionId,omitempty" validate:"max=128"`
	Query      string      `json:"query" validate:"required,min=10,max=500"`
	Namespaces []Namespace `json:"namespaces"`
	K          int         `json:"k" validate:"gte=1,lte=50"`
	MinScore   float64     `json:"min_score" validate:"gte=0,lte=1"`
	Filters    Filters     `json:"filters"`
}

// Filters is the sanitized filter criteria. Multi-valued fields are sorted
// and deduplicated; empty fields mean "no constraint".
type Filters struct {
	PostTypes    []string `json:"post_types,omitempty"`
	PostStatus   []string `json:"post_status,omitempty"`
	Licenses     []string `json:"license,omitempty"`
	Language     string   `json:"language,omitempty"`
	DateFrom     string   `json:"date_from,omitempty"`
	DateTo       string   `json:"date_to,omitempty"`
	Authors      []int64  `json:"authors,omitempty"`
	ExcludeIDs   []int64  `json:"exclude_ids,omitempty"`
	MinWordCount *int     `json:"min_word_count,omitempty"`
}

// IsEmpty reports whether no filter dimension is active.
func (f Filters) IsEmpty() bool {
	return len(f.PostTypes) == 0 && len(f.PostStatus) == 0 && len(f.Licenses) == 0 &&
		f.Language == "" && f.DateFrom == "" && f.DateTo == "" &&
		len(f.Authors) == 0 && len(f.ExcludeIDs) == 0 && f.MinWordCount == nil
}

// HasLicenseFilter reports whether a license allow-list is active.
func (f Filters) HasLicenseFilter() bool {
	return len(f.Licenses) > 0
}

// ChunkMetadata is the standardized provenance of a chunk.
type ChunkMetadata struct {
	SourceURL  string   `json:"source_url"`
	Type       string   `json:"type"`
	Date       string   `json:"date"`
	License    string   `json:"license"`
	Language   string   `json:"language"`
	ContentID  int64    `json:"content_id"`
	Author     string   `json:"author"`
	Categories []string `json:"categories"`
	WordCount  int      `json:"word_count"`
	Excerpt    string   `json:"excerpt"`
}

// Chunk is one retrieved passage.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ScoreDistribution buckets chunk scores.
type ScoreDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// RecallMetrics is the serialized quality summary.
type RecallMetrics struct {
	RecallScore       float64           `json:"recall_score"`
	AvgScore          float64           `json:"avg_score"`
	ScoreDistribution ScoreDistribution `json:"score_distribution"`
}

// Metrics extends RecallMetrics with diagnostics used only for warnings and logs.
type Metrics struct {
	RecallMetrics
	DuplicateRatio     float64
	NearDuplicateRatio float64
}

// Severity of a warning
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// WarningType identifies a diagnostic
type WarningType string

const (
	WarningLowRecall           WarningType = "low_recall"
	WarningInsufficientResults WarningType = "insufficient_results"
	WarningLowRelevance        WarningType = "low_relevance"
	WarningLicenseFilterImpact WarningType = "license_filter_impact"
	WarningDuplicateContent    WarningType = "duplicate_content"
)

// Warning is a structured diagnostic attached to a successful result.
type Warning struct {
	Type     WarningType `json:"type"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
}

// CacheStatus reports whether a result came from the cache
type CacheStatus string

const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss"
)

// Result is the retrieval response envelope. It is never mutated after
// construction; cache hits are copies that differ only in CacheStatus.
type Result struct {
	Chunks           []Chunk       `json:"chunks"`
	TotalRetrieved   int           `json:"total_retrieved"`
	RecallMetrics    RecallMetrics `json:"recall_metrics"`
	QueryHash        string        `json:"query_hash"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
	Warnings         []Warning     `json:"warnings"`
	CacheStatus      CacheStatus   `json:"cache_status"`
}

// Options is the pipeline configuration injected at construction time.
type Options struct {
	DefaultNamespace Namespace
	DefaultLanguage  string
	DefaultK         int
	DefaultMinScore  float64

	Overfetch       int
	MaxLimit        int
	UpstreamTimeout time.Duration

	CacheTTL       time.Duration
	CacheKeyPrefix string

	LowRecallThreshold      float64
	LowRelevanceThreshold   float64
	MinResults              int
	MinWordCount            int
	MinTextChars            int
	DuplicateRatioThreshold float64
	NearDuplicateSimilarity float32
}

// DefaultOptions returns the standard-strictness configuration.
func DefaultOptions() Options {
	return Options{
		DefaultNamespace:        NamespaceContent,
		DefaultLanguage:         "en",
		DefaultK:                10,
		DefaultMinScore:         0.5,
		Overfetch:               2,
		MaxLimit:                100,
		UpstreamTimeout:         10 * time.Second,
		CacheTTL:                time.Hour,
		LowRecallThreshold:      0.6,
		LowRelevanceThreshold:   0.6,
		MinResults:              3,
		MinWordCount:            20,
		MinTextChars:            50,
		DuplicateRatioThreshold: 0.3,
		NearDuplicateSimilarity: 0.9,
	}
}
