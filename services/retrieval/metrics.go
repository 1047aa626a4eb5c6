package retrieval

import (
	"math"
	"strings"

	"github.com/hbollon/go-edlib"
)

// Score bucket lower bounds
const (
	HighScoreThreshold   = 0.8
	MediumScoreThreshold = 0.6
)

// CalculateMetrics summarizes the filtered chunk list. recall_score is the mean
// of scores clamped to 1.0; it only describes the surviving set, not the
// provider's full candidate pool. Duplicate ratios are diagnostics: chunks
// are never removed for being duplicates.
func CalculateMetrics(chunks []Chunk, nearDuplicateSimilarity float32) Metrics {
	var m Metrics
	if len(chunks) == 0 {
		return m
	}

	var sum, clampedSum float64
	for _, c := range chunks {
		sum += c.Score
		clampedSum += math.Min(c.Score, 1.0)

		switch {
		case c.Score >= HighScoreThreshold:
			m.ScoreDistribution.High++
		case c.Score >= MediumScoreThreshold:
			m.ScoreDistribution.Medium++
		default:
			m.ScoreDistribution.Low++
		}
	}
	n := float64(len(chunks))
	m.AvgScore = round4(sum / n)
	m.RecallScore = round4(math.Max(0, clampedSum/n))

	normalized := make([]string, len(chunks))
	distinct := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		normalized[i] = normalizeText(c.Text)
		distinct[normalized[i]] = struct{}{}
	}
	m.DuplicateRatio = round4(1 - float64(len(distinct))/n)
	m.NearDuplicateRatio = round4(nearDuplicateRatio(normalized, nearDuplicateSimilarity))

	return m
}

// normalizeText lowercases and collapses whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// nearDuplicateRatio is the share of chunks whose word-level Jaccard
// similarity to an earlier chunk reaches threshold.
func nearDuplicateRatio(texts []string, threshold float32) float64 {
	if len(texts) < 2 || threshold <= 0 {
		return 0
	}
	dupes := 0
	for i := 1; i < len(texts); i++ {
		for j := 0; j < i; j++ {
			if edlib.JaccardSimilarity(texts[i], texts[j], 0) >= threshold {
				dupes++
				break
			}
		}
	}
	return float64(dupes) / float64(len(texts))
}

// round4 keeps serialized metrics stable across platforms.
func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
