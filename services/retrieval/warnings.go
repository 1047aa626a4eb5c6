package retrieval

import "fmt"

// GenerateWarnings derives quality diagnostics for a filtered result. The
// order is fixed: recall, count, relevance, license, duplicates. It never
// returns nil.
func GenerateWarnings(chunks []Chunk, m Metrics, req Request, opts Options) []Warning {
	warnings := []Warning{}
	count := len(chunks)

	if m.RecallScore < opts.LowRecallThreshold {
		sev := SeverityMedium
		if m.RecallScore < opts.LowRecallThreshold/2 {
			sev = SeverityHigh
		}
		warnings = append(warnings, Warning{
			Type:     WarningLowRecall,
			Message:  fmt.Sprintf("recall score %.2f is below the %.2f threshold", m.RecallScore, opts.LowRecallThreshold),
			Severity: sev,
		})
	}

	if count < opts.MinResults {
		sev := SeverityMedium
		if count == 0 {
			sev = SeverityHigh
		}
		warnings = append(warnings, Warning{
			Type:     WarningInsufficientResults,
			Message:  fmt.Sprintf("only %d chunks passed quality filtering, at least %d expected", count, opts.MinResults),
			Severity: sev,
		})
	}

	if m.AvgScore < opts.LowRelevanceThreshold {
		warnings = append(warnings, Warning{
			Type:     WarningLowRelevance,
			Message:  fmt.Sprintf("average relevance %.2f is below %.2f", m.AvgScore, opts.LowRelevanceThreshold),
			Severity: SeverityMedium,
		})
	}

	if req.Filters.HasLicenseFilter() && count*2 < req.K {
		warnings = append(warnings, Warning{
			Type:     WarningLicenseFilterImpact,
			Message:  fmt.Sprintf("license filter left %d of %d requested chunks", count, req.K),
			Severity: SeverityLow,
		})
	}

	if opts.DuplicateRatioThreshold > 0 && count > 1 && m.DuplicateRatio >= opts.DuplicateRatioThreshold {
		warnings = append(warnings, Warning{
			Type:     WarningDuplicateContent,
			Message:  fmt.Sprintf("%.0f%% of chunks repeat another chunk's text", m.DuplicateRatio*100),
			Severity: SeverityLow,
		})
	}

	return warnings
}
