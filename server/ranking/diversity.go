package ranking

import (
	"fmt"
	"sort"
	"strings"
)

// signatureLength is how many leading characters of content form the
// near-duplicate signature.
const signatureLength = 100

// diversityPenalty is the multiplier applied per over-represented
// contributing source. It compounds without a cap, matching the
// historical behavior; see DESIGN.md for the boundary discussion.
const diversityPenalty = 0.95

// ApplyThreshold drops results whose fused score is below the
// configured floor, preserving relative order.
func (r *Ranker) ApplyThreshold(results []*FusedResult) []*FusedResult {
	filtered := make([]*FusedResult, 0, len(results))
	for _, result := range results {
		if result.FusedScore >= r.threshold {
			filtered = append(filtered, result)
		} else {
			r.logger.Debug("threshold filtered result",
				"record_id", result.RecordID,
				"fused_score", result.FusedScore,
				"threshold", r.threshold)
		}
	}
	return filtered
}

// Diversify removes near-duplicate content and discourages any single
// source from dominating the final window. Inputs shorter than
// maxResults pass through unchanged (fusion already deduplicated by
// record ID). Otherwise results are walked in score order; a result
// whose content signature was already seen is skipped entirely, and a
// result whose contributing sources already hold more than maxResults/3
// accepted slots takes a 0.95 score penalty per such source. The
// accepted set is re-sorted afterwards because penalties can reorder
// it. Fused scores are adjusted in place.
func (r *Ranker) Diversify(results []*FusedResult, maxResults int) []*FusedResult {
	if maxResults <= 0 || len(results) <= maxResults {
		return results
	}

	seenSignatures := make(map[string]bool)
	sourceCounts := make(map[string]int)
	accepted := make([]*FusedResult, 0, maxResults)
	overCap := maxResults / 3

	for _, result := range results {
		signature := contentSignature(result)
		if signature != "" {
			if seenSignatures[signature] {
				continue
			}
			seenSignatures[signature] = true
		}

		penalty := 1.0
		for _, source := range result.ContributingSources {
			if sourceCounts[source] > overCap {
				penalty *= diversityPenalty
			}
		}
		result.FusedScore *= penalty

		accepted = append(accepted, result)
		for _, source := range result.ContributingSources {
			sourceCounts[source]++
		}
		if len(accepted) >= maxResults {
			break
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].FusedScore != accepted[j].FusedScore {
			return accepted[i].FusedScore > accepted[j].FusedScore
		}
		return accepted[i].RecordID < accepted[j].RecordID
	})

	r.logger.Debug("diversification complete",
		"kept", len(accepted),
		"input", len(results))
	return accepted
}

// contentSignature returns the lowercase of the first 100 characters of
// the record's content. An empty signature (no snapshot or empty
// content) never participates in deduplication.
func contentSignature(result *FusedResult) string {
	if result.Record == nil {
		return ""
	}
	content := result.Record.Content
	runes := []rune(content)
	if len(runes) > signatureLength {
		content = string(runes[:signatureLength])
	}
	return strings.ToLower(strings.TrimSpace(content))
}

// Rank runs the complete pipeline: fusion, threshold filtering, and
// diversification down to maxResults. Each surviving result gets a
// final explanation quoting its post-diversification score, its
// confidence, and the contributing sources.
func (r *Ranker) Rank(sourceResults map[string][]*CandidateResult, weights map[string]float64, maxResults int) []*FusedResult {
	fused := r.Fuse(sourceResults, weights)
	filtered := r.ApplyThreshold(fused)
	final := r.Diversify(filtered, maxResults)
	for _, result := range final {
		result.Explanation = fmt.Sprintf("RRF Score: %.3f | Confidence: %.2f | Sources: %s",
			result.FusedScore, result.Confidence, strings.Join(result.ContributingSources, ", "))
	}
	return final
}
