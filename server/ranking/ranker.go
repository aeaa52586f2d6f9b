// Package ranking implements the hybrid search ranking core: weighted
// Reciprocal Rank Fusion across retrieval sources, confidence
// estimation, threshold filtering, and diversity-aware deduplication.
package ranking

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/infoagent/infoagent/store"
)

const (
	// DefaultRRFK is the damping factor for Reciprocal Rank Fusion.
	// 60 is the commonly used value in information retrieval and is
	// robust to sources of very different list lengths.
	DefaultRRFK = 60

	// DefaultThreshold is the minimum fused score kept by the filter.
	// RRF scores at k=60 are bounded by num_sources/(k+1), so a fixed
	// low floor removes single low-rank hits without per-query tuning.
	DefaultThreshold = 0.01
)

// CandidateResult is one retrieval hit from a single source.
// Score is source-native and not comparable across sources before
// fusion. Record is a read-only snapshot used for display and
// deduplication; the ranker never writes through it.
type CandidateResult struct {
	RecordID int32
	Score    float64
	Source   string
	Record   *store.Memory
}

// FusedResult is one entry in the final, source-merged ranking.
type FusedResult struct {
	RecordID int32
	Record   *store.Memory

	// FusedScore is the RRF-weighted sum across contributing sources.
	// The diversity pass may adjust it in place; post-diversify scores
	// are the authoritative final scores.
	FusedScore float64

	// Confidence (0..1) reflects cross-source agreement. Informational
	// only; it never participates in ordering.
	Confidence float64

	// ContributingSources lists the sources that returned this record,
	// sorted by name. Never empty.
	ContributingSources []string

	// RankInBestSource is the best (smallest) 1-based rank the record
	// held in any contributing source.
	RankInBestSource int

	// BestOriginalScore is the highest source-native score observed.
	BestOriginalScore float64

	// Explanation summarizes the ranking outcome. Fusion writes a
	// provisional summary; Rank rewrites it after diversification so
	// the quoted score and confidence are final.
	Explanation string
}

// Config tunes the ranker. Zero values fall back to defaults.
type Config struct {
	K         int
	Threshold float64
	Sources   []SourceConfig
}

// Ranker fuses per-source candidate lists into a single ranked list.
// It holds no mutable state and is safe for concurrent use.
type Ranker struct {
	k         int
	threshold float64
	sources   map[string]SourceConfig
	logger    *slog.Logger
}

// NewRanker creates a Ranker from config.
func NewRanker(config Config) *Ranker {
	if config.K <= 0 {
		config.K = DefaultRRFK
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Sources == nil {
		config.Sources = DefaultSources()
	}

	sources := make(map[string]SourceConfig, len(config.Sources))
	for _, cfg := range config.Sources {
		sources[cfg.Name] = cfg
	}
	return &Ranker{
		k:         config.K,
		threshold: config.Threshold,
		sources:   sources,
		logger:    slog.Default(),
	}
}

// fusionState accumulates per-record data during fusion.
type fusionState struct {
	record         *store.Memory
	fusedScore     float64
	originalScores map[string]float64
	ranks          map[string]int
}

// Fuse merges per-source candidate lists with weighted Reciprocal Rank
// Fusion. Each list must already be ordered best-first; the candidate
// at 1-based rank r contributes weight/(k+r) to its record's fused
// score. Output is ordered by fused score descending, ties broken by
// ascending record ID so results are deterministic.
//
// weights overrides the configured source weights; a source absent from
// weights falls back to its SourceConfig weight, then to 1.0.
func (r *Ranker) Fuse(sourceResults map[string][]*CandidateResult, weights map[string]float64) []*FusedResult {
	if len(sourceResults) == 0 {
		return []*FusedResult{}
	}

	states := make(map[int32]*fusionState)
	for sourceName, candidates := range sourceResults {
		weight := r.sourceWeight(sourceName, weights)
		for i, candidate := range candidates {
			rank := i + 1
			state, ok := states[candidate.RecordID]
			if !ok {
				state = &fusionState{
					originalScores: make(map[string]float64),
					ranks:          make(map[string]int),
				}
				states[candidate.RecordID] = state
			}
			state.fusedScore += weight / float64(r.k+rank)
			state.originalScores[sourceName] = candidate.Score
			state.ranks[sourceName] = rank
			if state.record == nil {
				state.record = candidate.Record
			}
		}
	}

	results := make([]*FusedResult, 0, len(states))
	for recordID, state := range states {
		sources := make([]string, 0, len(state.ranks))
		bestRank := 0
		bestScore := 0.0
		for name, rank := range state.ranks {
			sources = append(sources, name)
			if bestRank == 0 || rank < bestRank {
				bestRank = rank
			}
			if score := state.originalScores[name]; score > bestScore {
				bestScore = score
			}
		}
		sort.Strings(sources)

		results = append(results, &FusedResult{
			RecordID:            recordID,
			Record:              state.record,
			FusedScore:          state.fusedScore,
			Confidence:          r.confidence(sources, state.originalScores, state.ranks),
			ContributingSources: sources,
			RankInBestSource:    bestRank,
			BestOriginalScore:   bestScore,
			Explanation: fmt.Sprintf("Found in %d sources: %s. RRF score: %.4f",
				len(sources), strings.Join(sources, ", "), state.fusedScore),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].RecordID < results[j].RecordID
	})

	r.logger.Debug("rrf fusion computed", "unique_records", len(results), "sources", len(sourceResults))
	return results
}

func (r *Ranker) sourceWeight(name string, weights map[string]float64) float64 {
	if weights != nil {
		if w, ok := weights[name]; ok {
			return w
		}
	}
	return r.sourceOrDefault(name).Weight
}

// confidence blends four agreement signals into a 0..1 value:
// source count (0.3), score consistency (0.3), rank consistency (0.2),
// and configured source reliability (0.2).
func (r *Ranker) confidence(sources []string, originalScores map[string]float64, ranks map[string]int) float64 {
	totalKnown := len(r.sources)
	if totalKnown == 0 {
		totalKnown = 1
	}
	sourceConfidence := float64(len(sources)) / float64(totalKnown)
	if sourceConfidence > 1.0 {
		sourceConfidence = 1.0
	}

	// Lower variance across the sources' raw scores means better
	// agreement, despite their different scales.
	var scoreConsistency float64
	switch {
	case len(originalScores) > 1:
		mean := 0.0
		for _, s := range originalScores {
			mean += s
		}
		mean /= float64(len(originalScores))
		variance := 0.0
		for _, s := range originalScores {
			variance += (s - mean) * (s - mean)
		}
		variance /= float64(len(originalScores))
		scoreConsistency = 1.0 - variance
		if scoreConsistency < 0 {
			scoreConsistency = 0
		}
	case len(originalScores) == 1:
		scoreConsistency = 1.0
	default:
		scoreConsistency = 0.5
	}

	rankConfidence := 1.0
	if len(ranks) > 0 {
		avgRank := 0.0
		for _, rank := range ranks {
			avgRank += float64(rank)
		}
		avgRank /= float64(len(ranks))
		rankConfidence = 1.0 - (avgRank-1)*0.1
		if rankConfidence < 0.1 {
			rankConfidence = 0.1
		}
	}

	reliability := 0.0
	for _, name := range sources {
		reliability += r.sourceOrDefault(name).Reliability
	}
	if len(sources) > 0 {
		reliability /= float64(len(sources))
	}

	confidence := sourceConfidence*0.3 + scoreConsistency*0.3 + rankConfidence*0.2 + reliability*0.2
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
