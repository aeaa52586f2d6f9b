package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/infoagent/infoagent/server/ranking"
)

// maxQueryLength bounds what we forward to providers and the embedding API.
const maxQueryLength = 1000

const defaultLimit = 10

// Mode reports which path produced the search results.
type Mode string

const (
	// ModeFused means every provider succeeded and results went through
	// the full fusion pipeline.
	ModeFused Mode = "fused"
	// ModeDegraded means at least one provider failed; fusion ran over
	// the surviving sources.
	ModeDegraded Mode = "degraded"
	// ModeFallback means the fusion stage itself failed and results are
	// a plain union ordered by raw source scores.
	ModeFallback Mode = "fallback"
)

// Options configures a single hybrid search call.
type Options struct {
	Query string
	Limit int

	// Weights overrides per-source fusion weights. Nil uses the ranker's
	// configured source weights.
	Weights map[string]float64

	// RequestID tags log lines; generated when empty.
	RequestID string
}

// Result is the outcome of a hybrid search.
type Result struct {
	Results []*ranking.FusedResult
	Mode    Mode

	// FailedSources names providers that errored on this call.
	FailedSources []string
}

// HybridSearcher runs all providers concurrently and fuses their output.
type HybridSearcher struct {
	providers []Provider
	ranker    *ranking.Ranker
	logger    *slog.Logger
}

func NewHybridSearcher(providers []Provider, ranker *ranking.Ranker, logger *slog.Logger) *HybridSearcher {
	return &HybridSearcher{
		providers: providers,
		ranker:    ranker,
		logger:    logger,
	}
}

// Search queries every provider in parallel, then ranks the merged
// candidates. A failing provider degrades the search instead of failing it;
// only when every provider fails does Search return an error.
func (s *HybridSearcher) Search(ctx context.Context, opts *Options) (*Result, error) {
	if opts.Query == "" {
		return nil, errors.New("empty query")
	}
	queryLength := utf8.RuneCountInString(opts.Query)
	if queryLength > maxQueryLength {
		return nil, errors.Errorf("query too long: %d characters (max %d)", queryLength, maxQueryLength)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	requestID := opts.RequestID
	if requestID == "" {
		requestID = shortuuid.New()
	}
	if len(s.providers) == 0 {
		return nil, errors.New("no retrieval providers configured")
	}

	type providerOutcome struct {
		candidates []*ranking.CandidateResult
		err        error
	}

	// Providers are independent and I/O bound; run them concurrently.
	// Errors are collected per provider rather than cancelling the group
	// so one failed source cannot abort the others.
	outcomes := make([]providerOutcome, len(s.providers))
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for i, provider := range s.providers {
		group.Go(func() error {
			candidates, err := provider.Search(groupCtx, opts.Query, limit)
			mu.Lock()
			outcomes[i] = providerOutcome{candidates: candidates, err: err}
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors, so Wait only synchronizes.
	_ = group.Wait()

	sourceResults := make(map[string][]*ranking.CandidateResult)
	var failedSources []string
	for i, provider := range s.providers {
		outcome := outcomes[i]
		if outcome.err != nil {
			s.logger.Warn("retrieval provider failed",
				"request_id", requestID,
				"source", provider.Name(),
				"error", outcome.err,
			)
			failedSources = append(failedSources, provider.Name())
			continue
		}
		sourceResults[provider.Name()] = outcome.candidates
	}

	if len(sourceResults) == 0 {
		return nil, errors.Errorf("all retrieval sources failed: %v", failedSources)
	}

	mode := ModeFused
	if len(failedSources) > 0 {
		mode = ModeDegraded
	}

	fused, rankErr := s.rank(sourceResults, opts.Weights, limit)
	if rankErr != nil {
		// A malformed candidate must not break search entirely; fall
		// back to a plain union of whatever the providers returned.
		s.logger.Error("fusion pipeline failed, using union fallback",
			"request_id", requestID,
			"error", rankErr,
		)
		fused = unionFallback(sourceResults, limit)
		mode = ModeFallback
	}

	s.logger.Info("hybrid search completed",
		"request_id", requestID,
		"query_length", queryLength,
		"mode", string(mode),
		"sources", len(sourceResults),
		"result_count", len(fused),
	)

	return &Result{
		Results:       fused,
		Mode:          mode,
		FailedSources: failedSources,
	}, nil
}

// rank runs the fusion pipeline, converting a panic from a malformed
// candidate into an error the caller handles as a designed fallback branch.
func (s *HybridSearcher) rank(sourceResults map[string][]*ranking.CandidateResult, weights map[string]float64, limit int) (results []*ranking.FusedResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("ranking panic: %v", r)
		}
	}()
	return s.ranker.Rank(sourceResults, weights, limit), nil
}

// unionFallback merges all candidates without fusion: dedupe by record ID
// keeping the best raw score, then order by that score.
func unionFallback(sourceResults map[string][]*ranking.CandidateResult, limit int) []*ranking.FusedResult {
	best := make(map[int32]*ranking.FusedResult)
	for sourceName, candidates := range sourceResults {
		for i, candidate := range candidates {
			existing, ok := best[candidate.RecordID]
			if !ok {
				best[candidate.RecordID] = &ranking.FusedResult{
					RecordID:            candidate.RecordID,
					Record:              candidate.Record,
					FusedScore:          candidate.Score,
					ContributingSources: []string{sourceName},
					RankInBestSource:    i + 1,
					BestOriginalScore:   candidate.Score,
					Explanation:         "Union fallback: raw source score, no fusion",
				}
				continue
			}
			existing.ContributingSources = append(existing.ContributingSources, sourceName)
			if candidate.Score > existing.BestOriginalScore {
				existing.BestOriginalScore = candidate.Score
				existing.FusedScore = candidate.Score
			}
			if i+1 < existing.RankInBestSource {
				existing.RankInBestSource = i + 1
			}
		}
	}

	merged := make([]*ranking.FusedResult, 0, len(best))
	for _, result := range best {
		sort.Strings(result.ContributingSources)
		merged = append(merged, result)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].FusedScore != merged[j].FusedScore {
			return merged[i].FusedScore > merged[j].FusedScore
		}
		return merged[i].RecordID < merged[j].RecordID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
