package ranking

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infoagent/infoagent/store"
)

func testMemory(id int32, content string) *store.Memory {
	return &store.Memory{ID: id, Content: content}
}

func candidate(id int32, score float64, source, content string) *CandidateResult {
	return &CandidateResult{
		RecordID: id,
		Score:    score,
		Source:   source,
		Record:   testMemory(id, content),
	}
}

func TestFuseEmptyInput(t *testing.T) {
	ranker := NewRanker(Config{})

	assert.Empty(t, ranker.Fuse(map[string][]*CandidateResult{}, nil))
	assert.Empty(t, ranker.Fuse(nil, nil))
}

func TestFuseEmptySourceList(t *testing.T) {
	ranker := NewRanker(Config{})

	results := ranker.Fuse(map[string][]*CandidateResult{
		SourceStructured: {candidate(1, 0.9, SourceStructured, "note one")},
		SourceSemantic:   {},
	}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, []string{SourceStructured}, results[0].ContributingSources)
}

func TestFuseScores(t *testing.T) {
	ranker := NewRanker(Config{})
	weights := map[string]float64{"a": 1.0, "b": 1.0}

	results := ranker.Fuse(map[string][]*CandidateResult{
		"a": {
			candidate(1, 0.9, "a", "first"),
			candidate(2, 0.8, "a", "second"),
		},
		"b": {
			candidate(1, 0.7, "b", "first"),
		},
	}, weights)

	require.Len(t, results, 2)
	assert.Equal(t, int32(1), results[0].RecordID)
	assert.InDelta(t, 2.0/61.0, results[0].FusedScore, 1e-9)
	assert.Equal(t, int32(2), results[1].RecordID)
	assert.InDelta(t, 1.0/62.0, results[1].FusedScore, 1e-9)

	assert.Equal(t, []string{"a", "b"}, results[0].ContributingSources)
	assert.Equal(t, 1, results[0].RankInBestSource)
	assert.Equal(t, 2, results[1].RankInBestSource)
	assert.Contains(t, results[0].Explanation, "Found in 2 sources")
}

func TestFuseUniqueRecordIDs(t *testing.T) {
	ranker := NewRanker(Config{})

	results := ranker.Fuse(map[string][]*CandidateResult{
		SourceStructured: {
			candidate(1, 0.9, SourceStructured, "alpha"),
			candidate(2, 0.8, SourceStructured, "beta"),
			candidate(3, 0.7, SourceStructured, "gamma"),
		},
		SourceSemantic: {
			candidate(2, 0.95, SourceSemantic, "beta"),
			candidate(3, 0.85, SourceSemantic, "gamma"),
			candidate(1, 0.75, SourceSemantic, "alpha"),
		},
	}, nil)

	seen := map[int32]bool{}
	for _, result := range results {
		assert.False(t, seen[result.RecordID], "record %d appears twice", result.RecordID)
		seen[result.RecordID] = true
	}
}

func TestFuseOrderingIsDescendingAndDeterministic(t *testing.T) {
	ranker := NewRanker(Config{})

	// Two records at the same rank in different equal-weight sources
	// tie exactly; the lower record ID must come first.
	results := ranker.Fuse(map[string][]*CandidateResult{
		"a": {candidate(7, 0.5, "a", "seven")},
		"b": {candidate(3, 0.5, "b", "three")},
	}, map[string]float64{"a": 1.0, "b": 1.0})

	require.Len(t, results, 2)
	assert.Equal(t, int32(3), results[0].RecordID)
	assert.Equal(t, int32(7), results[1].RecordID)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].FusedScore, results[i].FusedScore)
	}
}

func TestFuseUnknownSourceDefaults(t *testing.T) {
	ranker := NewRanker(Config{})

	results := ranker.Fuse(map[string][]*CandidateResult{
		"mystery": {candidate(1, 0.5, "mystery", "unknown source")},
	}, nil)

	require.Len(t, results, 1)
	// Unknown sources get weight 1.0.
	assert.InDelta(t, 1.0/61.0, results[0].FusedScore, 1e-9)
}

func TestSingleSourcePassthrough(t *testing.T) {
	ranker := NewRanker(Config{})

	results := ranker.Fuse(map[string][]*CandidateResult{
		SourceSemantic: {
			candidate(1, 0.9, SourceSemantic, "only semantic"),
			candidate(2, 0.8, SourceSemantic, "also semantic"),
		},
	}, nil)

	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, []string{SourceSemantic}, result.ContributingSources)
	}

	// With the three built-in sources configured, the source-count term
	// contributes (1/3)*0.3 to confidence. Rank-1 single-source result:
	// score consistency 1.0, rank confidence 1.0, reliability 0.85.
	expected := (1.0/3.0)*0.3 + 1.0*0.3 + 1.0*0.2 + 0.85*0.2
	assert.InDelta(t, expected, results[0].Confidence, 1e-9)
}

func TestConfidenceBounds(t *testing.T) {
	ranker := NewRanker(Config{})

	results := ranker.Fuse(map[string][]*CandidateResult{
		SourceStructured: {
			candidate(1, 100.0, SourceStructured, "wild lexical score"),
		},
		SourceSemantic: {
			candidate(1, 0.1, SourceSemantic, "wild lexical score"),
		},
	}, nil)

	require.Len(t, results, 1)
	// Huge score variance zeroes the consistency term but confidence
	// stays within [0, 1].
	assert.GreaterOrEqual(t, results[0].Confidence, 0.0)
	assert.LessOrEqual(t, results[0].Confidence, 1.0)
}

func TestConfidenceRankPenaltyFloor(t *testing.T) {
	ranker := NewRanker(Config{})

	candidates := make([]*CandidateResult, 30)
	for i := range candidates {
		candidates[i] = candidate(int32(i+1), 0.5, SourceStructured, fmt.Sprintf("note %d", i))
	}
	results := ranker.Fuse(map[string][]*CandidateResult{SourceStructured: candidates}, nil)

	// The rank-30 result's rank-consistency term bottoms out at 0.1
	// rather than going negative.
	last := results[len(results)-1]
	expected := (1.0/3.0)*0.3 + 1.0*0.3 + 0.1*0.2 + 0.95*0.2
	assert.InDelta(t, expected, last.Confidence, 1e-9)
}

func TestApplyThreshold(t *testing.T) {
	ranker := NewRanker(Config{})

	// Rank 40 at weight 1.0 scores exactly 1/100 = 0.01; rank 41 scores
	// just below the floor.
	keep := &FusedResult{RecordID: 1, FusedScore: 1.0 / 100.0}
	drop := &FusedResult{RecordID: 2, FusedScore: 1.0 / 101.0}

	filtered := ranker.ApplyThreshold([]*FusedResult{keep, drop})
	require.Len(t, filtered, 1)
	assert.Equal(t, int32(1), filtered[0].RecordID)
}

func TestApplyThresholdConfigurable(t *testing.T) {
	ranker := NewRanker(Config{Threshold: 0.05})

	filtered := ranker.ApplyThreshold([]*FusedResult{
		{RecordID: 1, FusedScore: 0.06},
		{RecordID: 2, FusedScore: 0.04},
	})
	require.Len(t, filtered, 1)
	assert.Equal(t, int32(1), filtered[0].RecordID)
}

func TestCustomRRFK(t *testing.T) {
	ranker := NewRanker(Config{K: 10})

	results := ranker.Fuse(map[string][]*CandidateResult{
		"a": {candidate(1, 0.5, "a", "content")},
	}, map[string]float64{"a": 1.0})

	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/11.0, results[0].FusedScore, 1e-9)
}

func TestDiversifyPassthrough(t *testing.T) {
	ranker := NewRanker(Config{})

	input := []*FusedResult{
		{RecordID: 1, FusedScore: 0.5, ContributingSources: []string{"a"}},
		{RecordID: 2, FusedScore: 0.4, ContributingSources: []string{"a"}},
	}
	output := ranker.Diversify(input, 5)
	assert.Equal(t, input, output)
}

func TestDiversifyContentDedup(t *testing.T) {
	ranker := NewRanker(Config{})

	shared := "An identical opening paragraph that runs well past one hundred characters so the signature windows match exactly, then diverges"
	input := []*FusedResult{
		{RecordID: 1, FusedScore: 0.5, ContributingSources: []string{"a"}, Record: testMemory(1, shared+" tail one")},
		{RecordID: 2, FusedScore: 0.4, ContributingSources: []string{"a"}, Record: testMemory(2, shared+" tail two")},
		{RecordID: 3, FusedScore: 0.3, ContributingSources: []string{"a"}, Record: testMemory(3, "completely different content")},
	}

	output := ranker.Diversify(input, 2)
	require.Len(t, output, 2)
	assert.Equal(t, int32(1), output[0].RecordID)
	assert.Equal(t, int32(3), output[1].RecordID)
}

func TestDiversifyDedupIsCaseInsensitive(t *testing.T) {
	ranker := NewRanker(Config{})

	upper := "THE SAME LEADING TEXT REPEATED FOR LONG ENOUGH TO FILL THE SIGNATURE WINDOW WITH IDENTICAL CHARACTERS PADDED OUT"
	input := []*FusedResult{
		{RecordID: 1, FusedScore: 0.5, ContributingSources: []string{"a"}, Record: testMemory(1, upper)},
		{RecordID: 2, FusedScore: 0.4, ContributingSources: []string{"a"}, Record: testMemory(2, "the same leading text repeated for long enough to fill the signature window with identical characters padded out")},
		{RecordID: 3, FusedScore: 0.3, ContributingSources: []string{"a"}, Record: testMemory(3, "distinct")},
	}

	output := ranker.Diversify(input, 2)
	require.Len(t, output, 2)
	assert.Equal(t, int32(1), output[0].RecordID)
	assert.Equal(t, int32(3), output[1].RecordID)
}

func TestDiversifyEmptySignaturesAreNotDuplicates(t *testing.T) {
	ranker := NewRanker(Config{})

	// Records without a content snapshot (or with blank content) must not
	// dedup against each other.
	input := []*FusedResult{
		{RecordID: 1, FusedScore: 0.5, ContributingSources: []string{"a"}},
		{RecordID: 2, FusedScore: 0.4, ContributingSources: []string{"a"}, Record: testMemory(2, "   ")},
		{RecordID: 3, FusedScore: 0.3, ContributingSources: []string{"a"}},
	}

	output := ranker.Diversify(input, 2)
	require.Len(t, output, 2)
	assert.Equal(t, int32(1), output[0].RecordID)
	assert.Equal(t, int32(2), output[1].RecordID)
}

func TestDiversifySourceCap(t *testing.T) {
	ranker := NewRanker(Config{})

	// Ten results from source X descending, with two Y results seated
	// just below the eighth X. With maxResults=9 the cap is 3, so the
	// fifth X onward takes the 0.95 penalty and the first Y result must
	// overtake a penalized X that beat it pre-penalty.
	input := []*FusedResult{}
	scores := []float64{0.100, 0.099, 0.098, 0.097, 0.096, 0.095, 0.094, 0.093}
	for i, score := range scores {
		input = append(input, &FusedResult{
			RecordID:            int32(i + 1),
			FusedScore:          score,
			ContributingSources: []string{"x"},
			Record:              testMemory(int32(i+1), fmt.Sprintf("x content %d body text", i)),
		})
	}
	input = append(input,
		&FusedResult{RecordID: 11, FusedScore: 0.0925, ContributingSources: []string{"y"}, Record: testMemory(11, "y content one")},
		&FusedResult{RecordID: 12, FusedScore: 0.0920, ContributingSources: []string{"y"}, Record: testMemory(12, "y content two")},
		&FusedResult{RecordID: 9, FusedScore: 0.0915, ContributingSources: []string{"x"}, Record: testMemory(9, "x content nine")},
		&FusedResult{RecordID: 10, FusedScore: 0.0910, ContributingSources: []string{"x"}, Record: testMemory(10, "x content ten")},
	)

	output := ranker.Diversify(input, 9)
	require.Len(t, output, 9)

	position := func(id int32) int {
		for i, result := range output {
			if result.RecordID == id {
				return i
			}
		}
		return -1
	}

	// Record 5 (x, pre-penalty 0.096) was penalized to 0.0912 and must
	// now rank below record 11 (y, 0.0925) which it beat before.
	require.NotEqual(t, -1, position(11))
	require.NotEqual(t, -1, position(5))
	assert.Less(t, position(11), position(5))

	// Ordering stays descending after penalty adjustment.
	for i := 1; i < len(output); i++ {
		assert.GreaterOrEqual(t, output[i-1].FusedScore, output[i].FusedScore)
	}
}

func TestDiversifyNeverGrowsResultCount(t *testing.T) {
	ranker := NewRanker(Config{})

	input := make([]*FusedResult, 20)
	for i := range input {
		input[i] = &FusedResult{
			RecordID:            int32(i + 1),
			FusedScore:          1.0 - float64(i)*0.01,
			ContributingSources: []string{"x"},
			Record:              testMemory(int32(i+1), fmt.Sprintf("unique content %d", i)),
		}
	}
	output := ranker.Diversify(input, 7)
	assert.LessOrEqual(t, len(output), 7)
}

func TestRankEndToEndScenario(t *testing.T) {
	ranker := NewRanker(Config{})
	weights := map[string]float64{SourceStructured: 1.0, SourceSemantic: 1.0}

	// Query "project meeting": structured finds #5 then #7, semantic
	// finds #7 then #9.
	results := ranker.Rank(map[string][]*CandidateResult{
		SourceStructured: {
			candidate(5, 0.9, SourceStructured, "project meeting notes from Monday"),
			candidate(7, 0.7, SourceStructured, "quarterly project meeting agenda"),
		},
		SourceSemantic: {
			candidate(7, 0.88, SourceSemantic, "quarterly project meeting agenda"),
			candidate(9, 0.75, SourceSemantic, "planning session recap"),
		},
	}, weights, 10)

	require.Len(t, results, 3)
	assert.Equal(t, int32(7), results[0].RecordID)
	assert.Equal(t, int32(5), results[1].RecordID)
	assert.Equal(t, int32(9), results[2].RecordID)

	assert.InDelta(t, 1.0/62.0+1.0/61.0, results[0].FusedScore, 1e-9)
	assert.InDelta(t, 1.0/61.0, results[1].FusedScore, 1e-9)
	assert.InDelta(t, 1.0/62.0, results[2].FusedScore, 1e-9)

	// Found by both sources, #7 must carry the higher confidence.
	assert.Greater(t, results[0].Confidence, results[2].Confidence)
}

func TestRankExplanationQuotesFinalScoreAndConfidence(t *testing.T) {
	ranker := NewRanker(Config{})

	// Six structured hits trimmed to four forces the diversity pass, and
	// with a source cap of 4/3=1 the third hit onward takes the 0.95
	// penalty. Its explanation must quote the penalized score.
	candidates := make([]*CandidateResult, 6)
	for i := range candidates {
		candidates[i] = candidate(int32(i+1), 0.9-float64(i)*0.1, SourceStructured, fmt.Sprintf("structured memory %d text", i+1))
	}
	results := ranker.Rank(map[string][]*CandidateResult{SourceStructured: candidates}, nil, 4)
	require.Len(t, results, 4)

	for _, result := range results {
		expected := fmt.Sprintf("RRF Score: %.3f | Confidence: %.2f | Sources: %s",
			result.FusedScore, result.Confidence, SourceStructured)
		assert.Equal(t, expected, result.Explanation)
	}

	// Rank 3 fused at 1/63 then penalized by 0.95: 0.016 pre-penalty,
	// 0.015 after. The annotation reflects the final score.
	third := results[2]
	assert.Equal(t, int32(3), third.RecordID)
	assert.InDelta(t, 0.95/63.0, third.FusedScore, 1e-9)
	assert.Contains(t, third.Explanation, "RRF Score: 0.015")
	assert.Contains(t, third.Explanation, "Confidence: ")
}

func TestRankPipelineCountNeverIncreases(t *testing.T) {
	ranker := NewRanker(Config{})

	sourceResults := map[string][]*CandidateResult{}
	for _, source := range []string{SourceStructured, SourceSemantic} {
		list := make([]*CandidateResult, 15)
		for i := range list {
			list[i] = candidate(int32(i+1), 0.9-float64(i)*0.05, source, fmt.Sprintf("memory number %d with text", i+1))
		}
		sourceResults[source] = list
	}

	fused := ranker.Fuse(sourceResults, nil)
	filtered := ranker.ApplyThreshold(fused)
	final := ranker.Diversify(filtered, 5)

	assert.LessOrEqual(t, len(filtered), len(fused))
	assert.LessOrEqual(t, len(final), len(filtered))
	assert.LessOrEqual(t, len(final), 5)
}

func TestConfidenceIsNotASortKey(t *testing.T) {
	ranker := NewRanker(Config{})

	// Record 2 is found by both sources at lower ranks; record 1 tops a
	// single list. Confidence and fused order must be free to disagree.
	results := ranker.Fuse(map[string][]*CandidateResult{
		SourceStructured: {
			candidate(1, 0.9, SourceStructured, "single source top hit"),
			candidate(2, 0.5, SourceStructured, "agreed hit"),
		},
		SourceSemantic: {
			candidate(2, 0.5, SourceSemantic, "agreed hit"),
		},
	}, map[string]float64{SourceStructured: 1.0, SourceSemantic: 1.0})

	require.Len(t, results, 2)
	assert.Equal(t, int32(2), results[0].RecordID, "two agreeing rank-1/2 hits outscore one rank-1 hit")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].FusedScore, results[i].FusedScore)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	ranker := NewRanker(Config{})
	assert.Equal(t, DefaultRRFK, ranker.k)
	assert.True(t, math.Abs(ranker.threshold-DefaultThreshold) < 1e-12)
	assert.Len(t, ranker.sources, 3)
}
