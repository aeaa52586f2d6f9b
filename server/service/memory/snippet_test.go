package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"garden tools", []string{"garden", "tools"}},
		{"Garden, tools!", []string{"garden", "tools"}},
		{"garden garden", []string{"garden"}},
		{"买菜清单", []string{"买", "菜", "清", "单"}},
		{"", nil},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tokenize(tt.query), tt.query)
	}
}

func TestExtractHighlightsMatch(t *testing.T) {
	s := NewSnippeter()

	snippet, highlights := s.Extract("The garden needs watering today.", "garden")
	require.Equal(t, "The garden needs watering today.", snippet)
	require.Len(t, highlights, 1)
	require.Equal(t, "garden", highlights[0].Text)
	require.Equal(t, "garden", string([]rune(snippet)[highlights[0].Start:highlights[0].End]))
}

func TestExtractCaseInsensitive(t *testing.T) {
	s := NewSnippeter()

	_, highlights := s.Extract("Garden planning notes", "garden")
	require.Len(t, highlights, 1)
	require.Equal(t, "Garden", highlights[0].Text)
}

func TestExtractCentersOnMatchInLongContent(t *testing.T) {
	s := NewSnippeter()
	content := strings.Repeat("filler words before the target area ", 10) +
		"garden" +
		strings.Repeat(" trailing context after the match", 10)

	snippet, highlights := s.Extract(content, "garden")
	require.True(t, strings.HasPrefix(snippet, "..."))
	require.True(t, strings.HasSuffix(snippet, "..."))
	require.Contains(t, snippet, "garden")
	require.NotEmpty(t, highlights)
	for _, h := range highlights {
		require.Equal(t, h.Text, string([]rune(snippet)[h.Start:h.End]))
	}
}

func TestExtractNoMatchReturnsLead(t *testing.T) {
	s := NewSnippeter()
	content := strings.Repeat("lorem ipsum dolor sit amet ", 20)

	snippet, highlights := s.Extract(content, "zebra")
	require.Empty(t, highlights)
	require.True(t, strings.HasSuffix(snippet, "..."))
	require.Less(t, len(snippet), len(content))
}

func TestExtractShortContentNoEllipsis(t *testing.T) {
	s := NewSnippeter()

	snippet, _ := s.Extract("short note", "missing")
	require.Equal(t, "short note", snippet)
}

func TestExtractEmptyContent(t *testing.T) {
	s := NewSnippeter()

	snippet, highlights := s.Extract("", "anything")
	require.Empty(t, snippet)
	require.Nil(t, highlights)
}

func TestFindMatchesRemovesOverlaps(t *testing.T) {
	matches := findMatches([]rune("aaa"), []string{"aa", "a"})
	for i := 1; i < len(matches); i++ {
		require.GreaterOrEqual(t, matches[i].Start, matches[i-1].End)
	}
}
