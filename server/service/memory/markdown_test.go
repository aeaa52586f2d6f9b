package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownToPlain(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			name:     "plain text passes through",
			markdown: "just some text",
			want:     "just some text",
		},
		{
			name:     "headings and emphasis stripped",
			markdown: "# Title\n\nSome **bold** and *italic* text.",
			want:     "Title\nSome bold and italic text.",
		},
		{
			name:     "link text kept, target dropped",
			markdown: "See [the docs](https://example.com/docs) for details.",
			want:     "See the docs for details.",
		},
		{
			name:     "list items flattened",
			markdown: "- first\n- second\n",
			want:     "first\nsecond",
		},
		{
			name:     "fenced code kept",
			markdown: "```\ngo build ./...\n```",
			want:     "go build ./...",
		},
		{
			name:     "soft line breaks become spaces",
			markdown: "line one\nline two",
			want:     "line one line two",
		},
		{
			name:     "empty input",
			markdown: "",
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MarkdownToPlain(tt.markdown))
		})
	}
}

func TestBuildSearchText(t *testing.T) {
	got := buildSearchText("Title", "# Title\n\nbody", "summary")
	require.Equal(t, "Title\nTitle\nbody\nsummary", got)

	require.Equal(t, "Title", buildSearchText("Title", "", ""))
}
