package memory

import (
	"sort"
	"strings"
	"unicode"
)

// Highlight marks a matched range within a snippet, in rune offsets.
type Highlight struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Snippeter builds query-centered content excerpts for search results.
// Han characters tokenize individually so CJK queries highlight without
// a segmenter.
type Snippeter struct {
	contextRunes int
	maxAdjust    int
}

func NewSnippeter() *Snippeter {
	return &Snippeter{
		contextRunes: 50,
		maxAdjust:    10,
	}
}

// Extract returns an excerpt of content centered on the first query match,
// with highlight positions relative to the excerpt. Without a match it
// returns the lead of the content and no highlights.
func (s *Snippeter) Extract(content, query string) (string, []Highlight) {
	runes := []rune(content)
	if len(runes) == 0 {
		return "", nil
	}

	matches := findMatches(runes, tokenize(query))
	if len(matches) == 0 {
		return s.leadExcerpt(runes), nil
	}

	start, end := s.window(matches[0].Start, len(runes))
	start = s.toBoundary(runes, start, false)
	end = s.toBoundary(runes, end, true)

	var b strings.Builder
	prefix := 0
	if start > 0 {
		b.WriteString("...")
		prefix = 3
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString("...")
	}

	kept := make([]Highlight, 0, len(matches))
	for _, m := range matches {
		if m.Start < start || m.End > end {
			continue
		}
		kept = append(kept, Highlight{
			Start: m.Start - start + prefix,
			End:   m.End - start + prefix,
			Text:  m.Text,
		})
	}
	return b.String(), kept
}

func (s *Snippeter) leadExcerpt(runes []rune) string {
	end := s.contextRunes * 2
	if end >= len(runes) {
		return string(runes)
	}
	end = s.toBoundary(runes, end, true)
	return string(runes[:end]) + "..."
}

// window places a context span around the match, shifting instead of
// shrinking at content edges.
func (s *Snippeter) window(center, contentLen int) (int, int) {
	start := center - s.contextRunes
	end := center + s.contextRunes
	if start < 0 {
		end -= start
		start = 0
	}
	if end > contentLen {
		start -= end - contentLen
		end = contentLen
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// toBoundary nudges a cut point to a nearby separator so snippets do not
// split words. Scans at most maxAdjust runes.
func (s *Snippeter) toBoundary(runes []rune, pos int, forward bool) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(runes) {
		return len(runes)
	}
	if forward {
		for i := pos; i < len(runes) && i < pos+s.maxAdjust; i++ {
			if isSeparator(runes[i]) {
				return i
			}
		}
	} else {
		for i := pos - 1; i >= 0 && i >= pos-s.maxAdjust; i-- {
			if isSeparator(runes[i]) {
				return i + 1
			}
		}
	}
	return pos
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// tokenize splits a query into lowercase word tokens, with each Han
// character standing alone. Duplicates are dropped.
func tokenize(query string) []string {
	var tokens []string
	seen := make(map[string]bool)
	add := func(token string) {
		if token != "" && !seen[token] {
			tokens = append(tokens, token)
			seen[token] = true
		}
	}

	var word strings.Builder
	for _, r := range query {
		switch {
		case unicode.Is(unicode.Han, r):
			add(strings.ToLower(word.String()))
			word.Reset()
			add(string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			add(strings.ToLower(word.String()))
			word.Reset()
		}
	}
	add(strings.ToLower(word.String()))
	return tokens
}

// findMatches locates every non-overlapping, case-insensitive token
// occurrence, earliest first.
func findMatches(content []rune, tokens []string) []Highlight {
	var matches []Highlight
	for _, token := range tokens {
		tokenRunes := []rune(token)
		limit := len(content) - len(tokenRunes)
		for i := 0; i <= limit; i++ {
			window := strings.ToLower(string(content[i : i+len(tokenRunes)]))
			if window == token {
				matches = append(matches, Highlight{
					Start: i,
					End:   i + len(tokenRunes),
					Text:  string(content[i : i+len(tokenRunes)]),
				})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	kept := matches[:0]
	lastEnd := -1
	for _, m := range matches {
		if m.Start >= lastEnd {
			kept = append(kept, m)
			lastEnd = m.End
		}
	}
	return kept
}
