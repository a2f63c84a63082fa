package fuzzy

import (
	"strings"
	"unicode"
)

// LevenshteinDistance counts the single-character edits needed to turn s1 into s2,
// after normalisation.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(normalize(s1))
	r2 := []rune(normalize(s2))
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// Threshold is the typo tolerance for a query of this length.
func Threshold(query string) int {
	switch n := len([]rune(query)); {
	case n <= 3:
		return 1
	case n >= 8:
		return 3
	default:
		return 2
	}
}

// Match reports whether query is contained in text, prefixes one of its words or
// is within threshold edits of one of them.
func Match(query, text string, threshold int) bool {
	query = normalize(query)
	text = normalize(text)
	if query == "" {
		return false
	}
	if strings.Contains(text, query) {
		return true
	}
	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, query) || LevenshteinDistance(query, word) <= threshold {
			return true
		}
	}
	return false
}

// Field is one searchable attribute and its weight.
type Field struct {
	Text   string
	Weight float64
}

// Score ranks how well query matches fields. Zero means no match.
func Score(query string, fields ...Field) float64 {
	query = normalize(query)
	if query == "" {
		return 0
	}
	threshold := Threshold(query)

	score := 0.0
	for _, f := range fields {
		text := normalize(f.Text)
		if strings.Contains(text, query) {
			score += f.Weight
			if containsWord(text, query) {
				score += f.Weight / 2
			}
			continue
		}
		for _, word := range strings.Fields(text) {
			if strings.HasPrefix(word, query) {
				score += f.Weight * 0.4
				continue
			}
			if dist := LevenshteinDistance(query, word); dist <= threshold {
				score += f.Weight * 0.5 / float64(dist+1)
			}
		}
	}
	return score
}

// normalize lower-cases, treats filename punctuation as spaces and collapses
// whitespace.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == '-' || r == '.':
			return ' '
		case unicode.Is(unicode.Mn, r):
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func containsWord(text, query string) bool {
	for _, word := range strings.Fields(text) {
		if word == query {
			return true
		}
	}
	return false
}
