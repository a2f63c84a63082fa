package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("Invoice", "invoice"))
	assert.Equal(t, 1, LevenshteinDistance("invoce", "invoice"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 4, LevenshteinDistance("", "abcd"))
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("invoice", "Invoice_March.pdf", 2))
	assert.True(t, Match("invoce", "Invoice_March.pdf", 2))
	assert.True(t, Match("mar", "Invoice_March.pdf", 1))
	assert.False(t, Match("contract", "Invoice_March.pdf", 2))
	assert.False(t, Match("", "anything", 2))
}

func TestScoreRanksExactAboveTypo(t *testing.T) {
	exact := Score("invoice", Field{Text: "Invoice_March.pdf", Weight: 100})
	typo := Score("invoce", Field{Text: "Invoice_March.pdf", Weight: 100})
	none := Score("contract", Field{Text: "Invoice_March.pdf", Weight: 100})

	assert.Greater(t, exact, typo)
	assert.Greater(t, typo, 0.0)
	assert.Zero(t, none)
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 1, Threshold("tax"))
	assert.Equal(t, 2, Threshold("bill"))
	assert.Equal(t, 3, Threshold("agreement"))
}
