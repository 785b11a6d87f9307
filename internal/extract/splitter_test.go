package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	in := "Line one  \r\n\tindented\t\ttext\n\n\n\n\nnext   paragraph  "

	assert.Equal(t, "Line one\nindented text\n\nnext paragraph", Normalize(in))
}

func TestSplitter_ShortTextIsOneSpan(t *testing.T) {
	spans := NewSplitter(200, 20).Split("  A short note.  ")

	require.Len(t, spans, 1)
	assert.Equal(t, "A short note.", spans[0].Text)
	assert.Equal(t, 0, spans[0].Offset)
}

func TestSplitter_EmptyText(t *testing.T) {
	assert.Empty(t, NewSplitter(200, 20).Split(" \n\n\t "))
}

func TestSplitter_RespectsSizeBound(t *testing.T) {
	// Given: long prose with sentence breaks
	sentence := "Metformin is first-line therapy for type 2 diabetes in most adults. "
	text := strings.Repeat(sentence, 60)
	s := NewSplitter(300, 50)

	// When: splitting
	spans := s.Split(text)

	// Then: every span fits the bound and nothing is lost
	require.Greater(t, len(spans), 5)
	for _, sp := range spans {
		assert.LessOrEqual(t, utf8.RuneCountInString(sp.Text), 300)
		assert.NotEmpty(t, sp.Text)
	}
	assert.True(t, strings.HasSuffix(spans[len(spans)-1].Text, "adults."))
}

func TestSplitter_PrefersSentenceBoundaries(t *testing.T) {
	sentence := "Metformin is first-line therapy for type 2 diabetes in most adults. "
	spans := NewSplitter(300, 0).Split(strings.Repeat(sentence, 20))

	for _, sp := range spans[:len(spans)-1] {
		assert.True(t, strings.HasSuffix(sp.Text, "."), "span should end at a sentence: %q", sp.Text)
	}
}

func TestSplitter_OverlapRepeatsTail(t *testing.T) {
	// Given: words with no sentence punctuation
	var words []string
	for i := 0; i < 400; i++ {
		words = append(words, "word"+strings.Repeat("x", i%5))
	}
	text := strings.Join(words, " ")

	// When: splitting with overlap
	spans := NewSplitter(200, 60).Split(text)

	// Then: each span begins with text the previous one ended with
	require.Greater(t, len(spans), 2)
	for i := 1; i < len(spans); i++ {
		prev := spans[i-1]
		firstWord := strings.Fields(spans[i].Text)[0]
		assert.Contains(t, prev.Text, firstWord)
		assert.Less(t, prev.Offset, spans[i].Offset)
	}
}

func TestSplitter_PrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("alpha beta gamma ", 15)
	text := para + "\n\n" + para + "\n\n" + para

	spans := NewSplitter(400, 0).Split(text)

	require.Len(t, spans, 3)
	for _, sp := range spans {
		assert.NotContains(t, sp.Text, "\n\n")
	}
}

func TestSplitter_UnbrokenTextStillProgresses(t *testing.T) {
	text := strings.Repeat("x", 1000)

	spans := NewSplitter(100, 40).Split(text)

	require.NotEmpty(t, spans)
	total := 0
	for _, sp := range spans {
		assert.LessOrEqual(t, len(sp.Text), 100)
		total += len(sp.Text)
	}
	assert.GreaterOrEqual(t, total, 1000)
}

func TestNewSplitter_Clamps(t *testing.T) {
	s := NewSplitter(10, 500)

	assert.Equal(t, MinChunkSize, s.Size)
	assert.Equal(t, MinChunkSize/2, s.Overlap)
	assert.Equal(t, 0, NewSplitter(100, -3).Overlap)
}
