package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Span is a piece of page text produced by Splitter.
type Span struct {
	Text   string
	Offset int // rune offset in the normalized page text
}

// Splitter cuts text into spans of at most Size runes, consecutive spans
// sharing roughly Overlap runes. Breaks prefer paragraph, line, sentence
// and finally word boundaries, searched in the back half of the window.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter clamps size and overlap into a usable range.
func NewSplitter(size, overlap int) Splitter {
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size/2 {
		overlap = size / 2
	}
	return Splitter{Size: size, Overlap: overlap}
}

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	hspace       = regexp.MustCompile(`[ \t\x{00A0}]+`)
)

// Normalize unifies line endings and collapses runs of blank space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = hspace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(manyNewlines.ReplaceAllString(text, "\n\n"))
}

// Split normalizes text and returns its spans in order.
func (s Splitter) Split(text string) []Span {
	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for start < n {
		end := start + s.Size
		if end >= n {
			end = n
		} else {
			end = s.breakPoint(runes, start, end)
		}

		if body := strings.TrimSpace(string(runes[start:end])); body != "" {
			spans = append(spans, Span{Text: body, Offset: start})
		}
		if end >= n {
			break
		}

		next := end
		if s.Overlap > 0 {
			next = alignToWord(runes, end-s.Overlap, end)
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// breakPoint picks the end of the window [start, limit): the latest
// paragraph break in its back half, else line, sentence, then word break.
func (s Splitter) breakPoint(runes []rune, start, limit int) int {
	floor := start + s.Size/2

	for _, sep := range []string{"\n\n", "\n", ". ", "? ", "! ", "; "} {
		if i := lastIndex(runes, floor, limit, []rune(sep)); i >= 0 {
			return i + len([]rune(sep))
		}
	}
	for i := limit - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return limit
}

// lastIndex finds the last sep starting in [from, to) that ends by to.
func lastIndex(runes []rune, from, to int, sep []rune) int {
	for i := to - len(sep); i >= from; i-- {
		match := true
		for j, r := range sep {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// alignToWord moves pos forward to the start of the next word, staying
// below limit.
func alignToWord(runes []rune, pos, limit int) int {
	if pos <= 0 {
		return 0
	}
	if unicode.IsSpace(runes[pos-1]) {
		return pos
	}
	for i := pos; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return pos
}
