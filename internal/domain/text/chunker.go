// Package text splits long narration input into bounded segments for
// sequential synthesis and concatenation.
package text

import (
	"strings"
	"unicode"

	"kani-tts-server/internal/platform/errors"
)

// Strategy selects the boundary rule used when splitting.
type Strategy string

const (
	StrategySentence  Strategy = "sentence"
	StrategyParagraph Strategy = "paragraph"
	StrategyFixed     Strategy = "fixed"
)

// ParseStrategy validates a caller-supplied strategy, defaulting to sentence.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategySentence, nil
	case StrategySentence, StrategyParagraph, StrategyFixed:
		return Strategy(s), nil
	default:
		return "", errors.Newf(errors.KindInvalidInput, "text.strategy", "unsupported chunk strategy %q", s)
	}
}

// Options bounds a split. MaxChars is clamped to [50, 1500]; the caps fail
// the split before any synthesis work happens.
type Options struct {
	Strategy      Strategy
	MaxChars      int
	MaxChunks     int
	MaxTotalChars int
}

const (
	minChunkChars = 50
	maxChunkChars = 1500
)

func (o Options) normalized() Options {
	if o.Strategy == "" {
		o.Strategy = StrategySentence
	}
	if o.MaxChars < minChunkChars {
		o.MaxChars = minChunkChars
	}
	if o.MaxChars > maxChunkChars {
		o.MaxChars = maxChunkChars
	}
	return o
}

// Split divides text into ordered segments, each at most MaxChars runes.
// Splitting is pure: calling it twice with the same input yields the same
// segments, and rejoining the segments loses no words. Input exceeding
// MaxTotalChars, or producing more than MaxChunks segments, fails with
// narration_too_long before anything is synthesized.
func Split(text string, opts Options) ([]string, error) {
	const op = "text.split"
	opts = opts.normalized()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New(errors.KindInvalidInput, op, "no text")
	}
	if opts.MaxTotalChars > 0 && len([]rune(text)) > opts.MaxTotalChars {
		return nil, errors.Newf(errors.KindNarrationTooLong, op,
			"text exceeds %d characters", opts.MaxTotalChars)
	}

	var chunks []string
	switch opts.Strategy {
	case StrategyParagraph:
		chunks = splitParagraphs(text, opts.MaxChars)
	case StrategyFixed:
		chunks = splitFixed(text, opts.MaxChars)
	default:
		chunks = splitSentences(text, opts.MaxChars)
	}

	if len(chunks) == 0 {
		return nil, errors.New(errors.KindInvalidInput, op, "no segments produced")
	}
	if opts.MaxChunks > 0 && len(chunks) > opts.MaxChunks {
		return nil, errors.Newf(errors.KindNarrationTooLong, op,
			"text splits into %d segments, limit is %d", len(chunks), opts.MaxChunks)
	}
	return chunks, nil
}

// splitSentences groups sentences into segments of at most maxChars,
// hard-splitting any single sentence that exceeds the limit.
func splitSentences(text string, maxChars int) []string {
	sentences := sentenceBoundaries(text)

	var chunks []string
	var current string
	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, sentence := range sentences {
		if len([]rune(sentence)) > maxChars {
			flush()
			chunks = append(chunks, splitFixed(sentence, maxChars)...)
			continue
		}
		if current == "" {
			current = sentence
		} else if len([]rune(current))+1+len([]rune(sentence)) <= maxChars {
			current = current + " " + sentence
		} else {
			flush()
			current = sentence
		}
	}
	flush()
	return chunks
}

// sentenceBoundaries splits on sentence-terminal punctuation followed by
// whitespace.
func sentenceBoundaries(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sentence := strings.TrimSpace(string(runes[start : i+1]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			// Skip the whitespace run.
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// splitParagraphs yields one segment per blank-line-separated paragraph,
// hard-splitting paragraphs that exceed maxChars.
func splitParagraphs(text string, maxChars int) []string {
	var chunks []string
	for _, raw := range strings.Split(text, "\n\n") {
		paragraph := strings.TrimSpace(raw)
		if paragraph == "" {
			continue
		}
		if len([]rune(paragraph)) > maxChars {
			chunks = append(chunks, splitFixed(paragraph, maxChars)...)
		} else {
			chunks = append(chunks, paragraph)
		}
	}
	return chunks
}

// splitFixed cuts at the last whitespace before maxChars, falling back to a
// hard rune-boundary cut when the segment has no usable whitespace.
func splitFixed(text string, maxChars int) []string {
	var chunks []string
	remaining := []rune(strings.TrimSpace(text))
	for len(remaining) > 0 {
		if len(remaining) <= maxChars {
			chunks = append(chunks, string(remaining))
			break
		}
		segment := remaining[:maxChars]
		cut := maxChars
		if idx := lastSpace(segment); idx > maxChars/2 {
			cut = idx
		}
		chunk := strings.TrimSpace(string(remaining[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[cut:])))
	}
	return chunks
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
