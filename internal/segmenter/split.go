package segmenter

import (
	"strings"

	"github.com/insuredocs/docquery/pkg/tokenizer"
)

// Boundary priority for recursive splitting: paragraph break, line break,
// sentence end, then bare whitespace.
var separators = []string{"\n\n", "\n", ". ", " "}

// piece is a substring of the original run together with its start offset,
// so page attribution survives splitting and merging.
type piece struct {
	text  string
	start int
}

// splitText recursively splits text so each piece fits the token target,
// descending to a finer separator only when a candidate still exceeds it.
func splitText(text string, targetTokens int) []piece {
	return splitAt(text, 0, separators, targetTokens)
}

func splitAt(text string, offset int, seps []string, targetTokens int) []piece {
	if tokenizer.Estimate(text) <= targetTokens {
		return []piece{{text: text, start: offset}}
	}

	if len(seps) == 0 {
		return splitHard(text, offset, targetTokens)
	}

	sep := seps[0]
	idx := strings.Index(text, sep)
	if idx < 0 {
		return splitAt(text, offset, seps[1:], targetTokens)
	}

	var result []piece
	var current strings.Builder
	currentStart := offset
	pos := offset

	for _, part := range strings.Split(text, sep) {
		if current.Len() > 0 && tokenizer.Estimate(current.String()+sep+part) > targetTokens {
			result = append(result, splitAt(current.String(), currentStart, seps[1:], targetTokens)...)
			current.Reset()
			currentStart = pos
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
		pos += len(part) + len(sep)
	}

	if current.Len() > 0 {
		result = append(result, splitAt(current.String(), currentStart, seps[1:], targetTokens)...)
	}

	return result
}

// splitHard is the last resort for a fragment with no usable separator: cut
// at word boundaries by token budget, or mid-rune-sequence if it is one
// unbroken blob.
func splitHard(text string, offset int, targetTokens int) []piece {
	words := strings.Fields(text)
	if len(words) <= 1 {
		return splitRunes(text, offset, targetTokens)
	}

	wordsPerPiece := targetTokens * 3 / 4
	if wordsPerPiece < 1 {
		wordsPerPiece = 1
	}

	var result []piece
	searchFrom := 0
	for i := 0; i < len(words); i += wordsPerPiece {
		end := i + wordsPerPiece
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		// Locate the first word to recover an offset into the original text.
		at := strings.Index(text[searchFrom:], words[i])
		if at < 0 {
			at = 0
		}
		start := searchFrom + at
		searchFrom = start + len(words[i])
		result = append(result, piece{text: chunk, start: offset + start})
	}
	return result
}

func splitRunes(text string, offset int, targetTokens int) []piece {
	limit := targetTokens * 4 // ~4 chars per token
	if limit < 1 {
		limit = 1
	}
	runes := []rune(text)
	var result []piece
	byteAt := 0
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[i:end])
		result = append(result, piece{text: chunk, start: offset + byteAt})
		byteAt += len(chunk)
	}
	return result
}

// mergeSmall folds undersized pieces into their predecessor as long as the
// combined size stays within the target.
func mergeSmall(pieces []piece, targetTokens, minTokens int) []piece {
	if minTokens <= 0 || len(pieces) < 2 {
		return pieces
	}

	merged := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			small := tokenizer.Estimate(p.text) < minTokens || tokenizer.Estimate(last.text) < minTokens
			if small && tokenizer.Estimate(last.text)+tokenizer.Estimate(p.text) <= targetTokens {
				last.text = last.text + "\n\n" + p.text
				continue
			}
		}
		merged = append(merged, p)
	}
	return merged
}
