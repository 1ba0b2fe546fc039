package segmenter

import (
	"regexp"
	"strconv"
)

// The structural extractor emits "--- PAGE N ---" lines between pages.
var pageMarkerRe = regexp.MustCompile(`(?im)^[ \t]*---\s*PAGE\s+(\d+)\s*---[ \t]*$`)

type pageText struct {
	number  int
	content string
}

// splitPages carves the marked-up text into per-page content. Text before the
// first marker (or text with no markers at all) is treated as page 1.
func splitPages(text string) []pageText {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []pageText{{number: 1, content: text}}
	}

	var pages []pageText
	if lead := text[:matches[0][0]]; len(lead) > 0 {
		pages = append(pages, pageText{number: 1, content: lead})
	}

	for i, m := range matches {
		num, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || num < 1 {
			num = i + 1
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		pages = append(pages, pageText{number: num, content: text[m[1]:end]})
	}
	return pages
}
