package segmenter

import (
	"fmt"
	"strings"
)

type fragment struct {
	kind    nodeKind
	content string
}

// extractTables walks page content line by line and carves out contiguous
// markdown pipe-table regions as table fragments, leaving the surrounding
// text untouched. A region needs at least a header and one more row to count
// as a table; a lone pipe line stays text.
func extractTables(content string) []fragment {
	lines := strings.Split(content, "\n")

	var frags []fragment
	var text []string
	var table []string

	flushText := func() {
		if len(text) > 0 {
			frags = append(frags, fragment{kind: nodeText, content: strings.Join(text, "\n")})
			text = nil
		}
	}
	flushTable := func() {
		if len(table) >= 2 {
			flushText()
			frags = append(frags, fragment{kind: nodeTable, content: strings.Join(table, "\n")})
		} else {
			// Not enough rows to be a real table; keep as text.
			text = append(text, table...)
		}
		table = nil
	}

	for _, line := range lines {
		if isTableLine(line) {
			table = append(table, line)
			continue
		}
		if len(table) > 0 {
			flushTable()
		}
		text = append(text, line)
	}
	if len(table) > 0 {
		flushTable()
	}
	flushText()

	return frags
}

func isTableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
}

// summarizeTable produces a fast descriptive summary used for embedding in
// place of raw cell noise. Rule-based on purpose: it runs inside the
// processing pipeline and must not depend on an external call.
func summarizeTable(table string) string {
	lines := strings.Split(table, "\n")

	var headers []string
	var rows [][]string
	for _, line := range lines {
		cells := splitRow(line)
		if len(cells) == 0 || isSeparatorRow(cells) {
			continue
		}
		if headers == nil {
			headers = cells
			continue
		}
		rows = append(rows, cells)
	}

	if headers == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Table with %d rows and columns: %s.", len(rows), strings.Join(headers, ", "))

	// Sample the first column so identifier-style lookups still match.
	var sample []string
	for _, row := range rows {
		if len(row) > 0 && row[0] != "" {
			sample = append(sample, row[0])
		}
		if len(sample) == 5 {
			break
		}
	}
	if len(sample) > 0 {
		fmt.Fprintf(&sb, " Rows include: %s.", strings.Join(sample, ", "))
	}

	return sb.String()
}

func splitRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") {
		return nil
	}
	trimmed = strings.Trim(trimmed, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" {
			continue
		}
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}
