// Package segmenter turns marked-up extractor output into retrieval-sized
// units. Tables are detected first and preserved whole; the remaining text is
// split recursively on progressively finer boundaries with a fixed token
// overlap between consecutive units.
package segmenter

import (
	"strings"

	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/pkg/tokenizer"
)

type Options struct {
	TargetTokens  int // soft ceiling per unit
	OverlapTokens int // continuity overlap between consecutive text units
	MinTokens     int // pieces under this merge into a neighbor
}

func DefaultOptions() Options {
	return Options{
		TargetTokens:  400,
		OverlapTokens: 50,
		MinTokens:     80,
	}
}

// Segment is the segmenter's output record; the pipeline maps it onto a
// models.Unit once embeddings exist.
type Segment struct {
	Content     string
	Summary     string
	ContentType string
	PageStart   int
	PageEnd     int
	TokenCount  int
}

type Segmenter struct {
	opts Options
}

func New(opts Options) *Segmenter {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = DefaultOptions().TargetTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.MinTokens < 0 {
		opts.MinTokens = 0
	}
	return &Segmenter{opts: opts}
}

// nodeKind tags entries of the intermediate document model built by the first
// pass. Tables travel as standalone nodes so generic splitting never sees
// them.
type nodeKind int

const (
	nodeText nodeKind = iota
	nodeTable
)

type node struct {
	kind    nodeKind
	content string
	page    int
}

// Segment splits extractor markdown (with "--- PAGE N ---" markers) into
// ordered segments. Table regions become one segment each regardless of size;
// everything else goes through recursive boundary splitting.
func (s *Segmenter) Segment(markedUpText string) []Segment {
	pages := splitPages(markedUpText)

	var nodes []node
	for _, p := range pages {
		for _, frag := range extractTables(p.content) {
			if strings.TrimSpace(frag.content) == "" {
				continue
			}
			nodes = append(nodes, node{kind: frag.kind, content: frag.content, page: p.number})
		}
	}

	var segments []Segment
	var run textRun

	flush := func() {
		segments = append(segments, s.segmentRun(&run)...)
		run = textRun{}
	}

	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			run.append(n.content, n.page)
		case nodeTable:
			flush()
			segments = append(segments, s.tableSegment(n))
		}
	}
	flush()

	return segments
}

func (s *Segmenter) tableSegment(n node) Segment {
	content := strings.TrimSpace(n.content)
	return Segment{
		Content:     content,
		Summary:     summarizeTable(content),
		ContentType: models.UnitTypeTable,
		PageStart:   n.page,
		PageEnd:     n.page,
		TokenCount:  tokenizer.Estimate(content),
	}
}

// textRun accumulates contiguous text between tables, possibly spanning
// pages, so boundary splitting and overlap work across page breaks. Page
// offsets are tracked so each resulting piece can be attributed back.
type textRun struct {
	sb         strings.Builder
	boundaries []pageBoundary
}

type pageBoundary struct {
	offset int
	page   int
}

func (r *textRun) append(text string, page int) {
	if r.sb.Len() > 0 {
		r.sb.WriteString("\n\n")
	}
	r.boundaries = append(r.boundaries, pageBoundary{offset: r.sb.Len(), page: page})
	r.sb.WriteString(text)
}

func (r *textRun) pageAt(offset int) int {
	page := 1
	for _, b := range r.boundaries {
		if offset >= b.offset {
			page = b.page
		}
	}
	return page
}

func (s *Segmenter) segmentRun(run *textRun) []Segment {
	text := run.sb.String()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := splitText(text, s.opts.TargetTokens)
	pieces = mergeSmall(pieces, s.opts.TargetTokens, s.opts.MinTokens)

	segments := make([]Segment, 0, len(pieces))
	var prevContent string
	for _, p := range pieces {
		content := strings.TrimSpace(p.text)
		if content == "" {
			continue
		}

		if prevContent != "" && s.opts.OverlapTokens > 0 {
			// Carry the tail of the previous piece for continuity; page
			// attribution stays with the piece's own offsets.
			overlapWords := s.opts.OverlapTokens * 3 / 4
			if tail := tokenizer.TailWords(prevContent, overlapWords); tail != "" {
				content = tail + " " + content
			}
		}
		prevContent = strings.TrimSpace(p.text)

		segments = append(segments, Segment{
			Content:     content,
			ContentType: models.UnitTypeText,
			PageStart:   run.pageAt(p.start),
			PageEnd:     run.pageAt(p.start + len(p.text) - 1),
			TokenCount:  tokenizer.Estimate(content),
		})
	}
	return segments
}
