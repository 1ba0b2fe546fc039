package rag

// EventType discriminates the variants sent on an answer stream.
type EventType string

const (
	EventText       EventType = "text"
	EventSource     EventType = "source"
	EventConfidence EventType = "confidence"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Source identifies one retrieved unit that grounded the answer.
type Source struct {
	UnitID      string  `json:"unit_id"`
	DocumentID  string  `json:"document_id"`
	PageStart   int     `json:"page_start"`
	PageEnd     int     `json:"page_end"`
	ContentType string  `json:"content_type"`
	Score       float64 `json:"score"`
	Snippet     string  `json:"snippet"`
}

// Event is one element of an answer stream. Exactly one payload field is set,
// according to Type. Confidence is emitted only after the final text event,
// and Done terminates every successful stream.
type Event struct {
	Type       EventType `json:"type"`
	Text       string    `json:"text,omitempty"`
	Source     *Source   `json:"source,omitempty"`
	Confidence string    `json:"confidence,omitempty"`
	Err        error     `json:"-"`
}
