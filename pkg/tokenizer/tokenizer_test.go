package tokenizer

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	if got := Estimate(""); got != 0 {
		t.Errorf("Estimate(\"\") = %d, want 0", got)
	}
	if got := Estimate("one"); got < 1 {
		t.Errorf("Estimate(one word) = %d, want >= 1", got)
	}

	prose := strings.Repeat("it is up to us to act on it now ", 30)
	got := Estimate(prose)
	want := 300 * 4 / 3
	if got != want {
		t.Errorf("Estimate(prose) = %d, want %d", got, want)
	}

	// A long unbroken string has one "word" but many tokens.
	blob := strings.Repeat("x", 2000)
	if got := Estimate(blob); got < 400 {
		t.Errorf("Estimate(blob) = %d, want char-based floor to apply", got)
	}
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("word ", 100)
	out := Truncate(text, 40)
	if Estimate(out) > 40 {
		t.Errorf("truncated text still %d tokens", Estimate(out))
	}
	if out == "" {
		t.Error("truncation removed everything")
	}

	short := "stays as is"
	if got := Truncate(short, 100); got != short {
		t.Errorf("Truncate(short) = %q, want unchanged", got)
	}
	if got := Truncate(text, 0); got != "" {
		t.Errorf("Truncate(_, 0) = %q, want empty", got)
	}
}

func TestTailWords(t *testing.T) {
	if got := TailWords("a b c d e", 2); got != "d e" {
		t.Errorf("TailWords = %q, want \"d e\"", got)
	}
	if got := TailWords("a b", 5); got != "a b" {
		t.Errorf("TailWords beyond length = %q, want full text", got)
	}
	if got := TailWords("a b", 0); got != "" {
		t.Errorf("TailWords(_, 0) = %q, want empty", got)
	}
}
