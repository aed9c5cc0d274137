// Package wordstream reconciles a stream of recognition events into a
// stable word sequence. Final results append to a committed prefix that is
// never rewritten; interim results form a pending tail that each new interim
// event replaces wholesale.
package wordstream

import (
	"strings"

	"meetscribe/recognition"
)

// LineWidth is the fixed number of words per rendered line.
const LineWidth = 8

// Line is one rendered row of the live transcript. Committed words come
// first; Pending words carry the muted styling.
type Line struct {
	Committed []string
	Pending   []string
}

// Words returns the full word sequence of the line.
func (l Line) Words() []string {
	out := make([]string, 0, len(l.Committed)+len(l.Pending))
	out = append(out, l.Committed...)
	return append(out, l.Pending...)
}

// Reconciler folds recognition events into committed and pending words.
// The zero value is ready to use. Not safe for concurrent use.
type Reconciler struct {
	committed []string
	pending   []string
}

// Apply folds one event into the stream. The highest-confidence alternative
// is tokenized on whitespace; events whose best alternative carries no words
// leave the state untouched.
func (r *Reconciler) Apply(ev recognition.Event) {
	words := strings.Fields(ev.Best().Text)
	if len(words) == 0 {
		return
	}
	if ev.IsFinal {
		r.committed = append(r.committed, words...)
		r.pending = nil
		return
	}
	r.pending = words
}

// Reset discards all words.
func (r *Reconciler) Reset() {
	r.committed = nil
	r.pending = nil
}

// Committed returns a copy of the committed words.
func (r *Reconciler) Committed() []string {
	return append([]string(nil), r.committed...)
}

// Pending returns a copy of the pending words.
func (r *Reconciler) Pending() []string {
	return append([]string(nil), r.pending...)
}

// Len is the total word count, committed plus pending.
func (r *Reconciler) Len() int {
	return len(r.committed) + len(r.pending)
}

// FinalText joins committed then pending words with single spaces. Pending
// words are included so that stopping mid-utterance loses nothing.
func (r *Reconciler) FinalText() string {
	all := make([]string, 0, r.Len())
	all = append(all, r.committed...)
	all = append(all, r.pending...)
	return strings.Join(all, " ")
}

// Render chunks the word sequence into LineWidth-word lines. Words keep
// stream order; a line spanning the committed/pending boundary splits its
// words between the two fields.
func (r *Reconciler) Render() []Line {
	total := r.Len()
	if total == 0 {
		return nil
	}
	lines := make([]Line, 0, (total+LineWidth-1)/LineWidth)
	for start := 0; start < total; start += LineWidth {
		end := start + LineWidth
		if end > total {
			end = total
		}
		var line Line
		for i := start; i < end; i++ {
			if i < len(r.committed) {
				line.Committed = append(line.Committed, r.committed[i])
			} else {
				line.Pending = append(line.Pending, r.pending[i-len(r.committed)])
			}
		}
		lines = append(lines, line)
	}
	return lines
}
