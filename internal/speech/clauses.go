package speech

import "strings"

// SplitClauses breaks streamed reply text into synthesizable pieces at
// sentence and clause boundaries. The orchestrator synthesizes each piece
// concurrently and reassembles audio in clause order, so boundaries only
// need to be good enough for natural-sounding playback, not grammatical.
func SplitClauses(text string) []string {
	out := make([]string, 0, 4)
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if isClauseBoundary(r) {
			if piece := strings.TrimSpace(b.String()); piece != "" {
				out = append(out, piece)
			}
			b.Reset()
		}
	}
	if piece := strings.TrimSpace(b.String()); piece != "" {
		out = append(out, piece)
	}
	return out
}

func isClauseBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':':
		return true
	}
	return false
}

// ClauseAccumulator buffers streamed completion fragments and releases
// complete clauses as they form. Flush returns whatever trailing text never
// reached a boundary.
type ClauseAccumulator struct {
	pending strings.Builder
}

// Add appends a stream fragment and returns any clauses completed by it.
func (a *ClauseAccumulator) Add(fragment string) []string {
	a.pending.WriteString(fragment)
	text := a.pending.String()

	last := -1
	for i, r := range text {
		if isClauseBoundary(r) {
			last = i
		}
	}
	if last < 0 {
		return nil
	}

	complete := text[:last+1]
	a.pending.Reset()
	a.pending.WriteString(text[last+1:])
	return SplitClauses(complete)
}

// Flush returns the trailing unterminated clause, if any.
func (a *ClauseAccumulator) Flush() (string, bool) {
	rest := strings.TrimSpace(a.pending.String())
	a.pending.Reset()
	if rest == "" {
		return "", false
	}
	return rest, true
}
