package insight

import "strings"

// Accumulator turns a stream of raw text chunks into monotone snapshots.
// It is not safe for concurrent use.
type Accumulator struct {
	buf  strings.Builder
	last Result
	seen bool
}

// Write appends chunk and reports the new snapshot when it differs from the
// previous one and only refines it. Snapshots that would shrink or rewrite
// already delivered content are withheld.
func (a *Accumulator) Write(chunk string) (Result, bool) {
	if chunk == "" {
		return Result{}, false
	}
	a.buf.WriteString(chunk)
	next, ok := ParsePartial(a.buf.String())
	if !ok {
		return Result{}, false
	}
	if a.seen && (next.Equal(a.last) || !Extends(a.last, next)) {
		return Result{}, false
	}
	a.last = next
	a.seen = true
	return next.Clone(), true
}

// Last returns the most recently emitted snapshot.
func (a *Accumulator) Last() Result {
	return a.last.Clone()
}

// Raw returns everything written so far.
func (a *Accumulator) Raw() string {
	return a.buf.String()
}

// Final validates the complete buffer.
func (a *Accumulator) Final() (Result, error) {
	return Decode(a.buf.String())
}
