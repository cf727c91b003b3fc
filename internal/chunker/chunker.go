// Package chunker splits extracted document text into overlapping,
// offset-tracked segments used as the unit of retrieval.
package chunker

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalidChunking is returned for unusable size/overlap parameters.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Piece is a chunk draft before embedding: the segment text plus its
// exact position in the source document. Start and End are rune
// (code point) offsets into the original text, not byte offsets, so
// citation mapping stays correct for multi-byte input.
type Piece struct {
	Index int
	Text  string
	Start int
	End   int
}

// Chunker produces fixed-stride sliding windows over text.
// Window i spans [i*(size-overlap), i*(size-overlap)+size), clipped to
// the text length. Window ends retract to the nearest preceding
// whitespace within a bounded look-back so words are not split, but
// never retract past the next window's start: full coverage of the
// input always wins over a clean word boundary.
type Chunker struct {
	size     int
	overlap  int
	lookback int
}

// New validates parameters and returns a Chunker.
// Requires 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got size=%d overlap=%d",
			ErrInvalidChunking, size, overlap)
	}
	lookback := size / 10
	if lookback < 1 {
		lookback = 1
	}
	return &Chunker{size: size, overlap: overlap, lookback: lookback}, nil
}

// Split chunks text into pieces. Empty text yields no pieces.
// Every rune of the input is covered by at least one piece, piece
// starts strictly increase, and each piece satisfies End > Start and
// End-Start <= size.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	stride := c.size - c.overlap
	var pieces []Piece
	prevEnd := 0
	for start := 0; start < n; start += stride {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			floor := start + stride
			if prevEnd > floor {
				floor = prevEnd
			}
			end = c.snapEnd(runes, end, floor)
		}
		prevEnd = end
		pieces = append(pieces, Piece{
			Index: len(pieces),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == n {
			break
		}
	}
	return pieces
}

// snapEnd retracts end to just after the nearest preceding whitespace
// within the look-back window. The snapped end never drops below
// floor, which covers both the next window's start (no rune falls
// between consecutive windows) and the previous window's end (ends
// stay non-decreasing even when overlap nearly equals size).
func (c *Chunker) snapEnd(runes []rune, end, floor int) int {
	if unicode.IsSpace(runes[end-1]) || unicode.IsSpace(runes[end]) {
		// Already on a word boundary.
		return end
	}
	low := end - c.lookback
	if low < floor {
		low = floor
	}
	for i := end - 1; i > low; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

// Reassemble reconstructs the original text from pieces by dropping the
// overlapping prefix of every piece after the first. It is the inverse
// of Split and exists mainly to verify chunk integrity.
func Reassemble(pieces []Piece) string {
	if len(pieces) == 0 {
		return ""
	}
	out := []rune(pieces[0].Text)
	prevEnd := pieces[0].End
	for _, p := range pieces[1:] {
		dup := prevEnd - p.Start
		r := []rune(p.Text)
		if dup < 0 {
			dup = 0
		}
		if dup > len(r) {
			dup = len(r)
		}
		out = append(out, r[dup:]...)
		if p.End > prevEnd {
			prevEnd = p.End
		}
	}
	return string(out)
}
