// Package rewrite records text edits against an immutable source buffer and
// renders them in one pass. Offsets always refer to the original text, so
// edits can be recorded in any order without invalidating each other.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// ErrOverlap is returned when two edits touch the same original bytes.
var ErrOverlap = errors.New("overlapping edits")

type rank int

const (
	after rank = iota
	replace
)

type edit struct {
	start, end int
	text       string
	rank       rank
	seq        int
}

// Buffer accumulates edits over src.
type Buffer struct {
	src   []byte
	edits []edit
	seq   int
}

// New returns a buffer over src. src is not modified.
func New(src []byte) *Buffer {
	return &Buffer{src: src}
}

// Replace substitutes text for src[start:end].
func (b *Buffer) Replace(start, end int, text string) error {
	if err := b.check(start, end); err != nil {
		return err
	}
	b.add(edit{start: start, end: end, text: text, rank: replace})
	return nil
}

// InsertAfter inserts text at pos, after anything previously inserted there.
func (b *Buffer) InsertAfter(pos int, text string) error {
	if err := b.check(pos, pos); err != nil {
		return err
	}
	b.add(edit{start: pos, end: pos, text: text, rank: after})
	return nil
}

// Bytes renders the source with every edit applied.
func (b *Buffer) Bytes() ([]byte, error) {
	edits := append([]edit(nil), b.edits...)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		if edits[i].rank != edits[j].rank {
			return edits[i].rank < edits[j].rank
		}
		return edits[i].seq < edits[j].seq
	})

	var out bytes.Buffer
	out.Grow(len(b.src))
	cursor := 0
	for _, e := range edits {
		if e.start < cursor {
			return nil, fmt.Errorf("%w at offset %d", ErrOverlap, e.start)
		}
		out.Write(b.src[cursor:e.start])
		out.WriteString(e.text)
		cursor = e.end
	}
	out.Write(b.src[cursor:])
	return out.Bytes(), nil
}

func (b *Buffer) add(e edit) {
	b.seq++
	e.seq = b.seq
	b.edits = append(b.edits, e)
}

func (b *Buffer) check(start, end int) error {
	if start < 0 || end < start || end > len(b.src) {
		return fmt.Errorf("edit range [%d, %d) outside source of length %d", start, end, len(b.src))
	}
	return nil
}
