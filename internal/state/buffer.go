// Package state holds the opaque application state shared with loaded artifacts.
//
// The buffer is owned by the host and outlives every artifact that uses it.
// Its bytes are only meaningful to artifact code, which reinterprets them as
// its private state struct. Because successive builds see the same bytes,
// artifacts must keep their state layout compatible: append fields at the end
// and never reorder or retype existing ones.
package state

import "unsafe"

const wordSize = 8

// Buffer is a word-aligned, resizable byte region.
type Buffer struct {
	words []uint64
}

// Resize makes the buffer hold at least n bytes, rounded up to whole words.
// Bytes in [0, min(old, new)) are preserved, new bytes are zero.
func (b *Buffer) Resize(n uintptr) {
	want := int((n + wordSize - 1) / wordSize)
	have := len(b.words)
	switch {
	case want == have:
		return
	case want < have:
		clear(b.words[want:have])
		b.words = b.words[:want]
	case want <= cap(b.words):
		b.words = b.words[:want]
	default:
		next := make([]uint64, want)
		copy(next, b.words)
		b.words = next
	}
}

// Pointer returns the start address, or nil when the buffer is empty. The
// address is stable until the next Resize that grows past capacity.
func (b *Buffer) Pointer() unsafe.Pointer {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.words[0])
}

// Len reports the buffer length in bytes.
func (b *Buffer) Len() int { return len(b.words) * wordSize }

// Words reports the buffer length in 8-byte words.
func (b *Buffer) Words() int { return len(b.words) }

// Bytes aliases the buffer as a byte slice. The host never interprets these
// bytes; this is for diagnostics and tests.
func (b *Buffer) Bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.Pointer()), b.Len())
}
