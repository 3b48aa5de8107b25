// Package pool is the out-of-scope collaborator §1 and §6 of SPEC_FULL.md
// call out: it defines the working-buffer sizes (DefaultSize, Sizes) and
// reads the source file into one bounded buffer (ReadSource). It does not
// allocate the code, data, or stack arenas itself; the segment package
// does, using these sizes. Nothing in this package knows anything about
// tokens, opcodes, or types.
package pool

import (
	"fmt"
	"io"
)

// DefaultSize is the reference's arbitrary pool size: 256 KiB. cmd/minicc
// uses it as the cap on the source buffer, the code segment (in words),
// and the data and stack regions (in bytes); the symbol table has no cap.
const DefaultSize = 256 * 1024

// Sizes configures the capacity of each pool. A zero field falls back to
// DefaultSize.
type Sizes struct {
	SymbolEntries int // max identifiers
	CodeWords     int // max emitted words (opcodes + operands)
	DataBytes     int // max data-segment bytes
	StackWords    int // max VM stack words
	SourceBytes   int // max source file size
}

func (s Sizes) withDefaults() Sizes {
	if s.SymbolEntries == 0 {
		s.SymbolEntries = DefaultSize
	}
	if s.CodeWords == 0 {
		s.CodeWords = DefaultSize
	}
	if s.DataBytes == 0 {
		s.DataBytes = DefaultSize
	}
	if s.StackWords == 0 {
		s.StackWords = DefaultSize
	}
	if s.SourceBytes == 0 {
		s.SourceBytes = DefaultSize
	}
	return s
}

// ErrSourceTooLarge is returned by ReadSource when the input exceeds the
// configured source size bound.
type ErrSourceTooLarge struct {
	Limit int
}

func (e *ErrSourceTooLarge) Error() string {
	return fmt.Sprintf("source file exceeds %d byte pool limit", e.Limit)
}

// ReadSource reads all of r into a single buffer, enforcing the pool's
// source size bound rather than the reference's silent truncation. The
// returned buffer is NUL-terminated, matching the sentinel the lexer's
// end-of-input check in the reference relies on (this implementation's
// lexer uses slice bounds instead, but callers that want the historical
// sentinel byte still get one).
func ReadSource(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultSize
	}
	buf := make([]byte, 0, limit+1)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if len(buf)+n > limit {
				return nil, &ErrSourceTooLarge{Limit: limit}
			}
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return append(buf, 0), nil
}
