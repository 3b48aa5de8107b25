// Package symtab implements the compiler's single symbol table: one flat,
// append-only table of entries shared by the global scope and whatever
// function body is currently being parsed, with scope exit implemented as
// an in-place sweep that restores shadowed entries rather than a stack of
// scopes. See §4.B and §9 of SPEC_FULL.md.
package symtab

import "github.com/kesselrun/minicc/internal/types"

// Class is an identifier's storage class: what kind of thing it names.
type Class int

const (
	ClassNone Class = iota // not yet a declared binding (plain identifier, or a keyword)
	ClassNum               // enum constant; Val is the constant's value
	ClassFun               // user function; Val is its entry address in the code segment
	ClassSys               // built-in syscall; Val is the opcode to emit
	ClassGlo               // global variable; Val is its address in the data segment
	ClassLoc               // parameter or local variable; Val is its frame offset
)

func (c Class) String() string {
	switch c {
	case ClassNum:
		return "num"
	case ClassFun:
		return "fun"
	case ClassSys:
		return "sys"
	case ClassGlo:
		return "glo"
	case ClassLoc:
		return "loc"
	default:
		return "none"
	}
}

// Entry is one symbol table record. Tok holds the lexical tag the lexer
// should report for this identifier: token.Id for an ordinary identifier,
// or a reserved-word tag (token.If, token.While, ...) for a keyword. Class,
// Type, and Val are the storage-class triple described in §3; Shadow*
// fields hold the outer binding saved by Shadow and restored by Unshadow.
type Entry struct {
	Tok  int
	Hash int
	Name string

	Class Class
	Type  types.Type
	Val   int

	ShadowClass Class
	ShadowType  types.Type
	ShadowVal   int
}

// Hash computes the rolling polynomial hash specified in §3: starting from
// the first byte, each subsequent byte c updates h <- 147*h + c, and the
// result folds in the identifier's length.
func Hash(name string) int {
	if len(name) == 0 {
		return 0 << 6
	}
	h := int(name[0])
	for i := 1; i < len(name); i++ {
		h = h*147 + int(name[i])
	}
	return (h << 6) + len(name)
}

// Table is the flat, append-only symbol table.
type Table struct {
	entries []*Entry
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{}
}

// Lookup finds an entry by name, comparing both the hash (a fast rejector)
// and the byte content, per §3's uniqueness invariant.
func (t *Table) Lookup(name string) (*Entry, bool) {
	h := Hash(name)
	for _, e := range t.entries {
		if e.Hash == h && e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// LookupOrInsert returns the existing entry for name, or appends and
// returns a freshly inserted one with Tok set to the Id tag supplied by
// the caller (the lexer and compiler.Seed both pass token.Id).
func (t *Table) LookupOrInsert(name string, idTok int) *Entry {
	if e, ok := t.Lookup(name); ok {
		return e
	}
	e := &Entry{Tok: idTok, Hash: Hash(name), Name: name}
	t.entries = append(t.entries, e)
	return e
}

// Shadow saves e's current storage-class triple into its shadow slots. The
// parser calls this once per parameter or local, immediately before
// overwriting Class/Type/Val with the inner binding.
func (e *Entry) Shadow() {
	e.ShadowClass, e.ShadowType, e.ShadowVal = e.Class, e.Type, e.Val
}

// Unshadow sweeps the whole table and restores every entry whose storage
// class is currently Local back to its shadow triple. Called exactly once,
// at function-body exit, matching the reference's single full-table scan
// rather than a scoped stack of additions (§9).
func (t *Table) Unshadow() {
	for _, e := range t.entries {
		if e.Class == ClassLoc {
			e.Class, e.Type, e.Val = e.ShadowClass, e.ShadowType, e.ShadowVal
		}
	}
}

// All returns the table's entries in insertion order, for seeding
// round-trip tests and diagnostics.
func (t *Table) All() []*Entry {
	return t.entries
}
