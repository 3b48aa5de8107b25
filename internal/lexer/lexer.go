// Package lexer implements component A: a cursor that advances over a
// source buffer one lexeme at a time, classifying it, interning
// identifiers into a symbol table, and copying string/char literal bytes
// into the data segment. See §4.A of SPEC_FULL.md.
package lexer

import (
	"fmt"

	"github.com/kesselrun/minicc/internal/segment"
	"github.com/kesselrun/minicc/internal/symtab"
	"github.com/kesselrun/minicc/internal/token"
)

// Lexer holds the cursor state for one source buffer. It is not
// reentrant and not safe for concurrent use; the system is single-threaded
// by design (§5).
type Lexer struct {
	src []byte
	pos int

	lineStart int
	Line      int

	// Tok, Val, and Sym are the result of the most recent Next call: Tok is
	// always set; Val holds a numeric literal's value or a string literal's
	// data-segment address; Sym holds the resolved symbol table entry when
	// the token is an identifier (token.Id or a keyword tag), nil otherwise.
	Tok int
	Val int
	Sym *symtab.Entry

	syms *symtab.Table
	data *segment.Memory

	// OnNewline, when set, is invoked with the just-completed source line
	// (including its trailing newline) before the line counter advances.
	// internal/compiler uses this hook to drive internal/trace's -s output;
	// the lexer itself has no notion of trace formatting (§6).
	OnNewline func(lineText []byte, line int)
}

// New returns a lexer positioned at the start of src, interning
// identifiers into syms and string/char literal bytes into data.
func New(src []byte, syms *symtab.Table, data *segment.Memory) *Lexer {
	return &Lexer{src: src, syms: syms, data: data, Line: 1}
}

// CurrentLine returns the 1-based line the cursor is currently on; kept as
// a method name distinct from the Line field for callers that prefer it.
func (l *Lexer) CurrentLine() int { return l.Line }

// Next advances past exactly one lexeme, skipping whitespace, comments,
// and preprocessor-style `#` lines. At end of input Tok becomes 0.
func (l *Lexer) Next() error {
	l.Sym = nil
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++

		switch {
		case c == '\n':
			if l.OnNewline != nil {
				l.OnNewline(l.src[l.lineStart:l.pos], l.Line)
			}
			l.lineStart = l.pos
			l.Line++
		case c == ' ' || c == '\t' || c == '\r':
			// skip
		case c == '#':
			l.skipToEOL()
		case isIdentStart(c):
			l.scanIdent(c)
			return nil
		case c >= '0' && c <= '9':
			l.scanNumber(c)
			return nil
		case c == '/':
			if l.pos < len(l.src) && l.src[l.pos] == '/' {
				l.pos++
				l.skipToEOL()
			} else {
				l.Tok = token.Div
				return nil
			}
		case c == '\'' || c == '"':
			return l.scanLiteral(c)
		case c == '=':
			l.Tok = l.choose('=', token.Eq, token.Assign)
			return nil
		case c == '+':
			l.Tok = l.choose('+', token.Inc, token.Add)
			return nil
		case c == '-':
			l.Tok = l.choose('-', token.Dec, token.Sub)
			return nil
		case c == '!':
			l.Tok = l.choose('=', token.Ne, int(c))
			return nil
		case c == '<':
			if l.match('=') {
				l.Tok = token.Le
			} else if l.match('<') {
				l.Tok = token.Shl
			} else {
				l.Tok = token.Lt
			}
			return nil
		case c == '>':
			if l.match('=') {
				l.Tok = token.Ge
			} else if l.match('>') {
				l.Tok = token.Shr
			} else {
				l.Tok = token.Gt
			}
			return nil
		case c == '|':
			l.Tok = l.choose('|', token.Lor, token.Or)
			return nil
		case c == '&':
			l.Tok = l.choose('&', token.Lan, token.And)
			return nil
		case c == '^':
			l.Tok = token.Xor
			return nil
		case c == '%':
			l.Tok = token.Mod
			return nil
		case c == '*':
			l.Tok = token.Mul
			return nil
		case c == '[':
			l.Tok = token.Brak
			return nil
		case c == '?':
			l.Tok = token.Cond
			return nil
		case isPassthrough(c):
			l.Tok = int(c)
			return nil
		default:
			// Unrecognized byte (e.g. '@', '$'): the lexer treats it as
			// insignificant, matching the reference, and moves on.
		}
	}
	l.Tok = 0
	return nil
}

func (l *Lexer) skipToEOL() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

// match consumes the next byte and returns true if it equals want.
func (l *Lexer) match(want byte) bool {
	if l.pos < len(l.src) && l.src[l.pos] == want {
		l.pos++
		return true
	}
	return false
}

// choose returns yes if the next byte equals want (consuming it), else no.
func (l *Lexer) choose(want byte, yes, no int) int {
	if l.match(want) {
		return yes
	}
	return no
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isPassthrough(c byte) bool {
	switch c {
	case '~', ';', '{', '}', '(', ')', ']', ',', ':':
		return true
	}
	return false
}

func (l *Lexer) scanIdent(first byte) {
	start := l.pos - 1
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	name := string(l.src[start:l.pos])
	e := l.syms.LookupOrInsert(name, token.Id)
	l.Tok = e.Tok
	l.Sym = e
}

func (l *Lexer) scanNumber(first byte) {
	l.Sym = nil
	switch {
	case first != '0':
		val := int(first - '0')
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			val = val*10 + int(l.src[l.pos]-'0')
			l.pos++
		}
		l.Val = val
	case l.pos < len(l.src) && (l.src[l.pos] == 'x' || l.src[l.pos] == 'X'):
		l.pos++
		val := 0
	hex:
		for l.pos < len(l.src) {
			d := l.src[l.pos]
			var digit int
			switch {
			case d >= '0' && d <= '9':
				digit = int(d - '0')
			case d >= 'a' && d <= 'f':
				digit = int(d-'a') + 10
			case d >= 'A' && d <= 'F':
				digit = int(d-'A') + 10
			default:
				break hex
			}
			val = val*16 + digit
			l.pos++
		}
		l.Val = val
	default:
		val := 0
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7' {
			val = val*8 + int(l.src[l.pos]-'0')
			l.pos++
		}
		l.Val = val
	}
	l.Tok = token.Num
}

// scanLiteral handles both double-quoted strings (copied byte-by-byte into
// the data segment) and single-quoted character constants (folded into a
// Num). Only the `\n` escape is translated; any other backslash sequence
// passes its following byte through literally, per §4.A.
func (l *Lexer) scanLiteral(quote byte) error {
	startAddr := l.data.Len()
	var val int
	for {
		if l.pos >= len(l.src) {
			return fmt.Errorf("%d: unterminated string/char literal", l.Line)
		}
		c := l.src[l.pos]
		if c == quote {
			break
		}
		l.pos++
		val = int(c)
		if val == '\\' {
			if l.pos >= len(l.src) {
				return fmt.Errorf("%d: unterminated string/char literal", l.Line)
			}
			val = int(l.src[l.pos])
			l.pos++
			if val == 'n' {
				val = '\n'
			}
		}
		if quote == '"' {
			if _, err := l.data.WriteByte(byte(val)); err != nil {
				return err
			}
		}
	}
	l.pos++ // consume closing quote
	if quote == '"' {
		l.Val = startAddr
		l.Tok = token.Quote
	} else {
		l.Val = val
		l.Tok = token.Num
	}
	return nil
}
