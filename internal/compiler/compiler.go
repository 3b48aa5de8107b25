// Package compiler implements components B and C: the one-pass parser
// that walks declarations, statements, and precedence-climbed
// expressions, emitting bytecode directly as it recognizes each
// construct, with no intermediate syntax tree. See §4.B, §4.C, and §9 of
// SPEC_FULL.md.
package compiler

import (
	"fmt"
	"io"

	"github.com/kesselrun/minicc/internal/lexer"
	"github.com/kesselrun/minicc/internal/segment"
	"github.com/kesselrun/minicc/internal/symtab"
	"github.com/kesselrun/minicc/internal/token"
	"github.com/kesselrun/minicc/internal/trace"
	"github.com/kesselrun/minicc/internal/types"
	"github.com/kesselrun/minicc/internal/vm"
)

// Error is a compile-time diagnostic: a line number plus a message,
// rendered as "<line>: <message>" to match the reference's diagnostics.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%d: %s", e.Line, e.Message) }

// builtins names every host syscall the reference exposes to source
// programs, mapped to the vm opcode that implements it.
var builtins = []struct {
	name string
	op   int
}{
	{"open", vm.OPEN},
	{"read", vm.READ},
	{"close", vm.CLOS},
	{"printf", vm.PRTF},
	{"malloc", vm.MALC},
	{"free", vm.FREE},
	{"memset", vm.MSET},
	{"memcmp", vm.MCMP},
	{"exit", vm.EXIT},
}

var keywords = []struct {
	name string
	tok  int
}{
	{"char", token.Char},
	{"else", token.Else},
	{"enum", token.Enum},
	{"if", token.If},
	{"int", token.Int},
	{"return", token.Return},
	{"sizeof", token.Sizeof},
	{"while", token.While},
}

// Seed pre-populates syms with the language's keywords and host built-ins,
// plus `void` (aliased to Char, §9's deliberately preserved quirk) and a
// placeholder `main` entry, in exactly the order the reference's bootstrap
// pass inserts them (§4.B). Compile assumes Seed has already run.
func Seed(syms *symtab.Table) {
	for _, kw := range keywords {
		e := syms.LookupOrInsert(kw.name, token.Id)
		e.Tok = kw.tok
	}
	for _, b := range builtins {
		e := syms.LookupOrInsert(b.name, token.Id)
		e.Class = symtab.ClassSys
		e.Type = types.Type{Base: types.Int}
		e.Val = b.op
	}
	void := syms.LookupOrInsert("void", token.Id)
	void.Tok = token.Char
	syms.LookupOrInsert("main", token.Id)
}

// Compiler holds the one-pass parser's state: the lexer it pulls tokens
// from, the symbol table it reads and mutates, and the code/data segments
// it emits into. A Compiler is used exactly once, for exactly one
// top-to-bottom Compile call.
type Compiler struct {
	lex  *lexer.Lexer
	syms *symtab.Table
	code *segment.Code
	data *segment.Memory

	ty  types.Type // type of the expression subtree most recently parsed
	loc int        // current function's local-variable offset base

	Trace io.Writer // when non-nil, receives -s style per-line bytecode trace

	lastTraceAddr int // code-segment cursor as of the previous traceLine call
}

// New returns a Compiler reading from lex and emitting into code/data.
// syms must already have been seeded (see Seed), which inserts the
// keyword/builtin names directly into the table.
func New(lex *lexer.Lexer, syms *symtab.Table, code *segment.Code, data *segment.Memory) *Compiler {
	c := &Compiler{lex: lex, syms: syms, code: code, data: data}
	return c
}

// Compile parses the whole token stream and emits bytecode for every
// top-level declaration, returning main's entry address in the code
// segment.
func (c *Compiler) Compile() (int, error) {
	if c.Trace != nil {
		c.lex.OnNewline = c.traceLine
	}
	if err := c.advance(); err != nil {
		return 0, err
	}
	for c.lex.Tok != 0 {
		if err := c.declaration(); err != nil {
			return 0, err
		}
	}
	main, ok := c.syms.Lookup("main")
	if !ok || main.Class != symtab.ClassFun {
		return 0, &Error{Line: c.lex.Line, Message: "main() not defined"}
	}
	return main.Val, nil
}

func (c *Compiler) advance() error {
	return c.lex.Next()
}

func (c *Compiler) fail(format string, args ...interface{}) error {
	return &Error{Line: c.lex.Line, Message: fmt.Sprintf(format, args...)}
}

func (c *Compiler) expect(tok int, what string) error {
	if c.lex.Tok != tok {
		return c.fail("%s expected", what)
	}
	return c.advance()
}

// traceLine is the -s hook wired into the lexer: each time a source line
// is fully consumed, it reports every instruction emitted since the
// previous call, matching the reference's interleaved -s listing.
func (c *Compiler) traceLine(text []byte, line int) {
	words := c.code.Words()
	trace.SourceLine(c.Trace, line, text, words[c.lastTraceAddr:])
	c.lastTraceAddr = len(words)
}

func (c *Compiler) emitOp(op int) error {
	_, err := c.code.Emit(op)
	return err
}

// emitOperand emits a two-word instruction and returns the address of its
// operand word, for callers (branches, ENT, ADJ) that need to patch it
// once a forward target becomes known.
func (c *Compiler) emitOperand(op, operand int) (int, error) {
	if err := c.emitOp(op); err != nil {
		return 0, err
	}
	return c.code.Emit(operand)
}

// intType returns an int type, the default base type a
// declaration assumes until an explicit `char` overrides it.
func intType() types.Type { return types.Type{Base: types.Int} }

// declaration parses one top-level statement: an optional enum block,
// then zero or more comma-separated global variable or function
// declarations sharing a base type, terminated by `;` (§4.B). A function
// definition ends the declaration at its closing brace, and an enum block
// not followed by `;` ends it at the enum's closing brace.
func (c *Compiler) declaration() error {
	bt := intType()
	switch c.lex.Tok {
	case token.Int:
		if err := c.advance(); err != nil {
			return err
		}
	case token.Char:
		if err := c.advance(); err != nil {
			return err
		}
		bt = types.Type{Base: types.Char}
	case token.Enum:
		if err := c.enumDecl(); err != nil {
			return err
		}
		if c.lex.Tok != ';' {
			return nil
		}
	}

	for c.lex.Tok != ';' && c.lex.Tok != '}' {
		ty := bt
		for c.lex.Tok == token.Mul {
			if err := c.advance(); err != nil {
				return err
			}
			ty = ty.AddPointer()
		}
		if c.lex.Tok != token.Id {
			return c.fail("bad global declaration")
		}
		sym := c.lex.Sym
		if sym.Class != symtab.ClassNone {
			return c.fail("duplicate global definition")
		}
		if err := c.advance(); err != nil {
			return err
		}
		sym.Type = ty
		if c.lex.Tok == '(' {
			// funcDecl has consumed the body's closing brace.
			return c.funcDecl(sym)
		} else {
			addr, err := c.data.Reserve(types.WordSize)
			if err != nil {
				return err
			}
			sym.Class = symtab.ClassGlo
			sym.Val = addr
		}
		if c.lex.Tok == ',' {
			if err := c.advance(); err != nil {
				return err
			}
		}
	}
	if c.lex.Tok == ';' {
		return c.advance()
	}
	return nil
}

// enumDecl parses `enum [tag] { NAME [= value], ... }`, assigning each
// member a ClassNum binding. An enum without a trailing value continues
// the previous member's value plus one, starting from 0 (§4.B).
func (c *Compiler) enumDecl() error {
	if err := c.advance(); err != nil {
		return err
	}
	if c.lex.Tok != '{' { // ignore the optional enum tag
		if err := c.advance(); err != nil {
			return err
		}
	}
	if c.lex.Tok != '{' {
		return nil
	}
	if err := c.advance(); err != nil {
		return err
	}
	val := 0
	for c.lex.Tok != '}' {
		if c.lex.Tok != token.Id {
			return c.fail("bad enum identifier")
		}
		sym := c.lex.Sym
		if err := c.advance(); err != nil {
			return err
		}
		if c.lex.Tok == token.Assign {
			if err := c.advance(); err != nil {
				return err
			}
			if c.lex.Tok != token.Num {
				return c.fail("bad enum initializer")
			}
			val = c.lex.Val
			if err := c.advance(); err != nil {
				return err
			}
		}
		sym.Class = symtab.ClassNum
		sym.Type = intType()
		sym.Val = val
		val++
		if c.lex.Tok == ',' {
			if err := c.advance(); err != nil {
				return err
			}
		}
	}
	return c.advance()
}

// funcDecl parses a function's parameter list and its `{ ... }` body (a
// missing body is an error); sym.Type already holds the return type. Parameters and
// locals are numbered and shadowed into sym's table exactly as the
// reference's single-scope local binding scheme does (§4.B/§9), then
// restored by symtab.Unshadow once the body closes.
func (c *Compiler) funcDecl(sym *symtab.Entry) error {
	sym.Class = symtab.ClassFun
	sym.Val = c.code.Len()
	if err := c.advance(); err != nil {
		return err
	}

	n := 0
	for c.lex.Tok != ')' {
		ty := intType()
		if c.lex.Tok == token.Int {
			if err := c.advance(); err != nil {
				return err
			}
		} else if c.lex.Tok == token.Char {
			if err := c.advance(); err != nil {
				return err
			}
			ty = types.Type{Base: types.Char}
		}
		for c.lex.Tok == token.Mul {
			if err := c.advance(); err != nil {
				return err
			}
			ty = ty.AddPointer()
		}
		if c.lex.Tok != token.Id {
			return c.fail("bad parameter declaration")
		}
		p := c.lex.Sym
		if p.Class == symtab.ClassLoc {
			return c.fail("duplicate parameter definition")
		}
		p.Shadow()
		p.Class = symtab.ClassLoc
		p.Type = ty
		p.Val = n
		n++
		if err := c.advance(); err != nil {
			return err
		}
		if c.lex.Tok == ',' {
			if err := c.advance(); err != nil {
				return err
			}
		}
	}
	if err := c.advance(); err != nil {
		return err
	}
	if c.lex.Tok != '{' {
		return c.fail("bad function definition")
	}
	n++
	c.loc = n
	if err := c.advance(); err != nil {
		return err
	}

	for c.lex.Tok == token.Int || c.lex.Tok == token.Char {
		bt := intType()
		if c.lex.Tok == token.Char {
			bt = types.Type{Base: types.Char}
		}
		if err := c.advance(); err != nil {
			return err
		}
		for c.lex.Tok != ';' {
			ty := bt
			for c.lex.Tok == token.Mul {
				if err := c.advance(); err != nil {
					return err
				}
				ty = ty.AddPointer()
			}
			if c.lex.Tok != token.Id {
				return c.fail("bad local declaration")
			}
			loc := c.lex.Sym
			if loc.Class == symtab.ClassLoc {
				return c.fail("duplicate local definition")
			}
			loc.Shadow()
			loc.Class = symtab.ClassLoc
			loc.Type = ty
			n++
			loc.Val = n
			if err := c.advance(); err != nil {
				return err
			}
			if c.lex.Tok == ',' {
				if err := c.advance(); err != nil {
					return err
				}
			}
		}
		if err := c.advance(); err != nil {
			return err
		}
	}

	entAddr, err := c.emitOperand(vm.ENT, n-c.loc)
	if err != nil {
		return err
	}
	_ = entAddr
	for c.lex.Tok != '}' {
		if err := c.stmt(); err != nil {
			return err
		}
	}
	if err := c.emitOp(vm.LEV); err != nil {
		return err
	}
	c.syms.Unshadow()
	return c.advance()
}

// stmt parses one statement: if/else, while, return, a brace-delimited
// block, an empty `;`, or a bare expression statement (§4.C).
func (c *Compiler) stmt() error {
	switch c.lex.Tok {
	case token.If:
		return c.ifStmt()
	case token.While:
		return c.whileStmt()
	case token.Return:
		return c.returnStmt()
	case '{':
		if err := c.advance(); err != nil {
			return err
		}
		for c.lex.Tok != '}' {
			if err := c.stmt(); err != nil {
				return err
			}
		}
		return c.advance()
	case ';':
		return c.advance()
	default:
		if _, err := c.expr(token.Assign); err != nil {
			return err
		}
		return c.expect(';', "semicolon")
	}
}

func (c *Compiler) ifStmt() error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.expect('(', "open paren"); err != nil {
		return err
	}
	if _, err := c.expr(token.Assign); err != nil {
		return err
	}
	if err := c.expect(')', "close paren"); err != nil {
		return err
	}
	bzAddr, err := c.emitOperand(vm.BZ, 0)
	if err != nil {
		return err
	}
	if err := c.stmt(); err != nil {
		return err
	}
	if c.lex.Tok == token.Else {
		c.code.Patch(bzAddr, c.code.Len()+2)
		jmpAddr, err := c.emitOperand(vm.JMP, 0)
		if err != nil {
			return err
		}
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.stmt(); err != nil {
			return err
		}
		c.code.Patch(jmpAddr, c.code.Len())
		return nil
	}
	c.code.Patch(bzAddr, c.code.Len())
	return nil
}

func (c *Compiler) whileStmt() error {
	if err := c.advance(); err != nil {
		return err
	}
	condAddr := c.code.Len()
	if err := c.expect('(', "open paren"); err != nil {
		return err
	}
	if _, err := c.expr(token.Assign); err != nil {
		return err
	}
	if err := c.expect(')', "close paren"); err != nil {
		return err
	}
	bzAddr, err := c.emitOperand(vm.BZ, 0)
	if err != nil {
		return err
	}
	if err := c.stmt(); err != nil {
		return err
	}
	if _, err := c.emitOperand(vm.JMP, condAddr); err != nil {
		return err
	}
	c.code.Patch(bzAddr, c.code.Len())
	return nil
}

func (c *Compiler) returnStmt() error {
	if err := c.advance(); err != nil {
		return err
	}
	if c.lex.Tok != ';' {
		if _, err := c.expr(token.Assign); err != nil {
			return err
		}
	}
	if err := c.emitOp(vm.LEV); err != nil {
		return err
	}
	return c.expect(';', "semicolon")
}

// expr parses one expression whose outermost operator binds at least as
// tightly as lev, emitting bytecode as it recognizes each production.
// This is precedence climbing: lev is raised on recursive calls into a
// tighter-binding operand, and the trailing loop only consumes an
// operator whose own token tag (which increases with precedence, per
// internal/token) is >= lev. c.ty is left holding the resulting
// expression's type, mirroring the reference's global `ty` (§4.C).
func (c *Compiler) expr(lev int) (types.Type, error) {
	if err := c.primary(); err != nil {
		return types.Type{}, err
	}
	for c.lex.Tok >= lev {
		if err := c.infix(); err != nil {
			return types.Type{}, err
		}
	}
	return c.ty, nil
}

func (c *Compiler) primary() error {
	switch {
	case c.lex.Tok == 0:
		return c.fail("unexpected eof in expression")
	case c.lex.Tok == token.Num:
		if _, err := c.emitOperand(vm.IMM, c.lex.Val); err != nil {
			return err
		}
		if err := c.advance(); err != nil {
			return err
		}
		c.ty = intType()
	case c.lex.Tok == token.Quote:
		if _, err := c.emitOperand(vm.IMM, c.lex.Val); err != nil {
			return err
		}
		if err := c.advance(); err != nil {
			return err
		}
		for c.lex.Tok == token.Quote { // adjacent string literal concatenation
			if err := c.advance(); err != nil {
				return err
			}
		}
		c.data.Align(types.WordSize)
		c.ty = types.Type{Base: types.Char}.AddPointer()
	case c.lex.Tok == token.Sizeof:
		return c.sizeofExpr()
	case c.lex.Tok == token.Id:
		return c.identExpr()
	case c.lex.Tok == '(':
		return c.parenExpr()
	case c.lex.Tok == token.Mul:
		return c.derefExpr()
	case c.lex.Tok == token.And:
		return c.addressOfExpr()
	case c.lex.Tok == '!':
		if err := c.advance(); err != nil {
			return err
		}
		if _, err := c.expr(token.Inc); err != nil {
			return err
		}
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.emitOperand(vm.IMM, 0); err != nil {
			return err
		}
		if err := c.emitOp(vm.EQ); err != nil {
			return err
		}
		c.ty = intType()
	case c.lex.Tok == '~':
		if err := c.advance(); err != nil {
			return err
		}
		if _, err := c.expr(token.Inc); err != nil {
			return err
		}
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.emitOperand(vm.IMM, -1); err != nil {
			return err
		}
		if err := c.emitOp(vm.XOR); err != nil {
			return err
		}
		c.ty = intType()
	case c.lex.Tok == token.Add:
		if err := c.advance(); err != nil {
			return err
		}
		if _, err := c.expr(token.Inc); err != nil {
			return err
		}
		c.ty = intType()
	case c.lex.Tok == token.Sub:
		return c.unaryMinusExpr()
	case c.lex.Tok == token.Inc || c.lex.Tok == token.Dec:
		return c.preIncDecExpr()
	default:
		return c.fail("bad expression")
	}
	return nil
}

func (c *Compiler) sizeofExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.expect('(', "open paren in sizeof"); err != nil {
		return err
	}
	ty := intType()
	if c.lex.Tok == token.Int {
		if err := c.advance(); err != nil {
			return err
		}
	} else if c.lex.Tok == token.Char {
		if err := c.advance(); err != nil {
			return err
		}
		ty = types.Type{Base: types.Char}
	}
	for c.lex.Tok == token.Mul {
		if err := c.advance(); err != nil {
			return err
		}
		ty = ty.AddPointer()
	}
	if err := c.expect(')', "close paren in sizeof"); err != nil {
		return err
	}
	if _, err := c.emitOperand(vm.IMM, ty.Size()); err != nil {
		return err
	}
	c.ty = intType()
	return nil
}

func (c *Compiler) identExpr() error {
	sym := c.lex.Sym
	if err := c.advance(); err != nil {
		return err
	}
	if c.lex.Tok == '(' {
		return c.callExpr(sym)
	}
	if sym.Class == symtab.ClassNum {
		if _, err := c.emitOperand(vm.IMM, sym.Val); err != nil {
			return err
		}
		c.ty = intType()
		return nil
	}
	switch sym.Class {
	case symtab.ClassLoc:
		if _, err := c.emitOperand(vm.LEA, c.loc-sym.Val); err != nil {
			return err
		}
	case symtab.ClassGlo:
		if _, err := c.emitOperand(vm.IMM, sym.Val); err != nil {
			return err
		}
	default:
		return c.fail("undefined variable")
	}
	c.ty = sym.Type
	if c.ty.IsChar() {
		return c.emitOp(vm.LC)
	}
	return c.emitOp(vm.LI)
}

func (c *Compiler) callExpr(sym *symtab.Entry) error {
	if err := c.advance(); err != nil {
		return err
	}
	n := 0
	for c.lex.Tok != ')' {
		if _, err := c.expr(token.Assign); err != nil {
			return err
		}
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		n++
		if c.lex.Tok == ',' {
			if err := c.advance(); err != nil {
				return err
			}
		}
	}
	if err := c.advance(); err != nil {
		return err
	}
	switch sym.Class {
	case symtab.ClassSys:
		if err := c.emitOp(sym.Val); err != nil {
			return err
		}
	case symtab.ClassFun:
		if _, err := c.emitOperand(vm.JSR, sym.Val); err != nil {
			return err
		}
	default:
		return c.fail("bad function call")
	}
	if n != 0 {
		if _, err := c.emitOperand(vm.ADJ, n); err != nil {
			return err
		}
	}
	c.ty = sym.Type
	return nil
}

func (c *Compiler) parenExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	if c.lex.Tok == token.Int || c.lex.Tok == token.Char {
		ty := intType()
		if c.lex.Tok == token.Char {
			ty = types.Type{Base: types.Char}
		}
		if err := c.advance(); err != nil {
			return err
		}
		for c.lex.Tok == token.Mul {
			if err := c.advance(); err != nil {
				return err
			}
			ty = ty.AddPointer()
		}
		if err := c.expect(')', "bad cast"); err != nil {
			return err
		}
		if _, err := c.expr(token.Inc); err != nil {
			return err
		}
		c.ty = ty
		return nil
	}
	if _, err := c.expr(token.Assign); err != nil {
		return err
	}
	return c.expect(')', "close paren")
}

func (c *Compiler) derefExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	if _, err := c.expr(token.Inc); err != nil {
		return err
	}
	if !c.ty.IsPointer() {
		return c.fail("bad dereference")
	}
	c.ty = c.ty.Elem()
	if c.ty.IsChar() {
		return c.emitOp(vm.LC)
	}
	return c.emitOp(vm.LI)
}

func (c *Compiler) addressOfExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	if _, err := c.expr(token.Inc); err != nil {
		return err
	}
	last := c.code.At(c.code.Last())
	if last != vm.LC && last != vm.LI {
		return c.fail("bad address-of")
	}
	c.trimLast()
	c.ty = c.ty.AddPointer()
	return nil
}

// trimLast removes the single-word instruction most recently emitted
// (LC or LI), used by `&expr` to cancel the load that identExpr/derefExpr
// already emitted, leaving just the address on the accumulator.
func (c *Compiler) trimLast() {
	words := c.code.Words()
	c.code.Truncate(len(words) - 1)
}

func (c *Compiler) unaryMinusExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	if c.lex.Tok == token.Num {
		if _, err := c.emitOperand(vm.IMM, -c.lex.Val); err != nil {
			return err
		}
		if err := c.advance(); err != nil {
			return err
		}
	} else {
		if _, err := c.emitOperand(vm.IMM, -1); err != nil {
			return err
		}
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.expr(token.Inc); err != nil {
			return err
		}
		if err := c.emitOp(vm.MUL); err != nil {
			return err
		}
	}
	c.ty = intType()
	return nil
}

func (c *Compiler) preIncDecExpr() error {
	op := c.lex.Tok
	if err := c.advance(); err != nil {
		return err
	}
	if _, err := c.expr(token.Inc); err != nil {
		return err
	}
	if err := c.turnLoadIntoPushLoad(); err != nil {
		return err
	}
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	step := types.WordSize
	if !c.ty.ScalesBySize() {
		step = 1
	}
	if _, err := c.emitOperand(vm.IMM, step); err != nil {
		return err
	}
	if op == token.Inc {
		if err := c.emitOp(vm.ADD); err != nil {
			return err
		}
	} else {
		if err := c.emitOp(vm.SUB); err != nil {
			return err
		}
	}
	if c.ty.IsChar() {
		return c.emitOp(vm.SC)
	}
	return c.emitOp(vm.SI)
}

// turnLoadIntoPushLoad rewrites the trailing LC/LI the operand just
// emitted into PSH LC/PSH LI: the pushed address becomes the target the
// later SC/SI stores back through, exactly mirroring the reference's
// in-place `mem[e] = PSH; e++; mem[e] = LC` rewrite (§4.C).
func (c *Compiler) turnLoadIntoPushLoad() error {
	last := c.code.At(c.code.Last())
	if last != vm.LC && last != vm.LI {
		return c.fail("bad lvalue in increment/decrement")
	}
	c.code.Patch(c.code.Last(), vm.PSH)
	return c.emitOp(last)
}

// infix consumes one trailing binary/postfix operator and its right-hand
// operand, assuming c.lex.Tok's precedence already cleared the calling
// expr's lev check. Each branch mirrors one arm of the reference's
// trailing "for tk >= lev" loop (§4.C).
func (c *Compiler) infix() error {
	t := c.ty
	switch c.lex.Tok {
	case token.Assign:
		return c.assignExpr()
	case token.Cond:
		return c.condExpr()
	case token.Lor:
		return c.shortCircuit(vm.BNZ, token.Lan)
	case token.Lan:
		return c.shortCircuit(vm.BZ, token.Or)
	case token.Or:
		return c.binary(token.Xor, vm.OR)
	case token.Xor:
		return c.binary(token.And, vm.XOR)
	case token.And:
		return c.binary(token.Eq, vm.AND)
	case token.Eq:
		return c.binary(token.Lt, vm.EQ)
	case token.Ne:
		return c.binary(token.Lt, vm.NE)
	case token.Lt:
		return c.binary(token.Shl, vm.LT)
	case token.Gt:
		return c.binary(token.Shl, vm.GT)
	case token.Le:
		return c.binary(token.Shl, vm.LE)
	case token.Ge:
		return c.binary(token.Shl, vm.GE)
	case token.Shl:
		return c.binary(token.Add, vm.SHL)
	case token.Shr:
		return c.binary(token.Add, vm.SHR)
	case token.Add:
		return c.addExpr(t)
	case token.Sub:
		return c.subExpr(t)
	case token.Mul:
		return c.binary(token.Inc, vm.MUL)
	case token.Div:
		return c.binary(token.Inc, vm.DIV)
	case token.Mod:
		return c.binary(token.Inc, vm.MOD)
	case token.Inc, token.Dec:
		return c.postIncDecExpr()
	case token.Brak:
		return c.indexExpr(t)
	default:
		return c.fail("compiler error tk=%d", c.lex.Tok)
	}
}

func (c *Compiler) assignExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	last := c.code.At(c.code.Last())
	if last != vm.LC && last != vm.LI {
		return c.fail("bad lvalue in assignment")
	}
	c.code.Patch(c.code.Last(), vm.PSH)
	ty := c.ty
	if _, err := c.expr(token.Assign); err != nil {
		return err
	}
	c.ty = ty
	if c.ty.IsChar() {
		return c.emitOp(vm.SC)
	}
	return c.emitOp(vm.SI)
}

func (c *Compiler) condExpr() error {
	if err := c.advance(); err != nil {
		return err
	}
	bzAddr, err := c.emitOperand(vm.BZ, 0)
	if err != nil {
		return err
	}
	if _, err := c.expr(token.Assign); err != nil {
		return err
	}
	if err := c.expect(':', "conditional missing colon"); err != nil {
		return err
	}
	c.code.Patch(bzAddr, c.code.Len()+2)
	jmpAddr, err := c.emitOperand(vm.JMP, 0)
	if err != nil {
		return err
	}
	if _, err := c.expr(token.Cond); err != nil {
		return err
	}
	c.code.Patch(jmpAddr, c.code.Len())
	return nil
}

// shortCircuit implements `||` and `&&`: the branch skips the
// right-hand operand entirely when the left side already determines the
// result, so the right side is never evaluated (§8's testable property).
func (c *Compiler) shortCircuit(branch, nextLev int) error {
	if err := c.advance(); err != nil {
		return err
	}
	branchAddr, err := c.emitOperand(branch, 0)
	if err != nil {
		return err
	}
	if _, err := c.expr(nextLev); err != nil {
		return err
	}
	c.code.Patch(branchAddr, c.code.Len())
	c.ty = intType()
	return nil
}

func (c *Compiler) binary(nextLev, op int) error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	if _, err := c.expr(nextLev); err != nil {
		return err
	}
	if err := c.emitOp(op); err != nil {
		return err
	}
	c.ty = intType()
	return nil
}

// addExpr implements pointer-scaled `+`: when the left operand's type
// scales by word size (ScalesBySize — true for every pointer except
// pointer-to-char, the documented §9 quirk), the right-hand integer is
// multiplied by the word size before the add.
func (c *Compiler) addExpr(left types.Type) error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	if _, err := c.expr(token.Mul); err != nil {
		return err
	}
	c.ty = left
	if c.ty.ScalesBySize() {
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.emitOperand(vm.IMM, types.WordSize); err != nil {
			return err
		}
		if err := c.emitOp(vm.MUL); err != nil {
			return err
		}
	}
	return c.emitOp(vm.ADD)
}

// subExpr implements `-`: pointer minus same-typed pointer yields an
// element count (divided by word size); pointer minus integer scales the
// integer the same way addExpr does; otherwise it's a plain subtraction.
func (c *Compiler) subExpr(left types.Type) error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	right, err := c.expr(token.Mul)
	if err != nil {
		return err
	}
	if left.ScalesBySize() && left == right {
		if err := c.emitOp(vm.SUB); err != nil {
			return err
		}
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.emitOperand(vm.IMM, types.WordSize); err != nil {
			return err
		}
		if err := c.emitOp(vm.DIV); err != nil {
			return err
		}
		c.ty = intType()
		return nil
	}
	c.ty = left
	if c.ty.ScalesBySize() {
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.emitOperand(vm.IMM, types.WordSize); err != nil {
			return err
		}
		if err := c.emitOp(vm.MUL); err != nil {
			return err
		}
		return c.emitOp(vm.SUB)
	}
	return c.emitOp(vm.SUB)
}

func (c *Compiler) postIncDecExpr() error {
	op := c.lex.Tok
	if err := c.turnLoadIntoPushLoad(); err != nil {
		return err
	}
	step := types.WordSize
	if !c.ty.ScalesBySize() {
		step = 1
	}
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	if _, err := c.emitOperand(vm.IMM, step); err != nil {
		return err
	}
	first, second := vm.ADD, vm.SUB
	if op == token.Dec {
		first, second = vm.SUB, vm.ADD
	}
	if err := c.emitOp(first); err != nil {
		return err
	}
	if c.ty.IsChar() {
		if err := c.emitOp(vm.SC); err != nil {
			return err
		}
	} else {
		if err := c.emitOp(vm.SI); err != nil {
			return err
		}
	}
	// undo the step just applied so the expression's value is the
	// pre-increment/decrement value, matching `a++` semantics.
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	if _, err := c.emitOperand(vm.IMM, step); err != nil {
		return err
	}
	if err := c.emitOp(second); err != nil {
		return err
	}
	return c.advance()
}

func (c *Compiler) indexExpr(left types.Type) error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.emitOp(vm.PSH); err != nil {
		return err
	}
	if _, err := c.expr(token.Assign); err != nil {
		return err
	}
	if err := c.expect(']', "close bracket"); err != nil {
		return err
	}
	if !left.IsPointer() {
		return c.fail("pointer type expected")
	}
	if left.ScalesBySize() {
		if err := c.emitOp(vm.PSH); err != nil {
			return err
		}
		if _, err := c.emitOperand(vm.IMM, types.WordSize); err != nil {
			return err
		}
		if err := c.emitOp(vm.MUL); err != nil {
			return err
		}
	}
	if err := c.emitOp(vm.ADD); err != nil {
		return err
	}
	c.ty = left.Elem()
	if c.ty.IsChar() {
		return c.emitOp(vm.LC)
	}
	return c.emitOp(vm.LI)
}
