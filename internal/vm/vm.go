// Package vm implements component D: a stack-based virtual machine that
// interprets the bytecode internal/compiler emits against a unified
// memory arena (internal/segment.Memory) and a single accumulator
// register. See §4.D of SPEC_FULL.md.
package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/kesselrun/minicc/internal/segment"
	"github.com/kesselrun/minicc/internal/trace"
)

// Opcodes, in the exact order the emitter and the reference agree on: the
// opcodes up to and including ADJ carry one inline operand word; every
// later opcode (LEV and on) does not. internal/trace.HasOperand duplicates
// this boundary for formatting purposes.
const (
	LEA = iota
	IMM
	JMP
	JSR
	BZ
	BNZ
	ENT
	ADJ
	LEV
	LI
	LC
	SI
	SC
	PSH
	OR
	XOR
	AND
	EQ
	NE
	LT
	GT
	LE
	GE
	SHL
	SHR
	ADD
	SUB
	MUL
	DIV
	MOD
	OPEN
	READ
	CLOS
	PRTF
	MALC
	FREE
	MSET
	MCMP
	EXIT
)

const wordSize = 8

// Error is a fatal VM error: an unknown opcode, or (this implementation's
// strengthening of the reference's undefined behavior, per §5) an
// out-of-bounds memory access.
type Error struct {
	Cycle   int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Host bridges OPEN/READ/CLOS out to real file I/O, matching the
// reference's VM syscalls (§6). New uses an OSHost when no Host is given.
type Host interface {
	Open(path string, flags int) (fd int, err error)
	Read(fd int, buf []byte) (n int, err error)
	Close(fd int) error
}

// OSHost bridges directly to the operating system's filesystem, exactly
// the host behavior §6 specifies for OPEN/READ/CLOS.
type OSHost struct {
	files map[int]io.ReadCloser
	next  int
}

// NewOSHost returns a Host backed by real file descriptors.
func NewOSHost() *OSHost {
	return &OSHost{files: make(map[int]io.ReadCloser)}
}

func (h *OSHost) Open(path string, flags int) (int, error) {
	f, err := os.OpenFile(path, translateOpenFlags(flags), 0644)
	if err != nil {
		return -1, err
	}
	h.next++
	fd := h.next
	h.files[fd] = f
	return fd, nil
}

// translateOpenFlags maps the Linux open(2) flag bits the reference's
// source passes through OPEN (O_RDONLY=0, O_WRONLY=1, O_RDWR=2, O_CREAT=
// 0100) onto Go's os.O_* constants; this program's only caller of open()
// passes O_RDONLY, but the mapping is kept general per §6.
func translateOpenFlags(flags int) int {
	var out int
	switch flags & 3 {
	case 1:
		out |= os.O_WRONLY
	case 2:
		out |= os.O_RDWR
	default:
		out |= os.O_RDONLY
	}
	if flags&0100 != 0 {
		out |= os.O_CREATE
	}
	if flags&01000 != 0 {
		out |= os.O_TRUNC
	}
	if flags&02000 != 0 {
		out |= os.O_APPEND
	}
	return out
}

func (h *OSHost) Read(fd int, buf []byte) (int, error) {
	f, ok := h.files[fd]
	if !ok {
		return 0, fmt.Errorf("read: bad file descriptor %d", fd)
	}
	return f.Read(buf)
}

func (h *OSHost) Close(fd int) error {
	f, ok := h.files[fd]
	if !ok {
		return fmt.Errorf("close: bad file descriptor %d", fd)
	}
	delete(h.files, fd)
	return f.Close()
}

// Machine is the VM's complete runtime state: the four registers plus the
// code and memory arenas it executes against. Constructing a fresh
// Machine per run, rather than relying on package-level globals as the
// reference does, is what lets the core be exercised as a pure function of
// (bytecode, argv) -> (status, trace), per §9.
type Machine struct {
	Code *segment.Code
	Mem  *segment.Memory
	Host Host

	Out   io.Writer
	Debug bool

	a, bp, sp, pc int
	cycle         int
}

// New returns a Machine ready to execute code against mem, reporting
// per-instruction trace lines to out when debug is set.
func New(code *segment.Code, mem *segment.Memory, host Host, out io.Writer, debug bool) *Machine {
	if host == nil {
		host = NewOSHost()
	}
	return &Machine{Code: code, Mem: mem, Host: host, Out: out, Debug: debug}
}

// Setup primes the initial stack frame described in §4.D's "Initial
// frame": it appends a two-word PSH; EXIT stub to the code segment and
// pushes argc, argv and the stub's address as main's return address, so
// that if `main` returns normally, the VM terminates via EXIT with main's
// return value; then it points pc at entry (main's address). argv is the
// address, in Mem, of an array of NUL-terminated C strings (one per
// argument), itself built by CopyArgv. If the code segment is full, the
// stub is not written and a return from main stops Run with an error.
func (m *Machine) Setup(entry int, argc, argvAddr int) {
	m.sp = m.Mem.StackTop()
	m.bp = m.sp

	t := m.Code.Len()
	_, _ = m.Code.Emit(PSH)
	_, _ = m.Code.Emit(EXIT)
	m.push(argc)
	m.push(argvAddr)
	m.push(t)

	m.pc = entry
}

func (m *Machine) push(v int) {
	m.sp -= wordSize
	_ = m.Mem.WriteWord(m.sp, v)
}

func (m *Machine) pop() int {
	v, _ := m.Mem.ReadWord(m.sp)
	m.sp += wordSize
	return v
}

// CopyArgv writes argv's strings into mem (beyond the stack region, like
// any other malloc'd allocation) and returns the address of the
// resulting array of word-sized string-pointers, ready to pass to Setup.
func CopyArgv(mem *segment.Memory, argv []string) (int, error) {
	ptrsAddr, err := mem.Grow(len(argv) * wordSize)
	if err != nil {
		return 0, err
	}
	for i, arg := range argv {
		strAddr, err := mem.Grow(len(arg) + 1)
		if err != nil {
			return 0, err
		}
		b, _ := mem.Slice(strAddr, len(arg)+1)
		copy(b, arg)
		b[len(arg)] = 0
		if err := mem.WriteWord(ptrsAddr+i*wordSize, strAddr); err != nil {
			return 0, err
		}
	}
	return ptrsAddr, nil
}

// Run executes instructions until EXIT, an unknown opcode, or ctx is
// canceled, returning the program's exit status.
func (m *Machine) Run(ctx context.Context) (int, error) {
	code := m.Code.Words()
	for {
		if m.cycle%4096 == 0 {
			select {
			case <-ctx.Done():
				return -1, ctx.Err()
			default:
			}
		}

		if m.pc < 0 || m.pc >= len(code) {
			return -1, &Error{Cycle: m.cycle, Message: fmt.Sprintf("program counter out of bounds: %d", m.pc)}
		}
		op := code[m.pc]
		m.pc++
		m.cycle++

		var operand int
		if trace.HasOperand(op) {
			if m.pc >= len(code) {
				return -1, &Error{Cycle: m.cycle, Message: "truncated instruction operand"}
			}
			operand = code[m.pc]
		}
		if m.Debug {
			trace.Instruction(m.Out, m.cycle, op, operand)
		}

		switch op {
		case LEA:
			m.a = m.bp + operand*wordSize
			m.pc++
		case IMM:
			m.a = operand
			m.pc++
		case JMP:
			m.pc = operand
		case JSR:
			m.push(m.pc + 1)
			m.pc = operand
		case BZ:
			if m.a == 0 {
				m.pc = operand
			} else {
				m.pc++
			}
		case BNZ:
			if m.a != 0 {
				m.pc = operand
			} else {
				m.pc++
			}
		case ENT:
			m.push(m.bp)
			m.bp = m.sp
			m.sp -= operand * wordSize
			m.pc++
		case ADJ:
			m.sp += operand * wordSize
			m.pc++
		case LEV:
			m.sp = m.bp
			m.bp = m.pop()
			m.pc = m.pop()
		case LI:
			v, err := m.Mem.ReadWord(m.a)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			m.a = v
		case LC:
			b, err := m.Mem.ReadByteAt(m.a)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			m.a = int(b)
		case SI:
			addr := m.pop()
			if err := m.Mem.WriteWord(addr, m.a); err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
		case SC:
			addr := m.pop()
			if err := m.Mem.WriteByteAt(addr, byte(m.a)); err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			m.a = int(byte(m.a))
		case PSH:
			m.push(m.a)
		case OR:
			m.a = m.pop() | m.a
		case XOR:
			m.a = m.pop() ^ m.a
		case AND:
			m.a = m.pop() & m.a
		case EQ:
			m.a = boolInt(m.pop() == m.a)
		case NE:
			m.a = boolInt(m.pop() != m.a)
		case LT:
			m.a = boolInt(m.pop() < m.a)
		case GT:
			m.a = boolInt(m.pop() > m.a)
		case LE:
			m.a = boolInt(m.pop() <= m.a)
		case GE:
			m.a = boolInt(m.pop() >= m.a)
		case SHL:
			m.a = m.pop() << uint(m.a)
		case SHR:
			m.a = m.pop() >> uint(m.a)
		case ADD:
			m.a = m.pop() + m.a
		case SUB:
			m.a = m.pop() - m.a
		case MUL:
			m.a = m.pop() * m.a
		case DIV:
			m.a = m.pop() / m.a
		case MOD:
			m.a = m.pop() % m.a
		case OPEN:
			flags := m.peek(0)
			pathAddr := m.peek(1)
			fd, err := m.Host.Open(m.Mem.CString(pathAddr), flags)
			if err != nil {
				m.a = -1
			} else {
				m.a = fd
			}
		case READ:
			n := m.peek(0)
			bufAddr := m.peek(1)
			fd := m.peek(2)
			buf, err := m.Mem.Slice(bufAddr, n)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			read, err := m.Host.Read(fd, buf)
			if err != nil && err != io.EOF {
				m.a = -1
			} else {
				m.a = read
			}
		case CLOS:
			fd := m.peek(0)
			if err := m.Host.Close(fd); err != nil {
				m.a = -1
			} else {
				m.a = 0
			}
		case PRTF:
			// The number of variadic args was recorded by the ADJ that
			// follows this PRTF in the code stream; §4.D/§6 specify
			// reading it from pc+1 exactly as the reference does.
			argc := code[m.pc+1]
			t := m.sp/wordSize*wordSize + argc*wordSize
			n, err := m.printf(t)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			m.a = n
		case MALC:
			n := m.peek(0)
			addr, err := m.Mem.Grow(n)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			m.a = addr
		case FREE:
			// Go's garbage collector reclaims malloc'd blocks; nothing to do.
		case MSET:
			n := m.peek(0)
			c := m.peek(1)
			pAddr := m.peek(2)
			buf, err := m.Mem.Slice(pAddr, n)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			for i := range buf {
				buf[i] = byte(c)
			}
			m.a = pAddr
		case MCMP:
			n := m.peek(0)
			bAddr := m.peek(1)
			aAddr := m.peek(2)
			sa, err := m.Mem.Slice(aAddr, n)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			sb, err := m.Mem.Slice(bAddr, n)
			if err != nil {
				return -1, &Error{Cycle: m.cycle, Message: err.Error()}
			}
			m.a = compareBytes(sa, sb)
		case EXIT:
			status := m.peek(0)
			fmt.Fprintf(m.Out, "exit(%d) cycle = %d\n", status, m.cycle)
			return status, nil
		default:
			return -1, &Error{Cycle: m.cycle, Message: fmt.Sprintf("unknown instruction = %d! cycle = %d", op, m.cycle)}
		}
	}
}

// Accumulator returns the current value of the accumulator register, for
// tests and debugging.
func (m *Machine) Accumulator() int { return m.a }

// StackPointer returns the current stack pointer, for tests and debugging.
func (m *Machine) StackPointer() int { return m.sp }

// peek reads the nth word above the current stack pointer without
// popping it (n=0 is the top of stack), matching how the reference
// indexes PRTF's and the syscalls' arguments relative to sp.
func (m *Machine) peek(n int) int {
	v, _ := m.Mem.ReadWord(m.sp + n*wordSize)
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareBytes(a, b []byte) int {
	return strings.Compare(string(a), string(b))
}

var printfSpec = regexp.MustCompile(`(?:[^%]%|^%)(\d+|\*)?(?:\.(\d+|\*)?)?([sd])`)

// printf implements the PRTF host bridge: format string is the argument
// at stack offset t-1 (the last-pushed, i.e. first formal per §6's
// right-to-left convention), up to 6 more positional %d/%s arguments
// follow at t-2..t-7.
func (m *Machine) printf(t int) (int, error) {
	fmtAddr, err := m.Mem.ReadWord(t - wordSize)
	if err != nil {
		return 0, err
	}
	fstr := m.Mem.CString(fmtAddr)

	var args []int
	for i := 2; i <= 7; i++ {
		v, err := m.Mem.ReadWord(t - i*wordSize)
		if err != nil {
			break
		}
		args = append(args, v)
	}

	var out []interface{}
	used := 0
	for _, sub := range printfSpec.FindAllStringSubmatch(fstr, -1) {
		if sub[1] == "*" {
			out = append(out, m.arg(args, &used))
		}
		if sub[2] == "*" {
			out = append(out, m.arg(args, &used))
		}
		if sub[3] == "d" {
			out = append(out, m.arg(args, &used))
		} else {
			out = append(out, m.Mem.CString(m.arg(args, &used)))
		}
	}
	result := fmt.Sprintf(fstr, out...)
	fmt.Fprint(m.Out, result)
	return len(result), nil
}

func (m *Machine) arg(args []int, used *int) int {
	if *used >= len(args) {
		return 0
	}
	v := args[*used]
	*used++
	return v
}
