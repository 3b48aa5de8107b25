package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kesselrun/minicc/internal/segment"
	"github.com/kesselrun/minicc/internal/symtab"
	"github.com/kesselrun/minicc/internal/token"
)

func newLexer(t *testing.T, src string) *Lexer {
	t.Helper()
	syms := symtab.New()
	mem := segment.NewMemory(4096, 0)
	return New([]byte(src), syms, mem)
}

func TestIdentifierInternedOnce(t *testing.T) {
	l := newLexer(t, "foo foo bar")
	require.NoError(t, l.Next())
	require.Equal(t, token.Id, l.Tok)
	first := l.Sym
	require.NoError(t, l.Next())
	require.Same(t, first, l.Sym, "second occurrence of foo must resolve to the same entry")
	require.NoError(t, l.Next())
	require.NotSame(t, first, l.Sym)
}

func TestDecimalOctalHexLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"0", 0},
		{"42", 42},
		{"0777", 511},
		{"0x2A", 42},
		{"0X2a", 42},
		{"0x7fffffffffffffff", 9223372036854775807},
	}
	for _, tt := range tests {
		l := newLexer(t, tt.src)
		require.NoError(t, l.Next())
		require.Equal(t, token.Num, l.Tok)
		require.Equal(t, tt.want, l.Val, "source %q", tt.src)
	}
}

func TestStringLiteralCopiedIntoDataSegmentWithNewlineEscape(t *testing.T) {
	l := newLexer(t, `"ab\ncd"`)
	require.NoError(t, l.Next())
	require.Equal(t, token.Quote, l.Tok)
	got := string(l.data.Bytes()[l.Val:])
	require.Equal(t, "ab\ncd", got)
}

func TestOtherEscapesPassThroughLiterally(t *testing.T) {
	// §4.A: only \n is translated; \t passes through as a literal 't'.
	l := newLexer(t, `"a\tb"`)
	require.NoError(t, l.Next())
	got := string(l.data.Bytes()[l.Val:])
	require.Equal(t, "atb", got)
}

func TestEmptyStringLiteralYieldsZeroLengthRegion(t *testing.T) {
	l := newLexer(t, `""`)
	startLen := l.data.Len()
	require.NoError(t, l.Next())
	require.Equal(t, token.Quote, l.Tok)
	require.Equal(t, startLen, l.data.Len())
}

func TestCharLiteralYieldsNum(t *testing.T) {
	l := newLexer(t, `'A'`)
	require.NoError(t, l.Next())
	require.Equal(t, token.Num, l.Tok)
	require.Equal(t, int('A'), l.Val)
}

func TestMultiCharOperatorsMatchGreedily(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"==", token.Eq}, {"!=", token.Ne}, {"<=", token.Le}, {">=", token.Ge},
		{"<<", token.Shl}, {">>", token.Shr}, {"&&", token.Lan}, {"||", token.Lor},
		{"++", token.Inc}, {"--", token.Dec},
	}
	for _, tt := range tests {
		l := newLexer(t, tt.src)
		require.NoError(t, l.Next())
		require.Equal(t, tt.want, l.Tok, "source %q", tt.src)
	}
}

func TestSingleCharFallbackWhenSecondOperandMissing(t *testing.T) {
	l := newLexer(t, "< > = ! + -")
	want := []int{token.Lt, token.Gt, token.Assign, int('!'), token.Add, token.Sub}
	for _, w := range want {
		require.NoError(t, l.Next())
		require.Equal(t, w, l.Tok)
	}
}

func TestLineCommentRunsToEndOfLine(t *testing.T) {
	l := newLexer(t, "1 // ignored ++ -- \n2")
	require.NoError(t, l.Next())
	require.Equal(t, 1, l.Val)
	require.NoError(t, l.Next())
	require.Equal(t, 2, l.Val)
}

func TestPreprocessorLineDiscardedToEOL(t *testing.T) {
	l := newLexer(t, "#include <stdio.h>\nint")
	require.NoError(t, l.Next())
	require.Equal(t, token.Int, l.Tok)
}

func TestNewlineAdvancesLineCounter(t *testing.T) {
	l := newLexer(t, "a\nb\nc")
	require.Equal(t, 1, l.Line)
	require.NoError(t, l.Next())
	require.Equal(t, 1, l.Line)
	require.NoError(t, l.Next())
	require.Equal(t, 2, l.Line)
	require.NoError(t, l.Next())
	require.Equal(t, 3, l.Line)
}

func TestEndOfInputYieldsZeroToken(t *testing.T) {
	l := newLexer(t, "")
	require.NoError(t, l.Next())
	require.Equal(t, 0, l.Tok)
}
