package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kesselrun/minicc/internal/types"
)

func TestHashMatchesRollingPolynomialSpecification(t *testing.T) {
	// h <- 147*h + c starting from the first byte, then (h << 6) + length.
	want := func(name string) int {
		h := int(name[0])
		for i := 1; i < len(name); i++ {
			h = h*147 + int(name[i])
		}
		return (h << 6) + len(name)
	}
	for _, name := range []string{"a", "main", "printf", "x_1"} {
		require.Equal(t, want(name), Hash(name), "name %q", name)
	}
}

func TestLookupOrInsertIsIdempotent(t *testing.T) {
	tbl := New()
	first := tbl.LookupOrInsert("foo", 999)
	second := tbl.LookupOrInsert("foo", 999)
	require.Same(t, first, second)

	found, ok := tbl.Lookup("foo")
	require.True(t, ok)
	require.Same(t, first, found)

	_, ok = tbl.Lookup("missing")
	require.False(t, ok)
}

func TestShadowAndUnshadowRestoreOuterBinding(t *testing.T) {
	tbl := New()
	x := tbl.LookupOrInsert("x", 1)
	x.Class = ClassGlo
	x.Type = types.Type{Base: types.Int}
	x.Val = 100

	// A parameter named x shadows the global inside a function body.
	x.Shadow()
	x.Class = ClassLoc
	x.Type = types.Type{Base: types.Int}
	x.Val = 0

	require.Equal(t, ClassLoc, x.Class)

	tbl.Unshadow()

	require.Equal(t, ClassGlo, x.Class)
	require.Equal(t, 100, x.Val)
}

func TestUnshadowOnlyTouchesLocalEntries(t *testing.T) {
	tbl := New()
	glo := tbl.LookupOrInsert("g", 1)
	glo.Class = ClassGlo
	glo.Val = 7

	fn := tbl.LookupOrInsert("f", 1)
	fn.Class = ClassFun
	fn.Val = 42

	tbl.Unshadow()

	require.Equal(t, ClassGlo, glo.Class)
	require.Equal(t, 7, glo.Val)
	require.Equal(t, ClassFun, fn.Class)
	require.Equal(t, 42, fn.Val)
}

func TestReseedingKeywordsIsIdempotent(t *testing.T) {
	tbl := New()
	names := []string{"char", "else", "enum", "if", "int", "return", "sizeof", "while"}
	for _, n := range names {
		tbl.LookupOrInsert(n, 1)
	}
	before := len(tbl.All())
	for _, n := range names {
		tbl.LookupOrInsert(n, 1)
	}
	require.Equal(t, before, len(tbl.All()), "re-inserting known keywords must not grow the table")
}
