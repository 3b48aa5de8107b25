package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawEncodingMatchesBasePlusKPtr(t *testing.T) {
	require.Equal(t, 1, Type{Base: Int}.Raw())
	require.Equal(t, 1+PTR, Type{Base: Int, Pointer: 1}.Raw())
	require.Equal(t, 1+2*PTR, Type{Base: Int, Pointer: 2}.Raw())
	require.Equal(t, 0, Type{Base: Char}.Raw())
	require.Equal(t, PTR, Type{Base: Char, Pointer: 1}.Raw())
}

func TestFromRawRoundTrips(t *testing.T) {
	for _, tt := range []Type{
		{Base: Int},
		{Base: Char},
		{Base: Int, Pointer: 1},
		{Base: Char, Pointer: 1},
		{Base: Int, Pointer: 3},
	} {
		require.Equal(t, tt, FromRaw(tt.Raw()), "type %v", tt)
	}
}

func TestIsPointer(t *testing.T) {
	require.False(t, Type{Base: Int}.IsPointer())
	require.False(t, Type{Base: Char}.IsPointer())
	require.True(t, Type{Base: Int, Pointer: 1}.IsPointer())
	require.True(t, Type{Base: Char, Pointer: 1}.IsPointer())
}

func TestScalesBySizeExcludesPointerToChar(t *testing.T) {
	// §9's documented, bug-compatible quirk: raw > PTR is required, and
	// pointer-to-char's raw value equals PTR exactly, so it does not scale.
	require.False(t, Type{Base: Char, Pointer: 1}.ScalesBySize())
	require.True(t, Type{Base: Int, Pointer: 1}.ScalesBySize())
	require.True(t, Type{Base: Char, Pointer: 2}.ScalesBySize())
	require.False(t, Type{Base: Int}.ScalesBySize())
}

func TestElemAndAddPointerAreInverses(t *testing.T) {
	p := Type{Base: Int, Pointer: 2}
	require.Equal(t, Type{Base: Int, Pointer: 1}, p.Elem())
	require.Equal(t, p, p.Elem().AddPointer())
}

func TestSize(t *testing.T) {
	require.Equal(t, 1, Type{Base: Char}.Size())
	require.Equal(t, WordSize, Type{Base: Int}.Size())
	require.Equal(t, WordSize, Type{Base: Char, Pointer: 1}.Size())
}

func TestString(t *testing.T) {
	require.Equal(t, "int", Type{Base: Int}.String())
	require.Equal(t, "char", Type{Base: Char}.String())
	require.Equal(t, "int**", Type{Base: Int, Pointer: 2}.String())
}
