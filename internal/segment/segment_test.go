package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryReserveAndWordRoundTrip(t *testing.T) {
	m := NewMemory(64, 64)
	addr, err := m.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, m.WriteWord(addr, -12345))
	got, err := m.ReadWord(addr)
	require.NoError(t, err)
	require.Equal(t, -12345, got)
}

func TestMemoryByteRoundTrip(t *testing.T) {
	m := NewMemory(16, 0)
	addr, err := m.WriteByte('Q')
	require.NoError(t, err)
	b, err := m.ReadByteAt(addr)
	require.NoError(t, err)
	require.Equal(t, byte('Q'), b)
}

func TestMemoryAlignRoundsUpAndIsIdempotentWhenAligned(t *testing.T) {
	m := NewMemory(64, 0)
	_, err := m.WriteByte('a')
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	m.Align(8)
	require.Equal(t, 8, m.Len())
	m.Align(8)
	require.Equal(t, 8, m.Len())
}

func TestMemoryExhaustionReturnsError(t *testing.T) {
	m := NewMemory(4, 0)
	_, err := m.Reserve(8)
	require.Error(t, err)
	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
}

func TestMemoryOutOfBoundsAccessReturnsError(t *testing.T) {
	m := NewMemory(8, 8)
	_, err := m.ReadWord(1000)
	require.Error(t, err)
	var oob *ErrOutOfBounds
	require.ErrorAs(t, err, &oob)
}

func TestMemoryGrowAllocatesBeyondFixedArena(t *testing.T) {
	m := NewMemory(8, 8)
	addr, err := m.Grow(32)
	require.NoError(t, err)
	require.GreaterOrEqual(t, addr, 16)
	require.NoError(t, m.WriteWord(addr, 7))
	got, err := m.ReadWord(addr)
	require.NoError(t, err)
	require.Equal(t, 7, got)
}

func TestCStringStopsAtNUL(t *testing.T) {
	m := NewMemory(16, 0)
	addr, _ := m.WriteByte('h')
	m.WriteByte('i')
	m.WriteByte(0)
	m.WriteByte('!')
	require.Equal(t, "hi", m.CString(addr))
}

func TestCodeEmitPatchAndTruncate(t *testing.T) {
	c := NewCode(8)
	_, err := c.Emit(1)
	require.NoError(t, err)
	branchAddr, err := c.Emit(0)
	require.NoError(t, err)
	_, err = c.Emit(2)
	require.NoError(t, err)
	c.Patch(branchAddr, c.Len())
	require.Equal(t, c.Len(), c.At(branchAddr))

	c.Truncate(c.Last())
	require.Equal(t, 2, c.Len())
}

func TestCodeExhaustionReturnsError(t *testing.T) {
	c := NewCode(1)
	_, err := c.Emit(1)
	require.NoError(t, err)
	_, err = c.Emit(2)
	require.Error(t, err)
}
