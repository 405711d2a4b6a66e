package reassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoPacket_CompleteAfterAllFragments(t *testing.T) {
	v := NewVideoPacket(1, 1000, 3, true, 0)
	require.False(t, v.Complete())

	require.NoError(t, v.AddFragment(0, []byte("AAA")))
	require.NoError(t, v.AddFragment(2, []byte("CCC")))
	require.False(t, v.Complete())
	require.NoError(t, v.AddFragment(1, []byte("BBB")))
	require.True(t, v.Complete())

	assert.Equal(t, []byte("AAABBBCCC"), v.Assemble())
}

func TestVideoPacket_DuplicateFragmentIsNoop(t *testing.T) {
	v := NewVideoPacket(1, 1000, 2, false, 0)
	require.NoError(t, v.AddFragment(0, []byte("A")))
	require.NoError(t, v.AddFragment(0, []byte("A-dup")))
	assert.Equal(t, byte(1), v.ReceivedPartCount)
}

func TestVideoPacket_OutOfRangeFragmentErrors(t *testing.T) {
	v := NewVideoPacket(1, 1000, 2, false, 0)
	err := v.AddFragment(5, []byte("x"))
	assert.ErrorIs(t, err, ErrVideoReassembly)
}

func TestVideoPacket_MissingFragmentIndex(t *testing.T) {
	v := NewVideoPacket(1, 1000, 3, false, 0)
	require.NoError(t, v.AddFragment(0, []byte("A")))
	require.NoError(t, v.AddFragment(2, []byte("C")))

	idx, ok := v.MissingFragmentIndex()
	require.True(t, ok)
	assert.Equal(t, byte(1), idx)
}

func TestVideoPacket_MissingFragmentIndex_NoneOrMultiple(t *testing.T) {
	complete := NewVideoPacket(1, 1000, 1, false, 0)
	require.NoError(t, complete.AddFragment(0, []byte("A")))
	_, ok := complete.MissingFragmentIndex()
	assert.False(t, ok)

	multiMissing := NewVideoPacket(1, 1000, 3, false, 0)
	require.NoError(t, multiMissing.AddFragment(0, []byte("A")))
	_, ok = multiMissing.MissingFragmentIndex()
	assert.False(t, ok)
}
