package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeqLessWraps(t *testing.T) {
	require.True(t, Seq(0xFFFFFFFF).Less(Seq(0)))
	require.False(t, Seq(0).Less(Seq(0xFFFFFFFF)))
	require.True(t, Seq(10).Less(Seq(20)))
	require.False(t, Seq(20).Less(Seq(10)))
	require.False(t, Seq(5).Less(Seq(5)))
}

func TestSeqLessEq(t *testing.T) {
	require.True(t, Seq(5).LessEq(Seq(5)))
	require.True(t, Seq(5).LessEq(Seq(6)))
	require.False(t, Seq(6).LessEq(Seq(5)))
}

func TestSeqAddWraps(t *testing.T) {
	require.Equal(t, Seq(0), Seq(0xFFFFFFFF).Add(1))
	require.Equal(t, Seq(9), Seq(5).Add(4))
}

func TestSeqSub(t *testing.T) {
	require.Equal(t, int32(5), Seq(10).Sub(Seq(15)))
	require.Equal(t, int32(-5), Seq(15).Sub(Seq(10)))
}

func TestInWindow(t *testing.T) {
	require.True(t, InWindow(Seq(100), Seq(100), 10))
	require.True(t, InWindow(Seq(105), Seq(100), 10))
	require.False(t, InWindow(Seq(110), Seq(100), 10))
	require.False(t, InWindow(Seq(99), Seq(100), 10))
	require.False(t, InWindow(Seq(5), Seq(100), 0))
	require.True(t, InWindow(Seq(100), Seq(100), 0))
}

func TestInWindowWraps(t *testing.T) {
	require.True(t, InWindow(Seq(0xFFFFFFFE), Seq(0xFFFFFFF0), 100))
	require.True(t, InWindow(Seq(5), Seq(0xFFFFFFF0), 100))
}
