package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemFilerReadWrite(t *testing.T) {
	f := NewMemFiler()
	_, err := f.WriteAt([]byte("hello"), 10)
	require.NoError(t, err)
	require.EqualValues(t, 15, f.Size())

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
}

func TestMemFilerReadPastEOF(t *testing.T) {
	f := NewMemFiler()
	require.NoError(t, ignoreN(f.WriteAt([]byte("ab"), 0)))

	buf := make([]byte, 10)
	n, err := f.ReadAt(buf, 0)
	require.Error(t, err)
	require.Equal(t, 2, n)
}

func TestMemFilerTruncateShrinksPages(t *testing.T) {
	f := NewMemFiler()
	require.NoError(t, ignoreN(f.WriteAt([]byte{1}, 0)))
	require.NoError(t, ignoreN(f.WriteAt([]byte{2}, pgSize)))
	require.Len(t, f.m, 2)

	require.NoError(t, f.Truncate(1))
	require.Len(t, f.m, 1)
	require.EqualValues(t, 1, f.Size())
}

func TestMemFilerWriteZeroPageHolePunch(t *testing.T) {
	f := NewMemFiler()
	require.NoError(t, ignoreN(f.WriteAt([]byte{9}, 0)))
	require.Len(t, f.m, 1)

	require.NoError(t, ignoreN(f.WriteAt(make([]byte, pgSize), 0)))
	require.Len(t, f.m, 0)
}

func ignoreN(_ int, err error) error { return err }
