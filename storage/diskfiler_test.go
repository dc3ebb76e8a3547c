package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskFilerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	f, err := OpenDiskFiler(path)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("buddies"), 100)
	require.NoError(t, err)
	require.EqualValues(t, 107, f.Size())
	require.NoError(t, f.Close())

	f2, err := OpenDiskFiler(path)
	require.NoError(t, err)
	defer f2.Close()

	require.EqualValues(t, 107, f2.Size())
	buf := make([]byte, 7)
	_, err = f2.ReadAt(buf, 100)
	require.NoError(t, err)
	require.Equal(t, "buddies", string(buf))
}

func TestDiskFilerTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	f, err := OpenDiskFiler(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(64))
	require.EqualValues(t, 64, f.Size())
}
