package btree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func openTree(t *testing.T, opts ...Option[int64, int64]) *Tree[int64, int64] {
	t.Helper()
	base := filepath.Join(t.TempDir(), "idx")
	full := append([]Option[int64, int64]{
		WithComparator[int64, int64](intCmp),
		WithKeyCodec[int64, int64](Int64Codec),
		WithValueCodec[int64, int64](Int64Codec),
	}, opts...)
	tr, err := Open[int64, int64](base, full...)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func seedTree(t *testing.T, tr *Tree[int64, int64], n int) {
	t.Helper()
	for i := int64(1); i <= int64(n); i++ {
		ok, err := tr.Insert(i, i*10)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func inOrderKeys(t *testing.T, tr *Tree[int64, int64]) []int64 {
	t.Helper()
	it, err := tr.Begin()
	require.NoError(t, err)
	var keys []int64
	for {
		k, err := it.Key()
		if err != nil {
			break
		}
		keys = append(keys, k)
		if err := it.Next(); err != nil {
			break
		}
	}
	return keys
}

func TestSerializeAndDeserialize(t *testing.T) {
	base := filepath.Join(t.TempDir(), "idx")
	tr, err := Open[int64, int64](base,
		WithComparator[int64, int64](intCmp),
		WithKeyCodec[int64, int64](Int64Codec),
		WithValueCodec[int64, int64](Int64Codec),
		WithMinDegree[int64, int64](3),
	)
	require.NoError(t, err)
	seedTree(t, tr, 20)
	require.NoError(t, tr.Close())

	reopened, err := Open[int64, int64](base,
		WithComparator[int64, int64](intCmp),
		WithKeyCodec[int64, int64](Int64Codec),
		WithValueCodec[int64, int64](Int64Codec),
		WithMinDegree[int64, int64](3),
	)
	require.NoError(t, err)
	defer reopened.Close()

	for i := int64(1); i <= 20; i++ {
		v, ok, err := reopened.At(i)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i*10, v)
	}
	require.Equal(t, int64(1), firstOrZero(t, reopened))
}

func firstOrZero(t *testing.T, tr *Tree[int64, int64]) int64 {
	t.Helper()
	it, err := tr.Begin()
	require.NoError(t, err)
	k, err := it.Key()
	require.NoError(t, err)
	return k
}

func TestRemoveFromLeafWithoutViolation(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](5))
	seedTree(t, tr, 30)
	ok, err := tr.Erase(28)
	require.NoError(t, err)
	require.True(t, ok)
	_, found, err := tr.At(28)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 29, len(inOrderKeys(t, tr)))
}

func TestRemoveFromLeafWithBorrowLeft(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 12)
	// Erasing 7 and 8 leaves the leaf [4 5 6 9] left of the leaf [11 12];
	// erasing 11 then borrows from that left sibling.
	for _, k := range []int64{7, 8, 11} {
		ok, err := tr.Erase(k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	keys := inOrderKeys(t, tr)
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 9, 10, 12}, keys)
}

func TestRemoveFromLeafWithMerge(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 10)
	for _, k := range []int64{1, 2, 3, 4} {
		ok, err := tr.Erase(k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	keys := inOrderKeys(t, tr)
	require.Equal(t, []int64{5, 6, 7, 8, 9, 10}, keys)
}

func TestRemoveFromInternalPredecessor(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 15)
	// Erasing 8 merges [4 5], 6 and [7 8] into the left child of root key
	// 9, which then has enough keys for 9 to be replaced by its predecessor.
	ok, err := tr.Erase(8)
	require.NoError(t, err)
	require.True(t, ok)

	path, slot, found, err := tr.FindPath(9)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, path)
	_ = slot

	ok, err = tr.Erase(9)
	require.NoError(t, err)
	require.True(t, ok)
	_, found, err = tr.At(9)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 13, len(inOrderKeys(t, tr)))
}

func TestRemoveFromInternalSuccessor(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 15)
	ok, err := tr.Erase(12)
	require.NoError(t, err)
	require.True(t, ok)
	keys := inOrderKeys(t, tr)
	require.Len(t, keys, 14)
	require.NotContains(t, keys, int64(12))
}

func TestRemoveInternalAndMergeChildren(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 9)
	for _, k := range []int64{1, 2, 3, 4, 5} {
		ok, err := tr.Erase(k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	keys := inOrderKeys(t, tr)
	require.Equal(t, []int64{6, 7, 8, 9}, keys)
}

func TestEraseRootBecomeEmpty(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](4))
	ok, err := tr.Insert(1, 10)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = tr.Erase(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, inOrderKeys(t, tr))
	ok, err = tr.Erase(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBeginEndTraversal(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 8)
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, inOrderKeys(t, tr))

	end := tr.End()
	it, err := tr.Begin()
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.False(t, it.Equal(end))
		require.NoError(t, it.Next())
	}
	require.True(t, it.Equal(end))
}

func TestDecrementFromEnd(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 8)
	it := tr.End()
	require.NoError(t, it.Prev())
	k, err := it.Key()
	require.NoError(t, err)
	require.Equal(t, int64(8), k)
}

func TestIteratorComparison(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 5)
	a, err := tr.Begin()
	require.NoError(t, err)
	b, err := tr.Begin()
	require.NoError(t, err)
	require.True(t, a.Equal(b))
	require.NoError(t, b.Next())
	require.False(t, a.Equal(b))
}

func TestWithT5(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](5))
	seedTree(t, tr, 100)
	for i := int64(1); i <= 100; i += 2 {
		ok, err := tr.Erase(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	keys := inOrderKeys(t, tr)
	require.Len(t, keys, 50)
	for _, k := range keys {
		require.Equal(t, int64(0), k%2)
	}
}

func TestWithT7(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](7))
	seedTree(t, tr, 200)
	keys := inOrderKeys(t, tr)
	require.Len(t, keys, 200)
	for i, k := range keys {
		require.Equal(t, int64(i+1), k)
	}
}

func TestFindRange(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 8)
	start, end, err := tr.FindRange(3, 6, true, false)
	require.NoError(t, err)
	var got []int64
	for it := start; !it.Equal(end); {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, k)
		require.NoError(t, it.Next())
	}
	require.Equal(t, []int64{3, 4, 5}, got)
}

func TestFindRangeExclusiveLower(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 8)
	start, end, err := tr.FindRange(3, 8, false, true)
	require.NoError(t, err)
	var got []int64
	for it := start; !it.Equal(end); {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, k)
		require.NoError(t, it.Next())
	}
	require.Equal(t, []int64{4, 5, 6, 7, 8}, got)
}

func TestAt(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	seedTree(t, tr, 10)
	v, ok, err := tr.At(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(70), v)

	_, ok, err = tr.At(999)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertExistingKeyIsNoop(t *testing.T) {
	tr := openTree(t, WithMinDegree[int64, int64](3))
	ok, err := tr.Insert(1, 100)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = tr.Insert(1, 200)
	require.NoError(t, err)
	require.False(t, ok)
	v, found, err := tr.At(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(100), v)
}

func TestACIDTransactionsPersistAcrossReopen(t *testing.T) {
	base := filepath.Join(t.TempDir(), "idx")
	tr, err := Open[int64, int64](base,
		WithComparator[int64, int64](intCmp),
		WithKeyCodec[int64, int64](Int64Codec),
		WithValueCodec[int64, int64](Int64Codec),
		WithACID[int64, int64](ACIDTransactions),
	)
	require.NoError(t, err)
	seedTree(t, tr, 5)
	require.NoError(t, tr.Close())

	info, err := os.Stat(base + ".tree")
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	reopened, err := Open[int64, int64](base,
		WithComparator[int64, int64](intCmp),
		WithKeyCodec[int64, int64](Int64Codec),
		WithValueCodec[int64, int64](Int64Codec),
		WithACID[int64, int64](ACIDTransactions),
	)
	require.NoError(t, err)
	defer reopened.Close()
	v, found, err := reopened.At(3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(30), v)
}

func TestStringKeysAndOutOfLineValues(t *testing.T) {
	base := filepath.Join(t.TempDir(), "idx")
	tr, err := Open[string, string](base,
		WithComparator[string, string](func(a, b string) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}),
		WithKeyCodec[string, string](StringCodec(16)),
		WithValueCodec[string, string](StringCodec(128)),
	)
	require.NoError(t, err)
	defer tr.Close()

	long := "this value is definitely wider than the inline threshold of sixty four bytes"
	ok, err := tr.Insert("alpha", long)
	require.NoError(t, err)
	require.True(t, ok)

	v, found, err := tr.At("alpha")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, long, v)

	ok, err = tr.Erase("alpha")
	require.NoError(t, err)
	require.True(t, ok)
	_, found, err = tr.At("alpha")
	require.NoError(t, err)
	require.False(t, found)
}
