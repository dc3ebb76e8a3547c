package btree_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/evakaiing/FA-sub001/btree"
)

func Example() {
	dir, err := os.MkdirTemp("", "btree-example")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(dir)

	tr, err := btree.Open[int64, string](filepath.Join(dir, "index"),
		btree.WithComparator[int64, string](func(a, b int64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}),
		btree.WithKeyCodec[int64, string](btree.Int64Codec),
		btree.WithValueCodec[int64, string](btree.StringCodec(32)),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer tr.Close()

	tr.Insert(1, "one")
	tr.Insert(2, "two")
	tr.Insert(3, "three")

	v, ok, _ := tr.At(2)
	fmt.Println(v, ok)

	it, _ := tr.Begin()
	end := tr.End()
	for !it.Equal(end) {
		k, _ := it.Key()
		v, _ := it.Value()
		fmt.Println(k, v)
		it.Next()
	}

	// Output:
	// two true
	// 1 one
	// 2 two
	// 3 three
}
