package buddy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewRoundsUpToPowerOfTwo(t *testing.T) {
	a, err := New(100)
	require.NoError(t, err)
	defer a.Close()

	require.EqualValues(t, 7, a.k)
	blocks := a.InspectBlocks()
	require.Len(t, blocks, 1)
	require.Equal(t, 128, blocks[0].Size)
	require.False(t, blocks[0].Occupied)
}

func TestAllocateThreeDisjointBlocks(t *testing.T) {
	a, err := New(100)
	require.NoError(t, err)
	defer a.Close()

	p1, err := a.Allocate(10)
	require.NoError(t, err)
	p2, err := a.Allocate(10)
	require.NoError(t, err)
	p3, err := a.Allocate(10)
	require.NoError(t, err)

	require.NotSame(t, &p1[0], &p2[0])
	require.NotSame(t, &p2[0], &p3[0])

	total := 0
	for _, b := range a.InspectBlocks() {
		total += b.Size
	}
	require.Equal(t, 128, total)
}

func TestDeallocateSingleRequestFullyCoalesces(t *testing.T) {
	a, err := New(256)
	require.NoError(t, err)
	defer a.Close()

	p, err := a.Allocate(20)
	require.NoError(t, err)
	require.NoError(t, a.Deallocate(p))

	blocks := a.InspectBlocks()
	require.Len(t, blocks, 1)
	require.Equal(t, 256, blocks[0].Size)
	require.False(t, blocks[0].Occupied)
}

func TestBestFitPicksClosestBlock(t *testing.T) {
	a, err := New(256, WithFitPolicy(BestFit))
	require.NoError(t, err)
	defer a.Close()

	p30, err := a.Allocate(30)
	require.NoError(t, err)
	_, err = a.Allocate(10)
	require.NoError(t, err)
	_, err = a.Allocate(60)
	require.NoError(t, err)

	require.NoError(t, a.Deallocate(p30))

	p20, err := a.Allocate(20)
	require.NoError(t, err)
	require.Equal(t, 32-blockHeaderSize, cap(p20))
}

func TestAllocateBadRequestSize(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Allocate(1000)
	require.Error(t, err)
	var target *ErrBadRequestSize
	require.ErrorAs(t, err, &target)
}

func TestAllocateOutOfMemory(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Allocate(40)
	require.NoError(t, err)
	_, err = a.Allocate(16)
	require.Error(t, err)
	var target *ErrOutOfMemory
	require.ErrorAs(t, err, &target)
}

func TestDeallocateForeignPointer(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)
	defer a.Close()

	foreign := make([]byte, 8)
	err = a.Deallocate(foreign)
	require.Error(t, err)
	var target *ErrForeignPointer
	require.ErrorAs(t, err, &target)
}

func TestOperationsAfterCloseFail(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Allocate(8)
	require.Error(t, err)
}

func TestConcurrentAllocateDeallocateStress(t *testing.T) {
	a, err := New(4096)
	require.NoError(t, err)
	defer a.Close()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				p, err := a.Allocate(24)
				if err != nil {
					continue
				}
				if err := a.Deallocate(p); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	blocks := a.InspectBlocks()
	total := 0
	for _, b := range blocks {
		total += b.Size
	}
	require.Equal(t, 4096, total)
}

func TestGenerationBumpsOnAllocateAndDeallocate(t *testing.T) {
	a, err := New(1024)
	require.NoError(t, err)
	defer a.Close()

	require.EqualValues(t, 0, a.Generation())

	p, err := a.Allocate(32)
	require.NoError(t, err)
	g1 := a.Generation()
	require.Greater(t, g1, uint32(0))

	require.NoError(t, a.Deallocate(p))
	g2 := a.Generation()
	require.Greater(t, g2, g1)
}
