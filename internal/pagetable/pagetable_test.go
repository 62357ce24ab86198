package pagetable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PokkeFe/os-memsim/internal/pagetable"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := pagetable.New(100)
	assert.Error(t, err)
}

func TestNewComputesOffsetBits(t *testing.T) {
	pt, err := pagetable.New(1024)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, pt.GetPageSize())
	assert.EqualValues(t, 10, pt.GetOffsetSize())
}

func TestAddEntryUsesLowestFreeFrame(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)

	f0 := pt.AddEntry(1024, 0)
	f1 := pt.AddEntry(1024, 1)
	f2 := pt.AddEntry(1025, 0)
	assert.EqualValues(t, 0, f0)
	assert.EqualValues(t, 1, f1)
	assert.EqualValues(t, 2, f2)

	pt.RemoveEntry(1024, 0)
	// Frame 0 is free again; the next entry must reuse it rather than
	// growing forever, per the lowest-free-frame policy of spec §9.
	f3 := pt.AddEntry(1026, 0)
	assert.EqualValues(t, 0, f3)
}

func TestFramesAreUniquelyOwned(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)

	pt.AddEntry(1024, 0)
	pt.AddEntry(1024, 1)
	pt.AddEntry(1025, 0)

	seen := map[uint32]pagetable.Key{}
	for _, e := range pt.Entries() {
		if other, dup := seen[e.Frame]; dup {
			t.Fatalf("frame %d owned by both %+v and (pid=%d,page=%d)", e.Frame, other, e.PID, e.Page)
		}
		seen[e.Frame] = pagetable.Key{PID: e.PID, Page: e.Page}
	}
}

func TestGetPhysicalAddressRoundTrip(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)

	pt.AddEntry(1024, 0)
	frame := pt.AddEntry(1024, 1)

	// Virtual address 6 is page 1, offset 2 -- physical = frame*4 + 2.
	got := pt.GetPhysicalAddress(1024, 6)
	assert.EqualValues(t, int64(frame)*4+2, got)
}

func TestGetPhysicalAddressMissingPageReturnsNegativeOne(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)

	assert.EqualValues(t, -1, pt.GetPhysicalAddress(1024, 0))
}

func TestEntryExists(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)

	assert.False(t, pt.EntryExists(1024, 0))
	pt.AddEntry(1024, 0)
	assert.True(t, pt.EntryExists(1024, 0))
}

func TestGetAllPagesForPIDIsNumericallyOrdered(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)

	// Add out of order, and past one digit, to catch a naive
	// string-lexical sort (spec §9 flags this as a source bug to
	// avoid: "9" would otherwise sort before "10").
	pt.AddEntry(1024, 9)
	pt.AddEntry(1024, 2)
	pt.AddEntry(1024, 10)

	keys := pt.GetAllPagesForPID(1024)
	require.Len(t, keys, 3)
	assert.EqualValues(t, 2, keys[0].Page)
	assert.EqualValues(t, 9, keys[1].Page)
	assert.EqualValues(t, 10, keys[2].Page)
}

func TestRemoveEntryKeyIsNoopWhenMissing(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)
	pt.RemoveEntryKey(pagetable.Key{PID: 1024, Page: 0})
	assert.Empty(t, pt.Entries())
}

func TestPrintFormatsNumericColumns(t *testing.T) {
	pt, err := pagetable.New(4)
	require.NoError(t, err)
	pt.AddEntry(1024, 0)

	lines := pt.Print()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "1024")
}
