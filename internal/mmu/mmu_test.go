package mmu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PokkeFe/os-memsim/internal/mmu"
	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

func tiles(t *testing.T, m *mmu.Mmu, pid uint32) {
	t.Helper()
	vars := m.Variables(pid)
	require.NotEmpty(t, vars)

	total := uint32(0)
	var addr uint32
	for i, v := range vars {
		assert.Equal(t, addr, v.VirtualAddress, "record %d starts a gap or overlap", i)
		addr += v.Size
		total += v.Size
	}
	assert.Equal(t, m.MaxSize(), total, "records do not tile [0, maxSize)")
}

func TestCreateProcessSeedsSingleFreeSpace(t *testing.T) {
	m := mmu.New(1024)
	pid := m.CreateProcess()
	assert.Equal(t, uint32(1024), pid)

	vars := m.Variables(pid)
	require.Len(t, vars, 1)
	assert.Equal(t, vaddr.FreeSpace, vars[0].Type)
	assert.EqualValues(t, 0, vars[0].VirtualAddress)
	assert.EqualValues(t, 1024, vars[0].Size)
}

func TestPidsAreNeverReused(t *testing.T) {
	m := mmu.New(64)
	pid1 := m.CreateProcess()
	pid2 := m.CreateProcess()
	assert.Equal(t, pid1+1, pid2)

	m.RemoveProcess(pid1)
	pid3 := m.CreateProcess()
	assert.Equal(t, pid2+1, pid3)
}

func TestGetFreeSpaceInPageFullFit(t *testing.T) {
	m := mmu.New(1024)
	pid := m.CreateProcess()

	addr, ok := m.GetFreeSpaceInPage(pid, 0, 4, 1024, 2)
	require.True(t, ok)
	assert.EqualValues(t, 0, addr)
}

func TestGetFreeSpaceAnywherePartialFitSkipsOverrun(t *testing.T) {
	// page_size=4: after placing a 3-byte char array at 0, one byte
	// remains in page 0 -- too little for a 4-byte int, so the
	// no-straddle rule pushes the int to page 1.
	m := mmu.New(64)
	pid := m.CreateProcess()

	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Char, 3, 0))
	require.NoError(t, m.UpdateFreeSpace(pid, 0, 3))

	addr, ok := m.GetFreeSpaceAnywhere(pid, 4, 4, 1)
	require.True(t, ok)
	assert.EqualValues(t, 4, addr)
}

func TestGetFreeSpaceInPageRejectsFitThatOverflowsTheFreeRecord(t *testing.T) {
	// page_size=1024: a[0,100), b[100,200), c[200,1024) fill page 0.
	// Freeing b leaves an isolated FreeSpace(100,100) surrounded by a
	// and c. The remaining space_in_page (924) is misleading -- only
	// 100 bytes are actually free here, so a 150-byte request must not
	// match this record even though it fits the page.
	m := mmu.New(1024)
	pid := m.CreateProcess()

	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Char, 100, 0))
	require.NoError(t, m.UpdateFreeSpace(pid, 0, 100))
	require.NoError(t, m.AddVariableToProcess(pid, "b", vaddr.Char, 100, 100))
	require.NoError(t, m.UpdateFreeSpace(pid, 100, 100))
	require.NoError(t, m.AddVariableToProcess(pid, "c", vaddr.Char, 824, 200))
	require.NoError(t, m.UpdateFreeSpace(pid, 200, 824))

	require.True(t, m.RemoveVariable(pid, "b"))

	_, ok := m.GetFreeSpaceInPage(pid, 0, 1, 1024, 150)
	assert.False(t, ok, "150 bytes must not fit an isolated 100-byte free record")

	addr, ok := m.GetFreeSpaceInPage(pid, 0, 1, 1024, 100)
	require.True(t, ok)
	assert.EqualValues(t, 100, addr)
}

func TestUpdateFreeSpaceSplitsLeftAndRight(t *testing.T) {
	m := mmu.New(300)
	pid := m.CreateProcess()

	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Char, 100, 100))
	require.NoError(t, m.UpdateFreeSpace(pid, 100, 100))

	vars := m.Variables(pid)
	require.Len(t, vars, 3)
	assert.Equal(t, vaddr.FreeSpace, vars[0].Type)
	assert.EqualValues(t, 0, vars[0].VirtualAddress)
	assert.EqualValues(t, 100, vars[0].Size)

	assert.Equal(t, "a", vars[1].Name)
	assert.EqualValues(t, 100, vars[1].VirtualAddress)

	assert.Equal(t, vaddr.FreeSpace, vars[2].Type)
	assert.EqualValues(t, 200, vars[2].VirtualAddress)
	assert.EqualValues(t, 100, vars[2].Size)

	tiles(t, m, pid)
}

func TestRemoveVariableCoalescesMiddleOnly(t *testing.T) {
	m := mmu.New(300)
	pid := m.CreateProcess()

	for i, name := range []string{"a", "b", "c"} {
		addr := uint32(i * 100)
		require.NoError(t, m.AddVariableToProcess(pid, name, vaddr.Char, 100, addr))
		require.NoError(t, m.UpdateFreeSpace(pid, addr, 100))
	}

	ok := m.RemoveVariable(pid, "b")
	require.True(t, ok)

	vars := m.Variables(pid)
	// a, freespace(b's old range), c -- not merged with any trailing
	// free tail because c sits between them.
	require.Len(t, vars, 3)
	assert.Equal(t, "a", vars[0].Name)
	assert.Equal(t, vaddr.FreeSpace, vars[1].Type)
	assert.EqualValues(t, 100, vars[1].VirtualAddress)
	assert.EqualValues(t, 100, vars[1].Size)
	assert.Equal(t, "c", vars[2].Name)

	tiles(t, m, pid)
}

func TestFreeingEveryVariableRestoresSingleFreeSpace(t *testing.T) {
	m := mmu.New(300)
	pid := m.CreateProcess()

	for i, name := range []string{"a", "b", "c"} {
		addr := uint32(i * 100)
		require.NoError(t, m.AddVariableToProcess(pid, name, vaddr.Char, 100, addr))
		require.NoError(t, m.UpdateFreeSpace(pid, addr, 100))
	}

	require.True(t, m.RemoveVariable(pid, "a"))
	require.True(t, m.RemoveVariable(pid, "b"))
	require.True(t, m.RemoveVariable(pid, "c"))

	vars := m.Variables(pid)
	require.Len(t, vars, 1)
	assert.Equal(t, vaddr.FreeSpace, vars[0].Type)
	assert.EqualValues(t, 0, vars[0].VirtualAddress)
	assert.EqualValues(t, 300, vars[0].Size)
}

func TestRemoveVariableNotFound(t *testing.T) {
	m := mmu.New(64)
	pid := m.CreateProcess()
	assert.False(t, m.RemoveVariable(pid, "nope"))
	assert.False(t, m.RemoveVariable(pid+1, "nope"))
}

func TestGetExclusivePagesOfVariablesOnSeparatePages(t *testing.T) {
	m := mmu.New(4096)
	pid := m.CreateProcess()

	// a spans pages 0-1 (2048 bytes starting at 0).
	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Char, 2048, 0))
	require.NoError(t, m.UpdateFreeSpace(pid, 0, 2048))

	// b lands entirely on page 2.
	require.NoError(t, m.AddVariableToProcess(pid, "b", vaddr.Char, 100, 2048))
	require.NoError(t, m.UpdateFreeSpace(pid, 2048, 100))

	pages := m.GetExclusivePages(pid, "a", 1024)
	assert.Equal(t, []uint32{0, 1}, pages)

	pages = m.GetExclusivePages(pid, "b", 1024)
	assert.Equal(t, []uint32{2}, pages)
}

func TestGetExclusivePagesRemovesSharedPageFromResult(t *testing.T) {
	m := mmu.New(2048)
	pid := m.CreateProcess()

	// a occupies [0, 1024) exactly (page 0).
	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Char, 1024, 0))
	require.NoError(t, m.UpdateFreeSpace(pid, 0, 1024))

	// b starts at the first byte of page 1 and stays within page 1.
	require.NoError(t, m.AddVariableToProcess(pid, "b", vaddr.Char, 100, 1024))
	require.NoError(t, m.UpdateFreeSpace(pid, 1024, 100))

	// c also lives on page 1, adjacent to b.
	require.NoError(t, m.AddVariableToProcess(pid, "c", vaddr.Char, 100, 1124))
	require.NoError(t, m.UpdateFreeSpace(pid, 1124, 100))

	pages := m.GetExclusivePages(pid, "b", 1024)
	assert.Empty(t, pages, "page 1 is shared with c and must not be exclusive to b")
}

func TestRemoveProcessDropsAllVariables(t *testing.T) {
	m := mmu.New(64)
	pid := m.CreateProcess()
	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Char, 8, 0))

	m.RemoveProcess(pid)
	assert.False(t, m.ProcessExists(pid))
	assert.Nil(t, m.Variables(pid))
}

func TestPrintOmitsFreeSpace(t *testing.T) {
	m := mmu.New(64)
	pid := m.CreateProcess()
	require.NoError(t, m.AddVariableToProcess(pid, "a", vaddr.Int, 4, 0))
	require.NoError(t, m.UpdateFreeSpace(pid, 0, 4))

	lines := m.Print()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "a")
	assert.Contains(t, lines[0], "0x00000000")
}
