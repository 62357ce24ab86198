// Package mmu implements the per-process variable table: an ordered
// list of named allocations interleaved with FreeSpace sentinel
// records that together tile a process's virtual address space. It
// owns the first-fit placement search and the split/coalesce
// maintenance of the embedded free list.
package mmu

import (
	"fmt"
	"sort"

	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

const freeSpaceName = "<FREE_SPACE>"

const firstPID = 1024

// Variable is a named allocation or a FreeSpace sentinel occupying a
// contiguous byte range of a process's virtual address space.
type Variable struct {
	Name           string
	Type           vaddr.DataType
	VirtualAddress uint32
	Size           uint32
}

// Process is a single address space: an ordered, insertion-order
// sequence of Variable records. Order is semantically meaningful — it
// drives placement search tie-breaks and free-list maintenance.
type Process struct {
	PID       uint32
	Variables []Variable
}

// Mmu owns every live process's variable table.
type Mmu struct {
	maxSize   uint32
	nextPID   uint32
	processes map[uint32]*Process
	order     []uint32 // pids in creation order, for print() and processes listing
}

// New creates an empty Mmu whose processes each get an address space
// of maxSize bytes.
func New(maxSize uint32) *Mmu {
	return &Mmu{
		maxSize:   maxSize,
		nextPID:   firstPID,
		processes: make(map[uint32]*Process),
	}
}

// MaxSize returns the configured per-process address space size.
func (m *Mmu) MaxSize() uint32 { return m.maxSize }

// CreateProcess allocates a new pid and seeds its variable table with
// a single FreeSpace record spanning [0, maxSize).
func (m *Mmu) CreateProcess() uint32 {
	pid := m.nextPID
	m.nextPID++

	proc := &Process{
		PID: pid,
		Variables: []Variable{
			{Name: freeSpaceName, Type: vaddr.FreeSpace, VirtualAddress: 0, Size: m.maxSize},
		},
	}
	m.processes[pid] = proc
	m.order = append(m.order, pid)
	return pid
}

// ProcessExists reports whether pid names a live process.
func (m *Mmu) ProcessExists(pid uint32) bool {
	_, ok := m.processes[pid]
	return ok
}

// PIDs returns every live pid in creation order.
func (m *Mmu) PIDs() []uint32 {
	out := make([]uint32, 0, len(m.order))
	for _, pid := range m.order {
		if _, ok := m.processes[pid]; ok {
			out = append(out, pid)
		}
	}
	return out
}

// VariableExists reports whether a non-FreeSpace variable named name
// exists for pid.
func (m *Mmu) VariableExists(pid uint32, name string) bool {
	_, ok := m.GetVariable(pid, name)
	return ok
}

// GetVariable returns the named non-FreeSpace variable for pid, if
// present.
func (m *Mmu) GetVariable(pid uint32, name string) (Variable, bool) {
	proc, ok := m.processes[pid]
	if !ok {
		return Variable{}, false
	}
	for _, v := range proc.Variables {
		if v.Name == name && v.Type != vaddr.FreeSpace {
			return v, true
		}
	}
	return Variable{}, false
}

// Variables returns the full variable sequence for pid, in insertion
// order, including FreeSpace records.
func (m *Mmu) Variables(pid uint32) []Variable {
	proc, ok := m.processes[pid]
	if !ok {
		return nil
	}
	out := make([]Variable, len(proc.Variables))
	copy(out, proc.Variables)
	return out
}

// AddVariableToProcess appends a new record to pid's variable
// sequence. It is used both to install user variables and, by
// UpdateFreeSpace, to materialize the right-hand remainder when a
// free region splits. Callers are responsible for maintaining the
// tiling invariant.
func (m *Mmu) AddVariableToProcess(pid uint32, name string, t vaddr.DataType, sizeBytes, address uint32) error {
	proc, ok := m.processes[pid]
	if !ok {
		return fmt.Errorf("mmu: process %d not found", pid)
	}
	proc.Variables = append(proc.Variables, Variable{
		Name:           name,
		Type:           t,
		VirtualAddress: address,
		Size:           sizeBytes,
	})
	return nil
}

// GetFreeSpaceInPage returns a virtual address at which
// elementSize*numElements bytes can be placed entirely within pages
// already belonging to pid, preferring a fit inside the named page.
// See spec §4.1 for the two-pass (full-fit, then partial-fit)
// matching rules.
func (m *Mmu) GetFreeSpaceInPage(pid uint32, page, elementSize, pageSize, numElements uint32) (uint32, bool) {
	proc, ok := m.processes[pid]
	if !ok {
		return 0, false
	}
	offsetBits := vaddr.OffsetBits(pageSize)

	var candidates []int
	for i, v := range proc.Variables {
		if v.Type == vaddr.FreeSpace && vaddr.PageOf(v.VirtualAddress, offsetBits) == page {
			candidates = append(candidates, i)
		}
	}
	return findFit(proc.Variables, candidates, elementSize, pageSize, numElements)
}

// GetFreeSpaceAnywhere applies the same matching rules as
// GetFreeSpaceInPage but considers every FreeSpace record in the
// process regardless of page residency.
func (m *Mmu) GetFreeSpaceAnywhere(pid uint32, elementSize, pageSize, numElements uint32) (uint32, bool) {
	proc, ok := m.processes[pid]
	if !ok {
		return 0, false
	}
	var candidates []int
	for i, v := range proc.Variables {
		if v.Type == vaddr.FreeSpace {
			candidates = append(candidates, i)
		}
	}
	return findFit(proc.Variables, candidates, elementSize, pageSize, numElements)
}

// findFit runs the two-pass full-fit/partial-fit search of spec §4.1
// over the given candidate indices, in the order they were given.
func findFit(vars []Variable, candidates []int, elementSize, pageSize, numElements uint32) (uint32, bool) {
	arrayBytes := elementSize * numElements

	// Full-fit pass: does the whole array fit both in the candidate's
	// page and within the candidate's own free bytes?
	for _, i := range candidates {
		f := vars[i]
		spaceInPage := pageSize - (f.VirtualAddress % pageSize)
		if arrayBytes <= spaceInPage && arrayBytes <= f.Size {
			return f.VirtualAddress, true
		}
	}

	// Partial-fit pass: does at least the first element fit, with the
	// array packing across the page break (or after skipping the
	// unusable tail bytes)? Every branch must also confirm the whole
	// array fits in F's own free bytes past whatever prefix it skips —
	// space_in_page only bounds the page, not the free record itself.
	for _, i := range candidates {
		f := vars[i]
		spaceInPage := pageSize - (f.VirtualAddress % pageSize)
		if elementSize <= spaceInPage && elementSize <= f.Size {
			byteOverrun := spaceInPage % elementSize
			if byteOverrun == 0 {
				if arrayBytes <= f.Size {
					return f.VirtualAddress, true
				}
			} else if f.Size >= byteOverrun && arrayBytes <= f.Size-byteOverrun {
				return f.VirtualAddress + byteOverrun, true
			}
		} else if f.Size >= spaceInPage && arrayBytes <= f.Size-spaceInPage {
			// The element can't even start in this page's remainder;
			// skip forward to the next page boundary inside F.
			return f.VirtualAddress + spaceInPage, true
		}
	}

	return 0, false
}

// HasRoomAt reports whether some FreeSpace record for pid fully
// contains [virtualAddress, virtualAddress+sizeBytes), without
// mutating anything. Allocate uses it to validate a placement-search
// result before touching the page table or the variable list, so a
// bad candidate address is rejected cleanly instead of leaving a
// half-installed variable behind.
func (m *Mmu) HasRoomAt(pid uint32, virtualAddress, sizeBytes uint32) bool {
	proc, ok := m.processes[pid]
	if !ok {
		return false
	}
	for _, v := range proc.Variables {
		if v.Type == vaddr.FreeSpace && v.VirtualAddress <= virtualAddress && v.VirtualAddress+v.Size >= virtualAddress+sizeBytes {
			return true
		}
	}
	return false
}

// UpdateFreeSpace shrinks (and, if necessary, splits) the FreeSpace
// record containing [virtualAddress, virtualAddress+sizeBytes) to
// reflect that range now being occupied. A record that the range uses
// up entirely is removed.
func (m *Mmu) UpdateFreeSpace(pid uint32, virtualAddress, sizeBytes uint32) error {
	proc, ok := m.processes[pid]
	if !ok {
		return fmt.Errorf("mmu: process %d not found", pid)
	}

	for i := range proc.Variables {
		v := &proc.Variables[i]
		if v.Type != vaddr.FreeSpace {
			continue
		}
		if v.VirtualAddress <= virtualAddress && v.VirtualAddress+v.Size >= virtualAddress+sizeBytes {
			left := virtualAddress - v.VirtualAddress
			right := v.Size - (left + sizeBytes)
			if left > 0 {
				v.Size = left
				if right > 0 {
					// v may be invalidated by the append below; it has
					// already been fully updated at this point.
					_ = m.AddVariableToProcess(pid, freeSpaceName, vaddr.FreeSpace, right, virtualAddress+sizeBytes)
				}
			} else if right == 0 {
				// Nothing of the record remains; drop it rather than
				// keep a zero-size free record in the list.
				removeIndices(proc, i)
			} else {
				v.VirtualAddress = virtualAddress + sizeBytes
				v.Size = right
			}
			return nil
		}
	}
	return fmt.Errorf("mmu: no free space record contains [%d, %d) for pid %d", virtualAddress, virtualAddress+sizeBytes, pid)
}

// RemoveVariable deletes the named variable, coalescing it with any
// adjacent FreeSpace records. Returns false if pid or name is not
// found.
func (m *Mmu) RemoveVariable(pid uint32, name string) bool {
	proc, ok := m.processes[pid]
	if !ok {
		return false
	}

	targetIdx := -1
	for i, v := range proc.Variables {
		if v.Name == name {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return false
	}
	target := proc.Variables[targetIdx]

	beforeIdx, afterIdx := -1, -1
	for i, v := range proc.Variables {
		if v.Type != vaddr.FreeSpace {
			continue
		}
		if v.VirtualAddress+v.Size == target.VirtualAddress {
			beforeIdx = i
		}
		if v.VirtualAddress == target.VirtualAddress+target.Size {
			afterIdx = i
		}
	}

	switch {
	case beforeIdx != -1 && afterIdx != -1:
		proc.Variables[beforeIdx].Size += target.Size + proc.Variables[afterIdx].Size
		removeIndices(proc, targetIdx, afterIdx)
	case beforeIdx != -1:
		proc.Variables[beforeIdx].Size += target.Size
		removeIndices(proc, targetIdx)
	case afterIdx != -1:
		proc.Variables[afterIdx].VirtualAddress = target.VirtualAddress
		proc.Variables[afterIdx].Size += target.Size
		removeIndices(proc, targetIdx)
	default:
		proc.Variables[targetIdx] = Variable{
			Name:           freeSpaceName,
			Type:           vaddr.FreeSpace,
			VirtualAddress: target.VirtualAddress,
			Size:           target.Size,
		}
	}
	return true
}

// removeIndices deletes the given indices (any order, no duplicates)
// from a process's variable slice, preserving the relative order of
// the survivors.
func removeIndices(proc *Process, indices ...int) {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	out := proc.Variables[:0]
	for i, v := range proc.Variables {
		if !drop[i] {
			out = append(out, v)
		}
	}
	proc.Variables = out
}

// GetExclusivePages returns, in ascending order, every page occupied
// solely by name (and possibly FreeSpace) — the pages eligible for
// page-table eviction once name is freed.
func (m *Mmu) GetExclusivePages(pid uint32, name string, pageSize uint32) []uint32 {
	proc, ok := m.processes[pid]
	if !ok {
		return nil
	}
	offsetBits := vaddr.OffsetBits(pageSize)

	var target *Variable
	for i := range proc.Variables {
		if proc.Variables[i].Name == name {
			target = &proc.Variables[i]
			break
		}
	}
	if target == nil || target.Size == 0 {
		return nil
	}

	root := vaddr.PageOf(target.VirtualAddress, offsetBits)
	end := vaddr.PageOf(target.VirtualAddress+target.Size-1, offsetBits)

	pages := make(map[uint32]bool, end-root+1)
	for p := root; p <= end; p++ {
		pages[p] = true
	}

	for _, v := range proc.Variables {
		if v.Type == vaddr.FreeSpace || v.Name == name || v.Size == 0 {
			continue
		}
		oRoot := vaddr.PageOf(v.VirtualAddress, offsetBits)
		oEnd := vaddr.PageOf(v.VirtualAddress+v.Size-1, offsetBits)
		for p := oRoot; p <= oEnd; p++ {
			delete(pages, p)
		}
	}

	result := make([]uint32, 0, len(pages))
	for p := range pages {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// RemoveProcess drops pid and all of its variables. The page table is
// not touched here; callers must remove the process's page-table
// entries separately.
func (m *Mmu) RemoveProcess(pid uint32) {
	delete(m.processes, pid)
}

// Entry pairs a variable with the process that owns it, for display.
type Entry struct {
	PID      uint32
	Variable Variable
}

// Entries returns every non-FreeSpace variable, grouped by process in
// creation order.
func (m *Mmu) Entries() []Entry {
	var out []Entry
	for _, pid := range m.order {
		proc, ok := m.processes[pid]
		if !ok {
			continue
		}
		for _, v := range proc.Variables {
			if v.Type == vaddr.FreeSpace {
				continue
			}
			out = append(out, Entry{PID: pid, Variable: v})
		}
	}
	return out
}

// Print returns the MMU table rows in the source's format: one line
// per non-FreeSpace variable, grouped by process in creation order.
func (m *Mmu) Print() []string {
	var lines []string
	for _, e := range m.Entries() {
		lines = append(lines, fmt.Sprintf(" %4d | %-14s|   0x%08X |%11d", e.PID, e.Variable.Name, e.Variable.VirtualAddress, e.Variable.Size))
	}
	return lines
}
