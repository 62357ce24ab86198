// Package alloc coordinates the mmu and pagetable packages: for each
// allocation it asks the page table which pages are already resident,
// asks the mmu for a fit inside those pages, falls back to fitting
// anywhere, and installs any new page-table entries.
package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/PokkeFe/os-memsim/internal/mmu"
	"github.com/PokkeFe/os-memsim/internal/pagetable"
	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

// StackSize is the fixed size, in bytes, of the reserved <STACK>
// variable installed by CreateProcess.
const StackSize = 65536

var (
	ErrProcessNotFound        = errors.New("process not found")
	ErrVariableNotFound       = errors.New("variable not found")
	ErrVariableExists         = errors.New("variable already exists")
	ErrAllocationExceedsSpace = errors.New("allocation exceeds system memory")
)

// Orchestrator is the thin coordinator described in spec §4.3-4.4. It
// holds no domain state of its own beyond references to the two
// collaborating data structures, plus the lock that serializes access
// to them between the REPL's command loop and the debug HTTP server.
type Orchestrator struct {
	Mmu   *mmu.Mmu
	Pages *pagetable.PageTable

	mu sync.RWMutex
}

// New builds an Orchestrator over an existing mmu and page table.
func New(m *mmu.Mmu, pt *pagetable.PageTable) *Orchestrator {
	return &Orchestrator{Mmu: m, Pages: pt}
}

// Lock and Unlock give a caller that performs a full read-modify-write
// command (the REPL dispatcher) exclusive access to Mmu and Pages.
func (o *Orchestrator) Lock()   { o.mu.Lock() }
func (o *Orchestrator) Unlock() { o.mu.Unlock() }

// RLock and RUnlock give a caller that only inspects state (the debug
// HTTP server, running on its own goroutine) shared read access, safe
// to hold concurrently with other readers but never with a command in
// flight.
func (o *Orchestrator) RLock()   { o.mu.RLock() }
func (o *Orchestrator) RUnlock() { o.mu.RUnlock() }

// CreateProcess creates a bare process with no variables beyond the
// implicit FreeSpace record. Most callers want CreateProcessWithBootstrap.
func (o *Orchestrator) CreateProcess() uint32 {
	return o.Mmu.CreateProcess()
}

// CreateProcessWithBootstrap creates a process and installs the three
// reserved variables convention requires: <TEXT>, <GLOBALS>, <STACK>.
func (o *Orchestrator) CreateProcessWithBootstrap(textSize, dataSize uint32) (uint32, error) {
	pid := o.Mmu.CreateProcess()

	for _, bootVar := range []struct {
		name string
		size uint32
	}{
		{"<TEXT>", textSize},
		{"<GLOBALS>", dataSize},
		{"<STACK>", StackSize},
	} {
		if _, err := o.Allocate(pid, bootVar.name, vaddr.Char, bootVar.size); err != nil {
			return pid, fmt.Errorf("alloc: bootstrap %s for pid %d: %w", bootVar.name, pid, err)
		}
	}
	return pid, nil
}

// Allocate places a new variable of the given type and element count
// in pid's address space, installing page-table entries for any newly
// touched pages, and returns the chosen virtual address.
func (o *Orchestrator) Allocate(pid uint32, name string, t vaddr.DataType, numElements uint32) (uint32, error) {
	if !o.Mmu.ProcessExists(pid) {
		return 0, ErrProcessNotFound
	}
	if o.Mmu.VariableExists(pid, name) {
		return 0, ErrVariableExists
	}

	elementSize := t.Size()
	pageSize := o.Pages.GetPageSize()
	offsetBits := o.Pages.GetOffsetSize()

	var (
		addr  uint32
		found bool
	)
	for _, key := range o.Pages.GetAllPagesForPID(pid) {
		if a, ok := o.Mmu.GetFreeSpaceInPage(pid, key.Page, elementSize, pageSize, numElements); ok {
			addr, found = a, true
			break
		}
	}
	if !found {
		addr, found = o.Mmu.GetFreeSpaceAnywhere(pid, elementSize, pageSize, numElements)
		if !found {
			return 0, ErrAllocationExceedsSpace
		}
	}

	sizeBytes := elementSize * numElements

	// The placement search above can only be trusted as far as its own
	// arithmetic; confirm the candidate address actually has room in
	// its owning free record before mutating anything, so a bad
	// candidate is rejected cleanly instead of leaving a half-installed
	// variable and an unshrunk free record behind.
	if !o.Mmu.HasRoomAt(pid, addr, sizeBytes) {
		return 0, ErrAllocationExceedsSpace
	}

	startPage := addr >> offsetBits
	endPage := (addr + sizeBytes) >> offsetBits
	for page := startPage; page <= endPage; page++ {
		if !o.Pages.EntryExists(pid, page) {
			o.Pages.AddEntry(pid, page)
		}
	}

	if err := o.Mmu.AddVariableToProcess(pid, name, t, sizeBytes, addr); err != nil {
		return 0, err
	}
	if err := o.Mmu.UpdateFreeSpace(pid, addr, sizeBytes); err != nil {
		return 0, err
	}
	return addr, nil
}

// Free releases a variable and evicts any page-table entries for
// pages that become exclusively free as a result.
func (o *Orchestrator) Free(pid uint32, name string) error {
	if !o.Mmu.ProcessExists(pid) {
		return ErrProcessNotFound
	}
	if !o.Mmu.VariableExists(pid, name) {
		return ErrVariableNotFound
	}

	exclusivePages := o.Mmu.GetExclusivePages(pid, name, o.Pages.GetPageSize())
	o.Mmu.RemoveVariable(pid, name)
	for _, page := range exclusivePages {
		o.Pages.RemoveEntry(pid, page)
	}
	return nil
}

// Terminate destroys a process and every page-table entry it owns.
func (o *Orchestrator) Terminate(pid uint32) error {
	if !o.Mmu.ProcessExists(pid) {
		return ErrProcessNotFound
	}
	keys := o.Pages.GetAllPagesForPID(pid)
	o.Mmu.RemoveProcess(pid)
	for _, key := range keys {
		o.Pages.RemoveEntryKey(key)
	}
	return nil
}
