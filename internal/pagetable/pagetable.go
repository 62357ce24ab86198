// Package pagetable maps (process id, virtual page) pairs to
// physical frames and resolves virtual addresses to physical ones.
package pagetable

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

// Key identifies a page-table entry.
type Key struct {
	PID  uint32
	Page uint32
}

// PageTable is the global (pid, page) -> frame mapping.
type PageTable struct {
	pageSize   uint32
	offsetBits uint
	frames     map[Key]uint32
	usedFrames map[uint32]bool
}

// New creates a PageTable for the given power-of-two page size.
func New(pageSize uint32) (*PageTable, error) {
	if !vaddr.IsPowerOfTwo(pageSize) {
		return nil, fmt.Errorf("pagetable: page size %d is not a power of two", pageSize)
	}
	return &PageTable{
		pageSize:   pageSize,
		offsetBits: vaddr.OffsetBits(pageSize),
		frames:     make(map[Key]uint32),
		usedFrames: make(map[uint32]bool),
	}, nil
}

// GetPageSize returns the configured page size in bytes.
func (pt *PageTable) GetPageSize() uint32 { return pt.pageSize }

// GetOffsetSize returns log2(page size).
func (pt *PageTable) GetOffsetSize() uint { return pt.offsetBits }

// AddEntry maps (pid, page) to the lowest frame number not currently
// in use by any entry, and returns that frame.
func (pt *PageTable) AddEntry(pid, page uint32) uint32 {
	var frame uint32
	for pt.usedFrames[frame] {
		frame++
	}
	pt.frames[Key{PID: pid, Page: page}] = frame
	pt.usedFrames[frame] = true
	return frame
}

// EntryExists reports whether (pid, page) is mapped.
func (pt *PageTable) EntryExists(pid, page uint32) bool {
	_, ok := pt.frames[Key{PID: pid, Page: page}]
	return ok
}

// GetPhysicalAddress resolves a virtual address for pid, returning -1
// if its page is not resident.
func (pt *PageTable) GetPhysicalAddress(pid, virtualAddress uint32) int64 {
	page, offset := vaddr.Split(virtualAddress, pt.offsetBits)
	frame, ok := pt.frames[Key{PID: pid, Page: page}]
	if !ok {
		return -1
	}
	return int64(frame)*int64(pt.pageSize) + int64(offset)
}

// RemoveEntry deletes the (pid, page) mapping, if any, freeing its
// frame for reuse.
func (pt *PageTable) RemoveEntry(pid, page uint32) {
	pt.RemoveEntryKey(Key{PID: pid, Page: page})
}

// RemoveEntryKey deletes the mapping for a composite key, if any.
func (pt *PageTable) RemoveEntryKey(key Key) {
	frame, ok := pt.frames[key]
	if !ok {
		return
	}
	delete(pt.frames, key)
	delete(pt.usedFrames, frame)
}

// GetAllPagesForPID returns every key belonging to pid, ordered by
// (pid, page) ascending, both compared numerically.
func (pt *PageTable) GetAllPagesForPID(pid uint32) []Key {
	var keys []Key
	for k := range pt.frames {
		if k.PID == pid {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PID != keys[j].PID {
			return keys[i].PID < keys[j].PID
		}
		return keys[i].Page < keys[j].Page
	})
}

// Entry is a single (pid, page) -> frame mapping.
type Entry struct {
	PID   uint32
	Page  uint32
	Frame uint32
}

// Entries returns every mapping in (pid, page) numeric order.
func (pt *PageTable) Entries() []Entry {
	keys := make([]Key, 0, len(pt.frames))
	for k := range pt.frames {
		keys = append(keys, k)
	}
	sortKeys(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{PID: k.PID, Page: k.Page, Frame: pt.frames[k]})
	}
	return out
}

// Print returns the page-table rows in (pid, page) numeric order.
func (pt *PageTable) Print() []string {
	keys := make([]Key, 0, len(pt.frames))
	for k := range pt.frames {
		keys = append(keys, k)
	}
	sortKeys(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		frame := pt.frames[k]
		lines = append(lines, fmt.Sprintf("%6s|%13s|%14d",
			strconv.FormatUint(uint64(k.PID), 10),
			strconv.FormatUint(uint64(k.Page), 10),
			frame))
	}
	return lines
}
