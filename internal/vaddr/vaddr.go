// Package vaddr decomposes 32-bit virtual addresses into page and
// offset components and defines the typed values the simulator can
// place in a process's address space.
package vaddr

import "math/bits"

// DataType is the tagged union of value kinds a variable can hold.
// FreeSpace is a sentinel used only inside a process's variable list;
// it is never a real allocation.
type DataType uint8

const (
	FreeSpace DataType = iota
	Char
	Short
	Int
	Float
	Long
	Double
)

// Size returns the element size in bytes for the variant. FreeSpace
// has no element size and returns 0.
func (t DataType) Size() uint32 {
	switch t {
	case Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case Float:
		return "float"
	case Long:
		return "long"
	case Double:
		return "double"
	default:
		return "<free>"
	}
}

// ParseDataType maps a command token to its DataType. ok is false if
// the token names no known type.
func ParseDataType(s string) (t DataType, ok bool) {
	switch s {
	case "char":
		return Char, true
	case "short":
		return Short, true
	case "int":
		return Int, true
	case "float":
		return Float, true
	case "long":
		return Long, true
	case "double":
		return Double, true
	default:
		return FreeSpace, false
	}
}

// OffsetBits returns log2(pageSize). pageSize must be a power of two.
func OffsetBits(pageSize uint32) uint {
	return uint(bits.TrailingZeros32(pageSize))
}

// Split decomposes a virtual address into (page number, offset) for
// the given offset-bit width.
func Split(addr uint32, offsetBits uint) (page, offset uint32) {
	page = addr >> offsetBits
	offset = addr & ((1 << offsetBits) - 1)
	return page, offset
}

// PageOf returns the page number containing addr.
func PageOf(addr uint32, offsetBits uint) uint32 {
	return addr >> offsetBits
}

// IsPowerOfTwo reports whether n is a power of two (n > 0).
func IsPowerOfTwo(n uint32) bool {
	return n > 0 && n&(n-1) == 0
}
