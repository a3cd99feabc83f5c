package memory_map

import (
	"fmt"
	"sort"
)

// Perms is the platform-independent permission triple of a memory region,
// plus the shared/private bit where the OS reports one.
type Perms struct {
	Read   bool
	Write  bool
	Exec   bool
	Shared bool
}

// String renders the permissions in the /proc/pid/maps style ("rw-p").
func (p Perms) String() string {
	buf := []byte{'-', '-', '-', 'p'}
	if p.Read {
		buf[0] = 'r'
	}
	if p.Write {
		buf[1] = 'w'
	}
	if p.Exec {
		buf[2] = 'x'
	}
	if p.Shared {
		buf[3] = 's'
	}
	return string(buf)
}

// Backing classification of a mapping.
const (
	BackingAnonymous = ""        // anonymous mapping, no description
	BackingHeap      = "[heap]"  // process heap
	BackingStack     = "[stack]" // main thread stack
)

// MemoryMapItem represents one contiguous memory region in a process's
// address space.
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   Perms  // Normalized permission set
	Backing string // Backing description: file path, "[heap]", "[stack]" or empty for anonymous
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Backing: %q",
		mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Backing)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return mmItem.Perms.Read
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return mmItem.Perms.Write
}

func (mmItem MemoryMapItem) IsAnonymous() bool {
	return mmItem.Backing == BackingAnonymous || mmItem.Backing == BackingHeap || mmItem.Backing == BackingStack
}

// Contains reports whether addr falls inside the region.
func (mmItem MemoryMapItem) Contains(addr uint64) bool {
	return addr >= mmItem.Address && addr < mmItem.End()
}

// Normalize sorts a freshly enumerated snapshot ascending by base address
// and verifies the regions are pairwise disjoint. The OS reports disjoint
// mappings; overlap means the raw records were mis-parsed.
func Normalize(memoryMap []MemoryMapItem) ([]MemoryMapItem, error) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})

	for i := 1; i < len(memoryMap); i++ {
		if memoryMap[i].Address < memoryMap[i-1].End() {
			return nil, fmt.Errorf("overlapping regions %s and %s",
				memoryMap[i-1].String(), memoryMap[i].String())
		}
	}

	return memoryMap, nil
}

// FindRegion returns the region containing addr, or nil. The memory map
// must be sorted by address.
func FindRegion(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// SpanMapped reports whether the whole [addr, addr+size) span is covered by
// a single region of the map. Spans crossing a region edge do not count as
// mapped even when the neighbour region exists; a vectorized read over such
// a span can fail atomically.
func SpanMapped(addr uint64, size uint, memoryMap []MemoryMapItem) bool {
	if size == 0 {
		return FindRegion(addr, memoryMap) != nil
	}
	region := FindRegion(addr, memoryMap)
	return region != nil && addr+uint64(size) <= region.End()
}
