//go:build darwin && cgo

package memory_map

/*
#include <mach/mach.h>
#include <mach/mach_vm.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// DarwinMemoryMap produces MemoryMapItem snapshots by walking the target's
// address space with mach_vm_region, one "describe the next region at or
// after X" call per mapping.
type DarwinMemoryMap struct{}

// NewDarwinMemoryMap creates a new DarwinMemoryMap instance
func NewDarwinMemoryMap() *DarwinMemoryMap {
	return &DarwinMemoryMap{}
}

// ReadMemoryMapTask reads the memory map of the task behind the given mach
// task port. The walk happens against a live task, but every region comes
// from one pass so a single call yields one consistent enumeration.
func (d *DarwinMemoryMap) ReadMemoryMapTask(task uint32) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem

	addr := C.mach_vm_address_t(0)
	for {
		var size C.mach_vm_size_t
		var info C.vm_region_basic_info_data_64_t
		infoCount := C.mach_msg_type_number_t(C.VM_REGION_BASIC_INFO_COUNT_64)
		var objectName C.mach_port_t

		kret := C.mach_vm_region(
			C.vm_map_t(task),
			&addr,
			&size,
			C.VM_REGION_BASIC_INFO_64,
			C.vm_region_info_t(unsafe.Pointer(&info)),
			&infoCount,
			&objectName,
		)
		if kret == C.KERN_INVALID_ADDRESS {
			// Walked past the last mapping.
			break
		}
		if kret != C.KERN_SUCCESS {
			return nil, fmt.Errorf("mach_vm_region failed: kern return %d", int(kret))
		}
		if objectName != C.MACH_PORT_NULL {
			C.mach_port_deallocate(C.mach_task_self_, objectName)
		}

		memoryMap = append(memoryMap, MemoryMapItem{
			Address: uint64(addr),
			Size:    uint(size),
			Perms: Perms{
				Read:   info.protection&C.VM_PROT_READ != 0,
				Write:  info.protection&C.VM_PROT_WRITE != 0,
				Exec:   info.protection&C.VM_PROT_EXECUTE != 0,
				Shared: info.shared != 0,
			},
			// The basic region info carries no pathname; mach reports
			// backing objects only through deeper submap queries.
			Backing: BackingAnonymous,
		})

		addr += size
	}

	return Normalize(memoryMap)
}
