package process

import (
	"fmt"
	"unsafe"
)

// Typed conveniences over ReadMemory/WriteMemory. These are deliberately
// thin: the bytes are copied as-is into the value, with no byte-order
// conversion, so a write followed by a read of the same type round-trips
// byte-for-byte.

// Read reads a single value of type T from the target at addr.
func Read[T any](proc Process, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := ProcessMemorySize(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := proc.ReadMemory(addr, size)
	if err != nil {
		return t, err
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(&t)), int(size))
	copy(dst, data)
	return t, nil
}

// Write writes a single value of type T to the target at addr.
func Write[T any](proc Process, addr ProcessMemoryAddress, value T) error {
	size := int(unsafe.Sizeof(value))
	if size == 0 {
		return nil
	}

	src := unsafe.Slice((*byte)(unsafe.Pointer(&value)), size)
	data := make([]byte, size)
	copy(data, src)
	return proc.WriteMemory(addr, data)
}

func ReadUINT8(proc Process, addr ProcessMemoryAddress) (uint8, error) {
	return Read[uint8](proc, addr)
}

func ReadUINT16(proc Process, addr ProcessMemoryAddress) (uint16, error) {
	return Read[uint16](proc, addr)
}

func ReadUINT32(proc Process, addr ProcessMemoryAddress) (uint32, error) {
	return Read[uint32](proc, addr)
}

func ReadUINT64(proc Process, addr ProcessMemoryAddress) (uint64, error) {
	return Read[uint64](proc, addr)
}

func ReadINT32(proc Process, addr ProcessMemoryAddress) (int32, error) {
	return Read[int32](proc, addr)
}

func ReadINT64(proc Process, addr ProcessMemoryAddress) (int64, error) {
	return Read[int64](proc, addr)
}

func ReadFLOAT32(proc Process, addr ProcessMemoryAddress) (float32, error) {
	return Read[float32](proc, addr)
}

func ReadFLOAT64(proc Process, addr ProcessMemoryAddress) (float64, error) {
	return Read[float64](proc, addr)
}

// ReadPOINTER reads a pointer-sized value and validates it against the
// current memory map snapshot.
func ReadPOINTER(proc Process, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	val, err := Read[uint64](proc, addr)
	if err != nil {
		return 0, err
	}
	ptr := ProcessMemoryAddress(val)
	if ptr == 0 || !proc.IsValidAddress(ptr) {
		return 0, ErrInvalidPointer
	}
	return ptr, nil
}

// ReadNTS reads a null-terminated string from addr, reading at most
// maxLength bytes.
func ReadNTS(proc Process, addr ProcessMemoryAddress, maxLength ProcessMemorySize) (string, error) {
	if maxLength == 0 {
		return "", nil
	}

	data, err := proc.ReadMemory(addr, maxLength)
	if err != nil {
		return "", err
	}

	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return "", fmt.Errorf("no terminator within %s", maxLength.ToString())
}
