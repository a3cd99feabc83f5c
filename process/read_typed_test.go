package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procmem/process/memory_map"
)

// memProcess serves reads and writes out of a single in-memory region.
type memProcess struct {
	base ProcessMemoryAddress
	data []byte
}

func newMemProcess(base ProcessMemoryAddress, size uint) *memProcess {
	return &memProcess{base: base, data: make([]byte, size)}
}

func (p *memProcess) Open(pid ProcessID, mode OpenMode) error { return nil }
func (p *memProcess) Close() error                            { return nil }
func (p *memProcess) GetPID() ProcessID                       { return 1 }
func (p *memProcess) UpdateMemoryMap() error                  { return nil }

func (p *memProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	return []memory_map.MemoryMapItem{{
		Address: uint64(p.base),
		Size:    uint(len(p.data)),
		Perms:   memory_map.Perms{Read: true, Write: true},
	}}, nil
}

func (p *memProcess) IsValidAddress(addr ProcessMemoryAddress) bool {
	return addr >= p.base && addr < p.base+ProcessMemoryAddress(len(p.data))
}

func (p *memProcess) ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	offset := uint64(addr) - uint64(p.base)
	if addr < p.base || offset+uint64(size) > uint64(len(p.data)) {
		return nil, ErrAddressOutOfRange
	}
	out := make([]byte, size)
	copy(out, p.data[offset:])
	return out, nil
}

func (p *memProcess) WriteMemory(addr ProcessMemoryAddress, data []byte) error {
	offset := uint64(addr) - uint64(p.base)
	if addr < p.base || offset+uint64(len(data)) > uint64(len(p.data)) {
		return ErrAddressOutOfRange
	}
	copy(p.data[offset:], data)
	return nil
}

func TestReadWrite_RoundTrip(t *testing.T) {
	proc := newMemProcess(0x1000, 4096)

	require.NoError(t, Write[uint32](proc, 0x1000, 0xdeadbeef))
	got, err := ReadUINT32(proc, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), got)

	require.NoError(t, Write[float64](proc, 0x1100, 3.25))
	f, err := ReadFLOAT64(proc, 0x1100)
	require.NoError(t, err)
	assert.Equal(t, 3.25, f)

	require.NoError(t, Write[int64](proc, 0x1200, -42))
	n, err := ReadINT64(proc, 0x1200)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), n)
}

func TestRead_OutOfRange(t *testing.T) {
	proc := newMemProcess(0x1000, 16)

	_, err := ReadUINT64(proc, 0x1000+12)
	assert.ErrorIs(t, err, ErrAddressOutOfRange)
}

func TestReadPOINTER(t *testing.T) {
	proc := newMemProcess(0x1000, 4096)

	// A pointer back into the region itself is valid.
	require.NoError(t, Write[uint64](proc, 0x1000, 0x1800))
	ptr, err := ReadPOINTER(proc, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, ProcessMemoryAddress(0x1800), ptr)

	// Null pointer.
	require.NoError(t, Write[uint64](proc, 0x1008, 0))
	_, err = ReadPOINTER(proc, 0x1008)
	assert.ErrorIs(t, err, ErrInvalidPointer)

	// Pointer outside any mapped region.
	require.NoError(t, Write[uint64](proc, 0x1010, 0xdead0000))
	_, err = ReadPOINTER(proc, 0x1010)
	assert.ErrorIs(t, err, ErrInvalidPointer)
}

func TestReadNTS(t *testing.T) {
	proc := newMemProcess(0x1000, 64)
	require.NoError(t, proc.WriteMemory(0x1000, append([]byte("hello"), 0)))

	s, err := ReadNTS(proc, 0x1000, 32)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	// Terminator on the last byte still counts.
	s, err = ReadNTS(proc, 0x1000, 6)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	// No terminator within the limit.
	_, err = ReadNTS(proc, 0x1000, 5)
	assert.Error(t, err)

	s, err = ReadNTS(proc, 0x1000, 0)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}
