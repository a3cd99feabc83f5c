package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procmem/process"
	"procmem/process/memory_map"
)

// fakeRegion is one mapped span served by fakeProcess.
type fakeRegion struct {
	item memory_map.MemoryMapItem
	data []byte
	// readErr, when set, fails every read touching the region.
	readErr error
}

// fakeProcess is an in-memory process.Process serving reads out of a
// fixed set of regions. It also counts suspend brackets.
type fakeProcess struct {
	regions  []*fakeRegion
	suspends int
	resumes  int
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{}
}

func (p *fakeProcess) addRegion(addr uint64, size uint, perms memory_map.Perms, backing string) *fakeRegion {
	r := &fakeRegion{
		item: memory_map.MemoryMapItem{Address: addr, Size: size, Perms: perms, Backing: backing},
		data: make([]byte, size),
	}
	p.regions = append(p.regions, r)
	return r
}

func (p *fakeProcess) Suspend() error { p.suspends++; return nil }
func (p *fakeProcess) Resume() error  { p.resumes++; return nil }

func (p *fakeProcess) Open(pid process.ProcessID, mode process.OpenMode) error { return nil }
func (p *fakeProcess) Close() error                                           { return nil }
func (p *fakeProcess) GetPID() process.ProcessID                              { return 1234 }
func (p *fakeProcess) UpdateMemoryMap() error                                 { return nil }

func (p *fakeProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	items := make([]memory_map.MemoryMapItem, len(p.regions))
	for i, r := range p.regions {
		items[i] = r.item
	}
	return memory_map.Normalize(items)
}

func (p *fakeProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	for _, r := range p.regions {
		if r.item.Contains(uint64(addr)) {
			return true
		}
	}
	return false
}

func (p *fakeProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	for _, r := range p.regions {
		if !r.item.Contains(uint64(addr)) {
			continue
		}
		if r.readErr != nil {
			return nil, r.readErr
		}
		offset := uint64(addr) - r.item.Address
		if offset+uint64(size) > uint64(r.item.Size) {
			return nil, process.ErrAddressOutOfRange
		}
		out := make([]byte, size)
		copy(out, r.data[offset:])
		return out, nil
	}
	return nil, process.ErrAddressOutOfRange
}

func (p *fakeProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	for _, r := range p.regions {
		if !r.item.Contains(uint64(addr)) {
			continue
		}
		offset := uint64(addr) - r.item.Address
		if offset+uint64(len(data)) > uint64(r.item.Size) {
			return process.ErrAddressOutOfRange
		}
		copy(r.data[offset:], data)
		return nil
	}
	return process.ErrAddressOutOfRange
}

var rw = memory_map.Perms{Read: true, Write: true}
var ro = memory_map.Perms{Read: true}

func addresses(result *Result) []uint64 {
	out := make([]uint64, len(result.Matches))
	for i, m := range result.Matches {
		out[i] = uint64(m.Address)
	}
	return out
}

func TestScanPattern_FindsAllOccurrences(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 4096, rw, "")
	copy(region.data[0x10:], []byte{0xde, 0xad, 0xbe, 0xef})
	copy(region.data[0x200:], []byte{0xde, 0xad, 0xbe, 0xef})
	copy(region.data[0xffc:], []byte{0xde, 0xad, 0xbe, 0xef}) // last 4 bytes

	result, err := New().ScanPattern(proc, process.ExactAOB([]byte{0xde, 0xad, 0xbe, 0xef}), Filter{})
	require.NoError(t, err)

	assert.Equal(t, []uint64{0x1010, 0x1200, 0x1ffc}, addresses(result))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, result.Matches[0].Value)
	assert.Equal(t, 0, result.SkippedRegions)
}

func TestScanPattern_Wildcards(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 256, rw, "")
	copy(region.data[8:], []byte{0x89, 0x11, 0x4e})
	copy(region.data[32:], []byte{0x89, 0x22, 0x4e})
	copy(region.data[64:], []byte{0x88, 0x11, 0x4e})

	aob, err := process.ParseAOB("89 ?? 4e")
	require.NoError(t, err)

	result, err := New().ScanPattern(proc, aob, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1008, 0x1020}, addresses(result))
}

func TestScanPattern_EmptyPatternRejected(t *testing.T) {
	proc := newFakeProcess()
	proc.addRegion(0x1000, 64, rw, "")

	_, err := New().ScanPattern(proc, process.AOB{}, Filter{})
	require.Error(t, err)
}

func TestScanPattern_MaskLengthMismatch(t *testing.T) {
	proc := newFakeProcess()
	proc.addRegion(0x1000, 64, rw, "")

	_, err := New().ScanPattern(proc, process.AOB{Pattern: []byte{1, 2}, Mask: []byte{0xFF}}, Filter{})
	require.Error(t, err)
}

// A match that straddles a window boundary is found exactly once.
func TestScanPattern_WindowCrossing(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 256, rw, "")

	// Window of 16 bytes: the first window covers offsets 0..15, the
	// pattern sits at 14..17.
	copy(region.data[14:], []byte{0xca, 0xfe, 0xba, 0xbe})

	result, err := New(WithWindowSize(16)).ScanPattern(proc, process.ExactAOB([]byte{0xca, 0xfe, 0xba, 0xbe}), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x100e}, addresses(result))
}

func TestScanPattern_RepeatsAcrossWindows(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 1024, rw, "")
	for i := 0; i+2 <= len(region.data); i += 2 {
		region.data[i] = 0xab
		region.data[i+1] = 0xcd
	}

	result, err := New(WithWindowSize(64)).ScanPattern(proc, process.ExactAOB([]byte{0xab, 0xcd}), Filter{})
	require.NoError(t, err)
	assert.Len(t, result.Matches, 512)

	// No duplicates from overlapping windows.
	seen := map[uint64]bool{}
	for _, a := range addresses(result) {
		assert.False(t, seen[a], "duplicate match at %x", a)
		seen[a] = true
	}
}

func TestScanPattern_Alignment(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 64, rw, "")
	copy(region.data[4:], []byte{0x11, 0x22})
	copy(region.data[7:], []byte{0x11, 0x22})

	result, err := New(WithAlignment(4)).ScanPattern(proc, process.ExactAOB([]byte{0x11, 0x22}), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1004}, addresses(result))
}

func TestScanPattern_FilterWritableOnly(t *testing.T) {
	proc := newFakeProcess()
	a := proc.addRegion(0x1000, 64, ro, "/usr/bin/thing")
	b := proc.addRegion(0x2000, 64, rw, "")
	copy(a.data, []byte{0x77, 0x88})
	copy(b.data, []byte{0x77, 0x88})

	result, err := New().ScanPattern(proc, process.ExactAOB([]byte{0x77, 0x88}), Filter{WritableOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x2000}, addresses(result))
}

func TestScanPattern_FilterAnonymousOnly(t *testing.T) {
	proc := newFakeProcess()
	file := proc.addRegion(0x1000, 64, rw, "/usr/lib/libc.so")
	heap := proc.addRegion(0x2000, 64, rw, memory_map.BackingHeap)
	copy(file.data, []byte{0x42})
	copy(heap.data, []byte{0x42})

	result, err := New().ScanPattern(proc, process.ExactAOB([]byte{0x42}), Filter{AnonymousOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x2000}, addresses(result))
}

func TestScanPattern_FilterKeep(t *testing.T) {
	proc := newFakeProcess()
	a := proc.addRegion(0x1000, 64, rw, "")
	b := proc.addRegion(0x2000, 64, rw, "")
	copy(a.data, []byte{0x42})
	copy(b.data, []byte{0x42})

	filter := Filter{Keep: func(item memory_map.MemoryMapItem) bool {
		return item.Address >= 0x2000
	}}
	result, err := New().ScanPattern(proc, process.ExactAOB([]byte{0x42}), filter)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x2000}, addresses(result))
}

func TestScanPattern_UnreadableRegionSkipped(t *testing.T) {
	proc := newFakeProcess()
	bad := proc.addRegion(0x1000, 64, rw, "")
	bad.readErr = process.ErrPermissionDenied
	good := proc.addRegion(0x2000, 64, rw, "")
	copy(good.data, []byte{0x99, 0xaa})

	result, err := New().ScanPattern(proc, process.ExactAOB([]byte{0x99, 0xaa}), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x2000}, addresses(result))
	assert.Equal(t, 1, result.SkippedRegions)
}

func TestScanPattern_ProcessGoneIsFatal(t *testing.T) {
	proc := newFakeProcess()
	bad := proc.addRegion(0x1000, 64, rw, "")
	bad.readErr = process.ErrProcessGone

	_, err := New().ScanPattern(proc, process.ExactAOB([]byte{0x99}), Filter{})
	assert.ErrorIs(t, err, process.ErrProcessGone)
}

func TestScanPattern_PatternLargerThanRegion(t *testing.T) {
	proc := newFakeProcess()
	proc.addRegion(0x1000, 4, rw, "")

	result, err := New().ScanPattern(proc, process.ExactAOB(make([]byte, 8)), Filter{WritableOnly: true, Keep: func(item memory_map.MemoryMapItem) bool {
		return item.Address == 0x1000
	}})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Equal(t, 0, result.SkippedRegions)
}

func TestScanValue_Equal(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 4096, rw, "")
	// 100 as u32 at two offsets, and a near miss.
	copy(region.data[16:], []byte{100, 0, 0, 0})
	copy(region.data[512:], []byte{100, 0, 0, 0})
	copy(region.data[1024:], []byte{101, 0, 0, 0})

	result, err := New().ScanValue(proc, Uint32Value(100), CompareEqual, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1010, 0x1200}, addresses(result))
	assert.Equal(t, ValueUint32, result.Type)
	assert.Equal(t, 4, result.Width)
}

func TestScanValue_Greater(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 64, rw, "")
	region.data[0] = 5
	region.data[1] = 200
	region.data[2] = 100

	result, err := New().ScanValue(proc, Uint8Value(100), CompareGreater, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1001}, addresses(result))
}

func TestScanValue_BaselineModesRejected(t *testing.T) {
	proc := newFakeProcess()
	proc.addRegion(0x1000, 64, rw, "")

	_, err := New().ScanValue(proc, Uint32Value(1), CompareChanged, Filter{})
	require.Error(t, err)

	_, err = New().ScanValue(proc, Uint32Value(1), CompareUnchanged, Filter{})
	require.Error(t, err)
}

func TestScanValue_OrderNeedsNumericType(t *testing.T) {
	proc := newFakeProcess()
	proc.addRegion(0x1000, 64, rw, "")

	_, err := New().ScanValue(proc, BytesValue([]byte{1, 2}), CompareGreater, Filter{})
	require.Error(t, err)
}

func TestScanPatternParallel_MatchesSequential(t *testing.T) {
	proc := newFakeProcess()
	for i := 0; i < 8; i++ {
		region := proc.addRegion(uint64(0x1000*(i+1)), 2048, rw, "")
		copy(region.data[uint(i)*17:], []byte{0xfe, 0xed, 0xfa, 0xce})
	}

	seq, err := New().ScanPattern(proc, process.ExactAOB([]byte{0xfe, 0xed, 0xfa, 0xce}), Filter{})
	require.NoError(t, err)

	par, err := New().ScanPatternParallel(proc, process.ExactAOB([]byte{0xfe, 0xed, 0xfa, 0xce}), Filter{}, 4)
	require.NoError(t, err)

	assert.Equal(t, addresses(seq), addresses(par))
	require.Len(t, par.Matches, 8)
}

// Each pass opens exactly one suspend bracket on backends that offer it.
func TestScan_SuspendsOncePerPass(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 64, rw, "")
	copy(region.data, Uint32Value(5).Bytes)

	s := New()
	result, err := s.ScanValue(proc, Uint32Value(5), CompareEqual, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, proc.suspends)
	assert.Equal(t, 1, proc.resumes)

	_, err = s.Rescan(proc, result, CompareUnchanged)
	require.NoError(t, err)
	assert.Equal(t, 2, proc.suspends)
	assert.Equal(t, 2, proc.resumes)
}

func TestScanPatternParallel_MaxdopOneFallsBack(t *testing.T) {
	proc := newFakeProcess()
	region := proc.addRegion(0x1000, 64, rw, "")
	copy(region.data, []byte{0x01, 0x02})

	result, err := New().ScanPatternParallel(proc, process.ExactAOB([]byte{0x01, 0x02}), Filter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1000}, addresses(result))
}
