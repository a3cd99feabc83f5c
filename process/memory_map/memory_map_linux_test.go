//go:build linux

package memory_map

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapsLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want MemoryMapItem
	}{
		{
			name: "file backed executable",
			line: "00400000-0040b000 r-xp 00000000 08:01 1234 /usr/bin/cat",
			ok:   true,
			want: MemoryMapItem{
				Address: 0x400000,
				Size:    0xb000,
				Perms:   Perms{Read: true, Exec: true},
				Backing: "/usr/bin/cat",
			},
		},
		{
			name: "anonymous mapping has empty backing",
			line: "7f0000000000-7f0000021000 rw-p 00000000 00:00 0",
			ok:   true,
			want: MemoryMapItem{
				Address: 0x7f0000000000,
				Size:    0x21000,
				Perms:   Perms{Read: true, Write: true},
				Backing: "",
			},
		},
		{
			name: "heap",
			line: "55d000000000-55d000021000 rw-p 00000000 00:00 0 [heap]",
			ok:   true,
			want: MemoryMapItem{
				Address: 0x55d000000000,
				Size:    0x21000,
				Perms:   Perms{Read: true, Write: true},
				Backing: BackingHeap,
			},
		},
		{
			name: "path with spaces survives rejoin",
			line: "7f0000000000-7f0000001000 r--p 00000000 08:01 99 /tmp/my file.so",
			ok:   true,
			want: MemoryMapItem{
				Address: 0x7f0000000000,
				Size:    0x1000,
				Perms:   Perms{Read: true},
				Backing: "/tmp/my file.so",
			},
		},
		{
			name: "shared mapping",
			line: "7f0000000000-7f0000001000 rw-s 00000000 00:05 4096 /dev/shm/thing",
			ok:   true,
			want: MemoryMapItem{
				Address: 0x7f0000000000,
				Size:    0x1000,
				Perms:   Perms{Read: true, Write: true, Shared: true},
				Backing: "/dev/shm/thing",
			},
		},
		{
			name: "garbage line",
			line: "not a maps line",
			ok:   false,
		},
		{
			name: "end below start",
			line: "00002000-00001000 rw-p 00000000 00:00 0",
			ok:   false,
		},
		{
			name: "empty line",
			line: "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := parseMapsLine(tt.line)
			if !tt.ok {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, item)
		})
	}
}

func TestReadMemoryMap_Self(t *testing.T) {
	mm, err := NewLinuxMemoryMap().ReadMemoryMap(os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, mm)

	// Snapshot comes back sorted and disjoint.
	for i := 1; i < len(mm); i++ {
		assert.GreaterOrEqual(t, mm[i].Address, mm[i-1].End())
	}

	// Our own process always has a stack mapping.
	found := false
	for _, item := range mm {
		if item.Backing == BackingStack {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a [stack] mapping")
}

func TestReadMemoryMap_NoSuchProcess(t *testing.T) {
	_, err := NewLinuxMemoryMap().ReadMemoryMap(1 << 22)
	require.Error(t, err)
}
