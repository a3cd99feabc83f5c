package hexdump

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procmem/process/memory_map"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func plain(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func TestDumpBytes_LineStructure(t *testing.T) {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}

	out := plain(DumpBytes(data))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "00000000  "))
	assert.True(t, strings.HasPrefix(lines[1], "00000010  "))
	assert.Contains(t, lines[0], "00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f")
}

func TestDump_ASCIIColumn(t *testing.T) {
	out := plain(DumpBytes([]byte("Hi\x00\x01")))

	// Printable bytes render as themselves, zero and non-printable as dots.
	assert.Contains(t, out, "Hi..")
}

func TestDump_StartOffset(t *testing.T) {
	options := DefaultOptions()
	options.StartOffset = 0x7f0000001000

	out := plain(Dump(make([]byte, 16), options))
	assert.True(t, strings.HasPrefix(out, "7f0000001000"))
}

func TestDump_MaxLines(t *testing.T) {
	options := DefaultOptions()
	options.MaxLines = 2

	out := plain(Dump(make([]byte, 64), options))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "32 more bytes")
}

func TestDump_ShortLinePadding(t *testing.T) {
	data := make([]byte, 20) // one full line plus 4 bytes
	out := plain(DumpBytes(data))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)

	// The ASCII separator starts at the same column on both lines.
	assert.Equal(t, strings.LastIndex(lines[0], " | "), strings.LastIndex(lines[1], " | "))
}

func TestDumpMemory_PointerAnnotation(t *testing.T) {
	mm := []memory_map.MemoryMapItem{
		{Address: 0x400000, Size: 0x1000, Perms: memory_map.Perms{Read: true}},
	}

	data := make([]byte, 16)
	// First quadword points into the mapped region, second does not.
	copy(data, []byte{0x80, 0x04, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00})
	copy(data[8:], []byte{0x00, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00, 0x00})

	out := plain(DumpMemory(data, 0x400000, mm))
	assert.Contains(t, out, "0x400480")
	assert.NotContains(t, out, "0xff000000")
}

func TestDumpBytesWithHighlight(t *testing.T) {
	data := []byte{0x01, 0xde, 0xad, 0x02}
	out := DumpBytesWithHighlight(data, []byte{0xde, 0xad})

	// Highlighted bytes carry a background escape, plain bytes do not.
	assert.Contains(t, out, "\x1b[40m")
	assert.Contains(t, plain(out), "de ad")
}
