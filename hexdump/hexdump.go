// Package hexdump renders byte slices as colored hex dumps, optionally
// annotating quadwords that point into mapped memory.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"procmem/process/memory_map"

	"procmem/coloransi"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// ShowOffset determines whether to show the offset/address column
	ShowOffset bool

	// StartOffset is the starting offset for the hexdump
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// OffsetColor is the color for the offset/address column
	OffsetColor coloransi.ColorCode

	// HexColor is the color for the hex values
	HexColor coloransi.ColorCode

	// ASCIIColor is the color for the ASCII representation
	ASCIIColor coloransi.ColorCode

	// NonPrintableColor is the color for non-printable ASCII characters
	NonPrintableColor coloransi.ColorCode

	// HighlightPattern is a pattern to highlight in the dump
	HighlightPattern []byte

	// HighlightColor is the color for highlighting the pattern
	HighlightColor coloransi.ColorCode

	// HighlightBackgroundColor is the background color for highlighting
	HighlightBackgroundColor coloransi.ColorCode

	// ZeroColor is the color for zero bytes (0x00)
	ZeroColor coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// ShowPointers determines whether to annotate quadwords that fall
	// inside a mapped region
	ShowPointers bool

	// MemoryMap is the memory map used for pointer validation, sorted
	// by address
	MemoryMap []memory_map.MemoryMapItem
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine:             16,
		GroupSize:                1,
		ShowASCII:                true,
		ShowOffset:               true,
		StartOffset:              0,
		OffsetWidth:              8,
		OffsetColor:              coloransi.Cyan,
		HexColor:                 coloransi.Green,
		ASCIIColor:               coloransi.White,
		NonPrintableColor:        coloransi.BrightBlack,
		HighlightColor:           coloransi.Yellow,
		HighlightBackgroundColor: coloransi.Black,
		ZeroColor:                coloransi.BrightBlack,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := offset + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}

		formatLine(writer, data[offset:end], uint64(offset)+options.StartOffset, options)
		lineCount++
	}
}

// formatLine formats a single line of the hex dump
func formatLine(writer io.Writer, data []byte, offset uint64, options Options) {
	if options.ShowOffset {
		offsetStr := fmt.Sprintf("%0"+strconv.Itoa(options.OffsetWidth)+"x", offset)
		fmt.Fprint(writer, coloransi.Foreground(options.OffsetColor, offsetStr), "  ")
	}

	hexParts := formatHexValues(data, options)

	// Only show the mid-line divider once the line actually reaches past
	// half of BytesPerLine.
	useSplit := options.BytesPerLine >= 8 && len(data) > (options.BytesPerLine/2)

	groupsPerLine := options.BytesPerLine / options.GroupSize
	if groupsPerLine == 0 {
		groupsPerLine = 1
	}
	leftGroups := groupsPerLine / 2
	if leftGroups > len(hexParts) {
		leftGroups = len(hexParts)
	}

	if useSplit && leftGroups > 0 && leftGroups < len(hexParts) {
		fmt.Fprint(writer, strings.Join(hexParts[:leftGroups], " "), " | ", strings.Join(hexParts[leftGroups:], " "))
	} else {
		fmt.Fprint(writer, strings.Join(hexParts, " "))
	}

	// Pad short lines so the ASCII column stays aligned. Each missing byte
	// removes two hex chars, each missing group one inter-group space.
	if options.BytesPerLine > len(data) {
		fullGroups := (options.BytesPerLine + options.GroupSize - 1) / options.GroupSize
		curGroups := (len(data) + options.GroupSize - 1) / options.GroupSize
		missingBytes := options.BytesPerLine - len(data)

		deltaSpaces := (fullGroups - 1) - max(0, curGroups-1)

		// The inner " | " replaces one inter-group join space, so a line
		// printing it is two columns wider than its plain join. deltaSpaces
		// above already counts the replaced space as a join space.
		pipeFull := 0
		if options.BytesPerLine >= 8 && groupsPerLine >= 2 {
			pipeFull = 2
		}
		pipeCur := 0
		if useSplit && leftGroups > 0 && leftGroups < len(hexParts) {
			pipeCur = 2
		}

		paddingSize := missingBytes*2 + deltaSpaces + (pipeFull - pipeCur)
		if paddingSize > 0 {
			fmt.Fprint(writer, strings.Repeat(" ", paddingSize))
		}
	}

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")

		if useSplit && options.BytesPerLine/2 < len(data) {
			midPoint := options.BytesPerLine / 2
			formatASCII(writer, data[:midPoint], 0, options)
			fmt.Fprint(writer, " ")
			formatASCII(writer, data[midPoint:], midPoint, options)
		} else {
			formatASCII(writer, data, 0, options)
		}
	}

	// Annotate the line's first and second quadwords when they land in a
	// mapped region.
	if options.ShowPointers && len(data) >= 8 {
		fmt.Fprint(writer, " | ")
		ptr := binary.LittleEndian.Uint64(data[:8])
		if pointsIntoMap(ptr, options.MemoryMap) {
			fmt.Fprintf(writer, "%s ", coloransi.Foreground(coloransi.Yellow, fmt.Sprintf("0x%x", ptr)))
		}
		if len(data) >= 16 {
			ptr2 := binary.LittleEndian.Uint64(data[8:16])
			if pointsIntoMap(ptr2, options.MemoryMap) {
				fmt.Fprintf(writer, "%s", coloransi.Foreground(coloransi.Yellow, fmt.Sprintf("0x%x", ptr2)))
			}
		}
	}

	fmt.Fprintln(writer)
}

// formatASCII formats the ASCII part of a hex dump line
func formatASCII(writer io.Writer, data []byte, offset int, options Options) {
	for i, b := range data {
		c := rune(b)

		isHighlighted := false
		if len(options.HighlightPattern) > 0 {
			pos := offset + i
			if pos+len(options.HighlightPattern) <= len(data) {
				if bytes.Equal(data[pos:pos+len(options.HighlightPattern)], options.HighlightPattern) {
					isHighlighted = true
				}
			}
		}

		switch {
		case isHighlighted:
			fmt.Fprint(writer, coloransi.Color(options.HighlightColor, options.HighlightBackgroundColor, string(c)))
		case b == 0:
			fmt.Fprint(writer, coloransi.Foreground(options.ZeroColor, "."))
		case !unicode.IsPrint(c):
			fmt.Fprint(writer, coloransi.Foreground(options.NonPrintableColor, "."))
		default:
			fmt.Fprint(writer, coloransi.Foreground(options.ASCIIColor, string(c)))
		}
	}
}

// formatHexValues formats the hex values part of the line with proper grouping and highlighting
func formatHexValues(data []byte, options Options) []string {
	var result []string
	var groupBuffer []string

	for i, b := range data {
		hexValue := fmt.Sprintf("%02x", b)
		color := options.HexColor
		if b == 0 {
			color = options.ZeroColor
		}

		isHighlighted := false
		if len(options.HighlightPattern) > 0 {
			if i+len(options.HighlightPattern) <= len(data) {
				if bytes.Equal(data[i:i+len(options.HighlightPattern)], options.HighlightPattern) {
					isHighlighted = true
					color = options.HighlightColor
				}
			}
		}

		var coloredHex string
		if isHighlighted {
			coloredHex = coloransi.Color(color, options.HighlightBackgroundColor, hexValue)
		} else {
			coloredHex = coloransi.Foreground(color, hexValue)
		}

		groupBuffer = append(groupBuffer, coloredHex)

		if (i+1)%options.GroupSize == 0 || i == len(data)-1 {
			result = append(result, strings.Join(groupBuffer, ""))
			groupBuffer = nil
		}
	}

	return result
}

// pointsIntoMap reports whether ptr lands inside any region of a sorted
// memory map.
func pointsIntoMap(ptr uint64, mm []memory_map.MemoryMapItem) bool {
	return memory_map.FindRegion(ptr, mm) != nil
}

// DumpBytes creates a simple hex dump with default options
func DumpBytes(data []byte) string {
	return Dump(data, DefaultOptions())
}

// DumpBytesWithHighlight creates a hex dump with the specified bytes highlighted
func DumpBytesWithHighlight(data []byte, highlight []byte) string {
	options := DefaultOptions()
	options.HighlightPattern = highlight
	return Dump(data, options)
}

// DumpMemory renders a chunk of remote memory read at addr, annotating
// quadwords that point back into the mapped address space.
//
// format:
//
//	addr  00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f | aaaaaaaa aaaaaaaa | <pointer 0xaddress if valid> <second pointer if valid>
//
// zero bytes in dark grey, non-printable ascii as red dots.
func DumpMemory(data []byte, addr uint64, mm []memory_map.MemoryMapItem) string {
	options := DefaultOptions()
	options.StartOffset = addr
	options.OffsetWidth = 12
	options.ShowPointers = true
	options.MemoryMap = mm
	options.NonPrintableColor = coloransi.Red

	return Dump(data, options)
}
