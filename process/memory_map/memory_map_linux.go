//go:build linux

package memory_map

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LinuxMemoryMap produces MemoryMapItem snapshots from the kernel's textual
// mapping table at /proc/[pid]/maps.
type LinuxMemoryMap struct{}

// NewLinuxMemoryMap creates a new LinuxMemoryMap instance
func NewLinuxMemoryMap() *LinuxMemoryMap {
	return &LinuxMemoryMap{}
}

// ReadMemoryMap reads and parses the memory map for a process. The returned
// snapshot is sorted and disjoint; a single open of the maps file gives one
// consistent enumeration.
func (l *LinuxMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	file, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		item, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return Normalize(memoryMap)
}

// parseMapsLine parses one line of /proc/pid/maps:
//
//	00400000-0040b000 r-xp 00000000 08:01 1234 /usr/bin/cat
//
// The backing column is optional and may contain spaces.
func parseMapsLine(line string) (MemoryMapItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MemoryMapItem{}, false
	}

	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return MemoryMapItem{}, false
	}

	startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || endAddr < startAddr {
		return MemoryMapItem{}, false
	}

	perms, ok := parsePerms(fields[1])
	if !ok {
		return MemoryMapItem{}, false
	}

	backing := ""
	if len(fields) >= 6 {
		// Pathname starts after the fixed five columns; rejoin so paths
		// containing spaces survive.
		backing = strings.TrimSpace(strings.Join(fields[5:], " "))
	}

	return MemoryMapItem{
		Address: startAddr,
		Size:    uint(endAddr - startAddr),
		Perms:   perms,
		Backing: backing,
	}, true
}

func parsePerms(s string) (Perms, bool) {
	if len(s) < 4 {
		return Perms{}, false
	}
	return Perms{
		Read:   s[0] == 'r',
		Write:  s[1] == 'w',
		Exec:   s[2] == 'x',
		Shared: s[3] == 's',
	}, true
}
