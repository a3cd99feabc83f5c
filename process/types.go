package process

import (
	"fmt"
	"strconv"
	"strings"
)

// ProcessID represents a unique identifier for a process. It is always
// supplied by the caller, never generated by this library.
type ProcessID int

// ProcessMemoryAddress represents an absolute virtual address within a
// target process's address space.
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemorySize represents a size of a memory span in bytes.
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// OpenMode configures how a session with a target process is established.
type OpenMode struct {
	// AttachRequired requests a full trace relationship with the target.
	// A pure read/write session leaves this false and never stops the
	// target; trace-level control attaches and waits for the stop.
	AttachRequired bool

	// SuspendTarget pauses the target for the lifetime of the session so a
	// batch of operations observes a consistent image. Without
	// AttachRequired this uses a stop signal rather than the trace
	// machinery.
	SuspendTarget bool
}

// AOB (Array of Bytes) represents a pattern to search for in memory.
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && len(aob.Pattern) == len(aob.Mask)
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ExactAOB builds a pattern with no wildcard bytes.
func ExactAOB(pattern []byte) AOB {
	mask := make([]byte, len(pattern))
	for i := range mask {
		mask[i] = 0xFF
	}
	return AOB{Pattern: pattern, Mask: mask}
}

// ParseAOB parses a textual byte pattern like "00 ba ad ?? f0" or
// "00,ba,ad,??,f0". "?" and "??" are wildcard bytes.
func ParseAOB(s string) (AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})

	var pattern, mask []byte
	for _, part := range parts {
		if part == "??" || part == "?" {
			pattern = append(pattern, 0)
			mask = append(mask, 0)
			continue
		}

		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid pattern byte %q: %v", part, err)
		}
		pattern = append(pattern, byte(b))
		mask = append(mask, 0xFF)
	}

	return NewAOB(pattern, mask)
}

// String formats the pattern with wildcard bytes rendered as "??".
func (aob AOB) String() string {
	parts := make([]string, len(aob.Pattern))
	for i, b := range aob.Pattern {
		if i < len(aob.Mask) && aob.Mask[i] == 0 {
			parts[i] = "??"
			continue
		}
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
