// Package scanner locates values and byte patterns in the readable memory
// of a target process and narrows the result set across repeated passes.
// It is a stateless layer over process.Process: every pass enumerates the
// current memory map and streams regions in fixed-size windows, so even
// very large regions are never materialized at once.
package scanner

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultWindowSize is the per-read streaming window. Windows overlap by
// pattern length minus one byte so matches crossing a window edge are still
// found; matches crossing a region edge are out of scope.
const DefaultWindowSize = 1 << 20

// Match is one located occurrence: the address and the value bytes observed
// there during the pass that produced it. Matches are never invalidated
// when target memory changes afterwards; staleness is detected by the next
// pass.
type Match struct {
	Address process.ProcessMemoryAddress
	Value   []byte
}

// Result is the outcome of one scan or rescan pass.
type Result struct {
	Matches []Match
	Type    ValueType
	Width   int

	// SkippedRegions counts candidate regions that could not be read and
	// were left out of the pass. Non-zero means coverage was partial.
	SkippedRegions int
}

// Filter selects which regions of the memory map a pass visits. The zero
// value visits every readable region.
type Filter struct {
	// WritableOnly restricts the pass to writable regions, the usual
	// working-memory case.
	WritableOnly bool

	// AnonymousOnly restricts the pass to anonymous, heap and stack
	// mappings, excluding file-backed code and data.
	AnonymousOnly bool

	// Keep, when set, is an additional predicate a region must satisfy.
	Keep func(memory_map.MemoryMapItem) bool
}

func (f Filter) match(item memory_map.MemoryMapItem) bool {
	if !item.IsReadable() {
		return false
	}
	if f.WritableOnly && !item.IsWritable() {
		return false
	}
	if f.AnonymousOnly && !item.IsAnonymous() {
		return false
	}
	if f.Keep != nil && !f.Keep(item) {
		return false
	}
	return true
}

// Scanner holds pass configuration.
type Scanner struct {
	windowSize uint
	alignment  uint
	log        *logger.Logger
}

// Option is a function that configures a Scanner
type Option func(*Scanner)

// WithWindowSize bounds the bytes read per streaming window.
func WithWindowSize(size uint) Option {
	return func(s *Scanner) {
		s.windowSize = size
	}
}

// WithAlignment restricts matches to addresses divisible by align, for
// typed values that only occur on natural boundaries.
func WithAlignment(align uint) Option {
	return func(s *Scanner) {
		s.alignment = align
	}
}

// New creates a Scanner with the given options.
func New(options ...Option) *Scanner {
	s := &Scanner{
		windowSize: DefaultWindowSize,
		alignment:  1,
		log:        logger.NewLogger(coloransi.Foreground(coloransi.ColorTeal, "scanner")),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.windowSize == 0 {
		s.windowSize = DefaultWindowSize
	}
	if s.alignment == 0 {
		s.alignment = 1
	}
	return s
}

// ScanPattern searches the filtered regions for a byte pattern with
// optional wildcard mask and returns every occurrence.
func (s *Scanner) ScanPattern(proc process.Process, aob process.AOB, filter Filter) (*Result, error) {
	pred, err := patternPredicate(aob)
	if err != nil {
		return nil, err
	}
	return s.run(proc, pred, ValueBytes, len(aob.Pattern), filter)
}

// ScanValue searches the filtered regions for a typed value under the
// given comparison. Changed/unchanged need a baseline from a prior pass
// and are rejected here; narrow with Rescan instead.
func (s *Scanner) ScanValue(proc process.Process, value Value, mode CompareMode, filter Filter) (*Result, error) {
	if value.Width() == 0 {
		return nil, fmt.Errorf("empty value")
	}
	if mode.requiresBaseline() {
		return nil, fmt.Errorf("%s comparison needs a baseline from a prior pass", mode)
	}
	if mode.requiresOrder() && !value.Type.Ordered() {
		return nil, fmt.Errorf("%s comparison needs a numeric value type", mode)
	}

	width := value.Width()
	pred := func(window []byte, i int) bool {
		ok, _ := compare(value.Type, mode, window[i:i+width], value.Bytes)
		return ok
	}
	return s.run(proc, pred, value.Type, width, filter)
}

// ScanPatternParallel is ScanPattern with up to maxdop regions scanned
// concurrently. The result is equivalent; only the wall time differs.
func (s *Scanner) ScanPatternParallel(proc process.Process, aob process.AOB, filter Filter, maxdop uint) (*Result, error) {
	if maxdop <= 1 {
		return s.ScanPattern(proc, aob, filter)
	}

	pred, err := patternPredicate(aob)
	if err != nil {
		return nil, err
	}

	defer suspendForPass(proc)()

	regions, err := candidateRegions(proc, filter)
	if err != nil {
		return nil, err
	}

	s.log.Infoln("Starting parallel scan over", len(regions), "regions, maxdop", maxdop)

	result := &Result{Type: ValueBytes, Width: len(aob.Pattern)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(int(maxdop))
	for _, region := range regions {
		g.Go(func() error {
			matches, err := s.scanRegion(proc, region, pred, len(aob.Pattern))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if isFatalScanError(err) {
					return err
				}
				result.SkippedRegions++
				return nil
			}
			result.Matches = append(result.Matches, matches...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Matches, func(i, j int) bool {
		return result.Matches[i].Address < result.Matches[j].Address
	})

	s.log.Infoln("Parallel scan complete, found", len(result.Matches), "matches, skipped", result.SkippedRegions, "regions")
	return result, nil
}

// Suspender is implemented by backends that can stop the target for a
// nested bracket of operations. A pass suspends when the backend offers
// it so every window of one pass observes the same image.
type Suspender interface {
	Suspend() error
	Resume() error
}

// suspendForPass brackets one pass. Failure to suspend is not an error;
// the pass runs against live memory like it would on a backend with no
// suspend support.
func suspendForPass(proc process.Process) func() {
	s, ok := proc.(Suspender)
	if !ok {
		return func() {}
	}
	if err := s.Suspend(); err != nil {
		return func() {}
	}
	return func() { _ = s.Resume() }
}

// predicate reports whether the width bytes of window at i are a match.
type predicate func(window []byte, i int) bool

func patternPredicate(aob process.AOB) (predicate, error) {
	if len(aob.Pattern) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	mask := aob.Mask
	if len(mask) == 0 {
		mask = make([]byte, len(aob.Pattern))
		for i := range mask {
			mask[i] = 0xFF
		}
	} else if len(mask) != len(aob.Pattern) {
		return nil, fmt.Errorf("mask length (%d) doesn't match pattern length (%d)",
			len(mask), len(aob.Pattern))
	}

	pattern := aob.Pattern
	return func(window []byte, i int) bool {
		for j := 0; j < len(pattern); j++ {
			if mask[j] == 0 {
				continue
			}
			if window[i+j]&mask[j] != pattern[j]&mask[j] {
				return false
			}
		}
		return true
	}, nil
}

// run is the sequential pass: enumerate candidate regions and stream each
// one through the predicate.
func (s *Scanner) run(proc process.Process, pred predicate, typ ValueType, width int, filter Filter) (*Result, error) {
	defer suspendForPass(proc)()

	regions, err := candidateRegions(proc, filter)
	if err != nil {
		return nil, err
	}

	s.log.Infoln("Starting scan over", len(regions), "regions, width", width)

	result := &Result{Type: typ, Width: width}
	for _, region := range regions {
		matches, err := s.scanRegion(proc, region, pred, width)
		if err != nil {
			if isFatalScanError(err) {
				return nil, err
			}
			// Unreadable mid-scan is not fatal, but the caller learns
			// coverage was partial.
			s.log.Debugln("Skipping region at", fmt.Sprintf("%x", region.Address), err)
			result.SkippedRegions++
			continue
		}
		result.Matches = append(result.Matches, matches...)
	}

	s.log.Infoln("Scan complete, found", len(result.Matches), "matches, skipped", result.SkippedRegions, "regions")
	return result, nil
}

// scanRegion streams one region in overlapping windows. The step between
// windows is windowSize-width+1 so a value spanning a window edge is seen
// whole in the next window exactly once.
func (s *Scanner) scanRegion(proc process.Process, region memory_map.MemoryMapItem, pred predicate, width int) ([]Match, error) {
	if uint(width) > region.Size {
		return nil, nil
	}

	windowSize := s.windowSize
	if windowSize < uint(width) {
		windowSize = uint(width)
	}
	step := windowSize - uint(width) + 1

	var matches []Match
	for chunk := uint(0); chunk < region.Size; chunk += step {
		readLen := windowSize
		if chunk+readLen > region.Size {
			readLen = region.Size - chunk
		}
		if readLen < uint(width) {
			break
		}

		base := region.Address + uint64(chunk)
		window, err := proc.ReadMemory(process.ProcessMemoryAddress(base), process.ProcessMemorySize(readLen))
		if err != nil {
			return nil, err
		}

		for i := 0; i+width <= len(window); i++ {
			addr := base + uint64(i)
			if s.alignment > 1 && addr%uint64(s.alignment) != 0 {
				continue
			}
			if pred(window, i) {
				value := make([]byte, width)
				copy(value, window[i:i+width])
				matches = append(matches, Match{
					Address: process.ProcessMemoryAddress(addr),
					Value:   value,
				})
			}
		}
	}

	return matches, nil
}

func candidateRegions(proc process.Process, filter Filter) ([]memory_map.MemoryMapItem, error) {
	if err := proc.UpdateMemoryMap(); err != nil {
		return nil, err
	}
	memMap, err := proc.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	var regions []memory_map.MemoryMapItem
	for _, item := range memMap {
		if filter.match(item) {
			regions = append(regions, item)
		}
	}
	return regions, nil
}

// isFatalScanError separates errors that end the whole pass from the
// per-region failures a pass absorbs as partial coverage.
func isFatalScanError(err error) bool {
	return errors.Is(err, process.ErrProcessGone) || errors.Is(err, process.ErrNotAttached)
}
