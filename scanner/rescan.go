package scanner

import (
	"fmt"
	"sort"

	"procmem/process"
	"procmem/process/memory_map"
)

// clusterGap is the largest gap between two matches that still shares one
// bulk read. Matches further apart than this get their own read, so sparse
// result sets never trigger huge spans.
const clusterGap = 4096

// Rescan narrows a prior result set: it re-reads only the matched
// addresses and keeps the matches whose current value satisfies the
// comparison against the value recorded by the prior pass. Kept matches
// carry the newly observed value, so rescans chain.
//
// Matches need not be dense or adjacent; runs of nearby matches are
// coalesced into one bulk read per cluster, isolated matches are read
// individually. Clusters never cross a region boundary, since both
// backends reject reads that span regions even when the mappings are
// adjacent.
func (s *Scanner) Rescan(proc process.Process, prior *Result, mode CompareMode) (*Result, error) {
	if prior == nil || prior.Width == 0 {
		return nil, fmt.Errorf("no prior result to narrow")
	}
	if mode.requiresOrder() && !prior.Type.Ordered() {
		return nil, fmt.Errorf("%s comparison needs a numeric value type", mode)
	}

	matches := make([]Match, len(prior.Matches))
	copy(matches, prior.Matches)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Address < matches[j].Address
	})

	s.log.Infoln("Narrowing", len(matches), "matches with", mode.String(), "comparison")

	defer suspendForPass(proc)()

	mm, err := proc.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	width := prior.Width
	result := &Result{Type: prior.Type, Width: width}

	for start := 0; start < len(matches); {
		end := clusterEnd(matches, start, width, mm)
		cluster := matches[start:end]

		base := cluster[0].Address
		span := process.ProcessMemorySize(uint64(cluster[len(cluster)-1].Address) - uint64(base) + uint64(width))

		data, err := proc.ReadMemory(base, span)
		if err != nil {
			if isFatalScanError(err) {
				return nil, err
			}
			// The cluster's memory went away (unmapped, permissions
			// changed). Its matches are dropped; report partial coverage.
			result.SkippedRegions++
			start = end
			continue
		}

		for _, m := range cluster {
			offset := uint64(m.Address) - uint64(base)
			observed := data[offset : offset+uint64(width)]

			keep, err := compare(prior.Type, mode, observed, m.Value)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}

			value := make([]byte, width)
			copy(value, observed)
			result.Matches = append(result.Matches, Match{Address: m.Address, Value: value})
		}

		start = end
	}

	s.log.Infoln("Narrowed to", len(result.Matches), "matches")
	return result, nil
}

// RescanValue narrows a prior result against a fixed reference value
// instead of each match's previously recorded value.
func (s *Scanner) RescanValue(proc process.Process, prior *Result, value Value, mode CompareMode) (*Result, error) {
	if prior == nil || prior.Width == 0 {
		return nil, fmt.Errorf("no prior result to narrow")
	}
	if mode.requiresBaseline() {
		return nil, fmt.Errorf("%s comparison uses each match's prior value, not a reference", mode)
	}
	if value.Type != prior.Type || value.Width() != prior.Width {
		return nil, fmt.Errorf("reference value type does not match prior result")
	}

	shadow := &Result{Type: prior.Type, Width: prior.Width}
	shadow.Matches = make([]Match, len(prior.Matches))
	for i, m := range prior.Matches {
		shadow.Matches[i] = Match{Address: m.Address, Value: value.Bytes}
	}

	return s.Rescan(proc, shadow, mode)
}

// clusterEnd extends the cluster starting at index start while the next
// match begins within clusterGap bytes of the previous one's end and
// still fits inside the region holding the cluster's first match.
func clusterEnd(matches []Match, start, width int, mm []memory_map.MemoryMapItem) int {
	region := memory_map.FindRegion(uint64(matches[start].Address), mm)
	end := start + 1
	for end < len(matches) {
		prevEnd := uint64(matches[end-1].Address) + uint64(width)
		next := uint64(matches[end].Address)
		if next > prevEnd+clusterGap {
			break
		}
		if region != nil && next+uint64(width) > region.End() {
			break
		}
		end++
	}
	return end
}
