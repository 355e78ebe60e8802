package scanmodel

import "strings"

// NoExtension is the sentinel file-extension key used when a file name has
// no dot (or the part after the last dot is empty).
const NoExtension = "no-extension"

// Extension derives the lowercased substring after the last dot in a file
// name, or NoExtension if there isn't one.
func Extension(fileName string) string {
	idx := strings.LastIndexByte(fileName, '.')
	if idx == -1 || idx == len(fileName)-1 {
		return NoExtension
	}
	return strings.ToLower(fileName[idx+1:])
}

// SubAggregate is a per-dimension (project or extension) rolling tally.
type SubAggregate struct {
	DisplayName    string
	Files          int64
	Bytes          int64
	DuplicateFiles int64
	DuplicateBytes int64
}

// ScanStatistics holds a scan's rolling aggregates. It is owned and
// mutated exclusively by the orchestrator driver goroutine: all updates
// happen after a Download Pool batch is awaited, so no locking is needed
// here even though the numbers feed a concurrent pipeline upstream.
type ScanStatistics struct {
	TotalFiles      int64
	TotalBytes      int64
	CanonicalFiles  int64
	DuplicateFiles  int64
	DuplicateBytes  int64

	ByProject   map[string]*SubAggregate
	ByExtension map[string]*SubAggregate
}

// NewScanStatistics returns a zeroed ScanStatistics ready to accumulate.
func NewScanStatistics() *ScanStatistics {
	return &ScanStatistics{
		ByProject:   make(map[string]*SubAggregate),
		ByExtension: make(map[string]*SubAggregate),
	}
}

func (s *ScanStatistics) subAgg(m map[string]*SubAggregate, key, displayName string) *SubAggregate {
	agg, ok := m[key]
	if !ok {
		agg = &SubAggregate{DisplayName: displayName}
		m[key] = agg
	}
	return agg
}

// RecordCanonical folds in the first-seen sighting of a fingerprint.
func (s *ScanStatistics) RecordCanonical(fileName, projectKey, projectName string, size int64) {
	s.TotalFiles++
	s.TotalBytes += size
	s.CanonicalFiles++

	ext := Extension(fileName)
	proj := s.subAgg(s.ByProject, projectKey, projectName)
	proj.Files++
	proj.Bytes += size

	extAgg := s.subAgg(s.ByExtension, ext, ext)
	extAgg.Files++
	extAgg.Bytes += size
}

// RecordDuplicate folds in a subsequent sighting of a known fingerprint.
// The global and per-dimension duplicate counters are updated from this
// single call site so they can never drift apart (resolves the Open
// Question on per-project counter consistency in spec.md §9).
func (s *ScanStatistics) RecordDuplicate(fileName, projectKey, projectName string, size int64) {
	s.TotalFiles++
	s.TotalBytes += size
	s.DuplicateFiles++
	s.DuplicateBytes += size

	ext := Extension(fileName)
	proj := s.subAgg(s.ByProject, projectKey, projectName)
	proj.Files++
	proj.Bytes += size
	proj.DuplicateFiles++
	proj.DuplicateBytes += size

	extAgg := s.subAgg(s.ByExtension, ext, ext)
	extAgg.Files++
	extAgg.Bytes += size
	extAgg.DuplicateFiles++
	extAgg.DuplicateBytes += size
}
