// Package scanmodel defines the in-memory, statically typed record shapes
// that make up a scan's live state: the Scan itself, its rolling
// ScanStatistics, and the DuplicateGroup catalog keyed by content
// fingerprint.
//
// The source system this was modeled on kept these as loosely typed
// dictionaries; here they are explicit tagged records, per the "dynamic
// per-record dictionaries -> tagged records" design note.
package scanmodel

import (
	"time"
)

// Status is the lifecycle state of a Scan.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Scan is a single top-level run of the pipeline over a search predicate.
type Scan struct {
	ID              string
	Status          Status
	TotalIssues     int
	ProcessedIssues int
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
	Predicate       string
	Config          RunConfig
}

// RunConfig is a snapshot of the configuration in effect when a scan
// started, persisted alongside the scan so a resume uses the same knobs.
type RunConfig struct {
	PageSize             int
	WorkerCount          int
	MaxFileBytes         int64
	DownloadTimeout      time.Duration
	RateLimitPerSecond   float64
	UseContentHash       bool
	CheckpointInterval   int
}

// HashSource tags how a fingerprint was obtained, replacing the source
// system's implicit "whatever the function happened to return" convention
// with an explicit sum type (per "exceptions for control flow -> explicit
// outcomes").
type HashSource int

const (
	// HashSourceContent means the fingerprint covers the attachment's
	// actual downloaded bytes.
	HashSourceContent HashSource = iota
	// HashSourceURLFallback means content download failed (truncation,
	// timeout, I/O error) and the fingerprint covers the content URL
	// string instead.
	HashSourceURLFallback
	// HashSourceOversizeSkip means the attachment was never fetched
	// because its declared size exceeded the configured maximum.
	HashSourceOversizeSkip
)

func (h HashSource) String() string {
	switch h {
	case HashSourceContent:
		return "content"
	case HashSourceURLFallback:
		return "url-fallback"
	case HashSourceOversizeSkip:
		return "oversize-skip"
	default:
		return "unknown"
	}
}

// MaxLocations bounds the number of Location records kept per
// DuplicateGroup. This is an intentional memory bound (see spec invariant
// 1 / design note on bounded windows), not a bug: duplicate_count keeps
// counting past this cap even once Locations stops growing.
const MaxLocations = 20

// Location is one sighting of a fingerprint: a specific attachment on a
// specific issue.
type Location struct {
	IssueKey     string
	ProjectKey   string
	AttachmentID string
	IsCanonical  bool
	DateAdded    time.Time
	AuthorName   string
}

// DuplicateGroup is every known sighting of attachments sharing a content
// fingerprint.
type DuplicateGroup struct {
	Fingerprint      string
	FileName         string
	FileSize         int64
	MediaType        string
	CanonicalIssue   string
	CanonicalAttachmentID string
	HashSource       HashSource

	DuplicateCount     int
	TotalWastedSpace   int64

	AuthorDisplayName string
	AuthorID          string
	CreatedAt         time.Time

	CanonicalIssueStatus         string
	CanonicalIssueStatusCategory string
	CanonicalIssueLastUpdated    time.Time

	Locations []Location
}

// locationsSeen is the *actual* number of sightings, which may exceed
// len(Locations) once the MaxLocations cap has been hit. DuplicateCount is
// maintained as locationsSeen-1 directly rather than derived from
// len(Locations), so the cap never corrupts the arithmetic invariant.
func (g *DuplicateGroup) locationsSeen() int {
	return g.DuplicateCount + 1
}

// AddCanonical records the first sighting of a fingerprint.
func AddCanonical(fingerprint, fileName string, fileSize int64, mediaType string, source HashSource, loc Location, authorName, authorID string, createdAt time.Time, issueStatus, issueStatusCategory string, issueUpdated time.Time) *DuplicateGroup {
	loc.IsCanonical = true
	return &DuplicateGroup{
		Fingerprint:                  fingerprint,
		FileName:                     fileName,
		FileSize:                     fileSize,
		MediaType:                    mediaType,
		CanonicalIssue:               loc.IssueKey,
		CanonicalAttachmentID:        loc.AttachmentID,
		HashSource:                   source,
		DuplicateCount:               0,
		TotalWastedSpace:             0,
		AuthorDisplayName:            authorName,
		AuthorID:                     authorID,
		CreatedAt:                    createdAt,
		CanonicalIssueStatus:         issueStatus,
		CanonicalIssueStatusCategory: issueStatusCategory,
		CanonicalIssueLastUpdated:    issueUpdated,
		Locations:                    []Location{loc},
	}
}

// AddDuplicate folds in a subsequent sighting of an already-known
// fingerprint. Per spec invariant 1, duplicate_count and total_wasted are
// updated unconditionally; the location is appended only while the cap
// hasn't been reached yet (additional locations are lost, but the counts
// still reflect reality).
func (g *DuplicateGroup) AddDuplicate(loc Location) {
	g.DuplicateCount++
	g.TotalWastedSpace += g.FileSize
	if len(g.Locations) < MaxLocations {
		loc.IsCanonical = false
		g.Locations = append(g.Locations, loc)
	}
}

// Checkpoint marks the pagination resume point for a scan.
type Checkpoint struct {
	ScanID        string
	LastOffset    int
	LastIssueKey  string
	CheckpointedAt time.Time
}

// QuickWin is a duplicate group surfaced as a top-N "this one's worth
// cleaning up first" result.
type QuickWin struct {
	Fingerprint      string
	FileName         string
	TotalWastedSpace int64
	DuplicateCount   int
}

// Result is the finalized handoff document to reporting collaborators.
type Result struct {
	Scan           Scan
	Stats          ScanStatistics
	DuplicateGroups map[string]*DuplicateGroup
	QuickWins      []QuickWin
}
