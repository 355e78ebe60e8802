package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ivoronin/attachmentscan/internal/scanmodel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadScanRoundTrip(t *testing.T) {
	s := openTestStore(t)
	scan := scanmodel.Scan{ID: "abcd1234", Status: scanmodel.StatusRunning, TotalIssues: 10, StartedAt: time.Now().UTC().Truncate(time.Second)}

	if err := s.SaveScan(scan); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	got, err := s.LoadScan(scan.ID)
	if err != nil {
		t.Fatalf("LoadScan: %v", err)
	}
	if got == nil || got.ID != scan.ID || got.TotalIssues != scan.TotalIssues {
		t.Errorf("got %+v, want %+v", got, scan)
	}
}

func TestLoadScanMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.LoadScan("nope")
	if err != nil {
		t.Fatalf("LoadScan: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing scan, got %+v", got)
	}
}

func TestSaveLoadGroups(t *testing.T) {
	s := openTestStore(t)
	groups := map[string]*scanmodel.DuplicateGroup{
		"H_a": {Fingerprint: "H_a", FileName: "a.bin", FileSize: 1000, DuplicateCount: 1, TotalWastedSpace: 1000},
		"H_b": {Fingerprint: "H_b", FileName: "b.bin", FileSize: 500},
	}
	if err := s.SaveGroups("scan1", groups); err != nil {
		t.Fatalf("SaveGroups: %v", err)
	}

	got, err := s.LoadGroups("scan1")
	if err != nil {
		t.Fatalf("LoadGroups: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d groups, want 2", len(got))
	}
	if got["H_a"].DuplicateCount != 1 || got["H_a"].TotalWastedSpace != 1000 {
		t.Errorf("H_a mismatch: %+v", got["H_a"])
	}
}

func TestGroupsIsolatedPerScan(t *testing.T) {
	s := openTestStore(t)
	_ = s.SaveGroups("scan1", map[string]*scanmodel.DuplicateGroup{"H": {Fingerprint: "H"}})
	_ = s.SaveGroups("scan2", map[string]*scanmodel.DuplicateGroup{"H2": {Fingerprint: "H2"}})

	g1, _ := s.LoadGroups("scan1")
	g2, _ := s.LoadGroups("scan2")
	if len(g1) != 1 || len(g2) != 1 {
		t.Fatalf("cross-scan contamination: g1=%v g2=%v", g1, g2)
	}
	if _, ok := g1["H2"]; ok {
		t.Errorf("scan1 should not see scan2's groups")
	}
}

func TestSaveProgressWritesAllCollections(t *testing.T) {
	s := openTestStore(t)
	scan := scanmodel.Scan{ID: "s1", Status: scanmodel.StatusRunning, ProcessedIssues: 50}
	stats := scanmodel.ScanStatistics{TotalFiles: 10, ByProject: map[string]*scanmodel.SubAggregate{}, ByExtension: map[string]*scanmodel.SubAggregate{}}
	groups := map[string]*scanmodel.DuplicateGroup{"H": {Fingerprint: "H"}}

	if err := s.SaveProgress(scan, stats, groups, "P-50", 100); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	gotScan, _ := s.LoadScan("s1")
	gotStats, _ := s.LoadStats("s1")
	gotGroups, _ := s.LoadGroups("s1")
	gotCP, _ := s.LoadCheckpoint("s1")

	if gotScan == nil || gotScan.ProcessedIssues != 50 {
		t.Errorf("scan not persisted: %+v", gotScan)
	}
	if gotStats == nil || gotStats.TotalFiles != 10 {
		t.Errorf("stats not persisted: %+v", gotStats)
	}
	if len(gotGroups) != 1 {
		t.Errorf("groups not persisted: %+v", gotGroups)
	}
	if gotCP == nil || gotCP.LastIssueKey != "P-50" || gotCP.LastOffset != 100 {
		t.Errorf("checkpoint not persisted: %+v", gotCP)
	}
}

func TestResetScanCascades(t *testing.T) {
	s := openTestStore(t)
	scan := scanmodel.Scan{ID: "s1"}
	_ = s.SaveProgress(scan, scanmodel.ScanStatistics{}, map[string]*scanmodel.DuplicateGroup{"H": {Fingerprint: "H"}}, "P-1", 10)

	if err := s.ResetScan("s1"); err != nil {
		t.Fatalf("ResetScan: %v", err)
	}

	gotScan, _ := s.LoadScan("s1")
	gotStats, _ := s.LoadStats("s1")
	gotGroups, _ := s.LoadGroups("s1")
	gotCP, _ := s.LoadCheckpoint("s1")

	if gotScan != nil || gotStats != nil || gotCP != nil || len(gotGroups) != 0 {
		t.Errorf("expected full cascade delete, got scan=%v stats=%v groups=%v cp=%v", gotScan, gotStats, gotGroups, gotCP)
	}
}

func TestFindIncompleteScans(t *testing.T) {
	s := openTestStore(t)
	_ = s.SaveScan(scanmodel.Scan{ID: "running1", Status: scanmodel.StatusRunning})
	_ = s.SaveScan(scanmodel.Scan{ID: "done1", Status: scanmodel.StatusCompleted})
	_ = s.SaveScan(scanmodel.Scan{ID: "running2", Status: scanmodel.StatusRunning})

	incomplete, err := s.FindIncompleteScans()
	if err != nil {
		t.Fatalf("FindIncompleteScans: %v", err)
	}
	if len(incomplete) != 2 {
		t.Fatalf("got %d incomplete scans, want 2", len(incomplete))
	}
}

func TestCleanupOlderThan(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().AddDate(0, 0, -5)

	_ = s.SaveScan(scanmodel.Scan{ID: "old", Status: scanmodel.StatusCompleted, CompletedAt: &old})
	_ = s.SaveScan(scanmodel.Scan{ID: "recent", Status: scanmodel.StatusCompleted, CompletedAt: &recent})
	_ = s.SaveScan(scanmodel.Scan{ID: "running", Status: scanmodel.StatusRunning})

	if err := s.CleanupOlderThan(30); err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}

	all, _ := s.ListScans()
	ids := map[string]bool{}
	for _, sc := range all {
		ids[sc.ID] = true
	}
	if ids["old"] {
		t.Errorf("old completed scan should have been cleaned up")
	}
	if !ids["recent"] || !ids["running"] {
		t.Errorf("recent/running scans should survive cleanup, got %v", ids)
	}
}
