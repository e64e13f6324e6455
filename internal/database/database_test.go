package database

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"curator/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := NewDatabase(filepath.Join(t.TempDir(), "registry", "curator.db"), logger)
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecentDatasets(t *testing.T) {
	db := newTestDatabase(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []models.RecentDataset{
		{Path: "/data/a", Name: "a", NumSamples: 10, Captioned: 2, LastOpened: base},
		{Path: "/data/b", Name: "b", NumSamples: 5, Captioned: 5, LastOpened: base.Add(time.Hour)},
		{Path: "/data/c", Name: "c", ManifestPath: "/data/c/c.json", LastOpened: base.Add(2 * time.Hour)},
	}
	for _, e := range entries {
		if err := db.RecordOpen(e); err != nil {
			t.Fatalf("RecordOpen failed: %v", err)
		}
	}

	recent, err := db.RecentDatasets(2)
	if err != nil {
		t.Fatalf("RecentDatasets failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(recent))
	}
	if recent[0].Path != "/data/c" || recent[1].Path != "/data/b" {
		t.Errorf("expected most recent first, got %s, %s", recent[0].Path, recent[1].Path)
	}
	if recent[0].ManifestPath != "/data/c/c.json" {
		t.Errorf("expected manifest path to be stored, got %q", recent[0].ManifestPath)
	}
	if !recent[1].LastOpened.Equal(base.Add(time.Hour)) {
		t.Errorf("expected last opened %v, got %v", base.Add(time.Hour), recent[1].LastOpened)
	}

	all, err := db.RecentDatasets(0)
	if err != nil {
		t.Fatalf("RecentDatasets failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 datasets, got %d", len(all))
	}
}

func TestRecordOpenUpdatesExisting(t *testing.T) {
	db := newTestDatabase(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.RecordOpen(models.RecentDataset{Path: "/data/a", Name: "a", LastOpened: base}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordOpen(models.RecentDataset{Path: "/data/b", Name: "b", LastOpened: base.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordOpen(models.RecentDataset{Path: "/data/a", Name: "renamed", NumSamples: 7, Captioned: 3}); err != nil {
		t.Fatal(err)
	}

	recent, err := db.RecentDatasets(10)
	if err != nil {
		t.Fatalf("RecentDatasets failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(recent))
	}
	first := recent[0]
	if first.Path != "/data/a" || first.Name != "renamed" || first.NumSamples != 7 || first.Captioned != 3 {
		t.Errorf("expected refreshed entry first, got %+v", first)
	}
	if first.LastOpened.Before(base.Add(time.Minute)) {
		t.Errorf("expected zero LastOpened to be stamped with now, got %v", first.LastOpened)
	}
}

func TestRemoveDataset(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.RecordOpen(models.RecentDataset{Path: "/data/a", Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := db.RemoveDataset("/data/a"); err != nil {
		t.Fatalf("RemoveDataset failed: %v", err)
	}
	if err := db.RemoveDataset("/data/unknown"); err != nil {
		t.Errorf("expected removing an unknown path to succeed, got %v", err)
	}

	recent, err := db.RecentDatasets(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("expected empty registry, got %+v", recent)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curator.db")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := NewDatabase(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordOpen(models.RecentDataset{Path: "/data/a", Name: "a"}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = NewDatabase(path, logger)
	if err != nil {
		t.Fatalf("expected reopen with migrations to succeed, got %v", err)
	}
	defer db.Close()

	recent, err := db.RecentDatasets(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Name != "a" {
		t.Errorf("expected persisted entry, got %+v", recent)
	}
}
