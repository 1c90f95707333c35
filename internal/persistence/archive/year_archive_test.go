package archive

import (
	"os"
	"path/filepath"
	"testing"

	"charttopper.fm/internal/persistence/snapshot"
)

func TestArchiveYearSaveCopiesYearEnd(t *testing.T) {
	gameDir := filepath.Join(t.TempDir(), "games", "g1")
	src := filepath.Join(gameDir, "saves", snapshot.FileName(104))
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	year, archivedPath, ok, err := ArchiveYearSave(gameDir, src, snapshot.Header{Week: 104, Seed: 42, StateDigest: "abc"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || year != 2 {
		t.Fatalf("ok=%v year=%d want 2", ok, year)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content=%q want %q", got, want)
	}
	meta, err := ReadYearMeta(gameDir, 2)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.EndWeek != 104 || meta.Seed != 42 || meta.StateDigest != "abc" || meta.Save != filepath.Base(src) {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveYearSaveSkipsMidYear(t *testing.T) {
	for _, w := range []int{0, 13, 51, 53} {
		_, _, ok, err := ArchiveYearSave(t.TempDir(), "missing", snapshot.Header{Week: w})
		if err != nil || ok {
			t.Fatalf("week %d: ok=%v err=%v", w, ok, err)
		}
	}
}
