package tuning

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_ConfigMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Defaults()
	if !reflect.DeepEqual(got.Performance, want.Performance) {
		t.Fatalf("performance mismatch:\n got=%+v\nwant=%+v", got.Performance, want.Performance)
	}
	if !reflect.DeepEqual(got.NPC, want.NPC) {
		t.Fatalf("npc mismatch:\n got=%+v\nwant=%+v", got.NPC, want.NPC)
	}
	if !reflect.DeepEqual(got.Difficulties, want.Difficulties) {
		t.Fatalf("difficulties mismatch")
	}
	if !reflect.DeepEqual(got.FameTiers, want.FameTiers) {
		t.Fatalf("fame tiers mismatch")
	}
}

func TestLoad_PartialOverridesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("npc:\n  tracks_per_week: 3\n  quality_min: 65\n  quality_max: 95\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.NPC.TracksPerWeek != 3 {
		t.Fatalf("tracks_per_week=%d want 3", got.NPC.TracksPerWeek)
	}
	if got.Performance.CatalogFloor != 0.005 {
		t.Fatalf("catalog floor lost: %v", got.Performance.CatalogFloor)
	}
}

func TestLoad_RejectsUnknownDefaultDifficulty(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("default_difficulty: nightmare\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unknown default difficulty")
	}
}

func TestDifficultyFor_FallsBack(t *testing.T) {
	tu := Defaults()
	if got := tu.DifficultyFor("???"); got != tu.Difficulties["normal"] {
		t.Fatalf("fallback=%+v want normal", got)
	}
}

func TestLoad_SortsStabilityTiers(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	body := "performance:\n  stability:\n    - { min_quality: 0, stability: 0.7 }\n    - { min_quality: 90, stability: 0.95 }\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Performance.Stability[0].MinQuality != 90 {
		t.Fatalf("stability not sorted: %+v", got.Performance.Stability)
	}
}
