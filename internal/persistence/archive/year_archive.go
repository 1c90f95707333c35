package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"charttopper.fm/internal/persistence/snapshot"
)

// WeeksPerYear is the length of a chart year.
const WeeksPerYear = 52

type YearArchiveMeta struct {
	Year           int    `json:"year"`
	EndWeek        int    `json:"end_week"`
	Seed           int64  `json:"seed"`
	Save           string `json:"save"`
	StateDigest    string `json:"state_digest"`
	CatalogsDigest string `json:"catalogs_digest"`
	CreatedAt      string `json:"created_at"`
}

// YearEnd reports whether week closes a chart year, and which.
func YearEnd(week int) (int, bool) {
	if week <= 0 || week%WeeksPerYear != 0 {
		return 0, false
	}
	return week / WeeksPerYear, true
}

// ArchiveYearSave copies a year-end save into gameDir/archives/year_NNN/ next
// to a meta.json. Saves from other weeks are left alone (archived=false).
func ArchiveYearSave(gameDir, savePath string, h snapshot.Header) (year int, archivedPath string, archived bool, err error) {
	year, ok := YearEnd(h.Week)
	if !ok {
		return 0, "", false, nil
	}

	dir := filepath.Join(gameDir, "archives", fmt.Sprintf("year_%03d", year))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(savePath))
	if err := copyFile(savePath, dst); err != nil {
		return 0, "", false, err
	}

	meta := YearArchiveMeta{
		Year:           year,
		EndWeek:        h.Week,
		Seed:           h.Seed,
		Save:           filepath.Base(dst),
		StateDigest:    h.StateDigest,
		CatalogsDigest: h.CatalogsDigest,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return year, dst, true, nil
}

// ReadYearMeta loads the meta.json of an archived year.
func ReadYearMeta(gameDir string, year int) (YearArchiveMeta, error) {
	var m YearArchiveMeta
	b, err := os.ReadFile(filepath.Join(gameDir, "archives", fmt.Sprintf("year_%03d", year), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
