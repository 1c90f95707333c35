package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"charttopper.fm/internal/sim/model"
)

//go:embed defaults/*.json
var defaultFS embed.FS

type Catalogs struct {
	Charts ChartCatalog
	Certs  CertCatalog
	Vocab  VocabCatalog
	Roster RosterCatalog
}

type ChartCatalog struct {
	Order  []model.ChartID
	ByID   map[model.ChartID]ChartDef
	Digest string
}

type ChartDef struct {
	ID   model.ChartID `json:"id"`
	Name string        `json:"name"`
	Size int           `json:"size"`
	Kind model.Kind    `json:"kind"`

	// ExcludeEverOn drops anything that has history on the named chart.
	ExcludeEverOn model.ChartID `json:"exclude_ever_on,omitempty"`

	// MinUnits is an absolute weekly floor regardless of tenure.
	MinUnits  float64        `json:"min_units,omitempty"`
	Evictions []EvictionRule `json:"evictions,omitempty"`
}

// EvictionRule drops entries that have spent more than AfterWeeks on the
// chart and did fewer than BelowUnits this week.
type EvictionRule struct {
	AfterWeeks int     `json:"after_weeks"`
	BelowUnits float64 `json:"below_units"`
}

type CertCatalog struct {
	// Ladder is ordered by threshold, highest first.
	Ladder []CertTier
	Digest string
}

type CertTier struct {
	Level      model.CertLevel `json:"level"`
	Threshold  int64           `json:"threshold"`
	Multiplier int             `json:"multiplier,omitempty"`
	Template   string          `json:"template"`
}

type VocabCatalog struct {
	Genres     []string `json:"genres"`
	Moods      []string `json:"moods"`
	Topics     []string `json:"topics"`
	Outlets    []string `json:"outlets"`
	Handles    []string `json:"handles"`
	TitleWords []string `json:"title_words"`
	AlbumWords []string `json:"album_words"`
	Digest     string   `json:"-"`
}

type RosterCatalog struct {
	Artists []model.NPCArtist
	Digest  string
}

// Load reads each catalog file from configDir. A file missing from
// configDir (or an empty configDir) falls back to the compiled-in default.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadCharts(configDir, &c.Charts); err != nil {
		return nil, err
	}
	if err := loadCerts(configDir, &c.Certs); err != nil {
		return nil, err
	}
	if err := loadVocab(configDir, &c.Vocab); err != nil {
		return nil, err
	}
	if err := loadRoster(configDir, &c.Roster); err != nil {
		return nil, err
	}
	return &c, nil
}

// Defaults returns the compiled-in catalogs.
func Defaults() *Catalogs {
	c, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("catalogs: bad embedded defaults: %v", err))
	}
	return c
}

// Digest identifies the full catalog set; saves record it so a replay can
// refuse to run against different reference data.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(strings.Join([]string{
		c.Charts.Digest, c.Certs.Digest, c.Vocab.Digest, c.Roster.Digest,
	}, "\n")))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readCatalog(configDir, name string) ([]byte, error) {
	if configDir != "" {
		raw, err := os.ReadFile(filepath.Join(configDir, name))
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return defaultFS.ReadFile("defaults/" + name)
}

func loadCharts(configDir string, out *ChartCatalog) error {
	raw, err := readCatalog(configDir, "charts.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ChartDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("charts.json: %w", err)
	}
	out.ByID = map[model.ChartID]ChartDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("charts.json: empty id")
		}
		if !knownChart(d.ID) {
			return fmt.Errorf("charts.json: unknown chart %q", d.ID)
		}
		if d.Size <= 0 {
			return fmt.Errorf("charts.json: %s size must be > 0", d.ID)
		}
		if d.Kind != model.KindTrack && d.Kind != model.KindProject {
			return fmt.Errorf("charts.json: %s has bad kind %q", d.ID, d.Kind)
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("charts.json: duplicate id %s", d.ID)
		}
		out.ByID[d.ID] = d
	}
	for _, d := range out.ByID {
		if d.ExcludeEverOn == "" {
			continue
		}
		if _, ok := out.ByID[d.ExcludeEverOn]; !ok {
			return fmt.Errorf("charts.json: %s excludes undefined chart %s", d.ID, d.ExcludeEverOn)
		}
	}
	// Ranking order is fixed by the model, not by file order: exclusion
	// rules need the main chart ranked first.
	out.Order = out.Order[:0]
	for _, id := range model.ChartIDs {
		if _, ok := out.ByID[id]; !ok {
			return fmt.Errorf("charts.json: missing %s", id)
		}
		out.Order = append(out.Order, id)
	}
	return nil
}

func knownChart(id model.ChartID) bool {
	for _, k := range model.ChartIDs {
		if k == id {
			return true
		}
	}
	return false
}

func loadCerts(configDir string, out *CertCatalog) error {
	raw, err := readCatalog(configDir, "certifications.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var tiers []CertTier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return fmt.Errorf("certifications.json: %w", err)
	}
	if len(tiers) == 0 {
		return fmt.Errorf("certifications.json: empty ladder")
	}
	seen := map[int64]bool{}
	for _, t := range tiers {
		if t.Level == "" {
			return fmt.Errorf("certifications.json: empty level")
		}
		if t.Threshold <= 0 {
			return fmt.Errorf("certifications.json: %s threshold must be > 0", t.Level)
		}
		if seen[t.Threshold] {
			return fmt.Errorf("certifications.json: duplicate threshold %d", t.Threshold)
		}
		seen[t.Threshold] = true
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Threshold > tiers[j].Threshold })
	out.Ladder = tiers
	return nil
}

func loadVocab(configDir string, out *VocabCatalog) error {
	raw, err := readCatalog(configDir, "vocab.json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("vocab.json: %w", err)
	}
	out.Digest = sha256Hex(raw)
	lists := []struct {
		name string
		v    []string
	}{
		{"genres", out.Genres},
		{"moods", out.Moods},
		{"topics", out.Topics},
		{"outlets", out.Outlets},
		{"handles", out.Handles},
		{"title_words", out.TitleWords},
		{"album_words", out.AlbumWords},
	}
	for _, l := range lists {
		if len(l.v) == 0 {
			return fmt.Errorf("vocab.json: %s must not be empty", l.name)
		}
	}
	return nil
}

func loadRoster(configDir string, out *RosterCatalog) error {
	raw, err := readCatalog(configDir, "roster.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var artists []model.NPCArtist
	if err := json.Unmarshal(raw, &artists); err != nil {
		return fmt.Errorf("roster.json: %w", err)
	}
	if len(artists) == 0 {
		return fmt.Errorf("roster.json: empty roster")
	}
	seen := map[string]bool{}
	for _, a := range artists {
		if a.Name == "" || a.Tier == "" {
			return fmt.Errorf("roster.json: artist needs name and tier")
		}
		if seen[a.Name] {
			return fmt.Errorf("roster.json: duplicate artist %q", a.Name)
		}
		seen[a.Name] = true
	}
	out.Artists = artists
	return nil
}

// CheckTiers reports roster artists whose tier is missing from tiers.
func (r RosterCatalog) CheckTiers(has func(tier string) bool) error {
	for _, a := range r.Artists {
		if !has(a.Tier) {
			return fmt.Errorf("roster: artist %q has unknown tier %q", a.Name, a.Tier)
		}
	}
	return nil
}

// Render fills {title}, {artist}, {units} and {multiplier} in the tier's template.
func (t CertTier) Render(title, artist string, units int64) string {
	return strings.NewReplacer(
		"{title}", title,
		"{artist}", artist,
		"{units}", strconv.FormatInt(units, 10),
		"{multiplier}", strconv.Itoa(t.Multiplier),
	).Replace(t.Template)
}

// Chart returns the definition for id; ok is false for unknown charts.
func (c ChartCatalog) Chart(id model.ChartID) (ChartDef, bool) {
	d, ok := c.ByID[id]
	return d, ok
}
