package engine

import (
	"fmt"
	"time"

	"charttopper.fm/internal/sim/model"
)

type DecisionKind string

const (
	DecideRecordTrack   DecisionKind = "record_track"
	DecideRecordProject DecisionKind = "record_project"
	DecideSchedule      DecisionKind = "schedule"
	DecidePromote       DecisionKind = "promote"
)

// Decision is one studio action taken between weeks. Decisions are logged
// with the week they precede so a replay can apply them again.
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	Track   *TrackSpec   `json:"track,omitempty"`
	Project *ProjectSpec `json:"project,omitempty"`

	// Schedule and promote target.
	ID string    `json:"id,omitempty"`
	At time.Time `json:"at,omitempty"`

	Promotion model.PromotionType `json:"promotion,omitempty"`
	Budget    float64             `json:"budget,omitempty"`
	Weeks     int                 `json:"weeks,omitempty"`
}

// Apply runs d against s. The returned id is the new entity for record
// decisions and the target otherwise.
func Apply(s model.State, d Decision) (model.State, string, error) {
	switch d.Kind {
	case DecideRecordTrack:
		if d.Track == nil {
			return s, "", fmt.Errorf("record_track needs a track")
		}
		if err := checkTrack(*d.Track); err != nil {
			return s, "", err
		}
		next, id := RecordTrack(s, *d.Track)
		return next, id, nil
	case DecideRecordProject:
		if d.Project == nil {
			return s, "", fmt.Errorf("record_project needs a project")
		}
		if len(d.Project.Tracks) == 0 {
			return s, "", fmt.Errorf("project %q has no tracks", d.Project.Title)
		}
		switch d.Project.Type {
		case model.ProjectAlbum, model.ProjectEP, model.ProjectMixtape:
		default:
			return s, "", fmt.Errorf("unknown project type %q", d.Project.Type)
		}
		for _, t := range d.Project.Tracks {
			if err := checkTrack(t); err != nil {
				return s, "", err
			}
		}
		next, id := RecordProject(s, *d.Project)
		return next, id, nil
	case DecideSchedule:
		if d.At.IsZero() {
			return s, "", fmt.Errorf("schedule needs a date")
		}
		if model.Day(d.At).Before(model.Day(s.Date)) {
			return s, "", fmt.Errorf("release date %s is before %s", d.At.Format("2006-01-02"), s.Date.Format("2006-01-02"))
		}
		next, err := Schedule(s, d.ID, d.At)
		return next, d.ID, err
	case DecidePromote:
		switch d.Promotion {
		case model.PromotionPlaylist, model.PromotionRadio, model.PromotionSocial, model.PromotionTV:
		default:
			return s, "", fmt.Errorf("unknown promotion type %q", d.Promotion)
		}
		next, err := Promote(s, d.Promotion, d.ID, d.Budget, d.Weeks)
		return next, d.ID, err
	default:
		return s, "", fmt.Errorf("unknown decision %q", d.Kind)
	}
}

// ApplyAll applies ds in order. A failing decision is skipped; its error is
// returned at the same index.
func ApplyAll(s model.State, ds []Decision) (model.State, []error) {
	var errs []error
	for i, d := range ds {
		next, _, err := Apply(s, d)
		if err != nil {
			if errs == nil {
				errs = make([]error, len(ds))
			}
			errs[i] = err
			continue
		}
		s = next
	}
	return s, errs
}

func checkTrack(t TrackSpec) error {
	if t.Title == "" {
		return fmt.Errorf("track needs a title")
	}
	if t.Quality < 0 || t.Quality > 100 {
		return fmt.Errorf("track %q quality %d outside 0..100", t.Title, t.Quality)
	}
	return nil
}
