package narrative

import (
	"fmt"
	"strings"

	"charttopper.fm/internal/sim/model"
)

// FlavorProvider writes the text of a post. Implementations must be
// synchronous and deterministic for a given event; an empty string falls
// back to the built-in templates.
type FlavorProvider interface {
	PostText(ev Event) string
}

// Templates is the built-in FlavorProvider.
type Templates struct{}

func (Templates) PostText(ev Event) string {
	what := Quote(ev.Title)
	switch ev.Kind {
	case model.PostDebut:
		return fmt.Sprintf("%s by %s debuts at #%d on the %s!", what, ev.Artist, ev.Rank, ev.ChartName)
	case model.PostDelayedDebut:
		return fmt.Sprintf("Slow burn: %s by %s finally enters the %s at #%d, %d weeks after release.", what, ev.Artist, ev.ChartName, ev.Rank, ev.DelayWeeks)
	case model.PostReEntry:
		return fmt.Sprintf("%s by %s is back on the %s at #%d.", what, ev.Artist, ev.ChartName, ev.Rank)
	case model.PostNewPeak:
		if ev.Rank == 1 {
			return fmt.Sprintf("%s by %s hits #1 on the %s!", what, ev.Artist, ev.ChartName)
		}
		return fmt.Sprintf("New peak! %s by %s climbs to #%d on the %s.", what, ev.Artist, ev.Rank, ev.ChartName)
	case model.PostDeparted:
		return fmt.Sprintf("%s by %s leaves the %s after %s, peaking at #%d.", what, ev.Artist, ev.ChartName, plural(ev.WeeksOnChart, "week"), ev.Peak)
	case model.PostFailedDebut:
		return fmt.Sprintf("%s by %s misses the charts in its first week.", what, ev.Artist)
	}
	return what
}

// Quote wraps a title in plain double quotes for player-facing text.
func Quote(s string) string {
	return "\"" + strings.TrimSpace(s) + "\""
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
