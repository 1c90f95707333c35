package engine

import (
	"fmt"
	"math"

	"github.com/Rhymond/go-money"

	"charttopper.fm/internal/sim/ids"
	"charttopper.fm/internal/sim/mathx"
	"charttopper.fm/internal/sim/model"
	"charttopper.fm/internal/sim/narrative"
	"charttopper.fm/internal/sim/tuning"
)

// settleEconomy pays royalties, moves the listener average and updates
// reputation and streaks from this week's charts.
func (w *week) settleEconomy() {
	econ := w.s.tun.Economy
	p := w.player

	royalty := float64(w.playerStreams) * econ.RoyaltyPerStream * w.diff.RoyaltyMultiplier
	if royalty > 0 {
		p.Money += royalty
		cents := mathx.FloorInt64(math.Round(royalty * 100))
		w.economyNotes = append(w.economyNotes, model.Notification{
			ID:       ids.Notification(w.num, model.CategoryMoney, "royalties"),
			Message:  fmt.Sprintf("Streaming royalties: %s from %d streams.", money.New(cents, "USD").Display(), w.playerStreams),
			Category: model.CategoryMoney,
			Date:     w.date,
		})
	}

	p.MonthlyListeners = nextListeners(p.MonthlyListeners, w.playerStreams, w.diff.ListenerDecay, w.diff.ListenerInflow, econ)

	if p.MaxEnergy <= 0 {
		p.MaxEnergy = econ.DefaultMaxEnergy
	}
	p.Energy = p.MaxEnergy

	onHot100 := false
	numberOne := false
	rep := p.Reputation
	for _, e := range w.book.Hot100 {
		if e.NPC {
			continue
		}
		onHot100 = true
		if e.Movement == model.MovementNew {
			rep += econ.DebutReputation
		}
		if e.Rank == 1 {
			numberOne = true
			rep += econ.NumberOneRep
		}
	}
	for _, e := range w.book.Albums {
		if !e.NPC && e.Rank == 1 {
			numberOne = true
			rep += econ.NumberOneRep
		}
	}
	p.Reputation = mathx.Clamp(rep, 0, econ.MaxReputation)

	if onHot100 {
		p.Hot100StreakWeeks++
	} else {
		p.Hot100StreakWeeks = 0
	}
	if numberOne {
		p.NumberOneWeeks++
	}
	w.player = p

	w.firstWeekGoals()
}

// nextListeners decays the audience and adds new listeners from this week's
// streams. Inflow shrinks as the audience nears MaxListeners, so the result
// stays in [0, MaxListeners] however large streams get.
func nextListeners(cur, streams int64, decay, inflow float64, econ tuning.Economy) int64 {
	ceiling := float64(econ.MaxListeners)
	l := mathx.Clamp(float64(cur), 0, ceiling)
	headroom := 1 - l/ceiling
	gained := float64(streams) / econ.StreamsPerListener * inflow * headroom
	return mathx.FloorInt64(mathx.Clamp(l*(1-decay)+gained, 0, ceiling))
}

// firstWeekGoals reports on projects that just finished their release week.
func (w *week) firstWeekGoals() {
	for _, id := range model.SortedIDs(w.projects) {
		pr := w.projects[id]
		if pr.FirstWeekGoal <= 0 || !pr.ReleasedBy(w.date) || model.WeeksBetween(pr.Release.ReleasedAt, w.date) != 0 {
			continue
		}
		verdict := "missed"
		if pr.FirstWeekUnits >= pr.FirstWeekGoal {
			verdict = "beat"
		}
		w.economyNotes = append(w.economyNotes, model.Notification{
			ID:       ids.Notification(w.num, model.CategoryRelease, "first-week", pr.ID),
			Message:  fmt.Sprintf("%s %s its first-week goal: %d of %d units.", narrative.Quote(pr.Title), verdict, pr.FirstWeekUnits, pr.FirstWeekGoal),
			Category: model.CategoryRelease,
			Date:     w.date,
		})
	}
}
