package leaderboard

import (
	"fmt"
	"time"

	"github.com/tabanok/progression-engine/pkg/common"
	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
)

// Window names used in board keys and configuration.
const (
	WindowAllTime = "all_time"
	WindowDaily   = "daily"
	WindowWeekly  = "weekly"
	WindowMonthly = "monthly"
)

// Window is an inclusive [Start, End] time range a board is computed over.
// Zero bounds mean all time.
//
// Season and calendar-period windows are scored from the running tallies kept
// on each profile. Custom windows fall back to the bounded activity log.
type Window struct {
	Name     string    `json:"name"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	SeasonID string    `json:"season_id,omitempty"`

	period string // domain period kind backing this window, if any
}

// AllTime returns the unbounded window.
func AllTime() Window {
	return Window{Name: WindowAllTime, period: domain.PeriodAllTime}
}

// Daily returns the UTC day containing now.
func Daily(now time.Time) Window {
	return Window{
		Name:   WindowDaily,
		Start:  common.TruncateToDateUTC(now),
		End:    common.EndOfDateUTC(now).Add(-time.Nanosecond),
		period: domain.PeriodDay,
	}
}

// Weekly returns the Monday-based UTC week containing now.
func Weekly(now time.Time) Window {
	start := common.StartOfWeekUTC(now)
	return Window{Name: WindowWeekly, Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond), period: domain.PeriodWeek}
}

// Monthly returns the UTC month containing now.
func Monthly(now time.Time) Window {
	start := common.StartOfMonthUTC(now)
	return Window{Name: WindowMonthly, Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond), period: domain.PeriodMonth}
}

// Custom returns a named window with explicit inclusive bounds.
func Custom(name string, start, end time.Time) Window {
	return Window{Name: name, Start: start.UTC(), End: end.UTC()}
}

// Season returns the window of a catalog season.
func Season(s *domain.Season) Window {
	return Window{Name: "season:" + s.ID, Start: s.StartDate.UTC(), End: s.EndDate.UTC(), SeasonID: s.ID}
}

// tally returns the profile's running tally for the window, or false when the
// window has none and must be scored from the activity log.
func (w Window) tally(p *domain.Profile) (domain.Tally, bool) {
	switch {
	case w.SeasonID != "":
		return p.SeasonTallies[w.SeasonID], true
	case w.period != "":
		return p.PeriodTallies[domain.PeriodKey(w.period, w.Start)], true
	default:
		return domain.Tally{}, false
	}
}

// WindowFor resolves a window name relative to now.
func WindowFor(name string, now time.Time) (Window, error) {
	switch name {
	case WindowAllTime, "":
		return AllTime(), nil
	case WindowDaily:
		return Daily(now), nil
	case WindowWeekly:
		return Weekly(now), nil
	case WindowMonthly:
		return Monthly(now), nil
	default:
		return Window{}, errors.ErrValidationFailed("window", fmt.Sprintf("unknown window %q", name))
	}
}

// IsAllTime reports whether the window is unbounded.
func (w Window) IsAllTime() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether t lies in the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}
