package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/calsync/calsync/pkg/archive"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/fetch_window"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	dayStyle     = lipgloss.NewStyle().Bold(true)
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	managedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type viewState struct {
	Window  fetch_window.FetchWindow
	Events  []calendar_event.CalendarEvent
	Loading bool
	Err     error
}

// renderView prints the events of the window grouped by their start day.
func renderView(w io.Writer, state viewState, location *time.Location) {
	start := state.Window.Start.In(location)
	last := state.Window.End.In(location).AddDate(0, 0, -1)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s  %s to %s", state.Window.ViewMode, start.Format("Mon 02 Jan 2006"), last.Format("Mon 02 Jan 2006"))))
	if state.Err != nil {
		fmt.Fprintln(w, errorStyle.Render("error: "+state.Err.Error()))
	}
	if len(state.Events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}

	events := make([]calendar_event.CalendarEvent, len(state.Events))
	copy(events, state.Events)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].AllDay() != events[j].AllDay() && sameDay(events[i].Start, events[j].Start, location) {
			return events[i].AllDay()
		}
		return events[i].Start.Before(events[j].Start)
	})

	var day string
	for _, e := range events {
		if d := e.Start.In(location).Format("Mon 02 Jan"); d != day {
			day = d
			fmt.Fprintln(w, dayStyle.Render(day))
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", timeStyle.Render(timeRange(e, location)), eventTitle(e), timeStyle.Render(e.Id))
	}
}

func timeRange(e calendar_event.CalendarEvent, location *time.Location) string {
	if e.AllDay() {
		if sameDay(e.Start, e.End, location) {
			return "all day    "
		}
		return "until " + e.End.In(location).Format("02 Jan")
	}
	return e.Start.In(location).Format("15:04") + "-" + e.End.In(location).Format("15:04")
}

func eventTitle(e calendar_event.CalendarEvent) string {
	if e.ProviderManaged() {
		return managedStyle.Render(e.Title + " [google]")
	}
	return e.Title
}

func sameDay(a, b time.Time, location *time.Location) bool {
	ay, am, ad := a.In(location).Date()
	by, bm, bd := b.In(location).Date()
	return ay == by && am == bm && ad == bd
}

// reportArchive prints the outcome per id and fails when any id could not be archived.
func reportArchive(w io.Writer, result archive.Result) error {
	for _, id := range result.Archived {
		fmt.Fprintf(w, "archived %s\n", id)
	}
	for _, f := range result.Failed {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("failed %s: %v", f.Id, f.Err)))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d events could not be archived", len(result.Failed), len(result.Failed)+len(result.Archived))
	}
	return nil
}
