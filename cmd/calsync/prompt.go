package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/calsync/calsync/pkg/fetch_window"
	"github.com/calsync/calsync/pkg/grid"
)

const promptHelp = `commands:
  n, p                  next or previous view
  t                     back to today
  v <mode>              switch to month, week, day or agenda
  g <date>              go to date (2006-01-02)
  r                     refresh now
  new <start> <end> <title>
                        create an event, dates alone make it all-day
  edit <id> <title>     rename an event
  x <id>                toggle selection
  a                     archive the selection
  d <id>                delete an event
  h                     this help`

var errUnknownCommand = errors.New("unknown command, type h for help")

// prompt drives a grid controller from typed commands.
type prompt struct {
	controller *grid.Controller
	location   *time.Location
	now        func() time.Time
	out        io.Writer
}

func (p *prompt) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]

	switch fields[0] {
	case "n":
		return p.controller.Step(1)
	case "p":
		return p.controller.Step(-1)
	case "t":
		return p.controller.Navigate(p.controller.Window().ViewMode, p.now().In(p.location))
	case "v":
		if len(args) != 1 {
			return errUnknownCommand
		}
		mode, err := fetch_window.ParseViewMode(args[0])
		if err != nil {
			return err
		}
		return p.controller.Navigate(mode, p.controller.Window().Start)
	case "g":
		if len(args) != 1 {
			return errUnknownCommand
		}
		anchor, err := fetch_window.ParseAnchor(args[0], p.location)
		if err != nil {
			return err
		}
		return p.controller.Navigate(p.controller.Window().ViewMode, anchor)
	case "r":
		p.controller.Scheduler().OnFocus()
		return nil
	case "new":
		if len(args) < 3 {
			return errUnknownCommand
		}
		return p.create(ctx, args[0], args[1], strings.Join(args[2:], " "))
	case "edit":
		if len(args) < 2 {
			return errUnknownCommand
		}
		return p.rename(ctx, args[0], strings.Join(args[1:], " "))
	case "x":
		if len(args) != 1 {
			return errUnknownCommand
		}
		if p.controller.ToggleSelection(args[0]) {
			fmt.Fprintf(p.out, "selected %s\n", args[0])
		} else {
			fmt.Fprintf(p.out, "deselected %s\n", args[0])
		}
		return nil
	case "a":
		return reportArchive(p.out, p.controller.ArchiveSelected(ctx))
	case "d":
		if len(args) != 1 {
			return errUnknownCommand
		}
		if _, err := p.controller.SelectEvent(args[0]); err != nil {
			return err
		}
		result, err := p.controller.DeleteFocused(ctx)
		if err != nil {
			return err
		}
		return reportArchive(p.out, result)
	case "h", "help":
		fmt.Fprintln(p.out, promptHelp)
		return nil
	}
	return errUnknownCommand
}

// create selects the slot between start and end, which are inclusive dates or
// RFC3339 times, and saves it under title.
func (p *prompt) create(ctx context.Context, start, end, title string) error {
	from, err := fetch_window.ParseAnchor(start, p.location)
	if err != nil {
		return err
	}
	to, err := fetch_window.ParseAnchor(end, p.location)
	if err != nil {
		return err
	}
	if isDate(end) {
		to = to.AddDate(0, 0, 1)
	}

	p.controller.SelectSlot(from, to)
	if err := p.controller.EditDraft(func(d *grid.Draft) { d.Title = title }); err != nil {
		return err
	}
	saved, err := p.controller.SaveDraft(ctx)
	if err != nil {
		p.controller.CancelDraft()
		return err
	}
	fmt.Fprintf(p.out, "created %s\n", saved.Id)
	return nil
}

func (p *prompt) rename(ctx context.Context, id, title string) error {
	if _, err := p.controller.SelectEvent(id); err != nil {
		return err
	}
	if err := p.controller.EditDraft(func(d *grid.Draft) { d.Title = title }); err != nil {
		return err
	}
	if _, err := p.controller.SaveDraft(ctx); err != nil {
		p.controller.CancelDraft()
		return err
	}
	fmt.Fprintf(p.out, "updated %s\n", id)
	return nil
}

func isDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
