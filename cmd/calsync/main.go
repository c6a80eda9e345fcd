package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/calsync/calsync/internal/config"
	"github.com/calsync/calsync/internal/event_bus"
	"github.com/calsync/calsync/internal/utils"
	"github.com/calsync/calsync/pkg/archive"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/fetch_window"
	"github.com/calsync/calsync/pkg/grid"
	"github.com/calsync/calsync/pkg/sync_client"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var errPushDisabled = errors.New("push is disabled, set client.pushenabled to enable it")

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calsync",
		Usage: "Browse and edit a calsync calendar from the terminal.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the configuration file",
				Value:   defaultConfigPath(),
				EnvVars: []string{"CALSYNC_CLIENT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "logrus level (trace, debug, info, warn, error)",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			listCommand(),
			watchCommand(),
			createCommand(),
			archiveCommand(),
			pushCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "calsync", "config.yaml")
}

func viewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "view", Aliases: []string{"v"}, Usage: "month, week, day or agenda", Value: string(fetch_window.Month)},
		&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "anchor date (2006-01-02), defaults to today"},
		&cli.StringFlag{Name: "calendar", Usage: "calendar id, defaults to client.calendarid"},
	}
}

type session struct {
	cfg      config.Client
	location *time.Location
	client   *sync_client.Client
	// credential is set when the session was opened with a bus.
	credential *sync_client.Session
}

// newSession loads the client configuration. With a bus the credential is a Session
// that announces sign-in changes on it.
func newSession(c *cli.Context, bus *event_bus.EventBus) (*session, error) {
	appCfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	cfg := appCfg.Client
	location := cfg.Location()

	var auth sync_client.AuthContext = sync_client.StaticCredential(cfg.Token)
	var credential *sync_client.Session
	if bus != nil {
		credential = sync_client.NewSession(cfg.Token, bus)
		auth = credential
	}
	return &session{
		cfg:        cfg,
		location:   location,
		credential: credential,
		client: sync_client.NewClient(cfg.BaseUrl, auth,
			sync_client.WithTimeout(cfg.RequestTimeout),
			sync_client.WithNormalizer(calendar_event.NewNormalizer(utils.SystemClock{}, location))),
	}, nil
}

func (s *session) calendarId(c *cli.Context) string {
	if id := c.String("calendar"); id != "" {
		return id
	}
	return s.cfg.CalendarId
}

func (s *session) view(c *cli.Context) (fetch_window.ViewMode, time.Time, error) {
	mode, err := fetch_window.ParseViewMode(c.String("view"))
	if err != nil {
		return "", time.Time{}, err
	}
	anchor := time.Now().In(s.location)
	if date := c.String("date"); date != "" {
		if anchor, err = fetch_window.ParseAnchor(date, s.location); err != nil {
			return "", time.Time{}, err
		}
	}
	return mode, anchor, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print the events of one view.",
		Flags: viewFlags(),
		Action: func(c *cli.Context) error {
			s, err := newSession(c, nil)
			if err != nil {
				return err
			}
			mode, anchor, err := s.view(c)
			if err != nil {
				return err
			}
			window, err := fetch_window.NewCalculator(utils.SystemClock{}, s.location).Compute(mode, anchor)
			if err != nil {
				return err
			}
			events, err := s.client.ListEvents(c.Context, window, s.calendarId(c))
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			renderView(c.App.Writer, viewState{Window: window, Events: events}, s.location)
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep one view on screen and reprint it whenever it refreshes. Reads commands from stdin, SIGHUP reloads the token.",
		Flags: viewFlags(),
		Action: func(c *cli.Context) error {
			bus := event_bus.NewEventBus()
			s, err := newSession(c, bus)
			if err != nil {
				return err
			}
			mode, anchor, err := s.view(c)
			if err != nil {
				return err
			}

			interactive := term.IsTerminal(int(os.Stdout.Fd()))
			var controller *grid.Controller
			render := func() {
				if controller == nil {
					return
				}
				state := viewState{
					Window:  controller.Window(),
					Events:  controller.Events(),
					Loading: controller.Loading(),
					Err:     controller.Err(),
				}
				if state.Loading {
					return
				}
				if interactive {
					fmt.Fprint(c.App.Writer, "\033[H\033[2J")
				}
				renderView(c.App.Writer, state, s.location)
			}
			controller, err = grid.NewController(s.client, grid.Config{
				CalendarId:      s.calendarId(c),
				Location:        s.location,
				RefreshInterval: s.cfg.RefreshInterval,
				Mode:            mode,
				Anchor:          anchor,
			}, grid.WithBus(bus), grid.WithOnChange(render))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			// SIGHUP re-reads the token, the view reloads when it changed
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			// resuming a suspended watch counts as the view becoming visible again
			cont := make(chan os.Signal, 1)
			signal.Notify(cont, syscall.SIGCONT)
			defer signal.Stop(cont)

			p := &prompt{controller: controller, location: s.location, now: time.Now, out: c.App.Writer}
			lines := readLines(c.App.Reader)

			controller.Start()
			for running := true; running; {
				select {
				case <-ctx.Done():
					running = false
				case line, ok := <-lines:
					if !ok {
						lines = nil
						continue
					}
					if err := p.exec(ctx, line); err != nil {
						fmt.Fprintln(c.App.Writer, errorStyle.Render(err.Error()))
					}
				case <-cont:
					controller.Scheduler().OnVisibilityChange(true)
				case <-hup:
					reloaded, err := config.Load(c.String("config"))
					if err != nil {
						log.Errorf("failed to reload configuration: %v", err)
						continue
					}
					s.credential.SetToken(ctx, reloaded.Client.Token)
				}
			}
			controller.Stop()
			controller.Wait()
			return nil
		},
	}
}

// readLines delivers the lines of r until it is exhausted.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an event.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "start", Usage: "2006-01-02 or RFC3339", Required: true},
			&cli.StringFlag{Name: "end", Usage: "2006-01-02 or RFC3339, inclusive for all-day events", Required: true},
			&cli.BoolFlag{Name: "all-day"},
			&cli.StringFlag{Name: "description"},
			&cli.StringFlag{Name: "location"},
			&cli.StringFlag{Name: "attendees", Usage: "comma separated emails"},
			&cli.StringFlag{Name: "calendar", Usage: "calendar id, defaults to client.calendarid"},
		},
		Action: func(c *cli.Context) error {
			s, err := newSession(c, nil)
			if err != nil {
				return err
			}
			start, err := fetch_window.ParseAnchor(c.String("start"), s.location)
			if err != nil {
				return err
			}
			end, err := fetch_window.ParseAnchor(c.String("end"), s.location)
			if err != nil {
				return err
			}

			event, err := s.client.CreateEvent(c.Context, sync_client.Draft{
				CalendarId:  s.calendarId(c),
				Title:       c.String("title"),
				Start:       start,
				End:         end,
				AllDay:      c.Bool("all-day"),
				Description: c.String("description"),
				Location:    c.String("location"),
				Attendees:   calendar_event.AttendeesFromDisplay(c.String("attendees")),
			})
			if err != nil {
				return fmt.Errorf("failed to create event: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "created %s\n", event.Id)
			return nil
		},
	}
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Archive one or more events by id.",
		ArgsUsage: "<event id>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.ShowSubcommandHelp(c)
			}
			s, err := newSession(c, nil)
			if err != nil {
				return err
			}
			result := archive.NewReconciler(s.client, nil, nil).Archive(c.Context, c.Args().Slice())
			return reportArchive(c.App.Writer, result)
		},
	}
}

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Push all pending events to Google Calendar.",
		Action: func(c *cli.Context) error {
			s, err := newSession(c, nil)
			if err != nil {
				return err
			}
			if !s.cfg.PushEnabled {
				return errPushDisabled
			}
			result, err := s.client.PushEvents(c.Context)
			if err != nil {
				return fmt.Errorf("failed to push events: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "%s: %d pushed, %d failed\n", result.Status, result.Pushed, result.Failed)
			return nil
		},
	}
}
