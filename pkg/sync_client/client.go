package sync_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calsync/calsync/internal/rest"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/fetch_window"
	log "github.com/sirupsen/logrus"
)

const (
	eventsPath = "/api/calendar/events"
	pushPath   = "/api/calendar/push"
)

// Draft is the editable form of an event. End is inclusive for all-day drafts,
// like CalendarEvent.End.
type Draft struct {
	CalendarId  string
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Description string
	Location    string
	Attendees   []string
}

type Patch struct {
	Id string
	Draft
}

type PushResult struct {
	Status string `json:"status"`
	Pushed int    `json:"pushed"`
	Failed int    `json:"failed"`
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithNormalizer(normalizer *calendar_event.Normalizer) Option {
	return func(c *Client) { c.normalizer = normalizer }
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// Client talks to the calsync REST API and normalizes everything it sends and receives.
type Client struct {
	baseURL    string
	auth       AuthContext
	httpClient *http.Client
	normalizer *calendar_event.Normalizer
	timeout    time.Duration
}

func NewClient(baseURL string, auth AuthContext, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: http.DefaultClient,
		normalizer: calendar_event.NewNormalizer(nil, nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Normalizer() *calendar_event.Normalizer {
	return c.normalizer
}

// ListEvents returns the events overlapping window. Items that cannot be decoded are
// dropped; items with unusable dates are normalized with defaults.
func (c *Client) ListEvents(ctx context.Context, window fetch_window.FetchWindow, calendarId string) ([]calendar_event.CalendarEvent, error) {
	query := url.Values{}
	query.Set("timeMin", window.Start.Format(time.RFC3339))
	query.Set("timeMax", window.End.Format(time.RFC3339))
	if calendarId != "" {
		query.Set("calendarId", calendarId)
	}

	var list calendar_event.EventList
	if err := c.do(ctx, "list events", http.MethodGet, eventsPath+"?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}
	log.Debugf("fetched %d events for %s", len(list), window)
	return c.normalizer.ToInternalAll(list), nil
}

func (c *Client) CreateEvent(ctx context.Context, draft Draft) (calendar_event.CalendarEvent, error) {
	if err := validate(draft); err != nil {
		return calendar_event.CalendarEvent{}, err
	}

	path := eventsPath
	if draft.CalendarId != "" {
		path += "?" + url.Values{"calendarId": {draft.CalendarId}}.Encode()
	}
	var created calendar_event.WireEvent
	if err := c.do(ctx, "create event", http.MethodPost, path, c.toWire("", draft), &created); err != nil {
		return calendar_event.CalendarEvent{}, err
	}
	return c.normalizer.ToInternal(created), nil
}

func (c *Client) UpdateEvent(ctx context.Context, patch Patch) (calendar_event.CalendarEvent, error) {
	if strings.TrimSpace(patch.Id) == "" {
		return calendar_event.CalendarEvent{}, ErrMissingId
	}
	if err := validate(patch.Draft); err != nil {
		return calendar_event.CalendarEvent{}, err
	}

	var updated calendar_event.WireEvent
	path := eventsPath + "/" + url.PathEscape(patch.Id)
	if err := c.do(ctx, "update event", http.MethodPatch, path, c.toWire(patch.Id, patch.Draft), &updated); err != nil {
		return calendar_event.CalendarEvent{}, err
	}
	return c.normalizer.ToInternal(updated), nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingId
	}
	return c.do(ctx, "delete event", http.MethodDelete, eventsPath+"/"+url.PathEscape(id), nil, nil)
}

// PushEvents asks the backend to copy every unsynced local event to the provider.
func (c *Client) PushEvents(ctx context.Context) (PushResult, error) {
	var result PushResult
	err := c.do(ctx, "push events", http.MethodPost, pushPath, nil, &result)
	return result, err
}

func (c *Client) toWire(id string, draft Draft) calendar_event.WireEvent {
	return c.normalizer.ToWire(calendar_event.CalendarEvent{
		Id:          id,
		Title:       strings.TrimSpace(draft.Title),
		Start:       draft.Start,
		End:         draft.End,
		Description: draft.Description,
		Location:    draft.Location,
		Attendees:   draft.Attendees,
	}, calendar_event.WireOptions{AllDay: draft.AllDay})
}

// validate rejects drafts the backend would refuse. Ranges are compared the way they
// are sent: all-day drafts span whole days, so an inclusive end on the start day is valid.
func validate(draft Draft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return ErrTitleRequired
	}
	if draft.Start.IsZero() || draft.End.IsZero() {
		return ErrInvalidRange
	}
	if draft.AllDay {
		start := dateOf(draft.Start)
		if dateOf(draft.End).AddDate(0, 0, 1).After(start) {
			return nil
		}
		return ErrInvalidRange
	}
	if !draft.End.After(draft.Start) {
		return ErrInvalidRange
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	token, ok := c.auth.Credential(ctx)
	if !ok {
		return ErrAuthRequired
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Tracef("%s %s", method, req.URL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		log.Debugf("%s: backend rejected the credential", op)
		return fmt.Errorf("%s: %w", op, ErrAuthRequired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		providerErr := &ProviderError{StatusCode: resp.StatusCode, Payload: payload}
		var errorResponse rest.ErrorResponse
		if json.Unmarshal(payload, &errorResponse) == nil {
			providerErr.Message = errorResponse.Error
			if errorResponse.Details != "" {
				providerErr.Message += ": " + errorResponse.Details
			}
		}
		return providerErr
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
