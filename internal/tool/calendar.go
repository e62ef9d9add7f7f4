package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// CalendarName is the registered name of the calendar tool.
const CalendarName = "calendar"

// calendarParameters is the JSON schema the model sees for the calendar
// tool's arguments.
var calendarParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"start_time": {
			"type": "string",
			"description": "The start of the window (RFC 3339) where the retrieved events will fall between"
		},
		"end_time": {
			"type": "string",
			"description": "The end of the window (RFC 3339) where the retrieved events will fall between"
		}
	},
	"required": ["start_time", "end_time"]
}`)

type calendarArgs struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CalendarEntry is the projection of one upstream event.
type CalendarEntry struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
}

// CalendarGroup holds one calendar's events within the requested window.
type CalendarGroup struct {
	Calendar string          `json:"calendar"`
	Events   []CalendarEntry `json:"events"`
}

// calendarService is the slice of the upstream calendar API the tool needs.
type calendarService interface {
	ListCalendars(ctx context.Context) ([]string, map[string]string, error)
	ListEvents(ctx context.Context, calendarID, timeMin, timeMax string) ([]CalendarEntry, error)
}

// CalendarTool fetches a user's events in a caller-specified time window and
// serializes them for the model. The credential is pre-authorized and
// supplied out of band; token refresh is the oauth2 transport's concern.
type CalendarTool struct {
	service calendarService
	logger  *logger.Logger
}

// NewCalendarTool builds a calendar tool from OAuth client credentials and a
// stored user token, both as file paths.
func NewCalendarTool(ctx context.Context, credentialsFile, tokenFile string, log *logger.Logger) (*CalendarTool, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	conf, err := google.ConfigFromJSON(creds, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	tokenData, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(tokenData, token); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarTool{
		service: &googleCalendarService{svc: svc},
		logger:  log,
	}, nil
}

// newCalendarToolWithService is the test seam.
func newCalendarToolWithService(svc calendarService, log *logger.Logger) *CalendarTool {
	return &CalendarTool{service: svc, logger: log}
}

// Descriptor returns the registry descriptor for this tool.
func (t *CalendarTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        CalendarName,
		Description: "get events of the user's calendar",
		Parameters:  calendarParameters,
		Handler:     t.execute,
	}
}

// execute enumerates the user's calendars and collects events falling inside
// the requested window, projected to start/end/summary/description.
func (t *CalendarTool) execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params calendarArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("malformed arguments: %w", err)
	}
	if params.StartTime == "" || params.EndTime == "" {
		return "", fmt.Errorf("start_time and end_time are required")
	}
	if _, err := time.Parse(time.RFC3339, params.StartTime); err != nil {
		return "", fmt.Errorf("start_time is not RFC 3339: %w", err)
	}
	if _, err := time.Parse(time.RFC3339, params.EndTime); err != nil {
		return "", fmt.Errorf("end_time is not RFC 3339: %w", err)
	}

	ids, names, err := t.service.ListCalendars(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}

	var groups []CalendarGroup
	for _, id := range ids {
		events, err := t.service.ListEvents(ctx, id, params.StartTime, params.EndTime)
		if err != nil {
			return "", fmt.Errorf("failed to fetch events for %q: %w", names[id], err)
		}
		groups = append(groups, CalendarGroup{
			Calendar: names[id],
			Events:   events,
		})
	}

	payload, err := json.Marshal(map[string]any{"result": groups})
	if err != nil {
		return "", fmt.Errorf("failed to serialize events: %w", err)
	}

	return string(payload), nil
}

// googleCalendarService adapts the Google Calendar API.
type googleCalendarService struct {
	svc *calendar.Service
}

func (g *googleCalendarService) ListCalendars(ctx context.Context) ([]string, map[string]string, error) {
	list, err := g.svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, nil, err
	}

	var ids []string
	names := make(map[string]string, len(list.Items))
	for _, item := range list.Items {
		ids = append(ids, item.Id)
		names[item.Id] = item.Summary
	}
	return ids, names, nil
}

func (g *googleCalendarService) ListEvents(ctx context.Context, calendarID, timeMin, timeMax string) ([]CalendarEntry, error) {
	result, err := g.svc.Events.List(calendarID).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	entries := make([]CalendarEntry, 0, len(result.Items))
	for _, item := range result.Items {
		entries = append(entries, CalendarEntry{
			Start:       eventTime(item.Start),
			End:         eventTime(item.End),
			Summary:     item.Summary,
			Description: item.Description,
		})
	}
	return entries, nil
}

func eventTime(edt *calendar.EventDateTime) string {
	if edt == nil {
		return ""
	}
	if edt.DateTime != "" {
		return edt.DateTime
	}
	return edt.Date
}
