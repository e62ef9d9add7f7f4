package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

type fakeCalendarService struct {
	ids    []string
	names  map[string]string
	events map[string][]CalendarEntry
	err    error
}

func (f *fakeCalendarService) ListCalendars(ctx context.Context) ([]string, map[string]string, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.ids, f.names, nil
}

func (f *fakeCalendarService) ListEvents(ctx context.Context, calendarID, timeMin, timeMax string) ([]CalendarEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events[calendarID], nil
}

func validArgs() json.RawMessage {
	return json.RawMessage(`{"start_time":"2025-03-01T00:00:00Z","end_time":"2025-03-08T00:00:00Z"}`)
}

func TestCalendarExecute_GroupsEventsByCalendar(t *testing.T) {
	t.Parallel()

	svc := &fakeCalendarService{
		ids:   []string{"work", "home"},
		names: map[string]string{"work": "Work", "home": "Home"},
		events: map[string][]CalendarEntry{
			"work": {
				{Start: "2025-03-03T09:00:00Z", End: "2025-03-03T10:00:00Z", Summary: "standup"},
			},
			"home": {},
		},
	}
	ct := newCalendarToolWithService(svc, logger.NewNop())

	out, err := ct.execute(context.Background(), validArgs())
	require.NoError(t, err)

	var payload struct {
		Result []CalendarGroup `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload.Result, 2)
	assert.Equal(t, "Work", payload.Result[0].Calendar)
	require.Len(t, payload.Result[0].Events, 1)
	assert.Equal(t, "standup", payload.Result[0].Events[0].Summary)
	assert.Equal(t, "Home", payload.Result[1].Calendar)
	assert.Empty(t, payload.Result[1].Events)
}

func TestCalendarExecute_RejectsMissingWindow(t *testing.T) {
	t.Parallel()

	ct := newCalendarToolWithService(&fakeCalendarService{}, logger.NewNop())

	_, err := ct.execute(context.Background(), json.RawMessage(`{"start_time":"2025-03-01T00:00:00Z"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestCalendarExecute_RejectsNonRFC3339(t *testing.T) {
	t.Parallel()

	ct := newCalendarToolWithService(&fakeCalendarService{}, logger.NewNop())

	_, err := ct.execute(context.Background(), json.RawMessage(`{"start_time":"tomorrow","end_time":"2025-03-08T00:00:00Z"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC 3339")
}

func TestCalendarExecute_UpstreamFailurePropagates(t *testing.T) {
	t.Parallel()

	ct := newCalendarToolWithService(&fakeCalendarService{err: errors.New("api quota exceeded")}, logger.NewNop())

	_, err := ct.execute(context.Background(), validArgs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api quota exceeded")
}

func TestCalendarDescriptor(t *testing.T) {
	t.Parallel()

	ct := newCalendarToolWithService(&fakeCalendarService{}, logger.NewNop())

	d := ct.Descriptor()
	assert.Equal(t, CalendarName, d.Name)
	assert.NotNil(t, d.Handler)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(d.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []any{"start_time", "end_time"}, schema["required"])
}

// Dispatching through the registry surfaces calendar failures as tool output.
func TestCalendarViaRegistry_ErrorBecomesPayload(t *testing.T) {
	t.Parallel()

	ct := newCalendarToolWithService(&fakeCalendarService{err: errors.New("boom")}, logger.NewNop())
	r := NewRegistry(logger.NewNop(), ct.Descriptor())

	out := r.Dispatch(context.Background(), CalendarName, string(validArgs()))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Contains(t, payload["error"], "boom")
}
