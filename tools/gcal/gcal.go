// Package gcal provides Google Calendar tools backed by the Calendar v3
// API.
package gcal

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const defaultCalendarID = "primary"

// Service wraps an authenticated Calendar API client and exposes its
// operations as tools.
type Service struct {
	svc *calendar.Service
}

// New creates a Service. Pass option.WithTokenSource or similar to
// authenticate as the user.
func New(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create calendar service")
	}
	return &Service{svc: svc}, nil
}

// NewWithService wraps an existing calendar service, e.g. one built
// against a test server.
func NewWithService(svc *calendar.Service) *Service {
	return &Service{svc: svc}
}

// Tools returns the calendar tools for registry registration.
func (s *Service) Tools() []herald.Tool {
	return []herald.Tool{
		&listEventsTool{svc: s.svc},
		&createEventTool{svc: s.svc},
		&updateEventTool{svc: s.svc},
		&deleteEventTool{svc: s.svc},
	}
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intArg(args map[string]any, key string, fallback int64) int64 {
	switch v := args[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return fallback
	}
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func eventToMap(event *calendar.Event) map[string]any {
	out := map[string]any{
		"id":      event.Id,
		"summary": event.Summary,
		"status":  event.Status,
	}
	if event.Start != nil {
		out["start"] = event.Start.DateTime
	}
	if event.End != nil {
		out["end"] = event.End.DateTime
	}
	if event.Location != "" {
		out["location"] = event.Location
	}
	if event.HtmlLink != "" {
		out["html_link"] = event.HtmlLink
	}
	if len(event.Attendees) > 0 {
		attendees := make([]any, 0, len(event.Attendees))
		for _, a := range event.Attendees {
			attendees = append(attendees, a.Email)
		}
		out["attendees"] = attendees
	}
	return out
}

type listEventsTool struct {
	svc *calendar.Service
}

func (t *listEventsTool) Spec() *herald.ToolSpec {
	return &herald.ToolSpec{
		Name:        "google_calendar.list_events",
		Description: "List Google Calendar events in a date range, optionally filtered by a text query.",
		Parameters: map[string]*herald.Parameter{
			"time_min":    {Type: herald.TypeString, Description: "Range start, ISO-8601"},
			"time_max":    {Type: herald.TypeString, Description: "Range end, ISO-8601"},
			"query":       {Type: herald.TypeString, Description: "Free-text filter"},
			"calendar_id": {Type: herald.TypeString, Description: "Calendar ID, defaults to primary"},
			"max_results": {Type: herald.TypeInteger, Description: "Maximum number of events, defaults to 50"},
		},
		Required: []string{"time_min", "time_max"},
		Target:   herald.TargetServer,
		Risk:     herald.RiskLow,
	}
}

func (t *listEventsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	call := t.svc.Events.List(stringArg(args, "calendar_id", defaultCalendarID)).
		TimeMin(stringArg(args, "time_min", "")).
		TimeMax(stringArg(args, "time_max", "")).
		MaxResults(intArg(args, "max_results", 50)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	if q := stringArg(args, "query", ""); q != "" {
		call = call.Q(q)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list events")
	}

	events := make([]any, 0, len(resp.Items))
	for _, event := range resp.Items {
		events = append(events, eventToMap(event))
	}

	return map[string]any{
		"events": events,
		"count":  len(events),
	}, nil
}

type createEventTool struct {
	svc *calendar.Service
}

func (t *createEventTool) Spec() *herald.ToolSpec {
	return &herald.ToolSpec{
		Name:        "google_calendar.create_event",
		Description: "Create a Google Calendar event.",
		Parameters: map[string]*herald.Parameter{
			"title":       {Type: herald.TypeString, Description: "Event title"},
			"start":       {Type: herald.TypeString, Description: "Start time, ISO-8601"},
			"end":         {Type: herald.TypeString, Description: "End time, ISO-8601"},
			"calendar_id": {Type: herald.TypeString, Description: "Calendar ID, defaults to primary"},
			"attendees": {
				Type:        herald.TypeArray,
				Description: "Attendee email addresses",
				Items:       &herald.Parameter{Type: herald.TypeString},
			},
			"location":    {Type: herald.TypeString},
			"description": {Type: herald.TypeString},
			"send_updates": {
				Type:        herald.TypeString,
				Description: "Who to notify",
				Enum:        []string{"all", "externalOnly", "none"},
			},
		},
		Required: []string{"title", "start", "end"},
		Target:   herald.TargetServer,
		Risk:     herald.RiskLow,
	}
}

func (t *createEventTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	event := &calendar.Event{
		Summary:     stringArg(args, "title", ""),
		Location:    stringArg(args, "location", ""),
		Description: stringArg(args, "description", ""),
		Start:       &calendar.EventDateTime{DateTime: stringArg(args, "start", "")},
		End:         &calendar.EventDateTime{DateTime: stringArg(args, "end", "")},
	}
	for _, email := range stringSliceArg(args, "attendees") {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := t.svc.Events.Insert(stringArg(args, "calendar_id", defaultCalendarID), event).
		SendUpdates(stringArg(args, "send_updates", "none")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create event")
	}

	return eventToMap(created), nil
}

// Verify re-reads the created event and checks it matches the request.
func (t *createEventTool) Verify(ctx context.Context, args map[string]any, result map[string]any) (*herald.VerificationResult, error) {
	eventID, ok := result["id"].(string)
	if !ok || eventID == "" {
		return &herald.VerificationResult{
			Matched:       false,
			Discrepancies: []string{"created event has no id"},
		}, nil
	}

	event, err := t.svc.Events.Get(stringArg(args, "calendar_id", defaultCalendarID), eventID).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read back event", goerr.V("event_id", eventID))
	}

	var discrepancies []string
	if want := stringArg(args, "title", ""); event.Summary != want {
		discrepancies = append(discrepancies, fmt.Sprintf("title: want %q, got %q", want, event.Summary))
	}
	if event.Status == "cancelled" {
		discrepancies = append(discrepancies, "event is cancelled")
	}

	return &herald.VerificationResult{
		Matched:       len(discrepancies) == 0,
		Discrepancies: discrepancies,
	}, nil
}

type updateEventTool struct {
	svc *calendar.Service
}

func (t *updateEventTool) Spec() *herald.ToolSpec {
	return &herald.ToolSpec{
		Name:        "google_calendar.update_event",
		Description: "Patch fields of an existing Google Calendar event.",
		Parameters: map[string]*herald.Parameter{
			"event_id":    {Type: herald.TypeString, Description: "ID of the event to update"},
			"calendar_id": {Type: herald.TypeString, Description: "Calendar ID, defaults to primary"},
			"patch_fields": {
				Type:        herald.TypeObject,
				Description: "Fields to change: title, start, end, location, description",
				Properties: map[string]*herald.Parameter{
					"title":       {Type: herald.TypeString},
					"start":       {Type: herald.TypeString},
					"end":         {Type: herald.TypeString},
					"location":    {Type: herald.TypeString},
					"description": {Type: herald.TypeString},
				},
			},
			"send_updates": {
				Type: herald.TypeString,
				Enum: []string{"all", "externalOnly", "none"},
			},
		},
		Required: []string{"event_id", "patch_fields"},
		Target:   herald.TargetServer,
		Risk:     herald.RiskMedium,
	}
}

func (t *updateEventTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	patchFields, ok := args["patch_fields"].(map[string]any)
	if !ok {
		return nil, goerr.New("patch_fields must be an object")
	}

	patch := &calendar.Event{
		Summary:     stringArg(patchFields, "title", ""),
		Location:    stringArg(patchFields, "location", ""),
		Description: stringArg(patchFields, "description", ""),
	}
	if start := stringArg(patchFields, "start", ""); start != "" {
		patch.Start = &calendar.EventDateTime{DateTime: start}
	}
	if end := stringArg(patchFields, "end", ""); end != "" {
		patch.End = &calendar.EventDateTime{DateTime: end}
	}

	updated, err := t.svc.Events.Patch(stringArg(args, "calendar_id", defaultCalendarID), stringArg(args, "event_id", ""), patch).
		SendUpdates(stringArg(args, "send_updates", "none")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update event")
	}

	return eventToMap(updated), nil
}

type deleteEventTool struct {
	svc *calendar.Service
}

func (t *deleteEventTool) Spec() *herald.ToolSpec {
	return &herald.ToolSpec{
		Name:        "google_calendar.delete_event",
		Description: "Permanently delete a Google Calendar event.",
		Parameters: map[string]*herald.Parameter{
			"event_id":    {Type: herald.TypeString, Description: "ID of the event to delete"},
			"calendar_id": {Type: herald.TypeString, Description: "Calendar ID, defaults to primary"},
			"send_updates": {
				Type: herald.TypeString,
				Enum: []string{"all", "externalOnly", "none"},
			},
		},
		Required:           []string{"event_id"},
		Target:             herald.TargetServer,
		Risk:               herald.RiskHigh,
		Irreversible:       true,
		ConfirmationPhrase: "This will permanently delete an event. Are you sure?",
	}
}

func (t *deleteEventTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	eventID := stringArg(args, "event_id", "")
	err := t.svc.Events.Delete(stringArg(args, "calendar_id", defaultCalendarID), eventID).
		SendUpdates(stringArg(args, "send_updates", "none")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to delete event", goerr.V("event_id", eventID))
	}

	return map[string]any{"deleted": true, "event_id": eventID}, nil
}
