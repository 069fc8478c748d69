package main

import "github.com/m-mizutani/herald"

// deviceCatalog lists the tools the iOS client executes locally. They are
// registered so the planner can schedule them; the executor hands matching
// steps to the device as DeviceActions.
func deviceCatalog() []herald.Tool {
	return []herald.Tool{
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_eventkit.list_events",
			Description: "List events from Apple Calendar on the user's device in a date range.",
			Parameters: map[string]*herald.Parameter{
				"start": {Type: herald.TypeString, Description: "Range start, ISO-8601"},
				"end":   {Type: herald.TypeString, Description: "Range end, ISO-8601"},
				"calendar_ids": {
					Type:  herald.TypeArray,
					Items: &herald.Parameter{Type: herald.TypeString},
				},
			},
			Required: []string{"start", "end"},
			Risk:     herald.RiskLow,
		}),
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_eventkit.create_event",
			Description: "Create a new event in Apple Calendar on the user's device.",
			Parameters: map[string]*herald.Parameter{
				"title":       {Type: herald.TypeString},
				"start":       {Type: herald.TypeString, Description: "Start time, ISO-8601"},
				"end":         {Type: herald.TypeString, Description: "End time, ISO-8601"},
				"calendar_id": {Type: herald.TypeString},
				"notes":       {Type: herald.TypeString},
				"location":    {Type: herald.TypeString},
				"alarms": {
					Type:        herald.TypeArray,
					Description: "Alarm offsets in minutes before the event (negative = before)",
					Items:       &herald.Parameter{Type: herald.TypeInteger},
				},
			},
			Required: []string{"title", "start", "end"},
			Risk:     herald.RiskLow,
		}),
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_eventkit.update_event",
			Description: "Update an existing event in Apple Calendar on the user's device.",
			Parameters: map[string]*herald.Parameter{
				"event_identifier": {Type: herald.TypeString},
				"patch_fields": {
					Type: herald.TypeObject,
					Properties: map[string]*herald.Parameter{
						"title":    {Type: herald.TypeString},
						"start":    {Type: herald.TypeString},
						"end":      {Type: herald.TypeString},
						"notes":    {Type: herald.TypeString},
						"location": {Type: herald.TypeString},
					},
				},
			},
			Required: []string{"event_identifier", "patch_fields"},
			Risk:     herald.RiskMedium,
		}),
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_eventkit.delete_event",
			Description: "Delete an event from Apple Calendar on the user's device.",
			Parameters: map[string]*herald.Parameter{
				"event_identifier": {Type: herald.TypeString},
			},
			Required:           []string{"event_identifier"},
			Risk:               herald.RiskHigh,
			Irreversible:       true,
			ConfirmationPhrase: "This will permanently delete an event. Are you sure?",
		}),
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_reminders.create_reminder",
			Description: "Create a reminder on the user's device.",
			Parameters: map[string]*herald.Parameter{
				"title":    {Type: herald.TypeString},
				"due":      {Type: herald.TypeString, Description: "Due time, ISO-8601"},
				"notes":    {Type: herald.TypeString},
				"list":     {Type: herald.TypeString, Description: "Reminders list name"},
				"priority": {Type: herald.TypeInteger},
			},
			Required: []string{"title"},
			Risk:     herald.RiskLow,
		}),
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_reminders.complete_reminder",
			Description: "Mark a reminder as completed on the user's device.",
			Parameters: map[string]*herald.Parameter{
				"reminder_identifier": {Type: herald.TypeString},
			},
			Required: []string{"reminder_identifier"},
			Risk:     herald.RiskLow,
		}),
		herald.NewDeviceTool(&herald.ToolSpec{
			Name:        "ios_notifications.schedule",
			Description: "Schedule a local notification on the user's device.",
			Parameters: map[string]*herald.Parameter{
				"title": {Type: herald.TypeString},
				"body":  {Type: herald.TypeString},
				"at":    {Type: herald.TypeString, Description: "Delivery time, ISO-8601"},
			},
			Required: []string{"title", "at"},
			Risk:     herald.RiskLow,
		}),
	}
}
