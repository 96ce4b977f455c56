// Package tools defines the function set exposed to the voice engine
// and routes completed calls to the automation webhooks.
package tools

import "ai-call-bridge-service/internal/engine"

// CalendarTools are routed to the calendar webhook; everything else
// goes to the general automation webhook.
var CalendarTools = map[string]bool{
	"book_appointment":       true,
	"reschedule_appointment": true,
	"cancel_appointment":     true,
	"check_availability":     true,
}

// Catalogue returns the tool specs advertised to the engine at session
// setup.
func Catalogue() []engine.Tool {
	return []engine.Tool{
		{
			Type:        "function",
			Name:        "book_appointment",
			Description: "Book an appointment or schedule a meeting",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customer_name":  map[string]any{"type": "string", "description": "Full name of the customer"},
					"customer_phone": map[string]any{"type": "string", "description": "Phone number for confirmation SMS"},
					"customer_email": map[string]any{"type": "string", "description": "Email for confirmation (optional)"},
					"service":        map[string]any{"type": "string", "description": "Type of service or meeting topic"},
					"date":           map[string]any{"type": "string", "description": "Date in YYYY-MM-DD format"},
					"time":           map[string]any{"type": "string", "description": "Time in HH:MM format (24-hour)"},
					"duration":       map[string]any{"type": "string", "description": "Duration in minutes (default: 30)"},
					"notes":          map[string]any{"type": "string", "description": "Additional notes for the appointment"},
				},
				"required": []string{"customer_name", "customer_phone", "service", "date", "time"},
			},
		},
		{
			Type:        "function",
			Name:        "reschedule_appointment",
			Description: "Reschedule an existing appointment",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"appointment_id": map[string]any{"type": "string", "description": "Appointment reference number or ID"},
					"customer_phone": map[string]any{"type": "string", "description": "Customer phone for verification"},
					"new_date":       map[string]any{"type": "string", "description": "New date in YYYY-MM-DD format"},
					"new_time":       map[string]any{"type": "string", "description": "New time in HH:MM format"},
					"reason":         map[string]any{"type": "string", "description": "Reason for rescheduling (optional)"},
				},
				"required": []string{"appointment_id", "customer_phone", "new_date", "new_time"},
			},
		},
		{
			Type:        "function",
			Name:        "cancel_appointment",
			Description: "Cancel an existing appointment",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"appointment_id": map[string]any{"type": "string", "description": "Appointment reference number or ID"},
					"customer_phone": map[string]any{"type": "string", "description": "Customer phone for verification"},
					"reason":         map[string]any{"type": "string", "description": "Reason for cancellation (optional)"},
				},
				"required": []string{"appointment_id", "customer_phone"},
			},
		},
		{
			Type:        "function",
			Name:        "check_availability",
			Description: "Check available time slots for appointments",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":    map[string]any{"type": "string", "description": "Date to check availability for in YYYY-MM-DD format"},
					"service": map[string]any{"type": "string", "description": "Type of service (optional)"},
				},
				"required": []string{"date"},
			},
		},
		{
			Type:        "function",
			Name:        "handover_to_human",
			Description: "Transfer call to a human or leave voicemail",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{"type": "string"},
				},
				"required": []string{"reason"},
			},
		},
		{
			Type:        "function",
			Name:        "search_knowledge_base",
			Description: "Search the business knowledge base for information about policies, services, pricing, hours, etc.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "The search query (e.g., 'refund policy', 'pricing for haircut')"},
				},
				"required": []string{"query"},
			},
		},
		{
			Type:        "function",
			Name:        "log_conversation_event",
			Description: "Log important conversation events",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event_type": map[string]any{"type": "string"},
					"details":    map[string]any{"type": "string"},
				},
				"required": []string{"event_type"},
			},
		},
	}
}
