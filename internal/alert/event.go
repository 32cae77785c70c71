// Package alert turns inbound button SMS messages into a log entry and, for
// real alerts, an emergency meeting with the button owner's contacts.
package alert

import (
	"errors"
	"fmt"
	"strings"
)

// HealthCheckType marks routine battery reports that never notify anyone.
const HealthCheckType = "BATTERY_HEALTH"

// ErrMalformedBody is returned when an SMS body is not
// "<button_id>,<event_type>,<battery_health>".
var ErrMalformedBody = errors.New("malformed message body")

// Inbound is the webhook payload as delivered by the SMS provider.
type Inbound struct {
	From string
	To   string
	Body string
}

// Event is a parsed button message.
type Event struct {
	ButtonID      string `json:"button_id"`
	From          string `json:"from_number"`
	To            string `json:"to_number"`
	Timestamp     string `json:"timestamp"`
	BatteryHealth string `json:"battery_health"`
	EventType     string `json:"event_type"`
}

// ParseBody splits body into its three comma-separated fields. Fields are
// returned exactly as received so the log keeps the original text.
func ParseBody(body string) (buttonID, eventType, batteryHealth string, err error) {
	parts := strings.Split(body, ",")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: want 3 comma-separated fields, got %d", ErrMalformedBody, len(parts))
	}
	return parts[0], parts[1], parts[2], nil
}

// IsHealthCheck reports whether the event is a routine battery report.
func (e Event) IsHealthCheck() bool {
	return strings.ToUpper(strings.TrimSpace(e.EventType)) == HealthCheckType
}

// LogRow is the "SMS Logs" row for the event, in column order.
func (e Event) LogRow() []interface{} {
	return []interface{}{e.ButtonID, e.From, e.To, e.Timestamp, e.BatteryHealth, e.EventType}
}

// splitEmails splits a comma-separated contact cell, trimming each address
// and dropping blanks.
func splitEmails(cell string) []string {
	var out []string
	for _, e := range strings.Split(cell, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
