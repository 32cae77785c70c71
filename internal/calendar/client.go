// Package calendar creates emergency meeting invites on Google Calendar.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	Summary     = "Emergency Meeting"
	Location    = "Google Meet"
	Description = "Emergency Button has been pressed. Emergency Meeting has been set!"

	// Duration is the length of every emergency meeting.
	Duration = time.Hour

	timeZone    = "UTC"
	meetType    = "hangoutsMeet"
	sendUpdates = "all"
)

// Invite describes a created meeting.
type Invite struct {
	EventID      string    `json:"event_id"`
	HTMLLink     string    `json:"html_link,omitempty"`
	MeetLink     string    `json:"meet_link,omitempty"`
	Attendees    []string  `json:"attendees"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	ConferenceID string    `json:"conference_request_id"`
}

// Client creates events on one calendar.
type Client struct {
	svc        *gcal.Service
	calendarID string
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Client for calendarID ("primary" for the authorized user's
// main calendar).
func New(ctx context.Context, calendarID string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{
		svc:        svc,
		calendarID: calendarID,
		logger:     logger.With(zap.String("calendar_id", calendarID)),
		now:        time.Now,
	}, nil
}

// CreateInvite schedules a one-hour meeting starting now (UTC) with a Meet
// link and sends invitations to attendees.
func (c *Client) CreateInvite(ctx context.Context, attendees []string) (*Invite, error) {
	start := c.now().UTC()
	end := start.Add(Duration)
	requestID := uuid.NewString()

	ev := &gcal.Event{
		Summary:     Summary,
		Location:    Location,
		Description: Description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: timeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: timeZone,
		},
		Attendees: eventAttendees(attendees),
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 30},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             requestID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: meetType},
			},
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, ev).
		ConferenceDataVersion(1).
		SendUpdates(sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	inv := &Invite{
		EventID:      created.Id,
		HTMLLink:     created.HtmlLink,
		MeetLink:     created.HangoutLink,
		Attendees:    attendees,
		Start:        start,
		End:          end,
		ConferenceID: requestID,
	}
	c.logger.Info("emergency meeting created",
		zap.String("event_id", inv.EventID),
		zap.Strings("attendees", attendees),
		zap.String("meet_link", inv.MeetLink),
	)
	return inv, nil
}

func eventAttendees(emails []string) []*gcal.EventAttendee {
	out := make([]*gcal.EventAttendee, 0, len(emails))
	for _, e := range emails {
		out = append(out, &gcal.EventAttendee{Email: e})
	}
	return out
}
