package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jredh-dev/emergency-button/internal/calendar"
	"github.com/jredh-dev/emergency-button/internal/ledger"
	"github.com/jredh-dev/emergency-button/internal/spreadsheet"
)

// Spreadsheet is the subset of spreadsheet.Client the service needs.
type Spreadsheet interface {
	Append(ctx context.Context, sheetName string, values [][]interface{}) error
	ReadAll(ctx context.Context, sheetName string) ([][]string, error)
}

// Inviter creates emergency meetings.
type Inviter interface {
	CreateInvite(ctx context.Context, attendees []string) (*calendar.Invite, error)
}

// SkipReason explains why an event produced no meeting.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipHealthCheck SkipReason = "health_check"
	SkipNoContact   SkipReason = "no_contact"
	SkipDuplicate   SkipReason = "duplicate"
)

// Outcome reports what Handle did with an event.
type Outcome struct {
	Event    Event
	Notified bool
	Skipped  SkipReason
	Invite   *calendar.Invite
}

// Column names of the client info schema.
const (
	ColumnDeviceID = "device_id"
	ColumnEmails   = "emails"
)

// ClientInfoSchema locates the device id and contact emails on the client
// info tab.
var ClientInfoSchema = spreadsheet.Schema{Columns: []spreadsheet.Column{
	{Name: ColumnDeviceID, Index: 3},
	{Name: ColumnEmails, Index: 4},
}}

// Options configures a Service.
type Options struct {
	LogSheet    string
	ClientSheet string
	// DedupWindow suppresses a second meeting for the same button within
	// this period. Zero disables the check.
	DedupWindow time.Duration
}

// Service runs the inbound alert flow.
type Service struct {
	sheet   Spreadsheet
	inviter Inviter
	ledger  ledger.Ledger
	opts    Options
	logger  *zap.Logger
	now     func() time.Time

	buttons sync.Map // button id -> *sync.Mutex
}

// New creates a Service. ledger may be nil, which disables deduplication.
func New(sheet Spreadsheet, inviter Inviter, l ledger.Ledger, opts Options, logger *zap.Logger) *Service {
	if opts.LogSheet == "" {
		opts.LogSheet = "SMS Logs"
	}
	if opts.ClientSheet == "" {
		opts.ClientSheet = "Client Info"
	}
	return &Service{
		sheet:   sheet,
		inviter: inviter,
		ledger:  l,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle logs the message and notifies the button owner unless the message
// is a health check, the button has no registered contacts, or a meeting
// was already created for it within the dedup window.
func (s *Service) Handle(ctx context.Context, in Inbound, logger *zap.Logger) (*Outcome, error) {
	if logger == nil {
		logger = s.logger
	}

	buttonID, eventType, battery, err := ParseBody(in.Body)
	if err != nil {
		return nil, err
	}
	ev := Event{
		ButtonID:      buttonID,
		From:          in.From,
		To:            in.To,
		Timestamp:     s.now().UTC().Format(time.RFC3339Nano),
		BatteryHealth: battery,
		EventType:     eventType,
	}
	logger = logger.With(zap.String("button_id", ev.ButtonID), zap.String("event_type", ev.EventType))

	if err := s.sheet.Append(ctx, s.opts.LogSheet, [][]interface{}{ev.LogRow()}); err != nil {
		return nil, fmt.Errorf("log event: %w", err)
	}
	logger.Info("event logged")

	out := &Outcome{Event: ev}
	if ev.IsHealthCheck() {
		out.Skipped = SkipHealthCheck
		return out, nil
	}

	emails, err := s.lookupEmails(ctx, ev.ButtonID)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		logger.Info("no contacts registered for button")
		out.Skipped = SkipNoContact
		return out, nil
	}

	unlock := s.lockButton(ev.ButtonID)
	defer unlock()

	dup, err := s.recentlyNotified(ctx, ev.ButtonID)
	if err != nil {
		return nil, err
	}
	if dup {
		logger.Info("meeting already created within dedup window", zap.Duration("window", s.opts.DedupWindow))
		out.Skipped = SkipDuplicate
		return out, nil
	}

	inv, err := s.inviter.CreateInvite(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	out.Notified = true
	out.Invite = inv

	if s.ledger != nil {
		rec := ledger.Invite{ButtonID: ev.ButtonID, EventID: inv.EventID, Attendees: emails, SentAt: s.now().UTC()}
		if err := s.ledger.Put(ctx, rec); err != nil {
			// The meeting already exists, so the alert still succeeds.
			logger.Error("record invite", zap.Error(err))
		}
	}
	return out, nil
}

// lookupEmails returns the contacts of the first client row registered to
// buttonID, or nil if there is none. Later rows for the same button are
// ignored even when the first one has no contacts.
func (s *Service) lookupEmails(ctx context.Context, buttonID string) ([]string, error) {
	rows, err := s.sheet.ReadAll(ctx, s.opts.ClientSheet)
	if err != nil {
		return nil, fmt.Errorf("read client info: %w", err)
	}
	for _, rec := range ClientInfoSchema.Decode(rows) {
		if rec[ColumnDeviceID] == buttonID {
			return splitEmails(rec[ColumnEmails]), nil
		}
	}
	return nil, nil
}

// lockButton serializes the dedup check, invite and ledger write for one
// button within this process. Replicas sharing a Firestore ledger can still
// race each other. It is a no-op when deduplication is off.
func (s *Service) lockButton(buttonID string) func() {
	if s.ledger == nil || s.opts.DedupWindow <= 0 {
		return func() {}
	}
	v, _ := s.buttons.LoadOrStore(buttonID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) recentlyNotified(ctx context.Context, buttonID string) (bool, error) {
	if s.ledger == nil || s.opts.DedupWindow <= 0 {
		return false, nil
	}
	last, err := s.ledger.Last(ctx, buttonID)
	if err != nil {
		return false, fmt.Errorf("check invite ledger: %w", err)
	}
	return last != nil && s.now().Sub(last.SentAt) < s.opts.DedupWindow, nil
}
