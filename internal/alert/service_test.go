package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jredh-dev/emergency-button/internal/calendar"
	"github.com/jredh-dev/emergency-button/internal/ledger"
)

// fakeSheet is an in-memory Spreadsheet.
type fakeSheet struct {
	mu         sync.Mutex
	tabs       map[string][][]string
	appendErr  error
	readAllErr error
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{tabs: map[string][][]string{
		"Client Info": {
			{"Name", "Phone", "Plan", "Device ID", "Email"},
			{"Ada", "+1", "basic", "BTN1", "ada@example.com"},
			{"Owner", "+2", "pro", "BTN42", "owner@example.com"},
			{"Pair", "+3", "pro", "BTN7", "a@x.com, b@x.com"},
			{"Dup", "+4", "pro", "BTN42", "second@example.com"},
		},
	}}
}

func (f *fakeSheet) Append(_ context.Context, sheet string, values [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	for _, row := range values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.(string)
		}
		f.tabs[sheet] = append(f.tabs[sheet], cells)
	}
	return nil
}

func (f *fakeSheet) ReadAll(_ context.Context, sheet string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readAllErr != nil {
		return nil, f.readAllErr
	}
	return f.tabs[sheet], nil
}

type mockInviter struct {
	mock.Mock
}

func (m *mockInviter) CreateInvite(ctx context.Context, attendees []string) (*calendar.Invite, error) {
	args := m.Called(ctx, attendees)
	inv, _ := args.Get(0).(*calendar.Invite)
	return inv, args.Error(1)
}

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func testService(sheet *fakeSheet, inv *mockInviter, l ledger.Ledger, window time.Duration) *Service {
	s := New(sheet, inv, l, Options{DedupWindow: window}, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestHandleAlertNotifiesOwner(t *testing.T) {
	sheet := newFakeSheet()
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, []string{"owner@example.com"}).
		Return(&calendar.Invite{EventID: "evt1"}, nil).Once()

	s := testService(sheet, inv, nil, 0)
	out, err := s.Handle(context.Background(), Inbound{From: "+15550001", To: "+15559999", Body: "BTN42,ALERT,87%"}, nil)
	require.NoError(t, err)

	assert.True(t, out.Notified)
	assert.Equal(t, SkipNone, out.Skipped)
	assert.Equal(t, "evt1", out.Invite.EventID)
	inv.AssertExpectations(t)

	logs := sheet.tabs["SMS Logs"]
	require.Len(t, logs, 1)
	assert.Equal(t, []string{"BTN42", "+15550001", "+15559999", "2026-05-04T12:00:00Z", "87%", "ALERT"}, logs[0])
	assert.Equal(t, "2026-05-04T12:00:00Z", out.Event.Timestamp)
}

func TestHandleTrimsAttendees(t *testing.T) {
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, []string{"a@x.com", "b@x.com"}).
		Return(&calendar.Invite{EventID: "evt1"}, nil).Once()

	out, err := testService(newFakeSheet(), inv, nil, 0).
		Handle(context.Background(), Inbound{Body: "BTN7,PRESS,50%"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Notified)
	inv.AssertExpectations(t)
}

func TestHandleHealthCheckSkipsNotification(t *testing.T) {
	for _, typ := range []string{"BATTERY_HEALTH", "battery_health", " Battery_Health "} {
		t.Run(typ, func(t *testing.T) {
			sheet := newFakeSheet()
			inv := new(mockInviter)

			out, err := testService(sheet, inv, nil, 0).
				Handle(context.Background(), Inbound{Body: "BTN42," + typ + ",99%"}, nil)
			require.NoError(t, err)

			assert.False(t, out.Notified)
			assert.Equal(t, SkipHealthCheck, out.Skipped)
			assert.Len(t, sheet.tabs["SMS Logs"], 1, "health checks are still logged")
			inv.AssertNotCalled(t, "CreateInvite", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleUnknownButtonSkipsNotification(t *testing.T) {
	sheet := newFakeSheet()
	inv := new(mockInviter)

	out, err := testService(sheet, inv, nil, 0).
		Handle(context.Background(), Inbound{Body: "BTN404,ALERT,80%"}, nil)
	require.NoError(t, err)
	assert.False(t, out.Notified)
	assert.Equal(t, SkipNoContact, out.Skipped)
	inv.AssertNotCalled(t, "CreateInvite", mock.Anything, mock.Anything)
}

func TestHandleFirstMatchingRowWins(t *testing.T) {
	sheet := newFakeSheet()
	sheet.tabs["Client Info"] = [][]string{
		{"Name", "Phone", "Plan", "Device ID", "Email"},
		{"Old", "+1", "basic", "BTN42"}, // email cell left blank
		{"New", "+2", "pro", "BTN42", "second@example.com"},
	}
	inv := new(mockInviter)

	out, err := testService(sheet, inv, nil, 0).
		Handle(context.Background(), Inbound{Body: "BTN42,ALERT,1%"}, nil)
	require.NoError(t, err)
	assert.False(t, out.Notified)
	assert.Equal(t, SkipNoContact, out.Skipped)
	inv.AssertNotCalled(t, "CreateInvite", mock.Anything, mock.Anything)
}

func TestHandleSheetWithoutHeader(t *testing.T) {
	sheet := newFakeSheet()
	sheet.tabs["Client Info"] = [][]string{
		{"Ada", "+1", "basic", "BTN1", "ada@example.com"},
		{"Bob", "+2", "basic", "BTN2", "bob@example.com"},
	}
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, []string{"ada@example.com"}).
		Return(&calendar.Invite{EventID: "evt1"}, nil).Once()

	out, err := testService(sheet, inv, nil, 0).
		Handle(context.Background(), Inbound{Body: "BTN1,ALERT,1%"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Notified)
	inv.AssertExpectations(t)
}

func TestHandleShortFirstRowDoesNotBreakLookup(t *testing.T) {
	sheet := newFakeSheet()
	sheet.tabs["Client Info"] = [][]string{
		{"Ada", "+1", "basic", "BTN1"},
		{"Bob", "+2", "basic", "BTN2", "bob@example.com"},
	}
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, []string{"bob@example.com"}).
		Return(&calendar.Invite{EventID: "evt1"}, nil).Once()

	out, err := testService(sheet, inv, nil, 0).
		Handle(context.Background(), Inbound{Body: "BTN2,ALERT,1%"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Notified)
	inv.AssertExpectations(t)
}

func TestHandleLogsBodyVerbatim(t *testing.T) {
	sheet := newFakeSheet()

	out, err := testService(sheet, new(mockInviter), nil, 0).
		Handle(context.Background(), Inbound{Body: "BTN42, battery_health ,99% "}, nil)
	require.NoError(t, err)
	assert.Equal(t, SkipHealthCheck, out.Skipped)

	logs := sheet.tabs["SMS Logs"]
	require.Len(t, logs, 1)
	assert.Equal(t, "99% ", logs[0][4])
	assert.Equal(t, " battery_health ", logs[0][5])
}

func TestHandleMalformedBody(t *testing.T) {
	sheet := newFakeSheet()
	inv := new(mockInviter)

	_, err := testService(sheet, inv, nil, 0).Handle(context.Background(), Inbound{Body: "BTN42 ALERT"}, nil)
	assert.True(t, errors.Is(err, ErrMalformedBody))
	assert.Empty(t, sheet.tabs["SMS Logs"], "nothing is logged for unparseable bodies")
}

func TestHandlePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("append", func(t *testing.T) {
		sheet := newFakeSheet()
		sheet.appendErr = boom
		_, err := testService(sheet, new(mockInviter), nil, 0).Handle(context.Background(), Inbound{Body: "BTN42,ALERT,1%"}, nil)
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("lookup", func(t *testing.T) {
		sheet := newFakeSheet()
		sheet.readAllErr = boom
		_, err := testService(sheet, new(mockInviter), nil, 0).Handle(context.Background(), Inbound{Body: "BTN42,ALERT,1%"}, nil)
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("calendar", func(t *testing.T) {
		inv := new(mockInviter)
		inv.On("CreateInvite", mock.Anything, mock.Anything).Return(nil, boom)
		_, err := testService(newFakeSheet(), inv, nil, 0).Handle(context.Background(), Inbound{Body: "BTN42,ALERT,1%"}, nil)
		assert.True(t, errors.Is(err, boom))
	})

}

func TestHandleSuppressesDuplicateWithinWindow(t *testing.T) {
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, []string{"owner@example.com"}).
		Return(&calendar.Invite{EventID: "evt1"}, nil).Once()

	l := ledger.NewMemory()
	s := testService(newFakeSheet(), inv, l, 10*time.Minute)

	out, err := s.Handle(context.Background(), Inbound{Body: "BTN42,ALERT,87%"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Notified)

	rec, err := l.Last(context.Background(), "BTN42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "evt1", rec.EventID)

	s.now = func() time.Time { return fixedNow.Add(5 * time.Minute) }
	out, err = s.Handle(context.Background(), Inbound{Body: "BTN42,ALERT,86%"}, nil)
	require.NoError(t, err)
	assert.False(t, out.Notified)
	assert.Equal(t, SkipDuplicate, out.Skipped)
	inv.AssertNumberOfCalls(t, "CreateInvite", 1)

	inv.On("CreateInvite", mock.Anything, mock.Anything).Return(&calendar.Invite{EventID: "evt2"}, nil).Once()
	s.now = func() time.Time { return fixedNow.Add(11 * time.Minute) }
	out, err = s.Handle(context.Background(), Inbound{Body: "BTN42,ALERT,85%"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Notified)
	inv.AssertNumberOfCalls(t, "CreateInvite", 2)
}

func TestHandleZeroWindowAllowsRepeats(t *testing.T) {
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, mock.Anything).Return(&calendar.Invite{EventID: "evt"}, nil)

	s := testService(newFakeSheet(), inv, ledger.NewMemory(), 0)
	for i := 0; i < 2; i++ {
		out, err := s.Handle(context.Background(), Inbound{Body: "BTN42,ALERT,87%"}, nil)
		require.NoError(t, err)
		assert.True(t, out.Notified)
	}
	inv.AssertNumberOfCalls(t, "CreateInvite", 2)
}

func TestHandleConcurrentAlertsCreateOneMeeting(t *testing.T) {
	inv := new(mockInviter)
	inv.On("CreateInvite", mock.Anything, []string{"owner@example.com"}).
		After(20*time.Millisecond).
		Return(&calendar.Invite{EventID: "evt1"}, nil)

	s := testService(newFakeSheet(), inv, ledger.NewMemory(), 10*time.Minute)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		notified int
		skipped  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Handle(context.Background(), Inbound{Body: "BTN42,ALERT,87%"}, nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.Notified {
				notified++
			} else if out.Skipped == SkipDuplicate {
				skipped++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, notified)
	assert.Equal(t, n-1, skipped)
	inv.AssertNumberOfCalls(t, "CreateInvite", 1)
}
