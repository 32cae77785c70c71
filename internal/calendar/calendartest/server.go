// Package calendartest provides an in-memory fake of the Calendar v3 events
// insert endpoint.
package calendartest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Inserted is one events.insert call received by the fake.
type Inserted struct {
	CalendarID string
	Query      url.Values
	Event      *gcal.Event
}

// Server is a fake Calendar API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	inserted []Inserted
	failAt   int
}

// NewServer starts a fake Calendar API.
func NewServer() *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// ClientOptions points a Calendar client at the fake.
func (s *Server) ClientOptions() []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(s.URL + "/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(s.Client()),
	}
}

// Inserted returns the events created so far.
func (s *Server) Inserted() []Inserted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Inserted(nil), s.inserted...)
}

// Fail makes every subsequent request return status. Zero restores normal
// behaviour.
func (s *Server) Fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = status
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s.failAt != 0 {
		w.WriteHeader(s.failAt)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": s.failAt, "message": "injected failure"},
		})
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	i := strings.Index(path, "/calendars/")
	if r.Method != http.MethodPost || i < 0 || !strings.HasSuffix(path, "/events") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	calendarID := strings.TrimSuffix(path[i+len("/calendars/"):], "/events")

	ev := &gcal.Event{}
	if err := json.NewDecoder(r.Body).Decode(ev); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.inserted = append(s.inserted, Inserted{CalendarID: calendarID, Query: r.URL.Query(), Event: ev})

	n := len(s.inserted)
	ev.Id = fmt.Sprintf("evt%d", n)
	ev.HtmlLink = "https://calendar.example.com/event?eid=" + ev.Id
	ev.HangoutLink = fmt.Sprintf("https://meet.example.com/room-%d", n)
	_ = json.NewEncoder(w).Encode(ev)
}
