// Package spreadsheettest provides an in-memory fake of the subset of the
// Sheets v4 REST API used by package spreadsheet.
package spreadsheettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/option"
)

// Server is a fake Sheets API serving one spreadsheet.
type Server struct {
	*httptest.Server

	SpreadsheetID string

	mu     sync.Mutex
	tabs   map[string]*tab
	order  []string
	failAt int // HTTP status returned for every request while non-zero
}

type tab struct {
	rowCount int64
	rows     [][]string
}

// NewServer starts a fake serving spreadsheetID with no tabs.
func NewServer(spreadsheetID string) *Server {
	s := &Server{SpreadsheetID: spreadsheetID, tabs: map[string]*tab{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// ClientOptions points a Sheets client at the fake.
func (s *Server) ClientOptions() []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(s.URL + "/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(s.Client()),
	}
}

// AddSheet creates a tab with rowCount declared rows and the given contents.
func (s *Server) AddSheet(title string, rowCount int64, rows ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[title]; !ok {
		s.order = append(s.order, title)
	}
	if int64(len(rows)) > rowCount {
		rowCount = int64(len(rows))
	}
	s.tabs[title] = &tab{rowCount: rowCount, rows: rows}
}

// Rows returns a copy of the populated rows of a tab.
func (s *Server) Rows(title string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[title]
	if !ok {
		return nil
	}
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
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

	if s.failAt != 0 {
		writeError(w, s.failAt, "injected failure")
		return
	}

	prefix := "/v4/spreadsheets/" + s.SpreadsheetID
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusNotFound, "unknown spreadsheet")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.metadata(w)
	case strings.HasPrefix(rest, "/values/") && r.Method == http.MethodPost && strings.HasSuffix(rest, ":append"):
		s.appendValues(w, r, strings.TrimSuffix(strings.TrimPrefix(rest, "/values/"), ":append"))
	case strings.HasPrefix(rest, "/values/") && r.Method == http.MethodGet:
		s.getValues(w, strings.TrimPrefix(rest, "/values/"))
	case strings.HasPrefix(rest, "/values/") && r.Method == http.MethodPut:
		s.updateValues(w, r, strings.TrimPrefix(rest, "/values/"))
	default:
		writeError(w, http.StatusNotFound, "unsupported call "+r.Method+" "+rest)
	}
}

func (s *Server) metadata(w http.ResponseWriter) {
	type grid struct {
		RowCount int64 `json:"rowCount"`
	}
	type props struct {
		Title          string `json:"title"`
		GridProperties grid   `json:"gridProperties"`
	}
	type sheet struct {
		Properties props `json:"properties"`
	}
	resp := struct {
		SpreadsheetID string  `json:"spreadsheetId"`
		Sheets        []sheet `json:"sheets"`
	}{SpreadsheetID: s.SpreadsheetID}
	for _, title := range s.order {
		resp.Sheets = append(resp.Sheets, sheet{Properties: props{
			Title:          title,
			GridProperties: grid{RowCount: s.tabs[title].rowCount},
		}})
	}
	writeJSON(w, resp)
}

func (s *Server) getValues(w http.ResponseWriter, a1 string) {
	t, rng, ok := s.lookup(w, a1)
	if !ok {
		return
	}
	var values [][]string
	for i := rng.startRow; i <= rng.endRow(len(t.rows)) && i <= len(t.rows); i++ {
		row := t.rows[i-1]
		cells := []string{}
		for c := rng.startCol; c <= rng.endCol(len(row)) && c < len(row); c++ {
			cells = append(cells, row[c])
		}
		values = append(values, trimTrailing(cells))
	}
	// The real API stops at the last non-empty row.
	for len(values) > 0 && len(values[len(values)-1]) == 0 {
		values = values[:len(values)-1]
	}
	resp := map[string]interface{}{"range": a1, "majorDimension": "ROWS"}
	if len(values) > 0 {
		resp["values"] = values
	}
	writeJSON(w, resp)
}

func (s *Server) updateValues(w http.ResponseWriter, r *http.Request, a1 string) {
	t, rng, ok := s.lookup(w, a1)
	if !ok {
		return
	}
	values, ok := decodeValues(w, r)
	if !ok {
		return
	}
	for i, row := range values {
		idx := rng.startRow - 1 + i
		for len(t.rows) <= idx {
			t.rows = append(t.rows, nil)
		}
		dst := t.rows[idx]
		for len(dst) < rng.startCol+len(row) {
			dst = append(dst, "")
		}
		copy(dst[rng.startCol:], row)
		t.rows[idx] = dst
	}
	t.grow()
	writeJSON(w, map[string]interface{}{
		"spreadsheetId": s.SpreadsheetID,
		"updatedRange":  a1,
		"updatedRows":   len(values),
	})
}

func (s *Server) appendValues(w http.ResponseWriter, r *http.Request, a1 string) {
	t, _, ok := s.lookup(w, a1)
	if !ok {
		return
	}
	values, ok := decodeValues(w, r)
	if !ok {
		return
	}
	first := len(t.rows) + 1
	t.rows = append(t.rows, values...)
	t.grow()

	sheetName, _ := splitA1(a1)
	writeJSON(w, map[string]interface{}{
		"spreadsheetId": s.SpreadsheetID,
		"updates": map[string]interface{}{
			"updatedRange": fmt.Sprintf("%s!A%d:F%d", sheetName, first, len(t.rows)),
			"updatedRows":  len(values),
		},
	})
}

func (t *tab) grow() {
	if int64(len(t.rows)) > t.rowCount {
		t.rowCount = int64(len(t.rows))
	}
}

func (s *Server) lookup(w http.ResponseWriter, a1 string) (*tab, cellRange, bool) {
	sheetName, cells := splitA1(a1)
	t, ok := s.tabs[sheetName]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+a1)
		return nil, cellRange{}, false
	}
	rng, err := parseRange(cells)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, cellRange{}, false
	}
	return t, rng, true
}

func decodeValues(w http.ResponseWriter, r *http.Request) ([][]string, bool) {
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return nil, false
	}
	out := make([][]string, len(body.Values))
	for i, row := range body.Values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out, true
}

// splitA1 separates "'Tab Name'!A1:B2" into its tab name and cell range.
func splitA1(a1 string) (string, string) {
	i := strings.LastIndex(a1, "!")
	if i < 0 {
		return a1, ""
	}
	name := a1[:i]
	if len(name) >= 2 && name[0] == '\'' && name[len(name)-1] == '\'' {
		name = strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	return name, a1[i+1:]
}

// cellRange is a parsed A1 range.
type cellRange struct {
	startRow, startCol int // startRow is 1-based, startCol 0-based
	lastRow, lastCol   int // lastRow 1-based, lastCol 0-based; -1 unbounded
}

func (c cellRange) endRow(n int) int {
	if c.lastRow < 0 {
		return n
	}
	return c.lastRow
}

func (c cellRange) endCol(n int) int {
	if c.lastCol < 0 {
		return n - 1
	}
	return c.lastCol
}

func parseRange(cells string) (cellRange, error) {
	rng := cellRange{startRow: 1, lastRow: -1, lastCol: -1}
	if cells == "" {
		return rng, nil
	}
	parts := strings.SplitN(cells, ":", 2)
	col, row, err := parseCell(parts[0])
	if err != nil {
		return rng, err
	}
	rng.startCol = col
	if row > 0 {
		rng.startRow = row
	}
	if len(parts) == 1 {
		rng.lastCol = col
		if row > 0 {
			rng.lastRow = row
		}
		return rng, nil
	}
	col, row, err = parseCell(parts[1])
	if err != nil {
		return rng, err
	}
	rng.lastCol = col
	if row > 0 {
		rng.lastRow = row
	}
	return rng, nil
}

func parseCell(cell string) (col, row int, err error) {
	i := 0
	col = 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A'+1)
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("bad cell reference %q", cell)
	}
	if i < len(cell) {
		row, err = strconv.Atoi(cell[i:])
		if err != nil {
			return 0, 0, fmt.Errorf("bad cell reference %q", cell)
		}
	}
	return col - 1, row, nil
}

func trimTrailing(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": status, "message": msg},
	})
}
