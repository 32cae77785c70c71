// Package spreadsheet reads and writes the tabs of a single Google
// Spreadsheet addressed by tab name and A1 range.
package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrSheetNotFound is returned when the spreadsheet has no tab with the
// requested title.
var ErrSheetNotFound = errors.New("sheet not found")

const (
	valueInputRaw = "RAW"
	insertRows    = "INSERT_ROWS"

	// readAllColumns is the column span covered by ReadAll.
	readAllColumns = "A1:E"
)

// Client wraps the Sheets API for one spreadsheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *zap.Logger

	// appendMu serializes appends issued by this process.
	appendMu sync.Mutex
}

// New creates a Client for spreadsheetID. opts are passed to the Sheets
// service, typically option.WithHTTPClient with an authorized client.
func New(ctx context.Context, spreadsheetID string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.With(zap.String("spreadsheet_id", spreadsheetID)),
	}, nil
}

// TotalRows returns the declared row count of the named tab.
func (c *Client) TotalRows(ctx context.Context, sheetName string) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties == nil || s.Properties.Title != sheetName {
			continue
		}
		if s.Properties.GridProperties == nil {
			return 0, nil
		}
		return s.Properties.GridProperties.RowCount, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrSheetNotFound, sheetName)
}

// Read returns the cells of rng on the named tab. Cells are rendered as
// strings; an empty range yields an empty slice.
func (c *Client) Read(ctx context.Context, sheetName, rng string) ([][]string, error) {
	vr, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1(sheetName, rng)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1(sheetName, rng), err)
	}
	return toStrings(vr.Values), nil
}

// ReadAll reads every declared row of the named tab. A missing or empty tab
// yields an empty slice; other lookup failures are returned.
func (c *Client) ReadAll(ctx context.Context, sheetName string) ([][]string, error) {
	total, err := c.TotalRows(ctx, sheetName)
	if errors.Is(err, ErrSheetNotFound) {
		c.logger.Warn("sheet not found, treating as empty", zap.String("sheet", sheetName))
		return [][]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		c.logger.Info("no rows found", zap.String("sheet", sheetName))
		return [][]string{}, nil
	}
	return c.Read(ctx, sheetName, fmt.Sprintf("%s%d", readAllColumns, total))
}

// Write overwrites rng on the named tab with literal values.
func (c *Client) Write(ctx context.Context, sheetName, rng string, values [][]interface{}) error {
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(sheetName, rng), &sheets.ValueRange{
		Values: values,
	}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", a1(sheetName, rng), err)
	}
	return nil
}

// Append adds values as new rows after the last row of the tab's table.
// The server picks the target rows, and appends from this process are
// serialized, so concurrent callers never overwrite each other.
func (c *Client) Append(ctx context.Context, sheetName string, values [][]interface{}) error {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(sheetName, "A1"), &sheets.ValueRange{
		Values: values,
	}).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheetName, err)
	}
	if resp.Updates != nil {
		c.logger.Debug("appended rows",
			zap.String("sheet", sheetName),
			zap.String("range", resp.Updates.UpdatedRange),
			zap.Int64("rows", resp.Updates.UpdatedRows),
		)
	}
	return nil
}

// NextRow returns the 1-based index of the first empty row in column A.
func (c *Client) NextRow(ctx context.Context, sheetName string) (int, error) {
	rows, err := c.Read(ctx, sheetName, "A:A")
	if err != nil {
		return 0, err
	}
	return len(rows) + 1, nil
}

// a1 builds a sheet-qualified A1 range, quoting the tab name.
func a1(sheetName, rng string) string {
	return "'" + strings.ReplaceAll(sheetName, "'", "''") + "'!" + rng
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, row := range values {
		cells := make([]string, len(row))
		for i, v := range row {
			if s, ok := v.(string); ok {
				cells[i] = s
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		out = append(out, cells)
	}
	return out
}
