/*
Package sheets implements store.RowStore on top of a Google Sheets spreadsheet.

PURPOSE:
  HR keeps balances and the reward catalog in a shared spreadsheet. Each
  store table is one tab; row 1 holds the headers. This package translates
  RowStore calls into Sheets API v4 value reads and writes.

MAPPING:
  EnsureTable -> spreadsheets.batchUpdate(addSheet) + header row write
  Headers     -> values.get('<tab>'!1:1)
  Rows        -> values.get('<tab>')
  UpdateRow   -> values.batchUpdate, one range per named cell
  AppendRow   -> values.append, INSERT_ROWS

VALUE INPUT:
  UpdateRow uses USER_ENTERED so balances stay numeric in the sheet.
  AppendRow uses RAW so identifiers with leading zeros ("01234567890") are
  kept verbatim in the history tab.

CREDENTIALS:
  A service-account JSON key. The key may carry an extra "sheetId" field
  naming the spreadsheet, which is used when no explicit ID is configured.

SEE ALSO:
  - store/store.go: RowStore contract
  - config/config.go: GOOGLE_CREDENTIALS_JSON, SHEET_ID
*/
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/warp/rewards-bot/store"
)

// Store implements store.RowStore for one spreadsheet.
type Store struct {
	svc           *sheets.Service
	spreadsheetID string
}

var _ store.RowStore = (*Store)(nil)

// ErrNoSpreadsheet is returned when neither the config nor the credentials
// name a spreadsheet.
var ErrNoSpreadsheet = errors.New("no spreadsheet id configured")

// New creates a store for spreadsheetID using the given client options.
func New(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Store, error) {
	if spreadsheetID == "" {
		return nil, ErrNoSpreadsheet
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &Store{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewFromCredentialsJSON builds a store from a service-account key. An empty
// spreadsheetID falls back to the key's "sheetId" field.
func NewFromCredentialsJSON(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (*Store, error) {
	if spreadsheetID == "" {
		spreadsheetID = SpreadsheetIDFromCredentials(credentialsJSON)
	}
	return New(ctx, spreadsheetID, option.WithCredentialsJSON(credentialsJSON))
}

// SpreadsheetIDFromCredentials extracts the optional "sheetId" field.
func SpreadsheetIDFromCredentials(credentialsJSON []byte) string {
	var creds struct {
		SheetID string `json:"sheetId"`
	}
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil {
		return ""
	}
	return strings.TrimSpace(creds.SheetID)
}

// =============================================================================
// ROW STORE (store.RowStore interface)
// =============================================================================

func (s *Store) EnsureTable(ctx context.Context, table string, headers []string) error {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to load spreadsheet: %w", err)
	}

	exists := false
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == table {
			exists = true
			break
		}
	}

	var current []string
	if !exists {
		_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: table},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", table, err)
		}
	} else {
		current, err = s.headers(ctx, table)
		if err != nil {
			return err
		}
	}

	missing := store.MissingHeaders(current, headers)
	if len(missing) == 0 {
		return nil
	}

	start := columnName(len(current))
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(missing)}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, a1(table, start+"1"), vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write headers for %s: %w", table, err)
	}
	return nil
}

func (s *Store) Headers(ctx context.Context, table string) ([]string, error) {
	return s.headers(ctx, table)
}

func (s *Store) Rows(ctx context.Context, table string) ([]store.Row, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteTitle(table)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return parseValues(resp.Values), nil
}

func (s *Store) UpdateRow(ctx context.Context, table string, row int, fields map[string]string) error {
	if row < store.FirstDataRow {
		return fmt.Errorf("%s row %d: %w", table, row, store.ErrRowNotFound)
	}
	headers, err := s.headers(ctx, table)
	if err != nil {
		return err
	}

	data := make([]*sheets.ValueRange, 0, len(fields))
	for name, value := range fields {
		col := indexOf(headers, name)
		if col < 0 {
			return fmt.Errorf("%s %q: %w", table, name, store.ErrUnknownColumn)
		}
		data = append(data, &sheets.ValueRange{
			Range:  a1(table, fmt.Sprintf("%s%d", columnName(col), row)),
			Values: [][]interface{}{{value}},
		})
	}

	_, err = s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", table, row, err)
	}
	return nil
}

func (s *Store) AppendRow(ctx context.Context, table string, fields map[string]string) error {
	headers, err := s.headers(ctx, table)
	if err != nil {
		return err
	}
	for name := range fields {
		if indexOf(headers, name) < 0 {
			return fmt.Errorf("%s %q: %w", table, name, store.ErrUnknownColumn)
		}
	}

	cells := make([]interface{}, len(headers))
	for i, h := range headers {
		cells[i] = fields[h]
	}

	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, a1(table, "A1"), &sheets.ValueRange{
		Values: [][]interface{}{cells},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", table, err)
	}
	return nil
}

// headers reads row 1 of a tab.
func (s *Store) headers(ctx context.Context, table string) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, a1(table, "1:1")).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read headers of %s: %w", table, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return toStrings(resp.Values[0]), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// parseValues turns a values.get payload (row 1 = headers) into rows numbered
// the way the sheet numbers them.
func parseValues(values [][]interface{}) []store.Row {
	if len(values) == 0 {
		return nil
	}
	headers := toStrings(values[0])

	rows := make([]store.Row, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		cells := toStrings(values[i])
		row := store.Row{Number: i + 1, Values: make(map[string]string, len(headers))}
		for c, h := range headers {
			if h == "" {
				continue
			}
			if c < len(cells) {
				row.Values[h] = cells[c]
			} else {
				row.Values[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// columnName converts a zero-based column index to A1 letters (0 -> A, 26 -> AA).
func columnName(idx int) string {
	name := ""
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		name = string(rune('A'+(n-1)%26)) + name
	}
	return name
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func a1(title, cells string) string {
	return quoteTitle(title) + "!" + cells
}

func toStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if c != nil {
			out[i] = strings.TrimSpace(fmt.Sprint(c))
		}
	}
	return out
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}
