package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"installments/internal/config"
	"installments/internal/logger"
)

// DefaultPollInterval is how often Subscribe re-reads a sheet.
const DefaultPollInterval = 15 * time.Second

var sheetHeaders = []interface{}{"ID", "Record", "Updated"}

// sheetValues is the slice of the Sheets API the mirror uses.
type sheetValues interface {
	EnsureSheet(ctx context.Context, name string) error
	Get(ctx context.Context, rangeSpec string) ([][]interface{}, error)
	Update(ctx context.Context, rangeSpec string, values [][]interface{}) error
	Append(ctx context.Context, rangeSpec string, values [][]interface{}) error
	Clear(ctx context.Context, rangeSpec string) error
}

// SheetsMirror stores each collection on its own tab, one row per record:
// A=id, B=record JSON, C=last update.
type SheetsMirror struct {
	values   sheetValues
	interval time.Duration
	clock    func() time.Time
	mu       sync.Mutex
	ready    map[string]bool
	log      zerolog.Logger
}

// NewSheetsMirror authenticates with the service account from
// GOOGLE_APPLICATION_CREDENTIALS (a file) or GOOGLE_CREDENTIALS (inline JSON).
func NewSheetsMirror(ctx context.Context, cfg config.SheetsConfig) (*SheetsMirror, error) {
	const op = "NewSheetsMirror"

	spreadsheetID, err := extractSpreadsheetID(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: %w: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS", op, ErrMissingCredentials)
	}

	jwt, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return newSheetsMirror(&sheetsAPI{svc: svc, spreadsheetID: spreadsheetID, log: logger.WithComponent("mirror-sheets")}), nil
}

func newSheetsMirror(values sheetValues) *SheetsMirror {
	return &SheetsMirror{
		values:   values,
		interval: DefaultPollInterval,
		clock:    time.Now,
		ready:    make(map[string]bool),
		log:      logger.WithComponent("mirror-sheets"),
	}
}

func extractSpreadsheetID(url string) (string, error) {
	re := regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	matches := re.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", ErrInvalidSheetURL
	}
	return matches[1], nil
}

func (m *SheetsMirror) ensure(ctx context.Context, collection string) error {
	if m.ready[collection] {
		return nil
	}
	if err := m.values.EnsureSheet(ctx, collection); err != nil {
		return err
	}
	m.ready[collection] = true
	return nil
}

func (m *SheetsMirror) LoadCollection(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	const op = "LoadCollection"

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensure(ctx, collection); err != nil {
		return nil, newMirrorError(op, collection, err)
	}
	rows, err := m.values.Get(ctx, collection+"!A:B")
	if err != nil {
		return nil, newMirrorError(op, collection, err)
	}
	return m.parseRows(collection, rows), nil
}

// parseRows skips the header, cleared rows and rows without valid JSON.
func (m *SheetsMirror) parseRows(collection string, rows [][]interface{}) map[string]json.RawMessage {
	records := make(map[string]json.RawMessage)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		id := getString(row, 0)
		if id == "" {
			continue
		}
		raw := getString(row, 1)
		if !json.Valid([]byte(raw)) {
			m.log.Warn().
				Str("collection", collection).
				Str("id", id).
				Int("row", i+1).
				Msg("Skipping malformed remote record")
			continue
		}
		records[id] = json.RawMessage(raw)
	}
	return records
}

// findRow returns the 1-based sheet row holding id, or 0.
func (m *SheetsMirror) findRow(ctx context.Context, collection, id string) (int, error) {
	rows, err := m.values.Get(ctx, collection+"!A:A")
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if i > 0 && getString(row, 0) == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (m *SheetsMirror) SaveRecord(ctx context.Context, collection, id string, record any) error {
	const op = "SaveRecord"

	if id == "" {
		return newMirrorError(op, collection, ErrMissingID)
	}
	raw, err := encodeRecord(record)
	if err != nil {
		return newMirrorError(op, collection, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensure(ctx, collection); err != nil {
		return newMirrorError(op, collection, err)
	}
	row, err := m.findRow(ctx, collection, id)
	if err != nil {
		return newMirrorError(op, collection, err)
	}

	values := [][]interface{}{{id, string(raw), m.clock().UTC().Format(time.RFC3339)}}
	if row > 0 {
		err = m.values.Update(ctx, fmt.Sprintf("%s!A%d:C%d", collection, row, row), values)
	} else {
		err = m.values.Append(ctx, collection+"!A:C", values)
	}
	if err != nil {
		return newMirrorError(op, collection, err)
	}
	return nil
}

func (m *SheetsMirror) DeleteRecord(ctx context.Context, collection, id string) error {
	const op = "DeleteRecord"

	if id == "" {
		return newMirrorError(op, collection, ErrMissingID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensure(ctx, collection); err != nil {
		return newMirrorError(op, collection, err)
	}
	row, err := m.findRow(ctx, collection, id)
	if err != nil {
		return newMirrorError(op, collection, err)
	}
	if row == 0 {
		return nil
	}
	if err := m.values.Clear(ctx, fmt.Sprintf("%s!A%d:C%d", collection, row, row)); err != nil {
		return newMirrorError(op, collection, err)
	}
	return nil
}

// Subscribe polls the tab and reports differences from the previous read. The first
// read is the baseline and produces no changes.
func (m *SheetsMirror) Subscribe(ctx context.Context, collection string, fn func(Change)) error {
	const op = "Subscribe"

	previous, err := m.LoadCollection(ctx, collection)
	if err != nil {
		return err
	}
	m.log.Info().Str("collection", collection).Dur("interval", m.interval).Msg("Polling sheet for changes")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current, err := m.LoadCollection(ctx, collection)
			if err != nil {
				m.log.Warn().Err(newMirrorError(op, collection, err)).Msg("Sheet poll failed")
				continue
			}
			for _, change := range diffRecords(collection, previous, current) {
				fn(change)
			}
			previous = current
		}
	}
}

// diffRecords lists added, changed and removed records, ordered by id.
func diffRecords(collection string, before, after map[string]json.RawMessage) []Change {
	var changes []Change
	for id, raw := range after {
		if old, ok := before[id]; !ok || string(old) != string(raw) {
			changes = append(changes, Change{Collection: collection, ID: id, Record: raw})
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			changes = append(changes, Change{Collection: collection, ID: id, Deleted: true})
		}
	}
	sortChanges(changes)
	return changes
}

func (m *SheetsMirror) Close() error {
	return nil
}

func getString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return fmt.Sprintf("%v", row[index])
}

// sheetsAPI talks to one spreadsheet.
type sheetsAPI struct {
	svc           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// EnsureSheet creates the tab with a bold header row when it does not exist.
func (a *sheetsAPI) EnsureSheet(ctx context.Context, name string) error {
	const op = "EnsureSheet"

	spreadsheet, err := a.svc.Spreadsheets.Get(a.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == name {
			return nil
		}
	}

	resp, err := a.svc.Spreadsheets.BatchUpdate(a.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to create sheet %s: %w", op, name, err)
	}
	sheetID := resp.Replies[0].AddSheet.Properties.SheetId

	if err := a.Update(ctx, name+"!A1:C1", [][]interface{}{sheetHeaders}); err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	_, err = a.svc.Spreadsheets.BatchUpdate(a.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(sheetHeaders)),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		// Formatting is cosmetic.
		a.log.Warn().Err(err).Str("sheet", name).Msg("Failed to format headers")
	}
	return nil
}

func (a *sheetsAPI) Get(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(a.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", rangeSpec, err)
	}
	return resp.Values, nil
}

func (a *sheetsAPI) Update(ctx context.Context, rangeSpec string, values [][]interface{}) error {
	_, err := a.svc.Spreadsheets.Values.Update(a.spreadsheetID, rangeSpec, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update range %s: %w", rangeSpec, err)
	}
	return nil
}

func (a *sheetsAPI) Append(ctx context.Context, rangeSpec string, values [][]interface{}) error {
	_, err := a.svc.Spreadsheets.Values.Append(a.spreadsheetID, rangeSpec, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", rangeSpec, err)
	}
	return nil
}

func (a *sheetsAPI) Clear(ctx context.Context, rangeSpec string) error {
	_, err := a.svc.Spreadsheets.Values.Clear(a.spreadsheetID, rangeSpec, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear range %s: %w", rangeSpec, err)
	}
	return nil
}
