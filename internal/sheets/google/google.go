package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"portfolio/internal/log"
	ports "portfolio/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// lastColumn is the column of the final Header field (17 columns, A..Q).
const lastColumn = "Q"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year (e.g. "Contributions"); the year is prefixed per row.
	sheetBase string
	logger    *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

var _ ports.SnapshotExporter = (*Client)(nil)

type Options struct {
	SpreadsheetID   string
	SheetBase       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetBase, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Contributions"
	}
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentSheets})
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		logger:        logger,
		known:         make(map[string]bool),
	}
}

func newSheetsService(ctx context.Context, credentialsJSON, credentialsFile string) (*gsheet.Service, error) {
	credentialsJSON = strings.TrimSpace(credentialsJSON)
	credentialsFile = strings.TrimSpace(credentialsFile)
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case credentialsJSON != "":
		creds = []byte(credentialsJSON)
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// UpsertSnapshot writes row into the "<year> <base>" sheet, overwriting the
// existing row for the same identity and year or appending a new one.
func (c *Client) UpsertSnapshot(ctx context.Context, row ports.SnapshotRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if strings.TrimSpace(row.Identity) == "" {
		return errors.New("snapshot row has no identity")
	}

	sheet := yearPrefixedName(c.sheetBase, row.Year)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	keys := fmt.Sprintf("%s!A:B", quoteSheet(sheet))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, keys).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", keys, err)
	}

	vr := &gsheet.ValueRange{Values: [][]any{row.Values()}}
	if n := findRow(resp.Values, row.Identity, row.Year); n > 0 {
		rng := fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), n, lastColumn, n)
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		c.logger.InfoContext(ctx, "Updated contribution snapshot row",
			log.FieldIdentity, row.Identity, log.FieldYear, row.Year, "row", n)
		return nil
	}

	rng := fmt.Sprintf("%s!A:%s", quoteSheet(sheet), lastColumn)
	if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return fmt.Errorf("append %s: %w", rng, err)
	}
	c.logger.InfoContext(ctx, "Appended contribution snapshot row",
		log.FieldIdentity, row.Identity, log.FieldYear, row.Year)
	return nil
}

// ensureSheet creates the sheet with its header row when it does not exist yet.
func (c *Client) ensureSheet(ctx context.Context, name string) error {
	c.mu.Lock()
	ok := c.known[name]
	c.mu.Unlock()
	if ok {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	exists := false
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == name {
			exists = true
			break
		}
	}

	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %s: %w", name, err)
		}

		header := make([]any, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		rng := fmt.Sprintf("%s!A1:%s1", quoteSheet(name), lastColumn)
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
		c.logger.InfoContext(ctx, "Created snapshot sheet", "sheet", name, log.FieldSpreadsheet, c.spreadsheetID)
	}

	c.mu.Lock()
	c.known[name] = true
	c.mu.Unlock()
	return nil
}

// findRow returns the 1-based sheet row holding identity and year, or 0.
// Identity matches case-insensitively; the header row never matches.
func findRow(values [][]any, identity string, year int) int {
	for i, r := range values {
		if len(r) < 2 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(r[0]))
		y, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(r[1])))
		if err != nil {
			continue
		}
		if strings.EqualFold(id, identity) && y == year {
			return i + 1
		}
	}
	return 0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet quotes a sheet name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
