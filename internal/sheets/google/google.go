// Package google mirrors transactions into a Google Sheets spreadsheet, one
// sheet per year ("2025 Transações").
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/sheets"
)

var _ sheets.TransactionMirror = (*Client)(nil)

// idColumn holds the transaction id; rows are located by it.
const idColumn = "G"

type Config struct {
	SpreadsheetID   string
	SheetName       string // base name without year
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu sync.Mutex
	// sheets whose header row is known to exist
	headed map[string]bool
}

// New creates a client authenticated with service account credentials from
// cfg, falling back to Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		logger.InfoContext(ctx, "Using inline JSON credentials")
		opts = append(opts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.InfoContext(ctx, "Read credentials file", "path", cfg.CredentialsFile, "size", len(data))
		opts = append(opts, goption.WithCredentialsJSON(data))
	default:
		logger.InfoContext(ctx, "No explicit credentials, using Application Default Credentials")
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test server.
func NewWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Transações"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetBase:     base,
		logger:        logger.WithComponent(log.ComponentSheets),
		headed:        make(map[string]bool),
	}
}

// SheetFor returns the sheet a transaction dated in year is mirrored to.
func (c *Client) SheetFor(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		return "", fmt.Errorf("%w: transaction without id", sheets.ErrPermanent)
	}
	sheet := c.SheetFor(tx.Date.Year())

	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return "", err
	}
	if row := findRow(ids, tx.ID); row > 0 {
		c.logger.DebugContext(ctx, "Transaction already mirrored", "transaction_id", tx.ID, "row", row)
		return rowRange(sheet, row), nil
	}

	values := [][]any{sheets.Row(tx)}
	if len(ids) == 0 && !c.hasHeader(sheet) {
		header := make([]any, len(sheets.Header))
		for i, h := range sheets.Header {
			header[i] = h
		}
		values = append([][]any{header}, values...)
	}

	rng := fmt.Sprintf("%s!A:H", sheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", classify(fmt.Errorf("append to %s: %w", sheet, err))
	}
	c.markHeader(sheet)

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Transaction mirrored",
		log.NewFields().WithUser(tx.UserID).WithOperation(log.OpSync).ToSlice()...)
	return ref, nil
}

// RemoveTransaction clears the row holding tx. Rows are cleared rather than
// deleted so the references of other rows stay valid.
func (c *Client) RemoveTransaction(ctx context.Context, tx core.Transaction) error {
	sheet := c.SheetFor(tx.Date.Year())
	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return err
	}
	row := findRow(ids, tx.ID)
	if row == 0 {
		c.logger.InfoContext(ctx, "Transaction not mirrored, nothing to remove", "transaction_id", tx.ID, "sheet", sheet)
		return nil
	}
	rng := rowRange(sheet, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return classify(fmt.Errorf("clear %s: %w", rng, err))
	}
	c.logger.InfoContext(ctx, "Transaction row cleared", "transaction_id", tx.ID, "range", rng)
	return nil
}

func (c *Client) readIDs(ctx context.Context, sheet string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s:%s", sheet, idColumn, idColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("read %s: %w", rng, err))
	}
	out := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return out, nil
}

func (c *Client) hasHeader(sheet string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headed[sheet]
}

func (c *Client) markHeader(sheet string) {
	c.mu.Lock()
	c.headed[sheet] = true
	c.mu.Unlock()
}

// findRow returns the 1-based row holding id, or 0.
func findRow(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
}

// classify marks client-side API failures (bad range, missing sheet,
// permission denied) as permanent so they are not retried forever.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %w", sheets.ErrPermanent, err)
		}
	}
	return err
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
