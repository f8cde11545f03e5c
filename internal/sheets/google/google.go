package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"expensehub/internal/core"
	"expensehub/internal/log"
	ports "expensehub/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the service account used to reach it.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger

	mu       sync.Mutex
	headerOK bool
}

var _ ports.RowAppender = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	var credentials []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentials = []byte(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string, logger *log.Logger) *Client {
	if sheet == "" {
		sheet = "Expenses"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// AppendExportRow writes the header row on first use, then appends row
// unless its ID is already in column A.
func (c *Client) AppendExportRow(ctx context.Context, row core.ExportRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	ids, err := c.readIDs(ctx)
	if err != nil {
		return "", err
	}
	if err := c.ensureHeader(ctx, len(ids)); err != nil {
		return "", err
	}

	id := strconv.FormatInt(row.ID, 10)
	for i, existing := range ids {
		if existing == id {
			ref := fmt.Sprintf("%s!A%d", c.sheet, i+1)
			c.logger.DebugContext(ctx, "Export row already present", log.FieldExpenseID, row.ID, "ref", ref)
			return ref, nil
		}
	}

	vr := &gsheet.ValueRange{Values: [][]any{cells(row.Values())}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A:K", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append row to %s: %w", c.sheet, err)
	}

	ref := c.sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Export row appended", log.FieldExpenseID, row.ID, "ref", ref)
	return ref, nil
}

// readIDs returns column A, one entry per row, header included.
func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	rng := c.sheet + "!A:A"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]string, len(resp.Values))
	for i, r := range resp.Values {
		if len(r) > 0 {
			out[i] = strings.TrimSpace(fmt.Sprint(r[0]))
		}
	}
	return out, nil
}

func (c *Client) ensureHeader(ctx context.Context, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerOK {
		return nil
	}
	if rows == 0 {
		vr := &gsheet.ValueRange{Values: [][]any{cells(core.ExportHeader)}}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.sheet+"!A1:K1", vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header to %s: %w", c.sheet, err)
		}
	}
	c.headerOK = true
	return nil
}

func cells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
