package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ sheets.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account. Extra
// options are appended after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Transactions"
	}

	var base []goption.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		base = append(base, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		base = append(base, goption.WithCredentialsFile(cfg.CredentialsFile))
	}
	base = append(base, goption.WithScopes(gsheet.SpreadsheetsScope))

	svc, err := gsheet.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets exporter ready",
		log.FieldComponent, log.ComponentSheets,
		"sheet", cfg.SheetName)

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: cfg.SheetName}, nil
}

// AppendTransaction appends a row after the last filled row of the sheet.
func (c *Client) AppendTransaction(ctx context.Context, t core.Transaction, w core.Wallet) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if t.ID == "" {
		return "", errors.New("transaction has no id")
	}

	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{sheets.Row(t, w)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}

	slog.InfoContext(ctx, "Transaction exported",
		log.FieldComponent, log.ComponentSheets,
		log.FieldOperation, log.OpExport,
		log.FieldTransactionID, t.ID,
		"range", ref)
	return ref, nil
}
