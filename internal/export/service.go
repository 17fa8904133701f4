package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/entity"
	"github.com/joseph-ayodele/docscan/internal/payload"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	identitySheet = "Identity"
	invoiceSheet  = "Invoices"
)

type DocumentLister interface {
	ListByStatus(ctx context.Context, status constants.DocumentStatus, limit int) ([]*entity.Document, error)
}

// Service produces XLSX workbooks from completed documents.
type Service struct {
	docs   DocumentLister
	logger *slog.Logger
}

func NewService(docs DocumentLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, logger: logger}
}

type column struct {
	header string
	width  float64
	value  func(d *entity.Document, f structured) any
}

var identityColumns = []column{
	{"Document ID", 38, func(d *entity.Document, _ structured) any { return d.ID.String() }},
	{"Category", 12, func(d *entity.Document, _ structured) any { return string(d.Category) }},
	{"Family Name", 24, text("family_name")},
	{"Given Name", 24, text("given_name")},
	{"Identity Number", 16, text("identity_number")},
	{"Birth Date", 12, text("birth_date")},
	{"Issue Date", 12, text("issue_date")},
	{"Expiry Date", 12, text("expiry_date")},
	{"Nationality", 14, text("nationality")},
	{"Quality", 9, quality},
	{"Processed At", 20, processedAt},
	{"File", 30, func(d *entity.Document, _ structured) any { return d.OriginalFilename }},
}

var invoiceColumns = []column{
	{"Document ID", 38, func(d *entity.Document, _ structured) any { return d.ID.String() }},
	{"Category", 12, func(d *entity.Document, _ structured) any { return string(d.Category) }},
	{"Invoice Number", 18, text("invoice_number")},
	{"Issue Date", 12, text("issue_date")},
	{"Issuer", 28, text("issuer_name")},
	{"Issuer Tax ID", 16, text("issuer_tax_id")},
	{"Recipient", 28, text("recipient_name")},
	{"Subtotal", 14, amount("subtotal")},
	{"VAT 21%", 14, amount("vat_21")},
	{"VAT 10.5%", 14, amount("vat_105")},
	{"Total", 14, amount("total")},
	{"Currency", 9, func(_ *entity.Document, f structured) any { return f["total"].Currency }},
	{"Quality", 9, quality},
	{"Processed At", 20, processedAt},
	{"File", 30, func(d *entity.Document, _ structured) any { return d.OriginalFilename }},
}

// ExportXLSX writes one row per COMPLETED document, split by category family.
// An empty ownerID exports every owner.
func (s *Service) ExportXLSX(ctx context.Context, ownerID string) ([]byte, error) {
	start := time.Now()

	docs, err := s.docs.ListByStatus(ctx, constants.StatusCompleted, 0)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", identitySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(invoiceSheet); err != nil {
		return nil, err
	}
	writeHeader(f, identitySheet, identityColumns)
	writeHeader(f, invoiceSheet, invoiceColumns)

	rows := map[string]int{identitySheet: 2, invoiceSheet: 2}
	skipped := 0
	for _, d := range docs {
		if ownerID != "" && d.OwnerID != ownerID {
			continue
		}
		sheet, cols := invoiceSheet, invoiceColumns
		switch d.Category.Family() {
		case constants.FamilyIdentity:
			sheet, cols = identitySheet, identityColumns
		case constants.FamilyInvoice:
		default:
			skipped++
			continue
		}
		fields, err := parseStructured(d.RawOutput)
		if err != nil {
			s.logger.Warn("export.row.skipped", "document_id", d.ID, "error", err)
			skipped++
			continue
		}
		for i, c := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, rows[sheet])
			_ = f.SetCellValue(sheet, cell, c.value(d, fields))
		}
		rows[sheet]++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"owner_id", ownerID,
		"identity_rows", rows[identitySheet]-2,
		"invoice_rows", rows[invoiceSheet]-2,
		"skipped", skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, cols []column) {
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, c.header)
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, name, name, c.width)
	}
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

type cell struct {
	Value        string `json:"value"`
	ParsedDate   string `json:"parsed_date"`
	ParsedNumber string `json:"parsed_number"`
	ParsedAmount string `json:"parsed_amount"`
	Currency     string `json:"currency"`
}

// structured is structured_data keyed by mapped field name. Non-field keys
// (summary, category, ...) decode to zero cells and are never read.
type structured map[string]cell

func parseStructured(raw json.RawMessage) (structured, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decode raw_output: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(top[payload.KeyStructured], &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", payload.KeyStructured, err)
	}
	out := make(structured, len(fields))
	for k, v := range fields {
		var c cell
		if json.Unmarshal(v, &c) == nil {
			out[k] = c
		}
	}
	return out, nil
}

// text prefers the parsed form of a field over the recognised text.
func text(field string) func(*entity.Document, structured) any {
	return func(_ *entity.Document, f structured) any {
		c := f[field]
		switch {
		case c.ParsedDate != "":
			return c.ParsedDate
		case c.ParsedNumber != "":
			return c.ParsedNumber
		default:
			return c.Value
		}
	}
}

// amount writes a numeric cell when the amount parsed, the raw text otherwise.
func amount(field string) func(*entity.Document, structured) any {
	return func(_ *entity.Document, f structured) any {
		c := f[field]
		if c.ParsedAmount == "" {
			return c.Value
		}
		d, err := decimal.NewFromString(c.ParsedAmount)
		if err != nil {
			return c.Value
		}
		return d.InexactFloat64()
	}
}

func quality(d *entity.Document, _ structured) any {
	if d.ProcessingQuality == nil {
		return ""
	}
	return string(*d.ProcessingQuality)
}

func processedAt(d *entity.Document, _ structured) any {
	if d.ProcessedAt == nil {
		return ""
	}
	return d.ProcessedAt.UTC().Format(time.RFC3339)
}
