package mapping

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/extract"
)

const isoDate = "2006-01-02"

// FieldValue keeps the recognised text next to whatever could be parsed from it.
type FieldValue struct {
	Value        string          `json:"value"`
	Confidence   float64         `json:"confidence"`
	BBox         detect.BBox     `json:"bbox"`
	ParsedDate   string          `json:"parsed_date,omitempty"`
	DateFormat   string          `json:"date_format,omitempty"`
	ParsedNumber string          `json:"parsed_number,omitempty"`
	ParsedAmount string          `json:"parsed_amount,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	IsValid      *bool           `json:"is_valid,omitempty"`
	Amount       decimal.Decimal `json:"-"`
}

// Record is the category-specific projection of one extraction pass.
type Record struct {
	Category    constants.Category
	Fields      map[string]FieldValue
	Quality     constants.Quality
	ExtractedAt time.Time
	Summary     map[string]any
}

// Map applies the category's label dictionary to raw. Labels outside the
// dictionary are ignored and parse failures leave parsed values unset.
func Map(cat constants.Category, raw extract.Fields, quality constants.Quality, now time.Time) Record {
	rs := rulesFor(cat)
	fields := make(map[string]FieldValue, len(raw))
	for label, f := range raw {
		r, ok := rs.labels[label]
		if !ok {
			continue
		}
		fields[r.field] = parseField(f, r.kind)
	}
	return Record{
		Category:    cat,
		Fields:      fields,
		Quality:     quality,
		ExtractedAt: now.UTC(),
		Summary:     rs.summary(fields),
	}
}

func parseField(f extract.Field, kind Kind) FieldValue {
	v := FieldValue{Value: f.Value, Confidence: f.Confidence, BBox: f.BBox}
	switch kind {
	case KindDate:
		t, layout, ok := ParseDate(f.Value)
		if ok {
			v.ParsedDate = t.Format(isoDate)
			v.DateFormat = layout
		}
		v.IsValid = &ok
	case KindIdentifier:
		digits, ok := ParseIdentifier(f.Value)
		if ok {
			v.ParsedNumber = digits
		}
		v.IsValid = &ok
	case KindAmount:
		amount, currency, ok := ParseAmount(f.Value)
		if ok {
			v.Amount = amount
			v.ParsedAmount = amount.StringFixed(2)
		}
		v.Currency = currency
		v.IsValid = &ok
	}
	return v
}

// MarshalJSON flattens mapped fields next to the record metadata.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["category"] = r.Category
	out["processing_quality"] = r.Quality
	out["extraction_timestamp"] = r.ExtractedAt.Format(time.RFC3339)
	out["summary"] = r.Summary
	return json.Marshal(out)
}
