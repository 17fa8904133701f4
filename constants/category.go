package constants

import (
	"strings"
)

// Category selects the detection model and the field-mapping ruleset for a document.
type Category string

const (
	IdentityFront Category = "DNI_FRONT"
	IdentityBack  Category = "DNI_BACK"
	InvoiceA      Category = "INVOICE_A"
	InvoiceB      Category = "INVOICE_B"
	InvoiceC      Category = "INVOICE_C"
)

var allCategories = []Category{
	IdentityFront,
	IdentityBack,
	InvoiceA,
	InvoiceB,
	InvoiceC,
}

// Family groups categories that share a model and a mapping ruleset.
type Family string

const (
	FamilyIdentity Family = "identity"
	FamilyInvoice  Family = "invoice"
	FamilyUnknown  Family = "unknown"
)

func (c Category) Family() Family {
	switch c {
	case IdentityFront, IdentityBack:
		return FamilyIdentity
	case InvoiceA, InvoiceB, InvoiceC:
		return FamilyInvoice
	default:
		return FamilyUnknown
	}
}

func (c Category) Valid() bool {
	return c.Family() != FamilyUnknown
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps user or directory supplied names onto a Category.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	// synonyms map
	synonyms := map[string]Category{
		"identity_front": IdentityFront,
		"id_front":       IdentityFront,
		"dni":            IdentityFront,
		"identity_back":  IdentityBack,
		"id_back":        IdentityBack,
		"invoice_a":      InvoiceA,
		"factura_a":      InvoiceA,
		"invoice_b":      InvoiceB,
		"factura_b":      InvoiceB,
		"invoice_c":      InvoiceC,
		"factura_c":      InvoiceC,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return "", false
}
