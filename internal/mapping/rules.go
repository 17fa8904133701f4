package mapping

import (
	"strings"

	"github.com/joseph-ayodele/docscan/constants"
)

// Kind decides how a field's text is parsed.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindIdentifier
	KindAmount
)

type rule struct {
	field string
	kind  Kind
}

// ruleset is one variant of the category dispatch: its label dictionary and
// the summary it derives from mapped fields.
type ruleset struct {
	family  constants.Family
	labels  map[string]rule
	summary func(fields map[string]FieldValue) map[string]any
}

var identityRules = ruleset{
	family: constants.FamilyIdentity,
	labels: map[string]rule{
		"dni_apellido":          {"family_name", KindText},
		"dni_nombre":            {"given_name", KindText},
		"dni_numero":            {"identity_number", KindIdentifier},
		"dni_fecha_nacimiento":  {"birth_date", KindDate},
		"dni_fecha_emision":     {"issue_date", KindDate},
		"dni_fecha_vencimiento": {"expiry_date", KindDate},
		"dni_domicilio":         {"address", KindText},
		"dni_lugar_nacimiento":  {"birth_place", KindText},
		"dni_sexo":              {"sex", KindText},
		"dni_nacionalidad":      {"nationality", KindText},
	},
	summary: func(f map[string]FieldValue) map[string]any {
		name := strings.TrimSpace(f["given_name"].Value + " " + f["family_name"].Value)
		return map[string]any{
			"full_name":       name,
			"identity_number": f["identity_number"].ParsedNumber,
			"birth_date":      f["birth_date"].ParsedDate,
		}
	},
}

var invoiceRules = ruleset{
	family: constants.FamilyInvoice,
	labels: map[string]rule{
		"factura_numero":            {"invoice_number", KindText},
		"factura_tipo":              {"invoice_type", KindText},
		"factura_fecha_emision":     {"issue_date", KindDate},
		"factura_fecha_vencimiento": {"due_date", KindDate},
		"emisor_cuit":               {"issuer_tax_id", KindIdentifier},
		"emisor_razon_social":       {"issuer_name", KindText},
		"emisor_domicilio":          {"issuer_address", KindText},
		"receptor_cuit":             {"recipient_tax_id", KindIdentifier},
		"receptor_razon_social":     {"recipient_name", KindText},
		"receptor_domicilio":        {"recipient_address", KindText},
		"subtotal":                  {"subtotal", KindAmount},
		"iva_21":                    {"vat_21", KindAmount},
		"iva_105":                   {"vat_105", KindAmount},
		"otros_impuestos":           {"other_taxes", KindAmount},
		"total":                     {"total", KindAmount},
		"cae":                       {"authorization_code", KindIdentifier},
		"fecha_vencimiento_cae":     {"authorization_expiry", KindDate},
	},
	summary: func(f map[string]FieldValue) map[string]any {
		return map[string]any{
			"invoice_number": f["invoice_number"].Value,
			"issue_date":     f["issue_date"].ParsedDate,
			"issuer_name":    f["issuer_name"].Value,
			"total":          f["total"].ParsedAmount,
			"currency":       f["total"].Currency,
		}
	},
}

var unknownRules = ruleset{
	family:  constants.FamilyUnknown,
	summary: func(map[string]FieldValue) map[string]any { return map[string]any{} },
}

func rulesFor(cat constants.Category) ruleset {
	switch cat.Family() {
	case constants.FamilyIdentity:
		return identityRules
	case constants.FamilyInvoice:
		return invoiceRules
	default:
		return unknownRules
	}
}
