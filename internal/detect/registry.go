package detect

import (
	"github.com/joseph-ayodele/docscan/constants"
)

// Registry resolves which model serves a category.
type Registry struct {
	Identity string
	Invoice  string
	Fallback string
}

func DefaultRegistry() Registry {
	return Registry{Identity: "dni", Invoice: "invoices", Fallback: "yolov8n"}
}

// ModelFor returns the model id for cat; fallback is true when no dedicated model exists.
func (r Registry) ModelFor(cat constants.Category) (id string, fallback bool) {
	switch cat.Family() {
	case constants.FamilyIdentity:
		return r.Identity, false
	case constants.FamilyInvoice:
		return r.Invoice, false
	default:
		return r.Fallback, true
	}
}
