package web

import (
	"net/http"
	"reflect"

	"billing-ledger/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

// requestSchemas are the request bodies published under /api/schemas/{name}.
var requestSchemas = map[string]any{
	"customer":       app.CreateCustomerRequest{},
	"bill":           app.CreateBillRequest{},
	"items":          app.ReplaceItemsRequest{},
	"assign":         app.AssignCustomerRequest{},
	"payment":        app.RecordPaymentRequest{},
	"payment-update": app.UpdatePaymentRequest{},
	"return":         app.RecordReturnRequest{},
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// requestSchema builds the JSON schema for a request body. Money fields are
// published as decimal strings.
func requestSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
	return reflector.Reflect(v)
}

// schema handles GET /api/schemas/{name}.
func (h *Handler) schema(w http.ResponseWriter, r *http.Request) {
	v, ok := requestSchemas[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, r, "unknown schema", "NOT_FOUND", http.StatusNotFound)
		return
	}
	writeJSON(w, requestSchema(v))
}
