package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"billing-ledger/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Options configures the HTTP adapter.
type Options struct {
	AllowedOrigins []string
	// JWTSecret enables bearer/cookie token checks on the API. Empty disables them.
	JWTSecret string
	BodyLimit int64
	Logger    *zap.Logger
}

// Handler serves the JSON API on top of an ApplicationService.
type Handler struct {
	svc       app.ApplicationService
	log       *zap.Logger
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 1 << 20 // 1 MB
	}

	h := &Handler{
		svc:       svc,
		log:       opts.Logger,
		jwtSecret: opts.JWTSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.log))
	r.Use(Recoverer(h.log))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Get("/api/schemas/{name}", h.schema)

	// ── API ───────────────────────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		if h.jwtSecret != "" {
			r.Use(h.RequireAuth)
		}
		r.Use(RequestBodyLimit(opts.BodyLimit))

		// Customers
		r.Get("/api/customers", h.apiListCustomers)
		r.Post("/api/customers", h.apiCreateCustomer)
		r.Get("/api/customers/{id}", h.apiGetCustomer)
		r.Put("/api/customers/{id}", h.apiUpdateCustomer)
		r.Delete("/api/customers/{id}", h.apiDeleteCustomer)
		r.Get("/api/customers/{id}/returns", h.apiCustomerReturns)

		// Bills
		r.Get("/api/bills/next-number", h.apiNextBillNo)
		r.Post("/api/bills", h.apiCreateBill)
		r.Get("/api/bills/{id}", h.apiGetBill)
		r.Delete("/api/bills/{id}", h.apiDeleteBill)
		r.Put("/api/bills/{id}/items", h.apiReplaceItems)
		r.Put("/api/bills/{id}/customer", h.apiAssignCustomer)

		// Payments and returns
		r.Post("/api/bills/{id}/payments", h.apiRecordPayment)
		r.Post("/api/bills/{id}/mark-paid", h.apiMarkPaid)
		r.Put("/api/payments/{id}", h.apiUpdatePayment)
		r.Delete("/api/payments/{id}", h.apiDeletePayment)
		r.Post("/api/bills/{id}/returns", h.apiRecordReturn)
		r.Delete("/api/returns/{id}", h.apiDeleteReturn)

		// Reporting
		r.Get("/api/statement", h.apiStatement)
		r.Post("/api/ledger/verify", h.apiVerifyLedger)
	})

	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// idParam extracts a positive integer {id} URL parameter. It writes a 400 and
// returns false when the parameter is malformed.
func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
