package web

import (
	"net/http"
	"strconv"

	"billing-ledger/internal/app"

	"go.uber.org/zap"
)

// apiStatement handles GET /api/statement?customer_name=&customer_id=&from=&to=.
func (h *Handler) apiStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.StatementRequest{
		CustomerName: q.Get("customer_name"),
		From:         q.Get("from"),
		To:           q.Get("to"),
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, "customer_id must be an integer", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		req.CustomerID = &id
	}

	statement, err := h.svc.Statement(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, statement)
}

// apiVerifyLedger handles POST /api/ledger/verify?repair=true.
func (h *Handler) apiVerifyLedger(w http.ResponseWriter, r *http.Request) {
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))
	if c := authFromContext(r.Context()); c != nil && repair {
		h.log.Info("ledger repair requested", zap.String("subject", c.Subject))
	}
	report, err := h.svc.VerifyLedger(r.Context(), repair)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}
