package web

import (
	"net/http"

	"billing-ledger/internal/app"
)

// ── Bills ─────────────────────────────────────────────────────────────────────

// apiNextBillNo handles GET /api/bills/next-number.
func (h *Handler) apiNextBillNo(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.NextBillNo(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int64{"bill_no": n})
}

// apiCreateBill handles POST /api/bills.
// Body: { customer_id? | customer_name, phone?, date?, bill_no? }
func (h *Handler) apiCreateBill(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.CreateBill(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiGetBill handles GET /api/bills/{id}.
func (h *Handler) apiGetBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.GetBill(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, detail)
}

// apiDeleteBill handles DELETE /api/bills/{id}.
func (h *Handler) apiDeleteBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteBill(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiReplaceItems handles PUT /api/bills/{id}/items.
// Body: { items: [{description, quantity, rate}], packing_qty, packing_rate, packing_reason, extra_reason, extra_amount }
func (h *Handler) apiReplaceItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.ReplaceItemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BillID = id
	result, err := h.svc.ReplaceItems(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAssignCustomer handles PUT /api/bills/{id}/customer. A null customer_id unlinks.
func (h *Handler) apiAssignCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.AssignCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BillID = id
	result, err := h.svc.AssignCustomer(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ── Payments and returns ──────────────────────────────────────────────────────

// apiRecordPayment handles POST /api/bills/{id}/payments.
// Body: { amount, note?, date? }
func (h *Handler) apiRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.RecordPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BillID = id
	result, err := h.svc.RecordPayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiMarkPaid handles POST /api/bills/{id}/mark-paid.
func (h *Handler) apiMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.MarkPaid(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiUpdatePayment handles PUT /api/payments/{id}.
func (h *Handler) apiUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.UpdatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.PaymentID = id
	result, err := h.svc.UpdatePayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiDeletePayment handles DELETE /api/payments/{id}.
func (h *Handler) apiDeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.DeletePayment(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiRecordReturn handles POST /api/bills/{id}/returns.
// Body: { amount, note? }
func (h *Handler) apiRecordReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.RecordReturnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BillID = id
	result, err := h.svc.RecordReturn(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiDeleteReturn handles DELETE /api/returns/{id}.
func (h *Handler) apiDeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.DeleteReturn(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
