package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type createCheckoutReq struct {
	EvseId     string `json:"evse_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *Server) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if req.EvseId == "" || req.SuccessURL == "" || req.CancelURL == "" {
		http.Error(w, "evse_id, success_url and cancel_url are required", http.StatusBadRequest)
		return
	}

	c, url, err := s.Checkouts.Create(r.Context(), req.EvseId, req.SuccessURL, req.CancelURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":  c.Id,
		"url": url,
	})
}

func (s *Server) GetCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "checkoutId"), 10, 64)
	if err != nil {
		http.Error(w, "bad checkout id", http.StatusBadRequest)
		return
	}
	c, pricing, err := s.Checkouts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                     c.Id,
		"status":                 c.Status,
		"connector_id":           c.ConnectorId,
		"tariff_id":              c.TariffId,
		"remote_request_status":  c.RemoteRequestStatus,
		"transaction_start_time": c.TransactionStartTime,
		"transaction_end_time":   c.TransactionEndTime,
		"transaction_kwh":        c.TransactionKwh,
		"power_active_import":    c.PowerActiveImport,
		"transaction_soc":        c.TransactionSoc,
		"pricing":                pricing,
	})
}
