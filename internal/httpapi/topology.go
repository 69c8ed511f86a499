package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) GetEvse(w http.ResponseWriter, r *http.Request) {
	evse, err := s.Topology.EvseByEvseId(r.Context(), chi.URLParam(r, "evseId"))
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if evse == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           evse.Id,
		"evse_id":      evse.EvseId,
		"ocpp_evse_id": evse.OcppEvseId,
		"status":       evse.Status,
		"station_id":   evse.StationId,
		"location_id":  evse.LocationId,
	})
}

func (s *Server) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "locationId"), 10, 64)
	if err != nil {
		http.Error(w, "bad location id", http.StatusBadRequest)
		return
	}
	loc, err := s.Topology.LocationById(r.Context(), id)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if loc == nil {
		http.NotFound(w, r)
		return
	}
	var operatorName string
	if op, err := s.Topology.OperatorById(r.Context(), loc.OperatorId); err == nil && op != nil {
		operatorName = op.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          loc.Id,
		"location_id": loc.LocationId,
		"address":     loc.Address,
		"postal_code": loc.PostalCode,
		"city":        loc.City,
		"state":       loc.State,
		"country":     loc.Country,
		"operator_id": loc.OperatorId,
		"operator":    operatorName,
	})
}

func (s *Server) GetTariff(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tariffId"), 10, 64)
	if err != nil {
		http.Error(w, "bad tariff id", http.StatusBadRequest)
		return
	}
	tariff, err := s.Tariffs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if tariff == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                   tariff.Id,
		"price_kwh":            tariff.PriceKwh,
		"price_minute":         tariff.PriceMinute,
		"price_session":        tariff.PriceSession,
		"currency":             tariff.Currency,
		"tax_rate":             tariff.TaxRate,
		"authorization_amount": tariff.AuthorizationAmount,
		"payment_fee":          tariff.PaymentFee,
	})
}
