// Package httpapi is the synchronous HTTP surface: checkout creation and
// inspection, the payment provider's webhook and a few topology reads.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"evpay/internal/config"
	"evpay/internal/services"
)

type Server struct {
	Cfg       config.Config
	Log       *zap.Logger
	Checkouts *services.CheckoutService
	Topology  services.TopologyStore
	Tariffs   services.TariffStore
}

func NewServer(cfg config.Config, log *zap.Logger, checkouts *services.CheckoutService, topology services.TopologyStore, tariffs services.TariffStore) *Server {
	return &Server{Cfg: cfg, Log: log, Checkouts: checkouts, Topology: topology, Tariffs: tariffs}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/checkouts", s.CreateCheckout)
	r.Get("/checkouts/{checkoutId}", s.GetCheckout)

	r.Post("/webhooks/stripe", s.StripeWebhook)

	r.Get("/evses/{evseId}", s.GetEvse)
	r.Get("/locations/{locationId}", s.GetLocation)
	r.Get("/tariffs/{tariffId}", s.GetTariff)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
