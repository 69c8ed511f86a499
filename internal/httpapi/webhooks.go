package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the signed payload; Stripe events are small.
const maxWebhookBody = 1 << 20

// StripeWebhook handles payment provider callbacks. Only
// checkout.session.completed mutates state; charge.succeeded is an older
// integration's event and is acknowledged without action, as is anything
// unknown, so Stripe does not retry events we will never act on.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readAll(r, maxWebhookBody)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	event, err := s.verifySignature(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.Log.Warn("webhook signature rejected", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		s.checkoutSessionCompleted(w, r, event)
	case "charge.succeeded":
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
	default:
		s.Log.Debug("unhandled webhook event", zap.String("type", string(event.Type)))
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
	}
}

// verifySignature checks the payload against the account secret first, then
// the connect secret; connected-account events are signed with the latter.
// Accounts pin their own API version, so version mismatches are not an error.
func (s *Server) verifySignature(payload []byte, header string) (stripe.Event, error) {
	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, header, s.Cfg.StripeEndpointSecretAcct, opts)
	if err == nil {
		return event, nil
	}
	if s.Cfg.StripeEndpointSecretConn != "" {
		return webhook.ConstructEventWithOptions(payload, header, s.Cfg.StripeEndpointSecretConn, opts)
	}
	return stripe.Event{}, err
}

func (s *Server) checkoutSessionCompleted(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}
	checkoutId, err := strconv.ParseInt(session.Metadata["checkoutId"], 10, 64)
	if err != nil {
		http.Error(w, "missing checkoutId metadata", http.StatusBadRequest)
		return
	}
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		http.Error(w, "missing payment intent", http.StatusBadRequest)
		return
	}
	intentId := session.PaymentIntent.ID

	stationId := session.Metadata["stationId"]
	transactionId := session.Metadata["transactionId"]
	if stationId != "" && transactionId != "" {
		err = s.Checkouts.CompleteScanAndCharge(r.Context(), checkoutId, intentId, stationId, transactionId)
	} else {
		err = s.Checkouts.CompleteWebPortal(r.Context(), checkoutId, intentId)
	}
	if err != nil {
		s.Log.Error("checkout completion failed",
			zap.Int64("checkout_id", checkoutId),
			zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
