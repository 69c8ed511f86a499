// Package services carries the checkout state machine and the payment
// capture orchestrator. The state machine is the single writer of checkout
// rows; webhook intake and the broker consumer both funnel through it.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"evpay/internal/meter"
	"evpay/internal/models"
	"evpay/internal/ocpp"
	"evpay/internal/pricing"
)

const qrCodeSize = 256

// scanAndChargeTriggers are the trigger reasons under which a Started event
// without an idToken means a customer plugged in ahead of any authorization.
var scanAndChargeTriggers = map[ocpp.TriggerReason]bool{
	ocpp.TriggerCablePluggedIn: true,
	ocpp.TriggerEVDetected:     true,
	ocpp.TriggerSignedData:     true,
}

type CheckoutService struct {
	log       *zap.Logger
	checkouts CheckoutStore
	tariffs   TariffStore
	topology  TopologyStore
	ocpp      OcppStore
	authority ChargePointAuthority
	payments  PaymentProcessor
	files     FileStore
	capture   *CaptureOrchestrator

	scanAndCharge bool
	idTokenPrefix string
	now           func() time.Time

	// locks serializes all transitions of one checkout id. Entries are kept
	// for process lifetime: deleting one while another goroutine still holds
	// its mutex would let a third acquire a fresh mutex for the same id and
	// break the single-writer guarantee. Growth is bounded by the number of
	// checkouts touched per process.
	locks sync.Map
}

type CheckoutServiceParams struct {
	Log       *zap.Logger
	Checkouts CheckoutStore
	Tariffs   TariffStore
	Topology  TopologyStore
	Ocpp      OcppStore
	Authority ChargePointAuthority
	Payments  PaymentProcessor
	Files     FileStore
	Capture   *CaptureOrchestrator

	ScanAndCharge bool
	IdTokenPrefix string
}

func NewCheckoutService(p CheckoutServiceParams) *CheckoutService {
	return &CheckoutService{
		log:           p.Log,
		checkouts:     p.Checkouts,
		tariffs:       p.Tariffs,
		topology:      p.Topology,
		ocpp:          p.Ocpp,
		authority:     p.Authority,
		payments:      p.Payments,
		files:         p.Files,
		capture:       p.Capture,
		scanAndCharge: p.ScanAndCharge,
		idTokenPrefix: p.IdTokenPrefix,
		now:           time.Now,
	}
}

func (s *CheckoutService) lock(id int64) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create resolves the EVSE down to its connector, tariff and operator, inserts
// a created checkout and opens a hosted checkout session for the tariff's
// authorization amount. Returns the new checkout and the session URL.
func (s *CheckoutService) Create(ctx context.Context, evseId, successURL, cancelURL string) (*models.Checkout, string, error) {
	evse, err := s.topology.EvseByEvseId(ctx, evseId)
	if err != nil {
		return nil, "", err
	}
	if evse == nil {
		return nil, "", fmt.Errorf("evse %q: %w", evseId, ErrNotFound)
	}
	conn, err := s.topology.FirstConnectorForEvse(ctx, evse.Id)
	if err != nil {
		return nil, "", err
	}
	if conn == nil || conn.TariffId == nil {
		return nil, "", fmt.Errorf("no priced connector on evse %q: %w", evseId, ErrNotFound)
	}
	tariff, err := s.tariffs.Get(ctx, *conn.TariffId)
	if err != nil {
		return nil, "", err
	}
	if tariff == nil {
		return nil, "", fmt.Errorf("tariff %d: %w", *conn.TariffId, ErrNotFound)
	}
	operator, err := s.topology.OperatorForConnector(ctx, conn.Id)
	if err != nil {
		return nil, "", err
	}
	if operator == nil {
		return nil, "", fmt.Errorf("operator for connector %d: %w", conn.Id, ErrNotFound)
	}

	c, err := s.checkouts.Create(ctx, conn.Id, *conn.TariffId)
	if err != nil {
		return nil, "", err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, CheckoutSessionParams{
		CheckoutId:               c.Id,
		Currency:                 tariff.Currency,
		AuthorizationAmountMinor: pricing.MajorToMinor(tariff.AuthorizationAmount),
		ConnectedAccount:         operator.StripeAccountId,
		SuccessURL:               fmt.Sprintf("%s/%d", successURL, c.Id),
		CancelURL:                cancelURL,
	})
	if err != nil {
		return nil, "", fmt.Errorf("checkout session: %w", ErrExternalService)
	}

	c.Status = models.CheckoutAuthorizationRequested
	if session.PaymentIntentId != "" {
		c.PaymentIntentId = &session.PaymentIntentId
	}
	if err := s.checkouts.Update(ctx, c); err != nil {
		return nil, "", err
	}
	s.log.Info("checkout created",
		zap.Int64("checkout_id", c.Id),
		zap.String("evse_id", evseId))
	return c, session.URL, nil
}

// Get returns the checkout together with its computed pricing; a running
// session is priced up to now.
func (s *CheckoutService) Get(ctx context.Context, id int64) (*models.Checkout, *pricing.Breakdown, error) {
	c, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	tariff, err := s.tariffs.Get(ctx, c.TariffId)
	if err != nil {
		return nil, nil, err
	}
	if tariff == nil {
		return nil, nil, fmt.Errorf("tariff %d: %w", c.TariffId, ErrNotFound)
	}
	b := pricing.Compute(*tariff, c.TransactionKwh, c.TransactionStartTime, c.TransactionEndTime, s.now())
	return c, &b, nil
}

// RecordAuthorization stores the payment intent backing the checkout's hold.
// Re-delivery with the same intent id is a no-op; a different id once one is
// recorded is rejected, the first writer wins.
func (s *CheckoutService) RecordAuthorization(ctx context.Context, id int64, intentId string) error {
	unlock := s.lock(id)
	defer unlock()

	c, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	return s.recordAuthorizationLocked(ctx, c, intentId)
}

func (s *CheckoutService) recordAuthorizationLocked(ctx context.Context, c *models.Checkout, intentId string) error {
	if c.PaymentIntentId != nil {
		if *c.PaymentIntentId == intentId {
			return nil
		}
		return fmt.Errorf("checkout %d already authorized by %s: %w", c.Id, *c.PaymentIntentId, ErrConflict)
	}
	c.PaymentIntentId = &intentId
	if c.Status == models.CheckoutCreated {
		c.Status = models.CheckoutAuthorizationRequested
	}
	return s.checkouts.Update(ctx, c)
}

// RequestRemoteStart registers a central authorization for the checkout and
// asks the charge point to start. A Rejected answer is a regular outcome; an
// unreachable charge-point system cancels the payment hold so the customer is
// never left with a dangling authorization.
func (s *CheckoutService) RequestRemoteStart(ctx context.Context, id int64) error {
	unlock := s.lock(id)
	defer unlock()

	c, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	if c.PaymentIntentId == nil {
		return fmt.Errorf("checkout %d has no payment intent: %w", id, ErrValidation)
	}
	evse, err := s.topology.EvseForConnector(ctx, c.ConnectorId)
	if err != nil {
		return err
	}
	if evse == nil {
		return fmt.Errorf("evse for connector %d: %w", c.ConnectorId, ErrNotFound)
	}

	token := ocpp.IdToken{
		IdToken: fmt.Sprintf("%s%d", s.idTokenPrefix, c.Id),
		Type:    "Central",
	}
	return s.remoteStartLocked(ctx, c, evse.StationId, evse.TenantId, &evse.OcppEvseId, token, map[string]string{
		"paymentIntentId": *c.PaymentIntentId,
	})
}

// remoteStartLocked runs the authorization upsert plus requestStartTransaction
// and records the outcome. Caller holds the checkout lock.
func (s *CheckoutService) remoteStartLocked(ctx context.Context, c *models.Checkout, stationId, tenantId string, ocppEvseId *int, token ocpp.IdToken, attributes map[string]string) error {
	// Webhook deliveries are at-least-once; a replay after the start was
	// already requested, or after the session moved on, must not fire a
	// second start at the charge point.
	if c.Status.Terminal() || c.TransactionEndTime != nil || c.RemoteRequestStatus != nil {
		s.log.Info("remote start skipped",
			zap.Int64("checkout_id", c.Id),
			zap.String("status", string(c.Status)))
		return nil
	}

	c.Status = models.CheckoutRemoteStartRequested
	if err := s.checkouts.Update(ctx, c); err != nil {
		return err
	}

	if err := s.authority.UpsertAuthorization(ctx, stationId, tenantId, token, attributes); err != nil {
		return s.cancelHoldLocked(ctx, c, fmt.Errorf("authorization upsert: %v: %w", err, ErrExternalService))
	}
	status, err := s.authority.RequestStart(ctx, RemoteStart{
		StationId:     stationId,
		TenantId:      tenantId,
		EvseId:        ocppEvseId,
		RemoteStartId: c.Id,
		IdToken:       token,
	})
	if err != nil {
		return s.cancelHoldLocked(ctx, c, fmt.Errorf("remote start: %v: %w", err, ErrExternalService))
	}

	c.RemoteRequestStatus = &status
	if status == models.RemoteStartAccepted {
		c.Status = models.CheckoutAccepted
	} else {
		c.Status = models.CheckoutRejected
		s.log.Warn("remote start rejected", zap.Int64("checkout_id", c.Id), zap.String("station_id", stationId))
	}
	return s.checkouts.Update(ctx, c)
}

// cancelHoldLocked is the compensating action for an infrastructure failure
// between authorization and charging: release the hold, dead-end the checkout.
func (s *CheckoutService) cancelHoldLocked(ctx context.Context, c *models.Checkout, cause error) error {
	if c.PaymentIntentId != nil {
		if err := s.payments.Cancel(ctx, *c.PaymentIntentId); err != nil {
			s.log.Error("cancel of payment hold failed",
				zap.Int64("checkout_id", c.Id),
				zap.String("payment_intent", *c.PaymentIntentId),
				zap.Error(err))
		}
	}
	rejected := models.RemoteStartRejected
	c.RemoteRequestStatus = &rejected
	c.Status = models.CheckoutRejected
	if err := s.checkouts.Update(ctx, c); err != nil {
		s.log.Error("checkout update after cancel failed", zap.Int64("checkout_id", c.Id), zap.Error(err))
	}
	return cause
}

// CompleteWebPortal finishes a web-portal authorization: record the payment
// intent, then remote-start the session.
func (s *CheckoutService) CompleteWebPortal(ctx context.Context, id int64, intentId string) error {
	if err := s.RecordAuthorization(ctx, id, intentId); err != nil {
		return err
	}
	return s.RequestRemoteStart(ctx, id)
}

// CompleteScanAndCharge finishes an authorization for a session that is
// already running on the charge point. The referenced transaction must still
// be active; otherwise the hold is released and the caller answers not found.
func (s *CheckoutService) CompleteScanAndCharge(ctx context.Context, id int64, intentId, stationId, transactionId string) error {
	txn, err := s.ocpp.TransactionByStationAndId(ctx, stationId, transactionId)
	if err != nil {
		return err
	}
	if txn == nil || !txn.IsActive {
		if err := s.payments.Cancel(ctx, intentId); err != nil {
			s.log.Error("cancel of payment hold failed",
				zap.String("payment_intent", intentId), zap.Error(err))
		}
		return fmt.Errorf("transaction %s on %s no longer active: %w", transactionId, stationId, ErrNotFound)
	}

	unlock := s.lock(id)
	defer unlock()

	c, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	if err := s.recordAuthorizationLocked(ctx, c, intentId); err != nil {
		return err
	}
	evse, err := s.topology.EvseByStationId(ctx, stationId)
	if err != nil {
		return err
	}
	if evse == nil {
		return fmt.Errorf("station %s: %w", stationId, ErrNotFound)
	}

	token := ocpp.IdToken{IdToken: uuid.NewString(), Type: "Central"}
	if err := s.remoteStartLocked(ctx, c, stationId, evse.TenantId, txn.OcppEvseId, token, map[string]string{
		"paymentIntentId": intentId,
		"transactionId":   transactionId,
	}); err != nil {
		return err
	}

	// The QR code on the display has served its purpose.
	if c.QrMessageId != nil {
		if err := s.authority.ClearDisplayMessage(ctx, stationId, evse.TenantId, *c.QrMessageId); err != nil {
			s.log.Warn("clear display message failed",
				zap.Int64("checkout_id", c.Id),
				zap.Int("message_id", *c.QrMessageId),
				zap.Error(err))
		}
	}
	return nil
}

// ApplyTransactionEvent folds one charge-point transaction event into the
// checkout it correlates with. Events for unknown checkouts are dropped; the
// feed is not ours to reject.
func (s *CheckoutService) ApplyTransactionEvent(ctx context.Context, stationId string, ev ocpp.TransactionEventRequest) error {
	switch ev.EventType {
	case ocpp.TransactionEventStarted:
		if ev.TransactionInfo.RemoteStartId != nil {
			return s.remoteStarted(ctx, ev)
		}
		if s.scanAndCharge && scanAndChargeTriggers[ev.TriggerReason] && ev.IdToken == nil {
			return s.scanAndChargeStarted(ctx, stationId, ev)
		}
		s.log.Debug("unhandled transaction start",
			zap.String("station_id", stationId),
			zap.String("trigger", string(ev.TriggerReason)))
		return nil
	case ocpp.TransactionEventUpdated, ocpp.TransactionEventEnded:
		return s.transactionProgressed(ctx, stationId, ev)
	default:
		return nil
	}
}

func (s *CheckoutService) remoteStarted(ctx context.Context, ev ocpp.TransactionEventRequest) error {
	id := *ev.TransactionInfo.RemoteStartId
	unlock := s.lock(id)
	defer unlock()

	c, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		s.log.Info("transaction start for unknown checkout", zap.Int64("remote_start_id", id))
		return nil
	}
	// A Started re-delivered after settlement must not touch the captured
	// figures.
	if c.Status.Terminal() {
		s.log.Info("transaction start after terminal state",
			zap.Int64("checkout_id", id),
			zap.String("status", string(c.Status)))
		return nil
	}

	if c.TransactionStartTime == nil {
		ts := ev.Timestamp
		c.TransactionStartTime = &ts
	}
	txId := ev.TransactionInfo.TransactionId
	c.RemoteTransactionId = &txId
	meter.Apply(c, meter.Extract(ev.MeterValue))
	if c.TransactionEndTime == nil {
		c.Status = models.CheckoutCharging
	}
	return s.checkouts.Update(ctx, c)
}

// scanAndChargeStarted creates the checkout implicitly for a session the
// customer began by plugging in, then renders the payment link QR onto the
// charge point's display.
func (s *CheckoutService) scanAndChargeStarted(ctx context.Context, stationId string, ev ocpp.TransactionEventRequest) error {
	evse, err := s.topology.EvseByStationId(ctx, stationId)
	if err != nil {
		return err
	}
	if evse == nil {
		return fmt.Errorf("station %s: %w", stationId, ErrNotFound)
	}
	conn, err := s.topology.FirstConnectorForEvse(ctx, evse.Id)
	if err != nil {
		return err
	}
	if conn == nil || conn.TariffId == nil {
		return fmt.Errorf("no priced connector on station %s: %w", stationId, ErrNotFound)
	}
	tariff, err := s.tariffs.Get(ctx, *conn.TariffId)
	if err != nil {
		return err
	}
	if tariff == nil {
		return fmt.Errorf("tariff %d: %w", *conn.TariffId, ErrNotFound)
	}
	operator, err := s.topology.OperatorForConnector(ctx, conn.Id)
	if err != nil {
		return err
	}
	if operator == nil {
		return fmt.Errorf("operator for connector %d: %w", conn.Id, ErrNotFound)
	}

	c, err := s.checkouts.Create(ctx, conn.Id, *conn.TariffId)
	if err != nil {
		return err
	}
	ts := ev.Timestamp
	txId := ev.TransactionInfo.TransactionId
	c.TransactionStartTime = &ts
	c.RemoteTransactionId = &txId
	c.Status = models.CheckoutCharging
	meter.Apply(c, meter.Extract(ev.MeterValue))
	if err := s.checkouts.Update(ctx, c); err != nil {
		return err
	}
	s.log.Info("scan and charge session started",
		zap.Int64("checkout_id", c.Id),
		zap.String("station_id", stationId),
		zap.String("transaction_id", txId))

	priceId, err := s.payments.EnsurePrice(ctx, operator.StripeAccountId, *tariff)
	if err != nil {
		return fmt.Errorf("price for tariff %d: %v: %w", tariff.Id, err, ErrExternalService)
	}
	if tariff.StripePriceId == nil || *tariff.StripePriceId != priceId {
		if err := s.tariffs.SetStripePriceId(ctx, tariff.Id, priceId); err != nil {
			return err
		}
	}
	link, err := s.payments.CreatePaymentLink(ctx, operator.StripeAccountId, priceId, map[string]string{
		"checkoutId":    fmt.Sprintf("%d", c.Id),
		"stationId":     stationId,
		"transactionId": txId,
	})
	if err != nil {
		return fmt.Errorf("payment link: %v: %w", err, ErrExternalService)
	}

	png, err := qrcode.Encode(link, qrcode.Medium, qrCodeSize)
	if err != nil {
		return err
	}
	contentURL, err := s.files.Upload(ctx, png, "image/png",
		fmt.Sprintf("checkout-%d.png", c.Id),
		fmt.Sprintf("Payment link checkout %d", c.Id))
	if err != nil {
		return fmt.Errorf("qr upload: %v: %w", err, ErrExternalService)
	}

	messageId, err := s.ocpp.NextMessageId(ctx, stationId)
	if err != nil {
		return err
	}
	if err := s.authority.SetDisplayMessage(ctx, stationId, evse.TenantId, messageId, txId, contentURL); err != nil {
		return fmt.Errorf("set display message: %v: %w", err, ErrExternalService)
	}
	c.QrMessageId = &messageId
	return s.checkouts.Update(ctx, c)
}

func (s *CheckoutService) transactionProgressed(ctx context.Context, stationId string, ev ocpp.TransactionEventRequest) error {
	if ev.TransactionInfo.RemoteStartId == nil {
		s.log.Debug("transaction event without remote start id",
			zap.String("station_id", stationId),
			zap.String("transaction_id", ev.TransactionInfo.TransactionId))
		return nil
	}
	id := *ev.TransactionInfo.RemoteStartId
	unlock := s.lock(id)
	defer unlock()

	c, err := s.checkouts.Get(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		s.log.Info("transaction event for unknown checkout", zap.Int64("remote_start_id", id))
		return nil
	}
	if c.Status.Terminal() {
		s.log.Info("transaction event after terminal state",
			zap.Int64("checkout_id", id),
			zap.String("status", string(c.Status)))
		return nil
	}

	if c.RemoteTransactionId == nil {
		txId := ev.TransactionInfo.TransactionId
		c.RemoteTransactionId = &txId
	}
	meter.Apply(c, meter.Extract(ev.MeterValue))

	if ev.EventType == ocpp.TransactionEventUpdated {
		if c.TransactionEndTime == nil && c.Status != models.CheckoutCharging {
			c.Status = models.CheckoutCharging
		}
		return s.checkouts.Update(ctx, c)
	}

	ts := ev.Timestamp
	c.TransactionEndTime = &ts
	if c.TransactionStartTime == nil {
		// Ended overtook Started; pin the start so the window never runs
		// negative. Started will not overwrite it.
		c.TransactionStartTime = &ts
	}
	c.Status = models.CheckoutEnded

	if c.PaymentIntentId == nil {
		// No hold to capture against. The session stays ended until an
		// authorization arrives; nothing to do here.
		s.log.Warn("session ended without payment intent", zap.Int64("checkout_id", c.Id))
		return s.checkouts.Update(ctx, c)
	}

	c.Status = models.CheckoutCaptureRequested
	if err := s.checkouts.Update(ctx, c); err != nil {
		return err
	}
	if err := s.capture.Capture(ctx, c); err != nil {
		s.log.Error("capture failed", zap.Int64("checkout_id", c.Id), zap.Error(err))
		c.Status = models.CheckoutCaptureFailed
		return s.checkouts.Update(ctx, c)
	}
	c.Status = models.CheckoutCaptured
	return s.checkouts.Update(ctx, c)
}

// ApplyStatusNotification mirrors a connector status change onto the EVSE
// record. Notifications for stations outside our topology are dropped.
func (s *CheckoutService) ApplyStatusNotification(ctx context.Context, stationId string, n ocpp.StatusNotificationRequest) error {
	evse, err := s.topology.EvseByStationAndOcppId(ctx, stationId, n.EvseId)
	if err != nil {
		return err
	}
	if evse == nil {
		s.log.Info("status notification for unknown evse",
			zap.String("station_id", stationId),
			zap.Int("ocpp_evse_id", n.EvseId))
		return nil
	}
	return s.topology.UpdateEvseStatus(ctx, evse.Id, string(n.ConnectorStatus))
}
