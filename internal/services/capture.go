package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evpay/internal/models"
	"evpay/internal/pricing"
)

// CaptureOrchestrator finalizes the payment hold of an ended session. The
// gross session amount is captured on the operator's connected account and
// the payment fee is taken as the platform's application fee.
type CaptureOrchestrator struct {
	log      *zap.Logger
	payments PaymentProcessor
	tariffs  TariffStore
	topology TopologyStore
	now      func() time.Time
}

func NewCaptureOrchestrator(log *zap.Logger, payments PaymentProcessor, tariffs TariffStore, topology TopologyStore) *CaptureOrchestrator {
	return &CaptureOrchestrator{
		log:      log,
		payments: payments,
		tariffs:  tariffs,
		topology: topology,
		now:      time.Now,
	}
}

// Capture prices the session and captures the gross amount. Failures are
// final; the caller records capture_failed and no retry is scheduled.
func (o *CaptureOrchestrator) Capture(ctx context.Context, c *models.Checkout) error {
	if c.PaymentIntentId == nil || *c.PaymentIntentId == "" {
		return fmt.Errorf("checkout %d has no payment intent: %w", c.Id, ErrValidation)
	}
	tariff, err := o.tariffs.Get(ctx, c.TariffId)
	if err != nil {
		return err
	}
	if tariff == nil {
		return fmt.Errorf("tariff %d: %w", c.TariffId, ErrNotFound)
	}
	operator, err := o.topology.OperatorForConnector(ctx, c.ConnectorId)
	if err != nil {
		return err
	}
	if operator == nil {
		return fmt.Errorf("operator for connector %d: %w", c.ConnectorId, ErrNotFound)
	}

	b := pricing.Compute(*tariff, c.TransactionKwh, c.TransactionStartTime, c.TransactionEndTime, o.now())
	if err := o.payments.Capture(ctx, *c.PaymentIntentId, operator.StripeAccountId, b.TotalCostsGross, b.PaymentCostsGross); err != nil {
		return fmt.Errorf("capture checkout %d: %w", c.Id, err)
	}
	o.log.Info("payment captured",
		zap.Int64("checkout_id", c.Id),
		zap.Int64("amount_gross", b.TotalCostsGross),
		zap.Int64("application_fee", b.PaymentCostsGross),
		zap.String("currency", b.Currency))
	return nil
}
