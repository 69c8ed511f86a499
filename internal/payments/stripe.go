// Package payments wraps the Stripe API behind the PaymentProcessor
// interface. Operators run Stripe Standard connected accounts, so every call
// is issued on the operator's account; holds are placed with manual capture
// and finalized by the capture orchestrator.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/paymentlink"
	"github.com/stripe/stripe-go/v80/price"

	"evpay/internal/models"
	"evpay/internal/pricing"
	"evpay/internal/services"
)

type StripeProcessor struct{}

var _ services.PaymentProcessor = (*StripeProcessor)(nil)

func NewStripeProcessor(apiKey string) *StripeProcessor {
	stripe.Key = apiKey
	return &StripeProcessor{}
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in services.CheckoutSessionParams) (*services.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(in.Currency),
				UnitAmount:  stripe.Int64(in.AuthorizationAmountMinor),
				TaxBehavior: stripe.String("inclusive"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Charging Session Authorization Amount"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String("manual"),
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.SetStripeAccount(in.ConnectedAccount)
	params.AddMetadata("checkoutId", fmt.Sprintf("%d", in.CheckoutId))

	s, err := session.New(params)
	if err != nil {
		return nil, err
	}
	out := &services.CheckoutSession{Id: s.ID, URL: s.URL}
	if s.PaymentIntent != nil {
		out.PaymentIntentId = s.PaymentIntent.ID
	}
	return out, nil
}

// EnsurePrice returns the tariff's cached price object, creating one from the
// authorization amount when the tariff has none yet.
func (p *StripeProcessor) EnsurePrice(ctx context.Context, connectedAccount string, t models.Tariff) (string, error) {
	if t.StripePriceId != nil && *t.StripePriceId != "" {
		return *t.StripePriceId, nil
	}
	params := &stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Currency:   stripe.String(t.Currency),
		UnitAmount: stripe.Int64(pricing.MajorToMinor(t.AuthorizationAmount)),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String("Charging Session Authorization Amount"),
		},
	}
	params.SetStripeAccount(connectedAccount)
	pr, err := price.New(params)
	if err != nil {
		return "", err
	}
	return pr.ID, nil
}

func (p *StripeProcessor) CreatePaymentLink(ctx context.Context, connectedAccount, priceId string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentLinkParams{
		Params:             stripe.Params{Context: ctx},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.PaymentLinkLineItemParams{{
			Price:    stripe.String(priceId),
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.PaymentLinkPaymentIntentDataParams{
			CaptureMethod: stripe.String("manual"),
		},
		Restrictions: &stripe.PaymentLinkRestrictionsParams{
			CompletedSessions: &stripe.PaymentLinkRestrictionsCompletedSessionsParams{
				Limit: stripe.Int64(1),
			},
		},
	}
	params.SetStripeAccount(connectedAccount)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	link, err := paymentlink.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (p *StripeProcessor) Capture(ctx context.Context, intentId, connectedAccount string, amountMinor, feeMinor int64) error {
	params := &stripe.PaymentIntentCaptureParams{
		Params:               stripe.Params{Context: ctx},
		AmountToCapture:      stripe.Int64(amountMinor),
		ApplicationFeeAmount: stripe.Int64(feeMinor),
	}
	params.SetStripeAccount(connectedAccount)
	intent, err := paymentintent.Capture(intentId, params)
	if err != nil {
		return err
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("capture of %s ended in status %s", intentId, intent.Status)
	}
	return nil
}

func (p *StripeProcessor) Cancel(ctx context.Context, intentId string) error {
	_, err := paymentintent.Cancel(intentId, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	return err
}
