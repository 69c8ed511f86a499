package httpapi

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"

	"evpay/internal/config"
)

const (
	testAcctSecret = "whsec_account_test"
	testConnSecret = "whsec_connect_test"
)

func testServer() *Server {
	return &Server{
		Cfg: config.Config{
			StripeEndpointSecretAcct: testAcctSecret,
			StripeEndpointSecretConn: testConnSecret,
		},
		Log: zap.NewNop(),
	}
}

func signedRequest(t *testing.T, payload, secret string) *http.Request {
	t.Helper()
	ts := time.Now()
	sig := webhook.ComputeSignature(ts, []byte(payload), secret)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(payload)))
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig)))
	return req
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	s := testServer()
	payload := `{"type":"checkout.session.completed","data":{"object":{}}}`

	req := signedRequest(t, payload, "whsec_wrong")
	rec := httptest.NewRecorder()
	s.StripeWebhook(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhookUnknownEventAcked(t *testing.T) {
	s := testServer()
	payload := `{"type":"customer.created","data":{"object":{}}}`

	rec := httptest.NewRecorder()
	s.StripeWebhook(rec, signedRequest(t, payload, testAcctSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}

func TestStripeWebhookLegacyChargeSucceededAcked(t *testing.T) {
	s := testServer()
	payload := `{"type":"charge.succeeded","data":{"object":{}}}`

	rec := httptest.NewRecorder()
	s.StripeWebhook(rec, signedRequest(t, payload, testAcctSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStripeWebhookAcceptsConnectSecret(t *testing.T) {
	s := testServer()
	payload := `{"type":"customer.created","data":{"object":{}}}`

	rec := httptest.NewRecorder()
	s.StripeWebhook(rec, signedRequest(t, payload, testConnSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStripeWebhookCompletedWithoutMetadata(t *testing.T) {
	s := testServer()
	payload := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{}}}}`

	rec := httptest.NewRecorder()
	s.StripeWebhook(rec, signedRequest(t, payload, testAcctSecret))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
