package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/config"
)

const testSecret = "whsec_test_secret"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestSuccessURL(t *testing.T) {
	u, err := SuccessURL("http://localhost:3000/", Order{TourID: 5, UserID: 9, Price: 397})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/my-tours?alert=booking&price=397&tour=5&user=9", u)
}

func TestSessionParams(t *testing.T) {
	s := NewStripeCheckout(config.StripeConfig{})
	p, err := s.sessionParams(Order{TourID: 3, TourName: "The Forest Hiker", Price: 397.5, UserID: 7, UserEmail: "a@b.io", BaseURL: "https://natours.dev"})
	require.NoError(t, err)
	assert.Equal(t, "3", *p.ClientReferenceID)
	assert.Equal(t, "a@b.io", *p.CustomerEmail)
	assert.Equal(t, int64(39750), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "The Forest Hiker Tour", *p.LineItems[0].PriceData.ProductData.Name)
	assert.Equal(t, "7", p.Metadata["user_id"])
	assert.NotNil(t, p.IdempotencyKey)
}

func TestCreateSessionNotConfigured(t *testing.T) {
	_, err := NewStripeCheckout(config.StripeConfig{}).CreateSession(context.Background(), Order{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Upstream))
}

func TestParseWebhookCompleted(t *testing.T) {
	s := NewStripeCheckout(config.StripeConfig{WebhookSecret: testSecret})
	header, payload := signed(t, `{
		"id": "evt_1", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1", "object": "checkout.session",
			"client_reference_id": "12", "customer_email": "a@b.io",
			"amount_total": 49700, "metadata": {"user_id": "4"}
		}}
	}`)

	got, err := s.ParseWebhook(payload, header)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cs_test_1", got.SessionID)
	assert.Equal(t, uint64(12), got.TourID)
	assert.Equal(t, uint64(4), got.UserID)
	assert.Equal(t, "a@b.io", got.Email)
	assert.InDelta(t, 497.0, got.Price, 0.001)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	s := NewStripeCheckout(config.StripeConfig{WebhookSecret: testSecret})
	header, payload := signed(t, `{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{}}}`)
	got, err := s.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseWebhookBadSignature(t *testing.T) {
	s := NewStripeCheckout(config.StripeConfig{WebhookSecret: testSecret})
	_, payload := signed(t, `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)
	_, err := s.ParseWebhook(payload, "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.BadRequest))
}
