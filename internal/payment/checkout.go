// Package payment creates hosted checkout sessions and verifies the
// provider's webhook callbacks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	qs "github.com/google/go-querystring/query"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logger"
)

// Order is what a user is about to pay for.
type Order struct {
	TourID    uint64
	TourName  string
	Summary   string
	ImageURL  string
	Price     float64
	UserID    uint64
	UserEmail string
	// BaseURL is the scheme and host the provider redirects back to.
	BaseURL string
}

// Session is a created checkout session.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CompletedCheckout is the payload of a successful payment.
type CompletedCheckout struct {
	SessionID string
	TourID    uint64
	UserID    uint64
	Email     string
	Price     float64
}

// Checkout creates sessions and parses webhook events.
type Checkout interface {
	CreateSession(ctx context.Context, o Order) (*Session, error)
	// ParseWebhook returns nil, nil for events other than a completed
	// checkout.
	ParseWebhook(payload []byte, signature string) (*CompletedCheckout, error)
}

const EventCheckoutCompleted = "checkout.session.completed"

// ErrNotConfigured is returned when no secret key is set.
var ErrNotConfigured = errors.New("payment provider not configured")

type successQuery struct {
	Tour  uint64  `url:"tour"`
	User  uint64  `url:"user"`
	Price float64 `url:"price"`
	Alert string  `url:"alert"`
}

// SuccessURL is where the user lands after paying.
func SuccessURL(base string, o Order) (string, error) {
	v, err := qs.Values(successQuery{Tour: o.TourID, User: o.UserID, Price: o.Price, Alert: "booking"})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + "/my-tours?" + v.Encode(), nil
}

// StripeCheckout talks to Stripe Checkout.
type StripeCheckout struct {
	api           *client.API
	webhookSecret string
	currency      string
	cb            *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

func NewStripeCheckout(cfg config.StripeConfig) *StripeCheckout {
	s := &StripeCheckout{
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		cb: gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
			Name:        "stripe-checkout",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// card and request errors are the caller's problem, not an outage
				var se *stripe.Error
				if errors.As(err, &se) {
					return se.HTTPStatusCode < 500
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Ctx(context.Background()).Warn().
					Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("payment breaker state changed")
			},
		}),
	}
	if s.currency == "" {
		s.currency = string(stripe.CurrencyUSD)
	}
	if cfg.SecretKey != "" {
		s.api = &client.API{}
		s.api.Init(cfg.SecretKey, nil)
	}
	return s
}

func (s *StripeCheckout) CreateSession(ctx context.Context, o Order) (*Session, error) {
	if s.api == nil {
		return nil, apperr.Wrap(ErrNotConfigured, apperr.Upstream, "Payments are not available right now.")
	}
	params, err := s.sessionParams(o)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	cs, err := s.cb.Execute(func() (*stripe.CheckoutSession, error) {
		return s.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Upstream, "Could not create the checkout session. Try again later!")
	}
	return &Session{ID: cs.ID, URL: cs.URL}, nil
}

func (s *StripeCheckout) sessionParams(o Order) (*stripe.CheckoutSessionParams, error) {
	success, err := SuccessURL(o.BaseURL, o)
	if err != nil {
		return nil, err
	}
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(o.TourName + " Tour"),
		Description: stripe.String(o.Summary),
	}
	if o.ImageURL != "" {
		product.Images = stripe.StringSlice([]string{o.ImageURL})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(success),
		CancelURL:         stripe.String(strings.TrimRight(o.BaseURL, "/") + "/tour/" + strconv.FormatUint(o.TourID, 10)),
		CustomerEmail:     stripe.String(o.UserEmail),
		ClientReferenceID: stripe.String(strconv.FormatUint(o.TourID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				UnitAmount:  stripe.Int64(int64(math.Round(o.Price * 100))),
				ProductData: product,
			},
		}},
	}
	params.AddMetadata("user_id", strconv.FormatUint(o.UserID, 10))
	params.AddMetadata("tour_id", strconv.FormatUint(o.TourID, 10))
	params.SetIdempotencyKey(uuid.NewString())
	return params, nil
}

func (s *StripeCheckout) ParseWebhook(payload []byte, signature string) (*CompletedCheckout, error) {
	if s.webhookSecret == "" {
		return nil, apperr.Wrap(ErrNotConfigured, apperr.Upstream, "Webhook secret is not configured.")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BadRequest, "Webhook error: "+err.Error())
	}
	if string(event.Type) != EventCheckoutCompleted {
		return nil, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, apperr.Wrap(err, apperr.BadRequest, "Webhook error: malformed checkout session")
	}
	return completedFrom(&cs)
}

func completedFrom(cs *stripe.CheckoutSession) (*CompletedCheckout, error) {
	tourID, err := strconv.ParseUint(cs.ClientReferenceID, 10, 64)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BadRequest, "Webhook error: missing tour reference")
	}
	userID, err := strconv.ParseUint(cs.Metadata["user_id"], 10, 64)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BadRequest, "Webhook error: missing user reference")
	}
	email := cs.CustomerEmail
	if email == "" && cs.CustomerDetails != nil {
		email = cs.CustomerDetails.Email
	}
	return &CompletedCheckout{
		SessionID: cs.ID,
		TourID:    tourID,
		UserID:    userID,
		Email:     email,
		Price:     float64(cs.AmountTotal) / 100,
	}, nil
}

// String is used in logs.
func (c CompletedCheckout) String() string {
	return fmt.Sprintf("session=%s tour=%d user=%d price=%.2f", c.SessionID, c.TourID, c.UserID, c.Price)
}
