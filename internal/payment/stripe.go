package payment

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey string
	// Timeout bounds a single create-and-confirm call. Zero disables it.
	Timeout time.Duration

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	intents stripePaymentIntentAPI
}

// Stripe implements Gateway with the Stripe PaymentIntents API.
type Stripe struct {
	intents stripePaymentIntentAPI
	timeout time.Duration

	tracer  trace.Tracer
	charges metric.Int64Counter
}

var _ Gateway = (*Stripe)(nil)

// NewStripe creates a Stripe gateway. Network retries are disabled: the
// caller holds a lock on the order for the duration of the call.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	intents := cfg.intents
	if intents == nil {
		key := strings.TrimSpace(cfg.SecretKey)
		if key == "" {
			return nil, errors.New("stripe: secret key is required")
		}
		httpClient := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(cfg.TracerProvider),
				otelhttp.WithMeterProvider(cfg.MeterProvider),
			),
		}
		backendCfg := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
		}
		sc := client.New(key, &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
		})
		intents = sc.PaymentIntents
	}

	meter := cfg.MeterProvider.Meter("storefront/payment")
	charges, err := meter.Int64Counter("payment.charges",
		metric.WithDescription("Card charges by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create charges counter")
	}

	return &Stripe{
		intents: intents,
		timeout: cfg.Timeout,
		tracer:  cfg.TracerProvider.Tracer("storefront/payment"),
		charges: charges,
	}, nil
}

// CreateAndConfirm creates a PaymentIntent for the charge and confirms it
// in the same call.
func (s *Stripe) CreateAndConfirm(ctx context.Context, c Charge) (_ Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "stripe.CreateAndConfirm",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("payment.amount_minor", c.AmountMinor),
			attribute.String("payment.currency", c.Currency),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(c.AmountMinor),
		Currency:      stripe.String(strings.ToLower(c.Currency)),
		PaymentMethod: stripe.String(c.Token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(c.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(c.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			params.Metadata[k] = v
		}
	}

	pi, err := s.intents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			res := Result{Status: StatusFailed}
			if se.PaymentIntent != nil {
				res.ID = se.PaymentIntent.ID
			}
			s.record(ctx, res.Status)
			return res, nil
		}
		s.record(ctx, "error")
		return Result{}, errors.Wrap(err, "stripe: create payment intent")
	}

	res := Result{ID: pi.ID, Status: mapIntentStatus(pi.Status)}
	s.record(ctx, res.Status)
	return res, nil
}

func (s *Stripe) record(ctx context.Context, outcome Status) {
	s.charges.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func mapIntentStatus(st stripe.PaymentIntentStatus) Status {
	switch st {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusProcessing:
		return StatusRequiresAction
	default:
		return StatusFailed
	}
}
