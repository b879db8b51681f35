package gateway

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BreakerSettings configures the gateway circuit breaker.
type BreakerSettings struct {
	Name      string
	Threshold uint32
	Timeout   time.Duration
}

// guardedClient bounds every call with a timeout and a circuit breaker and records
// metrics and spans. Only Network and Timeout failures count against the breaker:
// a rejection or auth failure means the gateway answered.
type guardedClient struct {
	next    Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[any]
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func newGuardedClient(next Client, timeout time.Duration, bs BreakerSettings, metrics *observability.Metrics) *guardedClient {
	if bs.Threshold == 0 {
		bs.Threshold = 5
	}
	if bs.Timeout <= 0 {
		bs.Timeout = 30 * time.Second
	}
	if bs.Name == "" {
		bs.Name = "gateway"
	}

	g := &guardedClient{
		next:    next,
		timeout: timeout,
		metrics: metrics,
		tracer:  otel.Tracer("paysecure/gateway"),
	}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        bs.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.Threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				!(domainErrors.IsGatewayKind(err, domainErrors.GatewayNetwork) ||
					domainErrors.IsGatewayKind(err, domainErrors.GatewayTimeout))
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return g
}

// guard runs fn under the timeout, breaker, span and metrics of op.
func guard[T any](g *guardedClient, ctx context.Context, op string, fn func(ctx context.Context) (*T, error)) (*T, error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.breaker.Execute(func() (any, error) {
		r, err := fn(ctx)
		if err != nil {
			return nil, normalize(ctx, err)
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domainErrors.NewGatewayError(domainErrors.GatewayNetwork, "circuit breaker open: "+err.Error())
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		var ge *domainErrors.GatewayError
		if errors.As(err, &ge) {
			outcome = string(ge.Kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("gateway.outcome", outcome))

	if g.metrics != nil {
		g.metrics.GatewayRequestsTotal.WithLabelValues(op, outcome).Inc()
		g.metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return nil, err
	}
	return res.(*T), nil
}

// normalize guarantees a *GatewayError, turning a deadline hit into Timeout.
func normalize(ctx context.Context, err error) error {
	var ge *domainErrors.GatewayError
	if errors.As(err, &ge) {
		if ge.Kind == domainErrors.GatewayNetwork && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domainErrors.NewGatewayError(domainErrors.GatewayTimeout, ge.Message)
		}
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domainErrors.NewGatewayError(domainErrors.GatewayTimeout, err.Error())
	}
	return domainErrors.NewGatewayError(domainErrors.GatewayNetwork, err.Error())
}

func (g *guardedClient) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	return guard(g, ctx, "create_payment", func(ctx context.Context) (*CreatePaymentResult, error) {
		return g.next.CreatePayment(ctx, p)
	})
}

func (g *guardedClient) GetStatus(ctx context.Context, p GetStatusParams) (*StatusResult, error) {
	return guard(g, ctx, "get_status", func(ctx context.Context) (*StatusResult, error) {
		return g.next.GetStatus(ctx, p)
	})
}

func (g *guardedClient) Capture(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
	return guard(g, ctx, "capture", func(ctx context.Context) (*CaptureResult, error) {
		return g.next.Capture(ctx, p)
	})
}

func (g *guardedClient) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	return guard(g, ctx, "refund", func(ctx context.Context) (*RefundResult, error) {
		return g.next.Refund(ctx, p)
	})
}

func (g *guardedClient) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	return guard(g, ctx, "cancel", func(ctx context.Context) (*CancelResult, error) {
		return g.next.Cancel(ctx, p)
	})
}
