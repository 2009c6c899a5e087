// Package natsutil provides typed NATS publish/subscribe helpers with
// OpenTelemetry trace propagation, and a breaker-guarded event publisher.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/WessleyAI/wessley-pricing/pkg/fn"
	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
	"github.com/WessleyAI/wessley-pricing/pkg/resilience"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Connect dials url, retrying with backoff until ctx is done or the
// attempts in opts run out. Disconnects and reconnects are logged.
func Connect(ctx context.Context, url, name string, opts fn.RetryOpts, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := fn.Retry(ctx, opts, func(context.Context) fn.Result[*nats.Conn] {
		nc, err := nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			logger.Warn("nats connect failed", "url", url, "err", err)
		}
		return fn.FromPair(nc, err)
	})
	nc, err := r.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("natsutil: connect %s: %w", url, err)
	}
	return nc, nil
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("natsutil: marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, v)
	})
}

// Publisher sends events of type T to one subject through a circuit
// breaker. A nil *Publisher is valid and drops everything, which is how
// event publication is switched off.
type Publisher[T any] struct {
	nc      *nats.Conn
	subject string
	stage   fn.Stage[T, struct{}]
	events  *prometheus.CounterVec
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. A nil breaker gets the default options.
func NewPublisher[T any](nc *nats.Conn, subject string, breaker *resilience.Breaker, reg *metrics.Registry, logger *slog.Logger) *Publisher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	p := &Publisher[T]{
		nc:      nc,
		subject: subject,
		events:  reg.Counter("events_published_total", "Events published to NATS by subject and result.", "subject", "result"),
		logger:  logger.With("subject", subject),
	}
	p.stage = resilience.BreakerStage(breaker, func(ctx context.Context, v T) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, Publish(ctx, p.nc, p.subject, v))
	})
	return p
}

// Publish sends v. Errors are logged and counted before being returned so
// callers on a request path can ignore them.
func (p *Publisher[T]) Publish(ctx context.Context, v T) error {
	if p == nil {
		return nil
	}
	_, err := p.stage(ctx, v).Unwrap()
	switch {
	case err == nil:
		p.events.WithLabelValues(p.subject, "ok").Inc()
		return nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		p.events.WithLabelValues(p.subject, "rejected").Inc()
	default:
		p.events.WithLabelValues(p.subject, "error").Inc()
	}
	p.logger.Warn("event publish failed", "err", err)
	return err
}
