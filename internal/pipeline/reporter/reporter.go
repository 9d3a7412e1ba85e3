// Package reporter publishes window and cost reports off the control
// path: to a report stream, to the experiment trace and to alert channels.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/B-Borecki/seu-injection-lab/internal/alert"
	"github.com/B-Borecki/seu-injection-lab/internal/circuitbreaker"
	"github.com/B-Borecki/seu-injection-lab/internal/domain/model"
	"github.com/B-Borecki/seu-injection-lab/internal/metrics"
	"github.com/B-Borecki/seu-injection-lab/internal/pipeline/retry"
	redisstream "github.com/B-Borecki/seu-injection-lab/internal/store/redis"
	"github.com/B-Borecki/seu-injection-lab/internal/tracing"
)

const (
	KindWindow = "window"
	KindCost   = "cost"
)

// Message is the envelope written to the report stream.
type Message struct {
	Kind   string              `json:"kind"`
	RunID  string              `json:"run_id"`
	Window *model.WindowReport `json:"window,omitempty"`
	Cost   *model.CostReport   `json:"cost,omitempty"`
}

type Reporter struct {
	runID     string
	mode      string
	in        <-chan model.WindowReport
	transport redisstream.MessageTransport
	stream    string
	breaker   *circuitbreaker.Breaker
	retry     retry.Policy
	alerter   alert.Alerter
	threshold uint32
	span      trace.Span
	opened    atomic.Bool
	logger    *slog.Logger
}

// Option configures optional Reporter behaviour.
type Option func(*Reporter)

// WithAlerter sends saturation and completion alerts through a.
func WithAlerter(a alert.Alerter) Option {
	return func(r *Reporter) { r.alerter = a }
}

// WithSatWindowThreshold raises an alert for every window with at least n
// saturated commands. Zero disables the check.
func WithSatWindowThreshold(n uint32) Option {
	return func(r *Reporter) { r.threshold = n }
}

// WithSpan records window events and cost attributes on span.
func WithSpan(span trace.Span) Option {
	return func(r *Reporter) { r.span = span }
}

// WithBreakerConfig overrides the breaker guarding the transport.
func WithBreakerConfig(cfg circuitbreaker.Config) Option {
	return func(r *Reporter) { r.breaker = r.newBreaker(cfg) }
}

// WithRetry retries transient publish errors inside one breaker call.
func WithRetry(p retry.Policy) Option {
	return func(r *Reporter) { r.retry = p }
}

func New(
	runID string,
	mode model.ProtectMode,
	in <-chan model.WindowReport,
	transport redisstream.MessageTransport,
	stream string,
	logger *slog.Logger,
	opts ...Option,
) *Reporter {
	r := &Reporter{
		runID:     runID,
		mode:      mode.String(),
		in:        in,
		transport: transport,
		stream:    stream,
		alerter:   &alert.NoopAlerter{},
		logger:    logger.With("component", "reporter"),
	}
	r.breaker = r.newBreaker(circuitbreaker.Config{})
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reporter) newBreaker(cfg circuitbreaker.Config) *circuitbreaker.Breaker {
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		r.logger.Warn("report transport breaker state change", "from", from, "to", to)
		if to == circuitbreaker.StateOpen {
			r.opened.Store(true)
		}
	}
	return circuitbreaker.New(cfg)
}

// Run drains window reports until the channel is closed.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("reporter started", "stream", r.stream, "sat_window_threshold", r.threshold)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w, ok := <-r.in:
			if !ok {
				r.logger.Info("reporter drained")
				return nil
			}
			r.handleWindow(ctx, w)
		}
	}
}

func (r *Reporter) handleWindow(ctx context.Context, w model.WindowReport) {
	if r.span != nil {
		tracing.WindowEvent(r.span, w)
	}
	r.publish(ctx, Message{Kind: KindWindow, RunID: r.runID, Window: &w})

	if r.threshold > 0 && w.SatInWindow >= r.threshold {
		r.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeSaturationWindow,
			RunID:   r.runID,
			Mode:    r.mode,
			Title:   "Saturation window over threshold",
			Message: fmt.Sprintf("%d saturated commands in window ending at seq %d", w.SatInWindow, w.Seq),
			Fields: map[string]string{
				"seq":           strconv.FormatUint(uint64(w.Seq), 10),
				"sat_in_window": strconv.FormatUint(uint64(w.SatInWindow), 10),
				"avg_amax":      strconv.FormatUint(uint64(w.AvgAmax), 10),
			},
		})
	}
}

// PublishCost publishes the final cost report and the completion alert.
func (r *Reporter) PublishCost(ctx context.Context, c model.CostReport) {
	if r.span != nil {
		tracing.CostAttributes(r.span, c)
	}
	r.publish(ctx, Message{Kind: KindCost, RunID: r.runID, Cost: &c})
	r.sendAlert(ctx, alert.Alert{
		Type:    alert.AlertTypeExperimentComplete,
		RunID:   r.runID,
		Mode:    r.mode,
		Title:   "Experiment complete",
		Message: fmt.Sprintf("%d commands applied, %d saturated", c.Processed, c.SatTotal),
		Fields: map[string]string{
			"tmr_calls":  strconv.FormatUint(c.TMRCalls, 10),
			"srl_calls":  strconv.FormatUint(c.SRLCalls, 10),
			"srl_clamps": strconv.FormatUint(c.SRLClamps, 10),
			"sat_total":  strconv.FormatUint(uint64(c.SatTotal), 10),
		},
	})
}

func (r *Reporter) publish(ctx context.Context, msg Message) {
	err := r.breaker.Do(func() error {
		return retry.Do(ctx, r.retry, func() error {
			_, err := r.transport.PublishJSON(ctx, r.stream, msg)
			return err
		})
	})
	switch {
	case err == nil:
		metrics.ReporterPublishedTotal.WithLabelValues(r.mode, msg.Kind).Inc()
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.ReporterPublishErrors.WithLabelValues(r.mode, msg.Kind).Inc()
		r.logger.Debug("report skipped, breaker open", "kind", msg.Kind)
	default:
		metrics.ReporterPublishErrors.WithLabelValues(r.mode, msg.Kind).Inc()
		r.logger.Warn("report publish failed", "kind", msg.Kind, "error", err)
	}

	if r.opened.CompareAndSwap(true, false) {
		r.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeReportTransport,
			RunID:   r.runID,
			Mode:    r.mode,
			Title:   "Report transport unavailable",
			Message: fmt.Sprintf("publishing to %s paused after repeated failures", r.stream),
		})
	}
}

func (r *Reporter) sendAlert(ctx context.Context, a alert.Alert) {
	if err := r.alerter.Send(ctx, a); err != nil {
		r.logger.Warn("alert failed", "type", a.Type, "error", err)
	}
}
