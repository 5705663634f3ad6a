package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/steplog"
	"github.com/kurisu/squadagent/internal/tool"
)

const instrumentation = "github.com/kurisu/squadagent"

// Observer records metrics and spans for runs, iterations, model calls and
// tool calls. A nil Metrics disables metrics; a nil tracer provider
// disables tracing.
type Observer struct {
	metrics *Metrics
	tracer  trace.Tracer
}

// NewObserver creates an Observer.
func NewObserver(m *Metrics, tp trace.TracerProvider) *Observer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Observer{metrics: m, tracer: tp.Tracer(instrumentation)}
}

// StartRun implements agent.Observer.
func (o *Observer) StartRun(ctx context.Context, run *agent.Run) (context.Context, func(agent.Result)) {
	ctx, span := o.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.run_id", run.ID),
		attribute.Int("agent.prior_steps", run.Log.Len()),
	))
	return ctx, func(res agent.Result) {
		outcome := outcomeOf(res)
		if o.metrics != nil {
			o.metrics.runs.WithLabelValues(outcome).Inc()
		}
		span.SetAttributes(
			attribute.String("agent.outcome", outcome),
			attribute.String("agent.stop_reason", string(res.StopReason)),
			attribute.Int("agent.iterations", res.Iterations),
			attribute.Int("gen_ai.usage.total_tokens", res.Usage.TotalTokens),
		)
		if res.Err != nil && !res.Incomplete {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}
}

// StartIteration implements agent.Observer.
func (o *Observer) StartIteration(ctx context.Context, n int) (context.Context, func(steplog.Step)) {
	ctx, span := o.tracer.Start(ctx, "agent.iteration", trace.WithAttributes(attribute.Int("agent.iteration", n)))
	return ctx, func(step steplog.Step) {
		kind := stepKind(step)
		if o.metrics != nil {
			o.metrics.steps.WithLabelValues(kind).Inc()
		}
		span.SetAttributes(attribute.String("agent.step_kind", kind))
		if step.Error != nil {
			span.SetStatus(codes.Error, step.Error.Message)
		}
		span.End()
	}
}

// StartModelCall implements agent.Observer.
func (o *Observer) StartModelCall(ctx context.Context, model string) (context.Context, func(provider.TokenUsage, error)) {
	ctx, span := o.tracer.Start(ctx, "model.complete", trace.WithAttributes(attribute.String("gen_ai.request.model", model)))
	start := time.Now()
	return ctx, func(usage provider.TokenUsage, err error) {
		if o.metrics != nil {
			o.metrics.modelLatency.Observe(time.Since(start).Seconds())
			o.metrics.tokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
			o.metrics.tokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
		}
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", usage.CompletionTokens),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// ObserveTool implements tool.Observer.
func (o *Observer) ObserveTool(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(attribute.String("tool.name", name)))
	start := time.Now()
	return ctx, func(err error) {
		if o.metrics != nil {
			o.metrics.observeTool(name, time.Since(start), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func outcomeOf(res agent.Result) string {
	switch {
	case res.Incomplete:
		return "incomplete"
	case res.State == agent.StateTerminated:
		return "answered"
	case res.StopReason == agent.StopReasonCancelled || res.StopReason == agent.StopReasonTimeout:
		return string(res.StopReason)
	}
	return "failed"
}

func stepKind(s steplog.Step) string {
	switch {
	case s.FinalAnswer != nil:
		return "final_answer"
	case s.Error != nil:
		return string(s.Error.Kind)
	}
	return "ok"
}

// Interface guards.
var (
	_ agent.Observer = (*Observer)(nil)
	_ tool.Observer  = (*Observer)(nil)
)
