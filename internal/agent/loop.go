package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/kurisu/squadagent/internal/codeblock"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/sandbox"
	"github.com/kurisu/squadagent/internal/steplog"
	"github.com/kurisu/squadagent/internal/tool"
)

// Observer receives telemetry about runs. Each Start method returns a
// possibly derived context and a function called when the unit ends.
type Observer interface {
	StartRun(ctx context.Context, run *Run) (context.Context, func(Result))
	StartIteration(ctx context.Context, n int) (context.Context, func(steplog.Step))
	StartModelCall(ctx context.Context, model string) (context.Context, func(provider.TokenUsage, error))
}

type nopObserver struct{}

func (nopObserver) StartRun(ctx context.Context, _ *Run) (context.Context, func(Result)) {
	return ctx, func(Result) {}
}

func (nopObserver) StartIteration(ctx context.Context, _ int) (context.Context, func(steplog.Step)) {
	return ctx, func(steplog.Step) {}
}

func (nopObserver) StartModelCall(ctx context.Context, _ string) (context.Context, func(provider.TokenUsage, error)) {
	return ctx, func(provider.TokenUsage, error) {}
}

// Loop drives runs against one model and one tool registry.
// It is safe for concurrent use by runs with distinct state.
type Loop struct {
	provider     provider.Provider
	tools        *tool.Registry
	executor     *sandbox.Executor
	config       LoopConfig
	systemPrompt string
	execConfig   sandbox.Config
	logger       *slog.Logger
	observer     Observer
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used by the loop and its executor.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithObserver installs a telemetry observer.
func WithObserver(o Observer) Option {
	return func(lp *Loop) { lp.observer = o }
}

// WithSystemPrompt replaces the default system prompt template.
func WithSystemPrompt(template string) Option {
	return func(lp *Loop) { lp.systemPrompt = template }
}

// WithExecutorConfig sets the sandbox limits.
func WithExecutorConfig(cfg sandbox.Config) Option {
	return func(lp *Loop) { lp.execConfig = cfg }
}

// NewLoop creates a Loop. A nil registry means the model only has
// final_answer.
func NewLoop(p provider.Provider, tools *tool.Registry, cfg LoopConfig, opts ...Option) *Loop {
	l := &Loop{
		provider:     p,
		tools:        tools,
		config:       cfg.withDefaults(),
		systemPrompt: DefaultSystemPrompt,
		logger:       slog.New(slog.DiscardHandler),
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.execConfig.Logger == nil {
		l.execConfig.Logger = l.logger
	}
	var inv sandbox.Invoker
	if tools != nil {
		inv = tools
	}
	l.executor = sandbox.New(inv, l.execConfig)
	return l
}

// SystemPrompt returns the rendered system prompt.
func (l *Loop) SystemPrompt() string {
	var specs []tool.Spec
	if l.tools != nil {
		specs = l.tools.Specs()
	}
	return RenderSystemPrompt(l.systemPrompt, specs, l.config.AuthorizedImports)
}

// Run consumes the stream of run and returns its result. The error is
// Result.Err, except for incomplete turns which still return nil.
func (l *Loop) Run(ctx context.Context, run *Run) (Result, error) {
	var res Result
	for ev := range l.Stream(ctx, run) {
		if ev.Type == EventDone {
			res = *ev.Result
		}
	}
	if res.Incomplete {
		return res, nil
	}
	return res, res.Err
}

// Stream executes one turn of run and yields its events. The step log and
// environment are committed before each step event is yielded. Stopping the
// iteration cancels the turn; the turn is then recorded as incomplete.
func (l *Loop) Stream(ctx context.Context, run *Run) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()

		ctx, endRun := l.observer.StartRun(ctx, run)
		t := &turn{loop: l, run: run, yield: yield}
		res := t.execute(ctx)
		endRun(res)

		l.logger.Info("run finished",
			"run_id", run.ID,
			"state", res.State,
			"stop_reason", res.StopReason,
			"iterations", res.Iterations,
			"tokens", res.Usage.TotalTokens,
		)
		t.emit(Event{Type: EventDone, Result: &res})
	}
}

// turn is the state of one Stream call.
type turn struct {
	loop    *Loop
	run     *Run
	yield   func(Event) bool
	stopped bool
	tokens  *tokenTracker
}

// emit forwards ev unless the consumer has stopped pulling.
func (t *turn) emit(ev Event) bool {
	if t.stopped {
		return false
	}
	if !t.yield(ev) {
		t.stopped = true
	}
	return !t.stopped
}

func (t *turn) state(s State) bool {
	return t.emit(Event{Type: EventState, State: s})
}

func (t *turn) execute(ctx context.Context) Result {
	cfg := t.loop.config
	log := t.run.Log

	system := provider.LLMMessage{Role: provider.MessageRoleSystem, Content: t.loop.SystemPrompt()}
	log.StartTurn(t.run.Task)

	detector := newLoopDetector(cfg.LoopThreshold)
	t.tokens = newTokenTracker(cfg.TokenBudget)
	parseFailures := retryCounter{limit: cfg.MaxParseRetries}
	execFailures := retryCounter{limit: cfg.MaxErrorRetries}

	for i := 1; i <= cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return t.cancelled(i-1, err)
		}
		if !t.state(StateAwaitingModel) {
			return t.cancelled(i-1, context.Canceled)
		}

		iterCtx, endIter := t.loop.observer.StartIteration(ctx, i)
		started := time.Now()

		msgs := append([]provider.LLMMessage{system}, log.Transcript()...)
		raw, err := t.complete(iterCtx, msgs)
		if err != nil {
			endIter(steplog.Step{Iteration: i})
			if t.stopped {
				return t.cancelled(i, context.Canceled)
			}
			if ctx.Err() != nil {
				return t.cancelled(i, ctx.Err())
			}
			return t.fail(i, StopReasonModelError, fmt.Errorf("%w: %w", ErrModelClient, err))
		}

		if !t.state(StateParsing) {
			endIter(steplog.Step{Iteration: i})
			return t.cancelled(i, context.Canceled)
		}
		raw = codeblock.EnsureSentinel(raw)
		block, parseErr := codeblock.Extract(raw)

		var res *sandbox.Result
		if parseErr == nil {
			if !t.state(StateExecuting) {
				endIter(steplog.Step{Iteration: i})
				return t.cancelled(i, context.Canceled)
			}
			r := t.loop.executor.Execute(iterCtx, block.Code, t.run.Env, cfg.AuthorizedImports)
			res = &r
		}

		t.state(StateRecording)
		step := steplog.Build(i, raw, block, parseErr, res)
		step.StartedAt = started
		step.Duration = time.Since(started)

		repeated, stuck := detector.observe(step)
		for _, sig := range repeated {
			step.Annotate(repeatNotice(sig))
		}
		log.Append(step)
		endIter(step)

		t.loop.logger.Debug("step recorded",
			"run_id", t.run.ID,
			"iteration", i,
			"error", step.Error,
			"final", step.FinalAnswer != nil,
		)
		if !t.emit(Event{Type: EventStep, Step: &step}) {
			return t.cancelled(i, context.Canceled)
		}

		if step.FinalAnswer != nil {
			log.Finish(step.FinalAnswer, false)
			t.emit(Event{Type: EventFinal, Answer: step.FinalAnswer})
			return Result{
				Answer:     step.FinalAnswer,
				State:      StateTerminated,
				StopReason: StopReasonComplete,
				Iterations: i,
				Usage:      t.tokens.total(),
			}
		}
		if stuck {
			return t.fail(i, StopReasonLoopDetected,
				fmt.Errorf("%w: %s repeated in %d consecutive steps", ErrLoopDetected, repeated[0], cfg.LoopThreshold))
		}

		if parseErr != nil {
			if parseFailures.fail() {
				return t.fail(i, StopReasonParseRetries, fmt.Errorf("%w: %w", ErrUnrecoverable, parseErr))
			}
		} else {
			parseFailures.reset()
			if res.Err != nil {
				if execFailures.fail() {
					return t.fail(i, StopReasonErrorRetries, fmt.Errorf("%w: %w", ErrUnrecoverable, res.Err))
				}
			} else {
				execFailures.reset()
			}
		}

		if t.tokens.exceeded() {
			return t.incomplete(i, StopReasonTokenBudget, ErrTokenBudgetExceeded)
		}
		t.state(StateContinue)
	}
	return t.incomplete(cfg.MaxIterations, StopReasonMaxIterations,
		fmt.Errorf("%w: no final answer after %d iterations", ErrIterationBudgetExceeded, cfg.MaxIterations))
}

// complete asks the model for the next step. With streaming enabled, chunks
// are forwarded as EventModelDelta.
func (t *turn) complete(ctx context.Context, msgs []provider.LLMMessage) (string, error) {
	p := t.loop.provider
	req := provider.CompletionRequest{
		Messages:    provider.Prepare(p, msgs),
		MaxTokens:   t.loop.config.MaxTokens,
		Temperature: t.loop.config.Temperature,
		Stop:        codeblock.StopSequences,
	}

	ctx, endCall := t.loop.observer.StartModelCall(ctx, p.ModelName())
	if !t.loop.config.Stream {
		resp, err := p.Complete(ctx, req)
		endCall(resp.Usage, err)
		if err != nil {
			return "", err
		}
		t.tokens.add(resp.Usage)
		return resp.Content, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		endCall(provider.TokenUsage{}, err)
		return "", err
	}

	var (
		b     strings.Builder
		usage provider.TokenUsage
	)
	for chunk := range chunks {
		if chunk.Err != nil {
			err = chunk.Err
			break
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		if !t.emit(Event{Type: EventModelDelta, Delta: chunk.Content}) {
			err = context.Canceled
			break
		}
	}
	if err != nil {
		cancel()
		// Drain so the producer can observe cancellation and exit.
		for range chunks {
		}
	}
	endCall(usage, err)
	if err != nil {
		return "", err
	}
	t.tokens.add(usage)
	return b.String(), nil
}

// incomplete ends the turn without an answer once a budget is spent.
func (t *turn) incomplete(iterations int, reason StopReason, err error) Result {
	t.run.Log.Finish(nil, true)
	partial := t.run.Log.LastObservation()
	if partial == "" {
		partial = "The agent could not complete the task within its budget."
	}
	return Result{
		Incomplete:    true,
		PartialAnswer: partial,
		State:         StateTerminated,
		StopReason:    reason,
		Iterations:    iterations,
		Usage:         t.tokens.total(),
		Err:           err,
	}
}

func (t *turn) fail(iterations int, reason StopReason, err error) Result {
	t.run.Log.Finish(nil, true)
	t.loop.logger.Warn("run failed", "run_id", t.run.ID, "error", err)
	t.emit(Event{Type: EventState, State: StateFailed})
	return Result{
		State:         StateFailed,
		StopReason:    reason,
		Iterations:    iterations,
		PartialAnswer: t.run.Log.LastObservation(),
		Usage:         t.tokens.total(),
		Err:           err,
	}
}

func (t *turn) cancelled(iterations int, err error) Result {
	reason := StopReasonCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		reason = StopReasonTimeout
	}
	t.run.Log.Finish(nil, true)
	return Result{
		State:         StateFailed,
		StopReason:    reason,
		Iterations:    iterations,
		PartialAnswer: t.run.Log.LastObservation(),
		Usage:         t.tokens.total(),
		Err:           err,
	}
}
