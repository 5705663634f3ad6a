package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/kurisu/squadagent/internal/codeblock"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/provider/providertest"
	"github.com/kurisu/squadagent/internal/steplog"
	"github.com/kurisu/squadagent/internal/tool"
	"github.com/kurisu/squadagent/internal/tool/tooltest"
)

func codeReply(thought, code string) string {
	return "Thought: " + thought + "\nCode:\n```py\n" + code + "\n```<end_action>"
}

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("Register(%s): %v", tl.Spec().Name, err)
		}
	}
	return reg
}

func collect(ctx context.Context, l *Loop, run *Run) []Event {
	var events []Event
	for ev := range l.Stream(ctx, run) {
		events = append(events, ev)
	}
	return events
}

func TestLoop_ArithmeticFinalAnswer(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(codeReply("I will compute it.", "result = 5 + 3 + 1294.678\nfinal_answer(result)"))
	l := NewLoop(p, nil, LoopConfig{})

	run := NewRun("What is the result of the following operation: 5 + 3 + 1294.678?")
	res, err := l.Run(context.Background(), run)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateTerminated || res.StopReason != StopReasonComplete {
		t.Fatalf("state = %s/%s, want terminated/complete", res.State, res.StopReason)
	}
	if res.Answer == nil {
		t.Fatal("no answer")
	}
	v, ok := res.Answer.Value.(float64)
	if !ok || math.Abs(v-1302.678) > 1e-9 {
		t.Errorf("answer = %v, want 1302.678", res.Answer.Value)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}

	turn := run.Log.Current()
	if turn == nil || len(turn.Steps) != 1 || turn.Answer == nil || turn.Incomplete {
		t.Fatalf("turn = %+v", turn)
	}

	reqs := p.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if got := reqs[0].Stop; len(got) != len(codeblock.StopSequences) || got[0] != codeblock.Sentinel {
		t.Errorf("stop = %v", got)
	}
	msgs := reqs[0].Messages
	if msgs[0].Role != provider.MessageRoleSystem || !strings.Contains(msgs[0].Content, "final_answer") {
		t.Errorf("first message is not the system prompt: %+v", msgs[0])
	}
	if msgs[1].Role != provider.MessageRoleUser || !strings.HasPrefix(msgs[1].Content, "Task: ") {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestLoop_RetrieverObservationFedBack(t *testing.T) {
	t.Parallel()

	retriever := tooltest.TextTool("squad_retriever", func(q string) string {
		return "===Document===\nQuestion: " + q + "\nAnswer: 1859\nScore: 1.5"
	})
	p := providertest.Scripted(
		codeReply("Start with the retriever.", `docs = squad_retriever(query="When was Notre Dame founded?")`+"\nprint(docs)"),
		codeReply("The documents answer it.", `final_answer("1859")`),
	)
	l := NewLoop(p, newRegistry(t, retriever), LoopConfig{})

	res, err := l.Run(context.Background(), NewRun("When was Notre Dame founded?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer == nil || res.Answer.Text() != "1859" {
		t.Fatalf("answer = %+v", res.Answer)
	}
	if calls := retriever.Calls(); len(calls) != 1 || calls[0]["query"] != "When was Notre Dame founded?" {
		t.Fatalf("retriever calls = %v", calls)
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if !strings.Contains(reqs[0].Messages[0].Content, "squad_retriever") {
		t.Error("system prompt does not describe squad_retriever")
	}
	second := reqs[1].Messages
	last := second[len(second)-1]
	if last.Role != provider.MessageRoleToolResponse {
		t.Fatalf("last role = %s, want tool_response", last.Role)
	}
	for _, want := range []string{"[OUTPUT OF STEP 1] -> Observation:", "Answer: 1859", "Tool call: squad_retriever("} {
		if !strings.Contains(last.Content, want) {
			t.Errorf("observation missing %q:\n%s", want, last.Content)
		}
	}
	assistant := second[len(second)-2]
	if assistant.Role != provider.MessageRoleAssistant || !strings.HasSuffix(assistant.Content, codeblock.Sentinel) {
		t.Errorf("assistant message = %+v", assistant)
	}
}

func TestLoop_ParseRetriesExhausted(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted("I think the answer is 42.")
	l := NewLoop(p, nil, LoopConfig{MaxParseRetries: 2})

	run := NewRun("question")
	res, err := l.Run(context.Background(), run)
	if !errors.Is(err, ErrUnrecoverable) || !errors.Is(err, ErrNoCodeBlockFound) {
		t.Fatalf("err = %v, want ErrUnrecoverable wrapping ErrNoCodeBlockFound", err)
	}
	if res.State != StateFailed || res.StopReason != StopReasonParseRetries {
		t.Errorf("state = %s/%s", res.State, res.StopReason)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}
	for _, s := range run.Log.Current().Steps {
		if s.Error == nil || s.Error.Kind != steplog.KindNoCodeBlock {
			t.Errorf("step %d error = %+v", s.Iteration, s.Error)
		}
	}
	if !run.Log.Current().Incomplete {
		t.Error("failed turn not marked incomplete")
	}
}

func TestLoop_ParseFailureRecovers(t *testing.T) {
	t.Parallel()

	// The second reply lacks the sentinel because the model stopped on it.
	p := providertest.Scripted(
		"no code at all",
		"Thought: fix\nCode:\n```py\nfinal_answer(1)\n```",
	)
	l := NewLoop(p, nil, LoopConfig{})

	run := NewRun("task")
	res, err := l.Run(context.Background(), run)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer == nil || res.Answer.Text() != "1" {
		t.Fatalf("answer = %+v", res.Answer)
	}
	steps := run.Log.Current().Steps
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if steps[0].Error == nil || !steps[0].Error.Kind.Parse() {
		t.Errorf("step 1 error = %+v", steps[0].Error)
	}
	if steps[1].Error != nil {
		t.Errorf("step 2 error = %+v", steps[1].Error)
	}
}

func TestLoop_IterationBudget(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(codeReply("keep going", `print("still thinking")`))
	l := NewLoop(p, nil, LoopConfig{MaxIterations: 3})

	run := NewRun("task")
	res, err := l.Run(context.Background(), run)
	if err != nil {
		t.Fatalf("Run returned error for an incomplete turn: %v", err)
	}
	if !res.Incomplete || res.State != StateTerminated || res.StopReason != StopReasonMaxIterations {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Err, ErrIterationBudgetExceeded) {
		t.Errorf("Err = %v, want ErrIterationBudgetExceeded", res.Err)
	}
	if !strings.Contains(res.PartialAnswer, "still thinking") {
		t.Errorf("partial answer = %q", res.PartialAnswer)
	}
	if res.Iterations != 3 || len(run.Log.Current().Steps) != 3 {
		t.Errorf("iterations = %d, steps = %d", res.Iterations, len(run.Log.Current().Steps))
	}
}

func TestLoop_ExecutionRetriesExhausted(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(codeReply("divide", "x = 1 // 0"))
	l := NewLoop(p, nil, LoopConfig{MaxIterations: 10, MaxErrorRetries: 2})

	res, err := l.Run(context.Background(), NewRun("task"))
	if !errors.Is(err, ErrUnrecoverable) || !errors.Is(err, ErrRuntimeScript) {
		t.Fatalf("err = %v", err)
	}
	if res.StopReason != StopReasonErrorRetries || res.Iterations != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestLoop_LoopDetected(t *testing.T) {
	t.Parallel()

	search := tooltest.TextTool("search", func(string) string { return "nothing new" })
	p := providertest.Scripted(codeReply("search again", `print(search(query="same"))`))
	l := NewLoop(p, newRegistry(t, search), LoopConfig{LoopThreshold: 3})

	run := NewRun("task")
	res, err := l.Run(context.Background(), run)
	if !errors.Is(err, ErrLoopDetected) {
		t.Fatalf("err = %v, want ErrLoopDetected", err)
	}
	if res.Iterations != 3 || res.StopReason != StopReasonLoopDetected {
		t.Errorf("result = %+v", res)
	}
	steps := run.Log.Current().Steps
	if n := len(steps[0].Entries(steplog.EntryNotice)); n != 0 {
		t.Errorf("first step has %d notices", n)
	}
	if n := len(steps[1].Entries(steplog.EntryNotice)); n != 1 {
		t.Errorf("second step has %d notices, want 1", n)
	}
}

func TestLoop_ModelError(t *testing.T) {
	t.Parallel()

	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, provider.ErrProviderDown
		},
	}
	l := NewLoop(p, nil, LoopConfig{})

	run := NewRun("task")
	res, err := l.Run(context.Background(), run)
	if !errors.Is(err, ErrModelClient) || !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v", err)
	}
	if res.State != StateFailed || res.StopReason != StopReasonModelError {
		t.Errorf("result = %+v", res)
	}
	if n := len(run.Log.Current().Steps); n != 0 {
		t.Errorf("steps = %d, want 0", n)
	}
}

func TestLoop_TokenBudget(t *testing.T) {
	t.Parallel()

	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{
				Content: codeReply("more", "x = 1"),
				Usage:   provider.TokenUsage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100},
			}, nil
		},
	}
	l := NewLoop(p, nil, LoopConfig{TokenBudget: 150})

	res, err := l.Run(context.Background(), NewRun("task"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Incomplete || res.StopReason != StopReasonTokenBudget || !errors.Is(res.Err, ErrTokenBudgetExceeded) {
		t.Fatalf("result = %+v", res)
	}
	if res.Iterations != 2 || res.Usage.TotalTokens != 200 {
		t.Errorf("iterations = %d, tokens = %d", res.Iterations, res.Usage.TotalTokens)
	}
}

func TestLoop_EventOrder(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(codeReply("done", "final_answer(7)"))
	l := NewLoop(p, nil, LoopConfig{Stream: true})

	events := collect(context.Background(), l, NewRun("task"))

	var kinds []string
	for _, ev := range events {
		switch ev.Type {
		case EventState:
			kinds = append(kinds, string(ev.State))
		default:
			kinds = append(kinds, string(ev.Type))
		}
	}
	want := []string{
		string(StateAwaitingModel), string(EventModelDelta), string(StateParsing),
		string(StateExecuting), string(StateRecording), string(EventStep),
		string(EventFinal), string(EventDone),
	}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v\nwant     %v", kinds, want)
	}
	if got := p.Requests(); len(got) != 1 {
		t.Errorf("requests = %d", len(got))
	}
}

func TestLoop_ConsumerStops(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(codeReply("done", "final_answer(7)"))
	l := NewLoop(p, nil, LoopConfig{Stream: true})

	run := NewRun("task")
	n := 0
	for ev := range l.Stream(context.Background(), run) {
		n++
		if ev.Type == EventModelDelta {
			break
		}
	}
	if n != 2 {
		t.Errorf("received %d events, want 2", n)
	}
	turn := run.Log.Current()
	if turn == nil || !turn.Incomplete || len(turn.Steps) != 0 {
		t.Errorf("turn = %+v", turn)
	}
}

func TestLoop_ResumeKeepsStateAcrossTurns(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(
		codeReply("remember", "x = 41\nfinal_answer(x)"),
		codeReply("reuse", "final_answer(x + 1)"),
	)
	l := NewLoop(p, nil, LoopConfig{})

	first := NewRun("first")
	if _, err := l.Run(context.Background(), first); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second := ResumeRun("second", first.Log, first.Env)
	res, err := l.Run(context.Background(), second)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Answer == nil || res.Answer.Text() != "42" {
		t.Fatalf("answer = %+v", res.Answer)
	}
	if len(second.Log.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(second.Log.Turns))
	}

	msgs := p.Requests()[1].Messages
	var tasks []string
	for _, m := range msgs {
		if m.Role == provider.MessageRoleUser {
			tasks = append(tasks, m.Content)
		}
	}
	if strings.Join(tasks, "|") != "Task: first|Task: second" {
		t.Errorf("user messages = %v", tasks)
	}
}

func TestLoop_ResumeEmptyIsFresh(t *testing.T) {
	t.Parallel()

	reply := codeReply("done", "final_answer(1)")
	fresh := providertest.Scripted(reply)
	resumed := providertest.Scripted(reply)

	if _, err := NewLoop(fresh, nil, LoopConfig{}).Run(context.Background(), NewRun("task")); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoop(resumed, nil, LoopConfig{}).Run(context.Background(), ResumeRun("task", &steplog.Log{}, nil)); err != nil {
		t.Fatal(err)
	}

	a, b := fresh.Requests()[0].Messages, resumed.Requests()[0].Messages
	if len(a) != len(b) {
		t.Fatalf("message counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("message %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestLoop_ConcurrentRunsAreIsolated(t *testing.T) {
	t.Parallel()

	// The model sets x from the task on the first step and returns x on the
	// second. Runs sharing an environment would see each other's x.
	p := &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			var task string
			seen := false
			for _, m := range req.Messages {
				switch m.Role {
				case provider.MessageRoleUser:
					task = strings.TrimPrefix(m.Content, "Task: ")
				case provider.MessageRoleToolResponse:
					seen = true
				}
			}
			code := "x = " + task
			if seen {
				code = "final_answer(x)"
			}
			return provider.CompletionResponse{Content: codeReply("step", code)}, nil
		},
	}
	l := NewLoop(p, nil, LoopConfig{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Run(context.Background(), NewRun(fmt.Sprint(i)))
			if err != nil {
				errs <- err
				return
			}
			if res.Answer == nil || res.Answer.Text() != fmt.Sprint(i) {
				errs <- fmt.Errorf("run %d answered %+v", i, res.Answer)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestLoop_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := providertest.Scripted(codeReply("done", "final_answer(1)"))
	res, err := NewLoop(p, nil, LoopConfig{}).Run(ctx, NewRun("task"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.StopReason != StopReasonCancelled || len(p.Requests()) != 0 {
		t.Errorf("result = %+v, requests = %d", res, len(p.Requests()))
	}
}
