package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/provider/providertest"
	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/session"
)

func codeReply(code string) string {
	return "Thought: compute\nCode:\n```py\n" + code + "\n```<end_action>"
}

type gauge struct {
	mu sync.Mutex
	n  int
}

func (g *gauge) SetLiveSessions(n int) {
	g.mu.Lock()
	g.n = n
	g.mu.Unlock()
}

func newRunner(t *testing.T, store session.Store, replies ...string) (*Runner, *[]security.AuditEvent) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: func(e security.AuditEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})
	mgr, err := session.NewManager(store, session.ManagerConfig{Audit: audit})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	loop := agent.NewLoop(providertest.Scripted(replies...), nil, agent.LoopConfig{})
	return New(Config{Loop: loop, Sessions: mgr, Audit: audit, Gauge: &gauge{}}), &events
}

func TestTurn_NewSessionAnswered(t *testing.T) {
	t.Parallel()

	store := session.NewMemStore()
	r, audit := newRunner(t, store, codeReply("final_answer(6 * 7)"))

	var types []agent.EventType
	out, err := r.Turn(context.Background(), session.NewID, "What is 6 times 7?", func(ev agent.Event) bool {
		types = append(types, ev.Type)
		return true
	})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !out.Created || out.SessionID == "" || out.SessionID == session.NewID {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Result.Answer == nil || out.Result.Answer.Text() != "42" {
		t.Errorf("answer = %+v", out.Result.Answer)
	}
	if len(types) == 0 || types[len(types)-1] != agent.EventDone {
		t.Errorf("events = %v, want trailing done", types)
	}

	if _, err := store.Load(context.Background(), out.SessionID); err != nil {
		t.Errorf("session not persisted: %v", err)
	}

	var kinds []security.EventType
	for _, e := range *audit {
		kinds = append(kinds, e.Type)
	}
	want := []security.EventType{security.EventSessionCreate, security.EventRunStart, security.EventRunEnd}
	if len(kinds) != len(want) {
		t.Fatalf("audit = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestTurn_ResumesExistingSession(t *testing.T) {
	t.Parallel()

	r, _ := newRunner(t, session.NewMemStore(),
		codeReply("x = 10\nfinal_answer(x)"),
		codeReply("final_answer(x + 1)"),
	)
	ctx := context.Background()

	first, err := r.Ask(ctx, "chat-1", "Set x.")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if !first.Created {
		t.Error("first turn should create the session")
	}

	second, err := r.Ask(ctx, "chat-1", "Increment x.")
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.Created {
		t.Error("second turn should reuse the session")
	}
	if second.Result.Answer == nil || second.Result.Answer.Text() != "11" {
		t.Errorf("answer = %+v, want 11 from the live environment", second.Result.Answer)
	}

	s, err := r.Sessions().Get(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(s.Log.Turns) != 2 {
		t.Errorf("turns = %d, want 2", len(s.Log.Turns))
	}
}

func TestTurn_Errors(t *testing.T) {
	t.Parallel()

	r, _ := newRunner(t, session.NewMemStore(), codeReply("final_answer(1)"))
	ctx := context.Background()

	if _, err := r.Ask(ctx, "s1", "   "); !errors.Is(err, ErrEmptyTask) {
		t.Errorf("blank task: got %v, want ErrEmptyTask", err)
	}
	if _, err := r.Ask(ctx, "../etc", "hi"); !errors.Is(err, session.ErrInvalidID) {
		t.Errorf("bad id: got %v, want ErrInvalidID", err)
	}
}

func TestTurn_StopEarlyStillSaves(t *testing.T) {
	t.Parallel()

	store := session.NewMemStore()
	r, _ := newRunner(t, store, codeReply("final_answer('done')"))

	out, err := r.Turn(context.Background(), "early", "Go.", func(agent.Event) bool { return false })
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if out.Result.StopReason != agent.StopReasonCancelled {
		t.Errorf("stop reason = %s, want cancelled", out.Result.StopReason)
	}
	if _, err := store.Load(context.Background(), "early"); err != nil {
		t.Errorf("session not persisted after early stop: %v", err)
	}
}

type failingStore struct{ session.Store }

func (failingStore) Save(context.Context, string, []byte) error { return errors.New("disk full") }

func TestTurn_SaveFailure(t *testing.T) {
	t.Parallel()

	r, _ := newRunner(t, failingStore{session.NewMemStore()}, codeReply("final_answer(1)"))
	out, err := r.Ask(context.Background(), "s2", "hi")
	if !errors.Is(err, session.ErrSessionStorage) {
		t.Fatalf("got %v, want ErrSessionStorage", err)
	}
	if out.Result.Answer == nil {
		t.Error("result should still be reported")
	}
}
