package invoke

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/textwand/textwand/internal/prompt"
	"github.com/textwand/textwand/internal/provider"
)

type fakeRecorder struct {
	attempts []Attempt
}

func (r *fakeRecorder) Record(a Attempt) error {
	r.attempts = append(r.attempts, a)
	return nil
}

type fakeCache struct {
	m    map[string]string
	puts int
}

func newFakeCache() *fakeCache { return &fakeCache{m: make(map[string]string)} }

func (c *fakeCache) Get(_ context.Context, providerID, promptText string) (string, bool) {
	v, ok := c.m[providerID+"|"+promptText]
	return v, ok
}

func (c *fakeCache) Put(_ context.Context, providerID, promptText, response string) {
	c.m[providerID+"|"+promptText] = response
	c.puts++
}

func testRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	reg, err := provider.NewRegistry([]provider.Spec{
		{ID: "gemini", Command: []string{"gemini", "{prompt}"}, Enabled: true, Priority: 1},
		{ID: "claude", Command: []string{"claude", "{prompt}"}, Enabled: true, Priority: 2},
	}, "gemini")
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func testEngine(t *testing.T, l Launcher) *Engine {
	t.Helper()
	return NewEngine(testRegistry(t), prompt.NewLibrary(prompt.Defaults()), NewInvoker(l, time.Second))
}

func TestPerformOperationSuccess(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{Stdout: "better text\n"}
	eng := testEngine(t, l)

	ok, text := eng.PerformOperation(context.Background(), "improve", "bad text", nil)
	if !ok {
		t.Fatalf("expected success, got %q", text)
	}
	if text != "better text" {
		t.Errorf("text = %q", text)
	}
	if len(l.launched) != 1 {
		t.Errorf("launched %d processes, want 1", len(l.launched))
	}
}

func TestPerformOperationEmptyOperation(t *testing.T) {
	eng := testEngine(t, newFakeLauncher())
	ok, msg := eng.PerformOperation(context.Background(), "", "any text", nil)
	if ok || msg != "No operation specified" {
		t.Errorf("got (%v, %q)", ok, msg)
	}
}

func TestPerformOperationEmptyText(t *testing.T) {
	eng := testEngine(t, newFakeLauncher())
	ok, msg := eng.PerformOperation(context.Background(), "improve", "", nil)
	if ok || msg != "No text provided" {
		t.Errorf("got (%v, %q)", ok, msg)
	}
}

func TestPerformOperationValidationSkipsInvocation(t *testing.T) {
	l := newFakeLauncher()
	eng := testEngine(t, l)

	eng.PerformOperation(context.Background(), "", "text", nil)
	eng.PerformOperation(context.Background(), "improve", "  ", nil)
	eng.PerformOperation(context.Background(), "unknown-op", "text", nil)
	eng.PerformOperation(context.Background(), "translate", "text", nil)

	if len(l.launched) != 0 {
		t.Errorf("validation failures launched %d processes", len(l.launched))
	}
}

func TestPerformOperationPropagatesRenderErrors(t *testing.T) {
	eng := testEngine(t, newFakeLauncher())

	ok, msg := eng.PerformOperation(context.Background(), "unknown-op", "text", nil)
	if ok || !strings.Contains(msg, "Unknown operation") {
		t.Errorf("got (%v, %q)", ok, msg)
	}
	ok, msg = eng.PerformOperation(context.Background(), "translate", "text", nil)
	if ok || !strings.Contains(msg, "Missing parameter") {
		t.Errorf("got (%v, %q)", ok, msg)
	}
}

func TestPerformOperationFallsBackToSecondProvider(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{ExitCode: 1, Stderr: "quota exceeded"}
	l.outcomes["claude"] = Outcome{Stdout: "claude says hi"}
	eng := testEngine(t, l)

	ok, text := eng.PerformOperation(context.Background(), "improve", "text", nil)
	if !ok {
		t.Fatalf("expected fallback success, got %q", text)
	}
	if text != "claude says hi" {
		t.Errorf("text = %q, caller should never see the first failure", text)
	}
	if len(l.launched) != 2 || l.launched[0] != "gemini" || l.launched[1] != "claude" {
		t.Errorf("launch order = %v", l.launched)
	}
}

func TestPerformOperationExhaustionSurfacesLastFailure(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{ExitCode: 1, Stderr: "gemini down"}
	l.outcomes["claude"] = Outcome{ExitCode: 1, Stderr: "claude down"}
	eng := testEngine(t, l)

	ok, msg := eng.PerformOperation(context.Background(), "improve", "text", nil)
	if ok {
		t.Fatal("expected failure")
	}
	if msg != "claude down" {
		t.Errorf("msg = %q, want the last chain entry's failure", msg)
	}
}

func TestPerformOperationAttemptsAreSequential(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{ExitCode: 1, Stderr: "down"}
	l.outcomes["claude"] = Outcome{Stdout: "ok"}
	eng := testEngine(t, l)

	eng.PerformOperation(context.Background(), "improve", "text", nil)
	// The first attempt fully resolved before the second launch happened.
	if len(l.handles) != 2 {
		t.Fatalf("handles = %d", len(l.handles))
	}
	select {
	case <-l.handles[0].Done():
		t.Error("first outcome should have been consumed before the fallback launch")
	default:
	}
}

func TestPerformOperationRecordsAllAttempts(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{ExitCode: 1, Stderr: "gemini down"}
	l.outcomes["claude"] = Outcome{Stdout: "ok"}
	rec := &fakeRecorder{}
	eng := NewEngineWithStores(testRegistry(t), prompt.NewLibrary(prompt.Defaults()), NewInvoker(l, time.Second), rec, nil)

	eng.PerformOperation(context.Background(), "improve", "text", nil)

	if len(rec.attempts) != 2 {
		t.Fatalf("recorded %d attempts, want 2", len(rec.attempts))
	}
	if rec.attempts[0].Provider != "gemini" || rec.attempts[0].Kind != KindProcessError {
		t.Errorf("first attempt = %+v", rec.attempts[0])
	}
	if rec.attempts[1].Provider != "claude" || rec.attempts[1].Kind != KindSuccess {
		t.Errorf("second attempt = %+v", rec.attempts[1])
	}
	if rec.attempts[0].RequestID == "" || rec.attempts[0].RequestID != rec.attempts[1].RequestID {
		t.Error("attempts of one call should share a request id")
	}
}

func TestPerformOperationTimeoutAdvancesChain(t *testing.T) {
	l := newFakeLauncher()
	l.hang["gemini"] = true
	l.outcomes["claude"] = Outcome{Stdout: "rescued"}
	eng := NewEngine(testRegistry(t), prompt.NewLibrary(prompt.Defaults()), NewInvoker(l, 30*time.Millisecond))

	ok, text := eng.PerformOperation(context.Background(), "improve", "text", nil)
	if !ok || text != "rescued" {
		t.Fatalf("got (%v, %q)", ok, text)
	}
	if !l.handles[0].wasKilled() {
		t.Error("timed-out provider process was not killed")
	}
}

func TestPerformOperationIdempotentClassification(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{Stdout: "deterministic"}
	eng := testEngine(t, l)

	for i := 0; i < 3; i++ {
		ok, text := eng.PerformOperation(context.Background(), "improve", "text", nil)
		if !ok || text != "deterministic" {
			t.Fatalf("call %d: got (%v, %q)", i, ok, text)
		}
	}
}

func TestPerformOperationNoDefaultProvider(t *testing.T) {
	reg, err := provider.NewRegistry([]provider.Spec{
		{ID: "gemini", Command: []string{"gemini"}, Enabled: true, Priority: 1},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	eng := NewEngine(reg, prompt.NewLibrary(prompt.Defaults()), NewInvoker(newFakeLauncher(), time.Second))

	ok, msg := eng.PerformOperation(context.Background(), "improve", "text", nil)
	if ok || msg != "No provider configured" {
		t.Errorf("got (%v, %q)", ok, msg)
	}
}

func TestCallUnknownProvider(t *testing.T) {
	eng := testEngine(t, newFakeLauncher())
	ok, msg := eng.Call(context.Background(), "invalid-provider-id", "prompt")
	if ok {
		t.Fatal("expected failure")
	}
	if !strings.Contains(msg, "Unknown provider") {
		t.Errorf("msg = %q", msg)
	}
}

func TestCallPrefixesLastFailureWithProvider(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{ExitCode: 1, Stderr: "gemini down"}
	l.outcomes["claude"] = Outcome{ExitCode: 1, Stderr: "claude down"}
	eng := testEngine(t, l)

	ok, msg := eng.Call(context.Background(), "gemini", "prompt")
	if ok {
		t.Fatal("expected failure")
	}
	if msg != "claude: claude down" {
		t.Errorf("msg = %q", msg)
	}
}

func TestCallSendsPromptVerbatim(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{Stdout: "ok"}
	eng := testEngine(t, l)

	ok, _ := eng.Call(context.Background(), "gemini", "raw prompt, no templating")
	if !ok {
		t.Fatal("expected success")
	}
	if l.args[0][0] != "raw prompt, no templating" {
		t.Errorf("args = %v, Call must not transform the prompt", l.args[0])
	}
}

func TestEngineCacheHitSkipsInvocation(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{Stdout: "fresh"}
	c := newFakeCache()
	eng := NewEngineWithStores(testRegistry(t), prompt.NewLibrary(prompt.Defaults()), NewInvoker(l, time.Second), nil, c)

	ok, first := eng.PerformOperation(context.Background(), "improve", "text", nil)
	if !ok || first != "fresh" {
		t.Fatalf("got (%v, %q)", ok, first)
	}
	if c.puts != 1 {
		t.Fatalf("puts = %d", c.puts)
	}

	ok, second := eng.PerformOperation(context.Background(), "improve", "text", nil)
	if !ok || second != "fresh" {
		t.Fatalf("got (%v, %q)", ok, second)
	}
	if len(l.launched) != 1 {
		t.Errorf("cache hit should not launch a process, launched = %v", l.launched)
	}
}

func TestProberSuccess(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{Stdout: "OK\n"}
	p := NewProber(testEngine(t, l))

	ok, msg := p.Test(context.Background(), "gemini")
	if !ok {
		t.Fatalf("expected success, got %q", msg)
	}
	if !strings.Contains(msg, "working correctly") {
		t.Errorf("msg = %q", msg)
	}
}

func TestProberAcceptsAnyNonblankReply(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{Stdout: "Sure! OK."}
	p := NewProber(testEngine(t, l))

	ok, _ := p.Test(context.Background(), "gemini")
	if !ok {
		t.Error("any nonblank reply should pass the probe")
	}
}

func TestProberFailure(t *testing.T) {
	l := newFakeLauncher()
	l.outcomes["gemini"] = Outcome{ExitCode: 1, Stderr: "not logged in"}
	l.outcomes["claude"] = Outcome{ExitCode: 1, Stderr: "not installed"}
	p := NewProber(testEngine(t, l))

	ok, msg := p.Test(context.Background(), "gemini")
	if ok {
		t.Fatal("expected failure")
	}
	if !strings.Contains(msg, "not installed") {
		t.Errorf("msg = %q, want the underlying failure", msg)
	}
}
