package scripting

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBoostHook(t *testing.T) {
	engine, err := NewEngine(`
		function boost(candidate) {
			if (candidate.notes.indexOf("confirmed") >= 0) {
				return 2.0;
			}
			if (candidate.redaction.page === 3) {
				return candidate.prior;
			}
			return 0;
		}
	`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := engine.Boost(context.Background(), Candidate{Text: "Anne", Notes: "confirmed twice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2.0 {
		t.Errorf("boost = %v, want 2.0", got)
	}

	got, err = engine.Boost(context.Background(), Candidate{
		Text:      "Anne",
		Prior:     1.5,
		Redaction: Redaction{Page: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1.5 {
		t.Errorf("boost = %v, want the echoed prior 1.5", got)
	}
}

func TestNewEngineRejectsBadScripts(t *testing.T) {
	if _, err := NewEngine("this is not javascript", nil); err == nil {
		t.Error("expected a compile error")
	}
	if _, err := NewEngine("var x = 1;", nil); err == nil {
		t.Error("expected an error for a script without a boost function")
	}
}

func TestBoostScriptErrorDisablesHook(t *testing.T) {
	engine, err := NewEngine(`function boost(c) { throw new Error("bad hook"); }`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !engine.Enabled() {
		t.Fatal("hook should start enabled")
	}

	got, err := engine.Boost(context.Background(), Candidate{Text: "Anne"})
	if err != nil {
		t.Fatalf("script errors must not fail the run, got %v", err)
	}
	if got != 0 {
		t.Errorf("boost = %v, want 0 after a script error", got)
	}
	if engine.Enabled() {
		t.Error("hook should be disabled after a script error")
	}

	// Later calls stay silent no-ops.
	if got, err := engine.Boost(context.Background(), Candidate{Text: "Bea"}); err != nil || got != 0 {
		t.Errorf("disabled hook returned (%v, %v), want (0, nil)", got, err)
	}
}

func TestBoostNonNumericResult(t *testing.T) {
	engine, err := NewEngine(`function boost(c) { return "lots"; }`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := engine.Boost(context.Background(), Candidate{Text: "Anne"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("boost = %v, want 0 for a non-numeric result", got)
	}
}

func TestBoostContextCancellation(t *testing.T) {
	engine, err := NewEngine(`function boost(c) { while (true) {} }`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	if _, err := engine.Boost(ctx, Candidate{Text: "Anne"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	quick, err := NewEngine(`function boost(c) { return 1; }`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := quick.Boost(ctx2, Candidate{Text: "Anne"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func TestNopEngine(t *testing.T) {
	var e Engine = NopEngine{}
	if e.Enabled() {
		t.Error("nop engine must report disabled")
	}
	if got, err := e.Boost(context.Background(), Candidate{}); err != nil || got != 0 {
		t.Errorf("nop boost = (%v, %v), want (0, nil)", got, err)
	}
}
