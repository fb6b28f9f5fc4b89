package scripting

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/dop251/goja"

	"github.com/mortenfj/unredactron/observability"
)

// GojaEngine runs a JavaScript boost hook. The script is compiled once
// at construction and must define a function `boost(candidate)`
// returning a number. A runtime error in the script disables the hook
// for the rest of the run instead of failing the analysis.
type GojaEngine struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	fn       goja.Callable
	log      observability.Logger
	disabled bool
}

// NewEngine compiles the script and resolves its boost function. A nil
// logger disables logging.
func NewEngine(script string, log observability.Logger) (*GojaEngine, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	vm := goja.New()
	if _, err := vm.RunString(script); err != nil {
		return nil, fmt.Errorf("compiling boost script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get("boost"))
	if !ok {
		return nil, fmt.Errorf("boost script defines no boost(candidate) function")
	}
	return &GojaEngine{vm: vm, fn: fn, log: log}, nil
}

// LoadEngine reads and compiles a boost script from disk.
func LoadEngine(path string, log observability.Logger) (*GojaEngine, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boost script: %w", err)
	}
	return NewEngine(string(script), log)
}

// Enabled reports whether the hook is still live.
func (e *GojaEngine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.disabled
}

// Boost calls the script's boost function for one candidate. Context
// cancellation interrupts the running script and propagates; any other
// script failure disables the hook and returns a zero adjustment.
func (e *GojaEngine) Boost(ctx context.Context, cand Candidate) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disabled {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	done := make(chan struct{})
	watch := make(chan struct{})
	go func() {
		defer close(watch)
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	// ClearInterrupt must come after the watcher has exited, or a late
	// interrupt would leak into the next call.
	defer func() {
		close(done)
		<-watch
		e.vm.ClearInterrupt()
	}()

	val, err := e.fn(goja.Undefined(), e.vm.ToValue(map[string]interface{}{
		"text":  cand.Text,
		"prior": cand.Prior,
		"notes": cand.Notes,
		"redaction": map[string]interface{}{
			"page":   cand.Redaction.Page,
			"x":      cand.Redaction.X,
			"y":      cand.Redaction.Y,
			"width":  cand.Redaction.Width,
			"height": cand.Redaction.Height,
		},
	}))
	if err != nil {
		if interruptedErr, ok := err.(*goja.InterruptedError); ok {
			if cause := interruptedErr.Unwrap(); cause != nil {
				return 0, cause
			}
			return 0, context.Canceled
		}
		e.disabled = true
		e.log.Warn("boost hook disabled after script error",
			observability.Error("error", err),
			observability.String("candidate", cand.Text),
		)
		return 0, nil
	}

	boost := val.ToFloat()
	if math.IsNaN(boost) || math.IsInf(boost, 0) {
		return 0, nil
	}
	return boost, nil
}
