// Package macro dispatches object macros: named handlers reached through
// one call contract, each call bounded by a timeout.
package macro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/types"
)

// DefaultTimeout bounds a macro call when the registry has no timeout set.
const DefaultTimeout = 2 * time.Second

// ErrUnknown is wrapped by the MacroError returned for unregistered names.
var ErrUnknown = errors.New("no such macro")

// Call is one macro invocation. Vars is a snapshot of the user's
// variables; handlers never see the live session.
type Call struct {
	Name   string
	Method string
	Args   string
	UserID string
	Vars   map[string]string
}

// Handler runs a macro call and returns the text to splice into the reply.
type Handler interface {
	Invoke(ctx context.Context, call Call) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call Call) (string, error)

func (f HandlerFunc) Invoke(ctx context.Context, call Call) (string, error) {
	return f(ctx, call)
}

// Registry maps macro names to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	timeout  time.Duration
}

// NewRegistry creates an empty registry. A zero timeout means DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{handlers: map[string]Handler{}, timeout: timeout}
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names lists the registered macros, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type result struct {
	out string
	err error
}

// Invoke runs the named handler. Every failure, including a timeout or a
// panicking handler, comes back as *errs.MacroError.
func (r *Registry) Invoke(ctx context.Context, call Call) (string, error) {
	r.mu.RLock()
	h, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", &errs.MacroError{Name: call.Name, Method: call.Method, Err: ErrUnknown}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		out, err := h.Invoke(ctx, call)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", &errs.MacroError{Name: call.Name, Method: call.Method, Err: res.err}
		}
		return res.out, nil
	case <-ctx.Done():
		return "", &errs.MacroError{Name: call.Name, Method: call.Method, Err: ctx.Err()}
	}
}

// Load compiles object definitions and registers them. Objects in
// languages without a runtime are reported and skipped.
func Load(r *Registry, objects []types.ObjectDef) []error {
	var problems []error
	for _, obj := range objects {
		var h Handler
		var err error
		switch obj.Language {
		case "lua":
			h, err = NewLua(obj.Name, obj.Code)
		case "javascript", "js":
			h, err = NewJS(obj.Name, obj.Code)
		default:
			err = fmt.Errorf("unsupported language %q", obj.Language)
		}
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: object %s: %w", obj.Source, obj.Name, err))
			continue
		}
		r.Register(obj.Name, h)
	}
	return problems
}
