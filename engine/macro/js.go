package macro

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// JSHandler runs a "> object name javascript" body. The body becomes a
// function of (method, args, vars, user); each call gets a fresh runtime.
type JSHandler struct {
	name    string
	program *goja.Program
}

// NewJS compiles a JavaScript macro body.
func NewJS(name, code string) (*JSHandler, error) {
	src := "(function(method, args, vars, user) {\n" + code + "\n})"
	p, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("compiling javascript: %w", err)
	}
	return &JSHandler{name: name, program: p}, nil
}

func (h *JSHandler) Invoke(ctx context.Context, call Call) (string, error) {
	o := goja.New()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			o.Interrupt("timeout")
		case <-stop:
		}
	}()

	v, err := o.RunProgram(h.program)
	if err != nil {
		return "", jsError(ctx, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return "", errors.New("object body did not compile to a function")
	}

	var words []any
	for _, a := range strings.Fields(call.Args) {
		words = append(words, a)
	}
	vars := o.NewObject()
	for k, v := range call.Vars {
		if err := vars.Set(k, v); err != nil {
			return "", err
		}
	}
	res, err := fn(goja.Undefined(), o.ToValue(call.Method), o.NewArray(words...), vars, o.ToValue(call.UserID))
	if err != nil {
		return "", jsError(ctx, err)
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return "", nil
	}
	return res.String(), nil
}

func jsError(ctx context.Context, err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
