package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattjoyce/aebridge/internal/log"
)

// Args are the decoded command arguments.
type Args map[string]any

// Handler runs one operation against the host.
type Handler func(ctx context.Context, args Args) Outcome

// Handlers holds one slot per operation. A nil slot dispatches as an
// unsupported operation.
type Handlers struct {
	GetProjectInfo      Handler
	ListCompositions    Handler
	GetLayerInfo        Handler
	CreateComposition   Handler
	UpdateComposition   Handler
	CreateTextLayer     Handler
	CreateShapeLayer    Handler
	CreateSolidLayer    Handler
	SetLayerProperties  Handler
	SetLayerKeyframe    Handler
	SetLayerExpression  Handler
	ApplyEffect         Handler
	ApplyEffectTemplate Handler
}

// Registry dispatches operation names to Handlers.
type Registry struct {
	handlers Handlers
}

// New returns a Registry over h.
func New(h Handlers) *Registry {
	return &Registry{handlers: h}
}

func (r *Registry) lookup(op Operation) Handler {
	h := r.handlers
	switch op {
	case OpGetProjectInfo:
		return h.GetProjectInfo
	case OpListCompositions:
		return h.ListCompositions
	case OpGetLayerInfo:
		return h.GetLayerInfo
	case OpCreateComposition:
		return h.CreateComposition
	case OpUpdateComposition:
		return h.UpdateComposition
	case OpCreateTextLayer:
		return h.CreateTextLayer
	case OpCreateShapeLayer:
		return h.CreateShapeLayer
	case OpCreateSolidLayer:
		return h.CreateSolidLayer
	case OpSetLayerProperties:
		return h.SetLayerProperties
	case OpSetLayerKeyframe:
		return h.SetLayerKeyframe
	case OpSetLayerExpression:
		return h.SetLayerExpression
	case OpApplyEffect:
		return h.ApplyEffect
	case OpApplyEffectTemplate:
		return h.ApplyEffectTemplate
	default:
		return nil
	}
}

// Supports reports whether name resolves to a configured handler.
func (r *Registry) Supports(name string) bool {
	op, ok := ParseOperation(name)
	return ok && r.lookup(op) != nil
}

// Dispatch runs the handler for name. It never panics.
func (r *Registry) Dispatch(ctx context.Context, name string, args Args) (out Outcome) {
	op, ok := ParseOperation(name)
	if !ok {
		return Failed(KindDispatch, fmt.Sprintf("Unknown command: %s", name))
	}
	h := r.lookup(op)
	if h == nil {
		return Failed(KindDispatch, fmt.Sprintf("Unsupported command: %s", name))
	}
	if args == nil {
		args = Args{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			file, line := panicSite()
			log.WithCommand(name).Error("handler panicked", "panic", rec, "file", file, "line", line)
			out = FailedAt(KindHandler, fmt.Sprint(rec), file, line)
		}
	}()
	return h(ctx, args)
}

// panicSite finds the first frame below the runtime's panic machinery, which
// is where the handler blew up.
func panicSite() (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") && frame.File != "" {
			return filepath.Base(frame.File), frame.Line
		}
		if !more {
			return "", 0
		}
	}
}
