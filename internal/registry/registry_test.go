package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/aebridge/internal/log"
)

func TestMain(m *testing.M) {
	log.SetupWriter("ERROR", io.Discard)
	os.Exit(m.Run())
}

func fullHandlers(h Handler) Handlers {
	return Handlers{
		GetProjectInfo:      h,
		ListCompositions:    h,
		GetLayerInfo:        h,
		CreateComposition:   h,
		UpdateComposition:   h,
		CreateTextLayer:     h,
		CreateShapeLayer:    h,
		CreateSolidLayer:    h,
		SetLayerProperties:  h,
		SetLayerKeyframe:    h,
		SetLayerExpression:  h,
		ApplyEffect:         h,
		ApplyEffectTemplate: h,
	}
}

func TestEveryOperationHasASlot(t *testing.T) {
	calls := 0
	reg := New(fullHandlers(func(ctx context.Context, args Args) Outcome {
		calls++
		return Success(map[string]any{"ok": true})
	}))

	for _, op := range Operations() {
		t.Run(string(op), func(t *testing.T) {
			assert.True(t, reg.Supports(string(op)))
			out := reg.Dispatch(context.Background(), string(op), nil)
			assert.True(t, out.OK())
		})
	}
	assert.Equal(t, len(Operations()), calls)
	assert.Len(t, Operations(), 13)
}

func TestDispatchUnknownCommand(t *testing.T) {
	reg := New(Handlers{})

	var out Outcome
	require.NotPanics(t, func() {
		out = reg.Dispatch(context.Background(), "deleteEverything", Args{})
	})
	require.False(t, out.OK())
	assert.Equal(t, KindDispatch, out.Failure().Kind)
	assert.Equal(t, "Unknown command: deleteEverything", out.Failure().Message)
	assert.False(t, reg.Supports("deleteEverything"))
}

func TestDispatchMissingHandler(t *testing.T) {
	reg := New(Handlers{GetProjectInfo: func(ctx context.Context, args Args) Outcome {
		return Success("{}")
	}})

	out := reg.Dispatch(context.Background(), "applyEffect", Args{})
	require.False(t, out.OK())
	assert.Equal(t, KindDispatch, out.Failure().Kind)
	assert.False(t, reg.Supports("applyEffect"))
	assert.True(t, reg.Supports("getProjectInfo"))
}

func TestDispatchPassesArgs(t *testing.T) {
	var got Args
	reg := New(Handlers{CreateComposition: func(ctx context.Context, args Args) Outcome {
		got = args
		return Success(nil)
	}})

	reg.Dispatch(context.Background(), "createComposition", Args{"name": "Intro"})
	assert.Equal(t, Args{"name": "Intro"}, got)
}

func TestDispatchRecoversPanicWithSourcePosition(t *testing.T) {
	reg := New(Handlers{GetLayerInfo: func(ctx context.Context, args Args) Outcome {
		var layers map[string]int
		layers["boom"] = 1
		return Success(nil)
	}})

	var out Outcome
	require.NotPanics(t, func() {
		out = reg.Dispatch(context.Background(), "getLayerInfo", nil)
	})
	require.False(t, out.OK())
	f := out.Failure()
	assert.Equal(t, KindHandler, f.Kind)
	assert.Contains(t, f.Message, "nil map")
	assert.Equal(t, "registry_test.go", f.File)
	assert.Positive(t, f.Line)
}

func TestDispatchReturnedFailure(t *testing.T) {
	reg := New(Handlers{ApplyEffect: func(ctx context.Context, args Args) Outcome {
		return Failed(KindHandler, "Layer not found at index 3")
	}})

	out := reg.Dispatch(context.Background(), "applyEffect", Args{"layerIndex": 3})
	require.False(t, out.OK())
	assert.Equal(t, "Layer not found at index 3", out.Failure().Message)
	assert.Zero(t, out.Failure().Line)

	var f *Failure
	assert.True(t, errors.As(out.Failure(), &f))
}

func TestSuccessEncoding(t *testing.T) {
	assert.Equal(t, "raw text", string(Success("raw text").Payload()))
	assert.Equal(t, `{"a":1}`, string(Success([]byte(`{"a":1}`)).Payload()))
	assert.JSONEq(t, `{"status":"success"}`, string(Success(map[string]string{"status": "success"}).Payload()))
	assert.Equal(t, "null", string(Success(nil).Payload()))
	assert.Equal(t, "{\n  \"name\": \"Tom & Jerry <Intro>\"\n}", string(Success(map[string]string{"name": "Tom & Jerry <Intro>"}).Payload()))

	bad := Success(map[string]any{"c": make(chan int)})
	require.False(t, bad.OK())
	assert.Equal(t, KindHandler, bad.Failure().Kind)
}

func TestParseOperationAndAccess(t *testing.T) {
	op, ok := ParseOperation("listCompositions")
	require.True(t, ok)
	assert.Equal(t, OpListCompositions, op)
	assert.Equal(t, AccessRead, op.Access())
	assert.Equal(t, AccessWrite, OpCreateShapeLayer.Access())

	_, ok = ParseOperation("ListCompositions")
	assert.False(t, ok, "operation names are case sensitive")
}
