package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/events"
	"github.com/mattjoyce/aebridge/internal/log"
	"github.com/mattjoyce/aebridge/internal/registry"
	"github.com/mattjoyce/aebridge/internal/scene"
	"github.com/mattjoyce/aebridge/internal/worker/mocks"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

type harness struct {
	fs       afero.Fs
	commands *channel.CommandChannel
	results  *channel.ResultChannel
	hub      *events.Hub
	worker   *Worker
}

func newHarness(t *testing.T, cfg Config, h registry.Handlers) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	paths := channel.Paths{Dir: "/bridge"}
	clock := channel.WithClock(func() time.Time { return fixedNow })
	hb := &harness{
		fs:       fs,
		commands: channel.NewCommandChannel(fs, paths.CommandPath(), clock),
		results:  channel.NewResultChannel(fs, paths.ResultPath()),
		hub:      events.NewHub(32),
	}
	hb.worker = New(cfg, hb.commands, hb.results, registry.New(h),
		WithEvents(hb.hub),
		WithClock(func() time.Time { return fixedNow.Add(time.Second) }),
		WithID("test-worker"),
	)
	return hb
}

func (h *harness) publish(t *testing.T, command string, args map[string]any) channel.CommandRecord {
	t.Helper()
	rec, err := h.commands.Publish(command, args)
	require.NoError(t, err)
	return rec
}

func (h *harness) status(t *testing.T) channel.Status {
	t.Helper()
	rec, err := h.commands.Load()
	require.NoError(t, err)
	return rec.Status
}

func (h *harness) result(t *testing.T) map[string]any {
	t.Helper()
	data, err := h.results.Read()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func (h *harness) eventTypes() []string {
	var types []string
	for _, ev := range h.hub.SnapshotSince(0) {
		types = append(types, ev.Type)
	}
	return types
}

func echoHandlers() registry.Handlers {
	return registry.Handlers{
		GetProjectInfo: func(_ context.Context, args registry.Args) registry.Outcome {
			return registry.Success(map[string]any{"status": "success", "args": args})
		},
	}
}

func TestCreateCompositionRoundTrip(t *testing.T) {
	h := newHarness(t, DefaultConfig(), scene.Handlers(scene.NewMemory("")))
	h.publish(t, "createComposition", map[string]any{"name": "Intro", "width": 1920, "height": 1080, "frameRate": 30})

	assert.Equal(t, TickCompleted, h.worker.Tick(context.Background()))

	res := h.result(t)
	assert.Equal(t, "success", res["status"])
	comp := res["composition"].(map[string]any)
	assert.Equal(t, "Intro", comp["name"])
	assert.Equal(t, float64(1920), comp["width"])
	assert.Equal(t, float64(1080), comp["height"])
	assert.Equal(t, float64(30), comp["frameRate"])
	assert.Equal(t, "createComposition", res[KeyCommandExecuted])
	assert.Equal(t, "2025-03-14T09:26:54.589Z", res[KeyResponseTimestamp])

	assert.Equal(t, channel.StatusCompleted, h.status(t))
	assert.Equal(t, []string{events.CommandRunning, events.CommandCompleted}, h.eventTypes())
}

func TestTickReachesTerminalStatus(t *testing.T) {
	h := newHarness(t, DefaultConfig(), echoHandlers())
	h.publish(t, "getProjectInfo", map[string]any{"verbose": true})

	assert.Equal(t, TickCompleted, h.worker.Tick(context.Background()))
	assert.True(t, h.status(t).IsTerminal())
	assert.Equal(t, map[string]any{"verbose": true}, h.result(t)["args"])

	// A finished command is not picked up again.
	assert.Equal(t, TickIdle, h.worker.Tick(context.Background()))
}

func TestUnknownCommandWritesDispatchError(t *testing.T) {
	h := newHarness(t, DefaultConfig(), echoHandlers())
	h.publish(t, "deleteEverything", nil)

	assert.Equal(t, TickFailed, h.worker.Tick(context.Background()))

	res := h.result(t)
	assert.Equal(t, "error", res["status"])
	assert.Equal(t, string(registry.KindDispatch), res["error"])
	assert.Equal(t, "deleteEverything", res["command"])
	assert.Equal(t, "Unknown command: deleteEverything", res["message"])
	assert.Equal(t, "deleteEverything", res[KeyCommandExecuted])
	assert.Equal(t, channel.StatusError, h.status(t))
	assert.Equal(t, []string{events.CommandRunning, events.CommandFailed}, h.eventTypes())
}

func TestUnsupportedCommandIsDispatchError(t *testing.T) {
	h := newHarness(t, DefaultConfig(), echoHandlers())
	h.publish(t, "applyEffect", nil)

	assert.Equal(t, TickFailed, h.worker.Tick(context.Background()))
	assert.Equal(t, "Unsupported command: applyEffect", h.result(t)["message"])
}

func TestHandlerFailureAndPanic(t *testing.T) {
	h := newHarness(t, DefaultConfig(), registry.Handlers{
		CreateTextLayer: func(context.Context, registry.Args) registry.Outcome {
			return registry.Failed(registry.KindHandler, "No active composition")
		},
		CreateSolidLayer: func(context.Context, registry.Args) registry.Outcome {
			var layers []string
			_ = layers[3]
			return registry.Success(nil)
		},
	})

	h.publish(t, "createTextLayer", nil)
	assert.Equal(t, TickFailed, h.worker.Tick(context.Background()))
	res := h.result(t)
	assert.Equal(t, string(registry.KindHandler), res["error"])
	assert.Equal(t, "No active composition", res["message"])
	assert.NotContains(t, res, "line")

	h.publish(t, "createSolidLayer", nil)
	assert.Equal(t, TickFailed, h.worker.Tick(context.Background()))
	res = h.result(t)
	assert.Equal(t, string(registry.KindHandler), res["error"])
	assert.Contains(t, res["message"], "index out of range")
	assert.Equal(t, "worker_test.go", res["fileName"])
	assert.Greater(t, res["line"], float64(0))
	assert.Equal(t, channel.StatusError, h.status(t))
}

func TestInvalidArgsAreDispatchError(t *testing.T) {
	h := newHarness(t, DefaultConfig(), echoHandlers())
	raw := `{"command":"getProjectInfo","args":[1,2],"timestamp":"2025-03-14T09:26:53.589Z","status":"pending"}`
	require.NoError(t, afero.WriteFile(h.fs, h.commands.Path(), []byte(raw), 0o644))

	assert.Equal(t, TickFailed, h.worker.Tick(context.Background()))
	res := h.result(t)
	assert.Equal(t, string(registry.KindDispatch), res["error"])
	assert.Contains(t, res["message"], "Invalid arguments")
}

func TestMalformedCommandFileIsIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig(), echoHandlers())
	require.NoError(t, afero.WriteFile(h.fs, h.commands.Path(), []byte("{not json"), 0o644))

	assert.Equal(t, TickIdle, h.worker.Tick(context.Background()))

	data, err := afero.ReadFile(h.fs, h.commands.Path())
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
	_, err = h.results.Read()
	assert.ErrorIs(t, err, channel.ErrNoResult)
}

func TestAbsentCommandIsIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig(), echoHandlers())
	assert.Equal(t, TickIdle, h.worker.Tick(context.Background()))
	assert.Empty(t, h.eventTypes())
}

func TestNonPendingRecordsAreIgnored(t *testing.T) {
	for _, status := range []channel.Status{channel.StatusRunning, channel.StatusCompleted, channel.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t, DefaultConfig(), echoHandlers())
			h.publish(t, "getProjectInfo", nil)
			require.NoError(t, h.commands.UpdateStatus(status))

			assert.Equal(t, TickIdle, h.worker.Tick(context.Background()))
			assert.Equal(t, status, h.status(t))
		})
	}
}

func TestDisabledAutoRunLeavesCommandPending(t *testing.T) {
	h := newHarness(t, Config{AutoRun: false}, echoHandlers())
	h.publish(t, "getProjectInfo", nil)

	assert.Equal(t, TickDisabled, h.worker.Tick(context.Background()))
	assert.Equal(t, channel.StatusPending, h.status(t))
	assert.Equal(t, DefaultPollInterval, h.worker.Config().PollInterval)
}

func TestVerbatimNonObjectPayload(t *testing.T) {
	h := newHarness(t, DefaultConfig(), registry.Handlers{
		GetProjectInfo: func(context.Context, registry.Args) registry.Outcome {
			return registry.Success("plain text result")
		},
	})
	h.publish(t, "getProjectInfo", nil)

	assert.Equal(t, TickCompleted, h.worker.Tick(context.Background()))
	data, err := h.results.Read()
	require.NoError(t, err)
	assert.Equal(t, "plain text result", string(data))
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, DefaultConfig(), registry.Handlers{
		GetProjectInfo: func(context.Context, registry.Args) registry.Outcome {
			close(started)
			<-release
			return registry.Success(map[string]any{"status": "success"})
		},
	})
	h.publish(t, "getProjectInfo", nil)

	var wg sync.WaitGroup
	var first TickResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = h.worker.Tick(context.Background())
	}()

	<-started
	assert.True(t, h.worker.Busy())
	assert.Equal(t, channel.StatusRunning, h.status(t))
	assert.Equal(t, TickSkipped, h.worker.Tick(context.Background()))

	close(release)
	wg.Wait()
	assert.Equal(t, TickCompleted, first)
	assert.False(t, h.worker.Busy())
	assert.Contains(t, h.eventTypes(), events.TickSkipped)
}

func TestPublishDuringRunWinsTheSlot(t *testing.T) {
	var h *harness
	h = newHarness(t, DefaultConfig(), registry.Handlers{
		GetProjectInfo: func(context.Context, registry.Args) registry.Outcome {
			_, err := h.commands.Publish("listCompositions", nil)
			require.NoError(t, err)
			return registry.Success(map[string]any{"status": "success", "from": "first"})
		},
		ListCompositions: func(context.Context, registry.Args) registry.Outcome {
			return registry.Success(map[string]any{"status": "success", "from": "second"})
		},
	})
	h.publish(t, "getProjectInfo", nil)

	assert.Equal(t, TickCompleted, h.worker.Tick(context.Background()))
	rec, err := h.commands.Load()
	require.NoError(t, err)
	assert.Equal(t, "listCompositions", rec.Command)
	assert.Equal(t, channel.StatusPending, rec.Status)
	assert.Equal(t, "first", h.result(t)["from"])

	assert.Equal(t, TickCompleted, h.worker.Tick(context.Background()))
	res := h.result(t)
	assert.Equal(t, "second", res["from"])
	assert.Equal(t, "listCompositions", res[KeyCommandExecuted])
	assert.Equal(t, channel.StatusCompleted, h.status(t))
}

func pendingRecord() channel.CommandRecord {
	return channel.CommandRecord{
		Command:   "getProjectInfo",
		Args:      json.RawMessage(`{}`),
		Timestamp: channel.FormatTimestamp(fixedNow),
		Status:    channel.StatusPending,
	}
}

func TestResultWriteFailureEscalates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	commands := mocks.NewMockCommandStore(ctrl)
	results := mocks.NewMockResultStore(ctrl)
	rec := pendingRecord()
	fp := rec.Fingerprint()
	writeErr := &channel.IOError{Op: "write", Path: "/bridge/ae_mcp_result.json", Err: errors.New("disk full")}

	gomock.InOrder(
		commands.EXPECT().Read().Return(rec, true),
		commands.EXPECT().Advance(fp, channel.StatusRunning).Return(nil),
		results.EXPECT().Write(gomock.Any()).Return(writeErr),
		results.EXPECT().Write(gomock.Any()).DoAndReturn(func(payload []byte) error {
			var res map[string]any
			require.NoError(t, json.Unmarshal(payload, &res))
			assert.Equal(t, "error", res["status"])
			assert.Equal(t, string(registry.KindChannelIO), res["error"])
			assert.Contains(t, res["message"], "disk full")
			return writeErr
		}),
		commands.EXPECT().Advance(fp, channel.StatusError).Return(nil),
	)

	w := New(DefaultConfig(), commands, results, registry.New(echoHandlers()))
	assert.Equal(t, TickFailed, w.Tick(context.Background()))
}

func TestClaimFailureAbandonsTick(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	commands := mocks.NewMockCommandStore(ctrl)
	results := mocks.NewMockResultStore(ctrl)
	rec := pendingRecord()

	commands.EXPECT().Read().Return(rec, true)
	commands.EXPECT().Advance(rec.Fingerprint(), channel.StatusRunning).Return(channel.ErrStaleRecord)

	called := false
	w := New(DefaultConfig(), commands, results, registry.New(registry.Handlers{
		GetProjectInfo: func(context.Context, registry.Args) registry.Outcome {
			called = true
			return registry.Success(nil)
		},
	}))
	assert.Equal(t, TickIdle, w.Tick(context.Background()))
	assert.False(t, called)
}

func TestStaleCompletionIsTolerated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	commands := mocks.NewMockCommandStore(ctrl)
	results := mocks.NewMockResultStore(ctrl)
	rec := pendingRecord()
	fp := rec.Fingerprint()

	commands.EXPECT().Read().Return(rec, true)
	commands.EXPECT().Advance(fp, channel.StatusRunning).Return(nil)
	results.EXPECT().Write(gomock.Any()).Return(nil)
	commands.EXPECT().Advance(fp, channel.StatusCompleted).Return(&channel.TransitionError{
		From: channel.StatusPending, To: channel.StatusCompleted,
	})

	w := New(DefaultConfig(), commands, results, registry.New(echoHandlers()))
	assert.Equal(t, TickCompleted, w.Tick(context.Background()))
}

func TestStartPollsUntilCancelled(t *testing.T) {
	h := newHarness(t, Config{AutoRun: true, PollInterval: 10 * time.Millisecond}, echoHandlers())
	h.publish(t, "getProjectInfo", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Start(ctx) }()

	require.Eventually(t, func() bool {
		rec, err := h.commands.Load()
		return err == nil && rec.Status == channel.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	types := h.eventTypes()
	assert.Equal(t, events.WorkerStarted, types[0])
	assert.Equal(t, events.WorkerStopped, types[len(types)-1])
}
