package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/events"
)

func eventTypes(hub *events.Hub, since int64) []string {
	var out []string
	for _, ev := range hub.SnapshotSince(since) {
		out = append(out, ev.Type)
	}
	return out
}

func eventData(t *testing.T, ev events.Event) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(ev.Data, &m))
	return m
}

func TestWatcherFollowsWorkerStatus(t *testing.T) {
	fs := afero.NewMemMapFs()
	commands, results := newChannels(fs)
	hub := events.NewHub(32)
	d := New(commands, results, WithEvents(hub))
	w := d.Watch(hub, time.Millisecond)
	w.Poll()

	rec, err := d.Submit("listCompositions", nil)
	require.NoError(t, err)
	w.Poll()
	assert.Equal(t, []string{events.CommandPublished}, eventTypes(hub, 0), "own publishes are not repeated")

	// A worker in another process claims and finishes the command.
	worker := channel.NewCommandChannel(fs, commands.Path())
	require.NoError(t, worker.Advance(rec.Fingerprint(), channel.StatusRunning))
	w.Poll()
	require.NoError(t, worker.Advance(rec.Fingerprint(), channel.StatusCompleted))
	w.Poll()
	w.Poll()

	assert.Equal(t, []string{events.CommandPublished, events.CommandRunning, events.CommandCompleted}, eventTypes(hub, 0))
	last := hub.SnapshotSince(0)[2]
	assert.Equal(t, "listCompositions", eventData(t, last)["command"])
	assert.Equal(t, rec.Timestamp, eventData(t, last)["timestamp"])
}

func TestWatcherFillsInMissedRunning(t *testing.T) {
	fs := afero.NewMemMapFs()
	commands, results := newChannels(fs)
	hub := events.NewHub(32)
	d := New(commands, results)
	w := d.Watch(hub, time.Millisecond)
	w.Poll()

	rec, err := d.Submit("deleteEverything", nil)
	require.NoError(t, err)
	w.Poll()

	require.NoError(t, commands.Advance(rec.Fingerprint(), channel.StatusRunning))
	require.NoError(t, results.Write([]byte(`{"status":"error","error":"dispatch_error","command":"deleteEverything","message":"Unknown command: deleteEverything","_responseTimestamp":"2025-03-14T09:26:54.000Z","_commandExecuted":"deleteEverything"}`)))
	require.NoError(t, commands.Advance(rec.Fingerprint(), channel.StatusError))
	w.Poll()

	evs := hub.SnapshotSince(0)
	assert.Equal(t, []string{events.CommandRunning, events.CommandFailed}, eventTypes(hub, 0))
	failed := eventData(t, evs[1])
	assert.Equal(t, "dispatch_error", failed["error"])
	assert.Equal(t, "Unknown command: deleteEverything", failed["message"])
}

func TestWatcherReportsExternalPublish(t *testing.T) {
	fs := afero.NewMemMapFs()
	commands, results := newChannels(fs)
	hub := events.NewHub(32)
	d := New(commands, results)
	w := d.Watch(hub, time.Millisecond)
	w.Poll()

	// Another controller writes the channel directly.
	other := channel.NewCommandChannel(fs, commands.Path())
	_, err := other.Publish("getProjectInfo", nil)
	require.NoError(t, err)
	w.Poll()

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.CommandPublished, evs[0].Type)
	assert.Equal(t, "external", eventData(t, evs[0])["source"])
}

func TestWatcherBaselineIsSilent(t *testing.T) {
	fs := afero.NewMemMapFs()
	commands, results := newChannels(fs)
	rec, err := commands.Publish("getProjectInfo", nil)
	require.NoError(t, err)
	require.NoError(t, commands.Advance(rec.Fingerprint(), channel.StatusRunning))
	require.NoError(t, commands.Advance(rec.Fingerprint(), channel.StatusCompleted))

	hub := events.NewHub(8)
	w := New(commands, results).Watch(hub, time.Millisecond)
	w.Poll()
	w.Poll()
	assert.Empty(t, hub.SnapshotSince(0))
}
