package channel

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/aebridge/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func newTestCommandChannel(t *testing.T, fsys afero.Fs) *CommandChannel {
	t.Helper()
	return NewCommandChannel(fsys, "/tmp/ae_command.json", WithClock(func() time.Time { return fixedNow }))
}

func TestPublishWritesPendingRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	rec, err := cc.Publish("createComposition", map[string]any{"name": "Intro", "width": 1920})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "2025-03-14T09:26:53.589Z", rec.Timestamp)

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)

	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "createComposition", onDisk["command"])
	assert.Equal(t, "pending", onDisk["status"])
	assert.Equal(t, map[string]any{"name": "Intro", "width": float64(1920)}, onDisk["args"])
}

func TestPublishNilArgsWritesEmptyObject(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	rec, err := cc.Publish("getProjectInfo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(rec.Args))
}

func TestPublishOverwritesPreviousRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	_, err := cc.Publish("createTextLayer", map[string]any{"text": "A", "fontSize": 10})
	require.NoError(t, err)
	_, err = cc.Publish("listCompositions", map[string]any{"verbose": true})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))

	assert.Equal(t, "listCompositions", onDisk["command"])
	assert.Equal(t, map[string]any{"verbose": true}, onDisk["args"])
	assert.NotContains(t, string(raw), "createTextLayer")
	assert.NotContains(t, string(raw), "fontSize")
}

func TestPublishOverwritesRunningRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	_, err := cc.Publish("getLayerInfo", nil)
	require.NoError(t, err)
	require.NoError(t, cc.UpdateStatus(StatusRunning))

	_, err = cc.Publish("getProjectInfo", nil)
	require.NoError(t, err)

	rec, ok := cc.Read()
	require.True(t, ok)
	assert.Equal(t, "getProjectInfo", rec.Command)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestReadAbsentCases(t *testing.T) {
	cases := []struct {
		name    string
		content *string
		wantErr func(error) bool
	}{
		{name: "missing file", content: nil, wantErr: func(err error) bool { return errors.Is(err, ErrNoRecord) }},
		{name: "empty file", content: ptr("  \n"), wantErr: func(err error) bool { return errors.Is(err, ErrNoRecord) }},
		{name: "malformed json", content: ptr(`{"command": "x", `), wantErr: isParseError},
		{name: "json array", content: ptr(`["pending"]`), wantErr: isParseError},
		{name: "json null", content: ptr(`null`), wantErr: isParseError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			cc := newTestCommandChannel(t, fsys)
			if tc.content != nil {
				require.NoError(t, afero.WriteFile(fsys, cc.Path(), []byte(*tc.content), 0o644))
			}

			_, ok := cc.Read()
			assert.False(t, ok)

			_, err := cc.Load()
			require.Error(t, err)
			assert.True(t, tc.wantErr(err), "unexpected error: %v", err)
		})
	}
}

func TestUpdateStatusPreservesOtherFields(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	content := `{"command":"setLayerProperties","args":{"opacity":50,"position":[1,2]},"timestamp":"2025-01-01T00:00:00.000Z","status":"pending","origin":"cli"}`
	require.NoError(t, afero.WriteFile(fsys, cc.Path(), []byte(content), 0o644))

	require.NoError(t, cc.UpdateStatus(StatusRunning))

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"setLayerProperties","args":{"opacity":50,"position":[1,2]},"timestamp":"2025-01-01T00:00:00.000Z","status":"running","origin":"cli"}`, string(raw))
}

func TestUpdateStatusOnVanishedFileIsNoop(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	require.NoError(t, cc.UpdateStatus(StatusCompleted))

	exists, err := afero.Exists(fsys, cc.Path())
	require.NoError(t, err)
	assert.False(t, exists, "status update must not create the command file")
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)
	_, err := cc.Publish("getProjectInfo", nil)
	require.NoError(t, err)

	assert.Error(t, cc.UpdateStatus(Status("done")))
}

func TestUpdateStatusOnMalformedFileReturnsParseError(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)
	require.NoError(t, afero.WriteFile(fsys, cc.Path(), []byte("not json"), 0o644))

	err := cc.UpdateStatus(StatusRunning)
	require.Error(t, err)
	assert.True(t, isParseError(err))

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)
	assert.Equal(t, "not json", string(raw))
}

func TestAdvanceFollowsStateMachine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)
	rec, err := cc.Publish("listCompositions", nil)
	require.NoError(t, err)
	fp := rec.Fingerprint()

	var terr *TransitionError
	err = cc.Advance(fp, StatusCompleted)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusPending, terr.From)
	assert.Equal(t, StatusCompleted, terr.To)

	require.NoError(t, cc.Advance(fp, StatusRunning))
	require.NoError(t, cc.Advance(fp, StatusCompleted))

	got, ok := cc.Read()
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, fp, got.Fingerprint(), "status updates must not change the lifecycle fingerprint")

	assert.ErrorAs(t, cc.Advance(fp, StatusError), &terr)
}

func TestAdvanceRefusesSupersededRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := fixedNow
	cc := NewCommandChannel(fsys, "/tmp/ae_command.json", WithClock(func() time.Time { return clock }))

	first, err := cc.Publish("getLayerInfo", nil)
	require.NoError(t, err)
	require.NoError(t, cc.Advance(first.Fingerprint(), StatusRunning))

	clock = clock.Add(time.Second)
	_, err = cc.Publish("getProjectInfo", nil)
	require.NoError(t, err)

	err = cc.Advance(first.Fingerprint(), StatusCompleted)
	require.ErrorIs(t, err, ErrStaleRecord)

	got, ok := cc.Read()
	require.True(t, ok)
	assert.Equal(t, "getProjectInfo", got.Command)
	assert.Equal(t, StatusPending, got.Status)
}

func TestPublishOnReadOnlyFilesystemFailsOpen(t *testing.T) {
	base := afero.NewMemMapFs()
	cc := NewCommandChannel(afero.NewReadOnlyFs(base), "/tmp/ae_command.json")

	_, err := cc.Publish("getProjectInfo", nil)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)
}

func TestResultChannelRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	rc := NewResultChannel(fsys, "/tmp/ae_mcp_result.json")

	_, err := rc.Read()
	require.ErrorIs(t, err, ErrNoResult)

	require.NoError(t, rc.Write([]byte("plain text result")))
	got, err := rc.Read()
	require.NoError(t, err)
	assert.Equal(t, "plain text result", string(got))

	again, err := rc.Read()
	require.NoError(t, err)
	assert.Equal(t, got, again, "reads must not consume the result")

	require.NoError(t, rc.Write([]byte(`{"a":1}`)))
	got, err = rc.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestResultChannelWriteFailure(t *testing.T) {
	rc := NewResultChannel(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/tmp/ae_mcp_result.json")

	err := rc.Write([]byte(`{}`))
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)
}

func TestChannelsOnRealFilesystem(t *testing.T) {
	dir := t.TempDir()
	p := Paths{Dir: filepath.Join(dir, "bridge")}
	fsys := afero.NewOsFs()
	require.NoError(t, EnsureDir(fsys, p))

	cc := NewCommandChannel(fsys, p.CommandPath())
	_, err := cc.Publish("getProjectInfo", map[string]any{})
	require.NoError(t, err)
	require.NoError(t, cc.UpdateStatus(StatusRunning))

	rec, ok := cc.Read()
	require.True(t, ok)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, filepath.Join(dir, "bridge", DefaultCommandFile), cc.Path())
}

func TestArgsMap(t *testing.T) {
	cases := []struct {
		name    string
		args    string
		want    map[string]any
		wantErr bool
	}{
		{name: "missing", args: "", want: map[string]any{}},
		{name: "null", args: "null", want: map[string]any{}},
		{name: "object", args: `{"name":"Intro"}`, want: map[string]any{"name": "Intro"}},
		{name: "array", args: `[1,2]`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CommandRecord{Args: json.RawMessage(tc.args)}.ArgsMap()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFingerprintIgnoresStatusAndIndentation(t *testing.T) {
	a := CommandRecord{Command: "applyEffect", Args: json.RawMessage(`{"layerIndex":1,"effectName":"Glow"}`), Timestamp: "t1", Status: StatusPending}
	b := CommandRecord{Command: "applyEffect", Args: json.RawMessage("{\n  \"layerIndex\": 1,\n  \"effectName\": \"Glow\"\n}"), Timestamp: "t1", Status: StatusRunning}
	c := a
	c.Timestamp = "t2"

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2025-03-14T09:26:53.589Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(fixedNow))

	_, err = ParseTimestamp("2025-03-14T09:26:53+02:00")
	assert.NoError(t, err)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func ptr(s string) *string { return &s }

func isParseError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}

// foreignRecord is a command file as a script-host controller writes it:
// no HTML escaping, its own key order and an extra field.
const foreignRecord = `{"timestamp":"2025-03-14T09:26:53.589Z","command":"setLayerExpression","status":"pending","args":{"expression":"time > 1 && t < 2 ? \"Tom & Jerry\" : 0"},"source":"mcp"}`

func TestAdvanceKeepsForeignArgsBytes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)
	require.NoError(t, afero.WriteFile(fsys, cc.Path(), []byte(foreignRecord), 0o644))

	rec, ok := cc.Read()
	require.True(t, ok)
	fp := rec.Fingerprint()

	require.NoError(t, cc.Advance(fp, StatusRunning))
	require.NoError(t, cc.Advance(fp, StatusCompleted))

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `time > 1 && t < 2 ? \"Tom & Jerry\" : 0`)
	assert.NotContains(t, string(raw), `\u003e`)
	assert.NotContains(t, string(raw), `\u0026`)

	got, ok := cc.Read()
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, fp, got.Fingerprint())

	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "mcp", onDisk["source"])
}

func TestAdvanceKeepsFieldOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)
	require.NoError(t, afero.WriteFile(fsys, cc.Path(), []byte(foreignRecord), 0o644))

	require.NoError(t, cc.UpdateStatus(StatusRunning))

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)
	members, err := DecodeObject(raw)
	require.NoError(t, err)
	var keys []string
	for _, m := range members {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"timestamp", "command", "status", "args", "source"}, keys)
}

func TestPublishDoesNotEscapeHTML(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cc := newTestCommandChannel(t, fsys)

	_, err := cc.Publish("createTextLayer", map[string]any{"text": "Tom & Jerry <3"})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fsys, cc.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Tom & Jerry <3"`)
}

func TestFingerprintIgnoresEscapingAndKeyOrder(t *testing.T) {
	a := CommandRecord{Command: "setLayerExpression", Args: json.RawMessage(`{"expression":"a > b && c < d","layerIndex":2}`), Timestamp: "t1"}
	b := CommandRecord{Command: "setLayerExpression", Args: json.RawMessage(`{"layerIndex":2,"expression":"a > b && c < d"}`), Timestamp: "t1"}
	c := CommandRecord{Command: "setLayerExpression", Args: json.RawMessage(`{"expression":"a \u003e b \u0026\u0026 c \u003c d","layerIndex":2}`), Timestamp: "t1"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Fingerprint(), c.Fingerprint())
}

func TestDecodeObjectRejectsNonObjects(t *testing.T) {
	for _, in := range []string{`null`, `[1]`, `"x"`, `{"a":1} {}`, `{"a":`} {
		_, err := DecodeObject([]byte(in))
		assert.Error(t, err, in)
	}
}
