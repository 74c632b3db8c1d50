package channel

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/afero"
)

// ResultChannel is the single-slot result mailbox. Reads never consume.
type ResultChannel struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger
}

// NewResultChannel returns a ResultChannel backed by path on fsys.
func NewResultChannel(fsys afero.Fs, path string, opts ...Option) *ResultChannel {
	o := buildOptions(opts)
	return &ResultChannel{
		fs:     fsys,
		path:   path,
		logger: o.logger.With("channel", "result", "path", path),
	}
}

// Path returns the backing file path.
func (r *ResultChannel) Path() string { return r.path }

// Write replaces the stored result with payload, verbatim.
func (r *ResultChannel) Write(payload []byte) error {
	if err := writeFile(r.fs, r.path, payload, true); err != nil {
		r.logger.Error("failed to write result file", "error", err)
		return err
	}
	r.logger.Debug("result written", "bytes", len(payload))
	return nil
}

// Read returns the stored payload, or ErrNoResult.
func (r *ResultChannel) Read() ([]byte, error) {
	data, err := readFile(r.fs, r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
